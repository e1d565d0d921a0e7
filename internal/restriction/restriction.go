// Package restriction описывает политику ограничения отрисовки:
// максимальное число судов и максимальную дальность.
package restriction

import (
	"fmt"
	"math"

	"github.com/flybeeper/fsd-airspace/internal/models"
)

// InfiniteAircraft значение "без ограничения" для числа судов
const InfiniteAircraft = 100000

// RenderRestriction значение-политика. Своей синхронизации нет, владелец
// (анализатор) копирует ее целиком в начале цикла.
//
// Число судов 0 и дальность ровно 0 означают "отрисовка выключена";
// установка одного поля в 0 переводит в выключенное состояние и второе.
type RenderRestriction struct {
	maxAircraft        int
	distanceRestricted bool
	maxDistanceNM      float64

	PartsEnabled bool
	// LogRenderingDecisions писать в debug лог решения по каждому судну
	LogRenderingDecisions bool
}

// NewRenderRestriction политика без ограничений
func NewRenderRestriction() RenderRestriction {
	return RenderRestriction{maxAircraft: InfiniteAircraft, PartsEnabled: true}
}

// FromValues собирает политику из конфигурации. maxAircraft < 0 и
// maxDistanceNM < 0 означают "без ограничения".
func FromValues(maxAircraft int, maxDistanceNM float64, partsEnabled bool) RenderRestriction {
	r := NewRenderRestriction()
	r.PartsEnabled = partsEnabled
	if maxAircraft >= 0 {
		r.SetMaxRenderedAircraft(maxAircraft)
	}
	if maxDistanceNM >= 0 {
		r.SetMaxRenderedDistance(maxDistanceNM)
	}
	return r
}

// MaxRenderedAircraft максимальное число судов (InfiniteAircraft если без ограничения)
func (r RenderRestriction) MaxRenderedAircraft() int { return r.maxAircraft }

// MaxRenderedDistanceNM максимальная дальность, 0 если не ограничена
func (r RenderRestriction) MaxRenderedDistanceNM() float64 {
	if !r.distanceRestricted {
		return 0
	}
	return r.maxDistanceNM
}

// IsRenderingEnabled false, если число судов < 1 или дальность ограничена и <= 0
func (r RenderRestriction) IsRenderingEnabled() bool {
	if r.maxAircraft < 1 {
		return false
	}
	if !r.distanceRestricted {
		return true
	}
	return r.maxDistanceNM > 0
}

// IsMaxAircraftRestricted ограничено ли число судов
func (r RenderRestriction) IsMaxAircraftRestricted() bool {
	return r.maxAircraft < InfiniteAircraft
}

// IsMaxDistanceRestricted ограничена ли дальность (включая ограничение до нуля)
func (r RenderRestriction) IsMaxDistanceRestricted() bool {
	return r.distanceRestricted
}

// IsRenderingRestricted отрисовка включена, но ограничена хотя бы одним полем
func (r RenderRestriction) IsRenderingRestricted() bool {
	return r.IsRenderingEnabled() && (r.IsMaxAircraftRestricted() || r.IsMaxDistanceRestricted())
}

// SetMaxRenderedAircraft n < 1 выключает отрисовку и обнуляет дальность,
// n >= InfiniteAircraft снимает ограничение. Положительное n при выключенной
// через дальность отрисовке снимает ограничение дальности. Возвращает true при изменении.
func (r *RenderRestriction) SetMaxRenderedAircraft(n int) bool {
	before := *r

	switch {
	case n < 1:
		r.maxAircraft = 0
		r.distanceRestricted = true
		r.maxDistanceNM = 0
	case n >= InfiniteAircraft:
		r.maxAircraft = InfiniteAircraft
	default:
		r.maxAircraft = n
	}

	if n >= 1 && r.distanceRestricted && r.maxDistanceNM <= 0 {
		r.distanceRestricted = false
		r.maxDistanceNM = 0
	}
	return before != *r
}

// SetMaxRenderedDistance d < 0 (или NaN) снимает ограничение дальности,
// d == 0 выключает отрисовку и обнуляет число судов. Положительная d при
// выключенной через число судов отрисовке возвращает число судов к бесконечности.
func (r *RenderRestriction) SetMaxRenderedDistance(d float64) bool {
	before := *r

	switch {
	case math.IsNaN(d) || d < 0:
		r.distanceRestricted = false
		r.maxDistanceNM = 0
	case d == 0:
		r.distanceRestricted = true
		r.maxDistanceNM = 0
		r.maxAircraft = 0
	default:
		r.distanceRestricted = true
		r.maxDistanceNM = d
		if r.maxAircraft < 1 {
			r.maxAircraft = InfiniteAircraft
		}
	}
	return before != *r
}

// ClearAllRestrictions снимает оба ограничения
func (r *RenderRestriction) ClearAllRestrictions() bool {
	before := *r
	r.maxAircraft = InfiniteAircraft
	r.distanceRestricted = false
	r.maxDistanceNM = 0
	return before != *r
}

// DisableRendering выключает отрисовку
func (r *RenderRestriction) DisableRendering() bool {
	return r.SetMaxRenderedAircraft(0)
}

// Snapshot значения для записи в снапшот анализатора
func (r RenderRestriction) Snapshot() models.SnapshotRestriction {
	return models.SnapshotRestriction{
		RenderingEnabled:    r.IsRenderingEnabled(),
		RenderingRestricted: r.IsRenderingRestricted(),
		MaxAircraft:         r.maxAircraft,
		DistanceRestricted:  r.distanceRestricted,
		MaxDistanceNM:       r.maxDistanceNM,
	}
}

// String для логов
func (r RenderRestriction) String() string {
	if !r.IsRenderingEnabled() {
		return "rendering disabled"
	}
	distance := "unrestricted"
	if r.distanceRestricted {
		distance = fmt.Sprintf("%.1fNM", r.maxDistanceNM)
	}
	aircraft := "unrestricted"
	if r.IsMaxAircraftRestricted() {
		aircraft = fmt.Sprintf("%d", r.maxAircraft)
	}
	return fmt.Sprintf("max aircraft %s, max distance %s", aircraft, distance)
}
