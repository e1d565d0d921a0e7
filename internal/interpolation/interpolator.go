// Package interpolation восстанавливает состояние воздушного судна на
// произвольный момент по редким сетевым обновлениям.
//
// Отсутствие или нехватка данных не ошибка: запрос выполняется на каждый
// кадр симулятора и всегда возвращает результат со статусом.
package interpolation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// Source история по позывному (реестр)
type Source interface {
	SituationsFor(cs models.Callsign) []models.AircraftSituation
	PartsBeforeTime(cs models.Callsign, cutoff time.Time) ([]models.AircraftParts, models.PartsStatus)
	ResolvedPartsAt(cs models.Callsign, cutoff time.Time) (models.AircraftParts, models.PartsStatus, bool)
}

// Options параметры кеша последних результатов
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Consumer кто запрашивает интерполяцию. ChangedPosition считается
// относительно последнего результата, выданного тому же потребителю.
type Consumer string

const (
	ConsumerSimulator Consumer = "simulator"
	ConsumerHTTP      Consumer = "http"
)

type changeKey struct {
	consumer Consumer
	callsign models.Callsign
}

// Interpolator считает ситуацию между двумя ближайшими по времени отсчетами
type Interpolator struct {
	source Source
	setup  *setupStore
	logger *utils.Logger

	// lastReturned последний выданный результат по потребителю и позывному
	lastReturned *expirable.LRU[changeKey, models.AircraftSituation]
}

// New создает интерполятор
func New(source Source, setup Setup, opts Options, logger *utils.Logger) (*Interpolator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 2048
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 2 * time.Minute
	}

	return &Interpolator{
		source:       source,
		setup:        newSetupStore(setup),
		logger:       logger.WithComponent("interpolator"),
		lastReturned: expirable.NewLRU[changeKey, models.AircraftSituation](opts.CacheSize, nil, opts.CacheTTL),
	}, nil
}

// InterpolatedSituation ситуация на момент at.
//
// Два отсчета вокруг at смешиваются линейно по доле времени, курс идет по
// кратчайшей дуге. Если более нового отсчета еще нет, возвращается последний
// известный без экстраполяции (InterpolationSucceeded=false). Без истории
// возвращается пустая ситуация. Запрос идет от имени ConsumerSimulator.
func (i *Interpolator) InterpolatedSituation(cs models.Callsign, at time.Time, isVtol bool) (models.AircraftSituation, models.InterpolationStatus) {
	return i.InterpolatedSituationFor(ConsumerSimulator, cs, at, isVtol)
}

// InterpolatedSituationFor то же для заданного потребителя
func (i *Interpolator) InterpolatedSituationFor(consumer Consumer, cs models.Callsign, at time.Time, isVtol bool) (models.AircraftSituation, models.InterpolationStatus) {
	key := changeKey{consumer: consumer, callsign: cs}
	situations := i.source.SituationsFor(cs)
	status := models.InterpolationStatus{SituationsCount: len(situations)}
	setup := i.setup.get(cs)

	if len(situations) == 0 {
		metrics.InterpolationResults.WithLabelValues("empty").Inc()
		return models.AircraftSituation{}, status
	}

	older, newer, ok := bracket(situations, at)
	if !ok {
		// older содержит ближайший известный отсчет
		metrics.InterpolationResults.WithLabelValues("held").Inc()
		i.lastReturned.Add(key, older)
		if setup.LogInterpolation {
			i.logger.WithFields(map[string]interface{}{
				"callsign": cs,
				"at":       at,
				"sample":   older.Timestamp,
			}).Debug("Holding last known situation")
		}
		return older, status
	}

	f := timeFraction(older.Timestamp, newer.Timestamp, at)

	var result models.AircraftSituation
	if !setup.ForceFullInterpolation && older.IsStationary(newer) {
		metrics.InterpolationResults.WithLabelValues("stationary").Inc()
		result = older
		result.Timestamp = at
	} else {
		metrics.InterpolationResults.WithLabelValues("interpolated").Inc()
		result = blend(older, newer, f, isVtol)
		result.Timestamp = at
	}
	result.Callsign = cs
	status.InterpolationSucceeded = true

	if last, found := i.lastReturned.Get(key); found {
		status.ChangedPosition = !last.Position.SamePosition(result.Position) ||
			last.Heading != result.Heading || last.Pitch != result.Pitch || last.Bank != result.Bank
	} else {
		status.ChangedPosition = true
	}
	i.lastReturned.Add(key, result)

	if setup.LogInterpolation {
		i.logger.WithFields(map[string]interface{}{
			"callsign": cs,
			"consumer": consumer,
			"at":       at,
			"t0":       older.Timestamp,
			"t1":       newer.Timestamp,
			"fraction": f,
			"changed":  status.ChangedPosition,
		}).Debug("Interpolated situation")
	}
	return result, status
}

// bracket находит пару отсчетов вокруг at. ok=false означает, что пары нет,
// и older содержит отсчет, который нужно держать.
func bracket(list []models.AircraftSituation, at time.Time) (older, newer models.AircraftSituation, ok bool) {
	n := len(list)
	j := sort.Search(n, func(k int) bool { return !list[k].Timestamp.Before(at) })

	switch {
	case j == n:
		// новее последнего отсчета: ждем следующий пакет
		return list[n-1], models.AircraftSituation{}, false
	case j == 0:
		if n >= 2 && list[0].Timestamp.Equal(at) {
			return list[0], list[1], true
		}
		// раньше первого отсчета
		return list[0], models.AircraftSituation{}, false
	default:
		return list[j-1], list[j], true
	}
}

// timeFraction (at-t0)/(t1-t0), ограниченная [0,1]; нулевой интервал дает 0
func timeFraction(t0, t1, at time.Time) float64 {
	span := t1.Sub(t0)
	if span <= 0 {
		return 0
	}
	f := float64(at.Sub(t0)) / float64(span)
	return math.Max(0, math.Min(1, f))
}

func blend(a, b models.AircraftSituation, f float64, isVtol bool) models.AircraftSituation {
	out := models.AircraftSituation{
		Callsign:     a.Callsign,
		Position:     a.Position.Interpolate(b.Position, f),
		Heading:      models.InterpolateHeading(a.Heading, b.Heading, f),
		Pitch:        interpolateSignedAngle(a.Pitch, b.Pitch, f),
		Bank:         interpolateSignedAngle(a.Bank, b.Bank, f),
		GroundSpeed:  a.GroundSpeed + (b.GroundSpeed-a.GroundSpeed)*f,
		OnGround:     a.OnGround,
		FastPosition: b.FastPosition,
	}
	if f >= 0.5 {
		out.OnGround = b.OnGround
	}
	// на земле самолет стоит без крена, VTOL может висеть с креном
	if out.OnGround && !isVtol {
		out.Bank = 0
	}
	return out
}

// interpolateSignedAngle угол в (-180, 180], смешанный по кратчайшей дуге
func interpolateSignedAngle(from, to, f float64) float64 {
	v := from + models.HeadingSignedTurn(from, to)*f
	v = math.Mod(v, 360)
	if v > 180 {
		v -= 360
	} else if v <= -180 {
		v += 360
	}
	return v
}

// PartsBeforeTime parts с временем <= cutoff и статус поддержки.
// При выключенных parts список пуст, статус сохраняется.
func (i *Interpolator) PartsBeforeTime(cs models.Callsign, cutoff time.Time) ([]models.AircraftParts, models.PartsStatus) {
	parts, status := i.source.PartsBeforeTime(cs, cutoff)
	if !i.setup.get(cs).PartsEnabled {
		status.PartsCount = 0
		return nil, status
	}
	return parts, status
}

// ResolvedPartsAt итоговое состояние parts на момент cutoff
func (i *Interpolator) ResolvedPartsAt(cs models.Callsign, cutoff time.Time) (models.AircraftParts, models.PartsStatus, bool) {
	if !i.setup.get(cs).PartsEnabled {
		_, status := i.source.PartsBeforeTime(cs, cutoff)
		status.PartsCount = 0
		return models.AircraftParts{}, status, false
	}
	return i.source.ResolvedPartsAt(cs, cutoff)
}

// SetSetup меняет глобальные настройки
func (i *Interpolator) SetSetup(setup Setup) bool {
	changed := i.setup.setGlobal(setup)
	if changed {
		i.logger.WithFields(map[string]interface{}{
			"force_full":    setup.ForceFullInterpolation,
			"log":           setup.LogInterpolation,
			"parts_enabled": setup.PartsEnabled,
		}).Info("Interpolation setup changed")
	}
	return changed
}

// Setup глобальные настройки
func (i *Interpolator) Setup() Setup {
	return i.setup.globalSetup()
}

// SetupFor действующие настройки позывного
func (i *Interpolator) SetupFor(cs models.Callsign) Setup {
	return i.setup.get(cs)
}

// SetSetupForCallsign переопределяет настройки для позывного
func (i *Interpolator) SetSetupForCallsign(cs models.Callsign, setup Setup) {
	i.setup.setFor(cs, setup)
	i.logger.WithField("callsign", cs).Debug("Interpolation setup overridden")
}

// ClearSetupForCallsign убирает переопределение
func (i *Interpolator) ClearSetupForCallsign(cs models.Callsign) bool {
	return i.setup.clearFor(cs)
}

// SetupOverrides копия всех переопределений
func (i *Interpolator) SetupOverrides() map[models.Callsign]Setup {
	return i.setup.overrides()
}

// Forget убирает все, что интерполятор помнит о позывном (судно удалено)
func (i *Interpolator) Forget(cs models.Callsign) {
	i.setup.clearFor(cs)
	for _, key := range i.lastReturned.Keys() {
		if key.callsign == cs {
			i.lastReturned.Remove(key)
		}
	}
}

// Reset очищает кеш и переопределения (разрыв соединения)
func (i *Interpolator) Reset() {
	i.lastReturned.Purge()
	for cs := range i.setup.overrides() {
		i.setup.clearFor(cs)
	}
}
