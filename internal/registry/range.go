package registry

import (
	"sync"

	"github.com/flybeeper/fsd-airspace/internal/models"
)

// RangeFilter определяет, какие суда находятся в зоне видимости собственного
// воздушного судна. Пока собственная позиция неизвестна, в зоне все суда
// с нулевой дистанцией.
type RangeFilter struct {
	mu          sync.RWMutex
	ownPosition models.GeoPoint
	hasPosition bool
	maxRangeNM  float64
}

// NewRangeFilter создает фильтр. maxRangeNM <= 0 снимает ограничение дальности.
func NewRangeFilter(ownPosition models.GeoPoint, maxRangeNM float64) *RangeFilter {
	return &RangeFilter{
		ownPosition: ownPosition,
		hasPosition: !ownPosition.IsZero(),
		maxRangeNM:  maxRangeNM,
	}
}

// SetOwnPosition обновляет собственную позицию (приходит от симулятора)
func (f *RangeFilter) SetOwnPosition(p models.GeoPoint) {
	f.mu.Lock()
	f.ownPosition = p
	f.hasPosition = true
	f.mu.Unlock()
}

// OwnPosition текущая собственная позиция
func (f *RangeFilter) OwnPosition() (models.GeoPoint, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ownPosition, f.hasPosition
}

// MaxRangeNM радиус зоны видимости
func (f *RangeFilter) MaxRangeNM() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.maxRangeNM
}

// Distance возвращает дистанцию до точки и признак попадания в зону
func (f *RangeFilter) Distance(p models.GeoPoint) (distanceNM float64, inRange bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.hasPosition {
		return 0, true
	}
	distanceNM = f.ownPosition.DistanceNM(p)
	return distanceNM, f.maxRangeNM <= 0 || distanceNM <= f.maxRangeNM
}
