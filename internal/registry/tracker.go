package registry

import (
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/watchdog"
)

// Tracker получает отметки активности от реестра. Реестр вызывает его
// только после освобождения своих блокировок.
type Tracker interface {
	TouchAircraft(cs models.Callsign)
	RemoveAircraft(cs models.Callsign)
	TouchAtc(cs models.Callsign)
	RemoveAtc(cs models.Callsign)
	RemoveAll()
}

// WatchdogTracker направляет отметки в два watchdog: судов и станций УВД
type WatchdogTracker struct {
	Aircraft *watchdog.Watchdog
	Atc      *watchdog.Watchdog
}

// NewWatchdogTracker связывает реестр с watchdog анализатора
func NewWatchdogTracker(aircraft, atc *watchdog.Watchdog) *WatchdogTracker {
	return &WatchdogTracker{Aircraft: aircraft, Atc: atc}
}

func (t *WatchdogTracker) TouchAircraft(cs models.Callsign)  { t.Aircraft.Touch(cs) }
func (t *WatchdogTracker) RemoveAircraft(cs models.Callsign) { t.Aircraft.Remove(cs) }
func (t *WatchdogTracker) TouchAtc(cs models.Callsign)       { t.Atc.Touch(cs) }
func (t *WatchdogTracker) RemoveAtc(cs models.Callsign)      { t.Atc.Remove(cs) }

func (t *WatchdogTracker) RemoveAll() {
	t.Aircraft.RemoveAll()
	t.Atc.RemoveAll()
}

type noopTracker struct{}

func (noopTracker) TouchAircraft(models.Callsign)  {}
func (noopTracker) RemoveAircraft(models.Callsign) {}
func (noopTracker) TouchAtc(models.Callsign)       {}
func (noopTracker) RemoveAtc(models.Callsign)      {}
func (noopTracker) RemoveAll()                     {}
