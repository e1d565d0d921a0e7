package interpolation

import (
	"sync"

	"github.com/flybeeper/fsd-airspace/internal/models"
)

// Setup настройки интерполяции, меняются во время работы
type Setup struct {
	// ForceFullInterpolation не пропускать расчет для стоящих на месте судов (диагностика)
	ForceFullInterpolation bool `json:"force_full_interpolation"`
	LogInterpolation       bool `json:"log_interpolation"`
	PartsEnabled           bool `json:"parts_enabled"`
}

// DefaultSetup настройки по умолчанию
func DefaultSetup() Setup {
	return Setup{PartsEnabled: true}
}

// setupStore глобальные настройки и переопределения по позывным
type setupStore struct {
	mu          sync.RWMutex
	global      Setup
	perCallsign map[models.Callsign]Setup
}

func newSetupStore(global Setup) *setupStore {
	return &setupStore{global: global, perCallsign: make(map[models.Callsign]Setup)}
}

func (s *setupStore) get(cs models.Callsign) Setup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if setup, ok := s.perCallsign[cs]; ok {
		return setup
	}
	return s.global
}

func (s *setupStore) setGlobal(setup Setup) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.global == setup {
		return false
	}
	s.global = setup
	return true
}

func (s *setupStore) globalSetup() Setup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global
}

func (s *setupStore) setFor(cs models.Callsign, setup Setup) {
	s.mu.Lock()
	s.perCallsign[cs] = setup
	s.mu.Unlock()
}

func (s *setupStore) clearFor(cs models.Callsign) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.perCallsign[cs]; !ok {
		return false
	}
	delete(s.perCallsign, cs)
	return true
}

func (s *setupStore) overrides() map[models.Callsign]Setup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.Callsign]Setup, len(s.perCallsign))
	for cs, setup := range s.perCallsign {
		out[cs] = setup
	}
	return out
}
