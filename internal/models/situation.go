package models

import (
	"fmt"
	"time"
)

// TransponderMode режим транспондера
type TransponderMode uint8

const (
	TransponderStandby TransponderMode = iota
	TransponderModeC
	TransponderIdent
)

// String возвращает строковое представление режима
func (m TransponderMode) String() string {
	switch m {
	case TransponderModeC:
		return "mode_c"
	case TransponderIdent:
		return "ident"
	default:
		return "standby"
	}
}

// Transponder код и режим ответчика
type Transponder struct {
	Code int             `json:"code" msgpack:"code"`
	Mode TransponderMode `json:"mode" msgpack:"mode"`
}

// Validate проверяет восьмеричный код ответчика
func (t Transponder) Validate() error {
	if t.Code < 0 || t.Code > 7777 {
		return fmt.Errorf("invalid transponder code: %d", t.Code)
	}
	for c := t.Code; c > 0; c /= 10 {
		if c%10 > 7 {
			return fmt.Errorf("invalid transponder code: %04d", t.Code)
		}
	}
	return nil
}

// AircraftSituation кинематическое состояние воздушного судна на момент Timestamp.
// Значение неизменяемое: реестр хранит копии.
type AircraftSituation struct {
	Callsign    Callsign `json:"callsign"`
	Position    GeoPoint `json:"position"`
	Pitch       float64  `json:"pitch"`   // градусы, нос вверх положительный
	Bank        float64  `json:"bank"`    // градусы, правый крен положительный
	Heading     float64  `json:"heading"` // градусы [0, 360)
	GroundSpeed float64  `json:"ground_speed"`
	OnGround    bool     `json:"on_ground"`
	// FastPosition данные из высокочастотного потока позиций
	FastPosition bool      `json:"fast_position"`
	Timestamp    time.Time `json:"timestamp"`
}

// IsNull true для значения по умолчанию (нет данных)
func (s AircraftSituation) IsNull() bool {
	return s.Callsign.IsEmpty() && s.Timestamp.IsZero()
}

// Validate проверяет ситуацию, пришедшую из сети
func (s AircraftSituation) Validate() error {
	if s.Callsign.IsEmpty() {
		return fmt.Errorf("callsign is required")
	}
	if err := s.Position.Validate(); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if s.GroundSpeed < 0 {
		return fmt.Errorf("invalid ground speed: %f", s.GroundSpeed)
	}
	return nil
}

// IsStationary true, если между двумя ситуациями нет движения
func (s AircraftSituation) IsStationary(other AircraftSituation) bool {
	return s.Position.SamePosition(other.Position) &&
		s.Heading == other.Heading && s.Pitch == other.Pitch && s.Bank == other.Bank &&
		s.GroundSpeed == 0 && other.GroundSpeed == 0
}
