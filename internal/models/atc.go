package models

import (
	"fmt"
	"time"
)

// AtcStation станция УВД в сети
type AtcStation struct {
	Callsign      Callsign  `json:"callsign" msgpack:"callsign"`
	Controller    string    `json:"controller" msgpack:"controller"`
	Frequency     float64   `json:"frequency" msgpack:"frequency"` // МГц
	Position      GeoPoint  `json:"position" msgpack:"position"`
	VisualRangeNM float64   `json:"visual_range_nm" msgpack:"visual_range_nm"`
	Online        bool      `json:"online" msgpack:"online"`
	Atis          string    `json:"atis,omitempty" msgpack:"atis,omitempty"`
	Metar         string    `json:"metar,omitempty" msgpack:"metar,omitempty"`
	LastUpdate    time.Time `json:"last_update" msgpack:"last_update"`
}

// Validate проверяет данные станции
func (s AtcStation) Validate() error {
	if s.Callsign.IsEmpty() {
		return fmt.Errorf("callsign is required")
	}
	if err := s.Position.Validate(); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if s.Frequency != 0 && (s.Frequency < 118 || s.Frequency >= 137) {
		return fmt.Errorf("invalid frequency: %.3f", s.Frequency)
	}
	if s.VisualRangeNM < 0 {
		return fmt.Errorf("invalid visual range: %f", s.VisualRangeNM)
	}
	return nil
}

// MergeFrom обновляет станцию новыми данными, не затирая текстовые поля пустыми
func (s AtcStation) MergeFrom(update AtcStation) AtcStation {
	atis, metar := s.Atis, s.Metar
	s = update
	if s.Atis == "" {
		s.Atis = atis
	}
	if s.Metar == "" {
		s.Metar = metar
	}
	return s
}
