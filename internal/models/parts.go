package models

import "time"

// PartsField битовая маска полей, присутствующих в инкрементальном обновлении
type PartsField uint16

const (
	PartsFieldLights PartsField = 1 << iota
	PartsFieldGear
	PartsFieldFlaps
	PartsFieldSpoilers
	PartsFieldEngines
	PartsFieldOnGround

	PartsFieldAll = PartsFieldLights | PartsFieldGear | PartsFieldFlaps |
		PartsFieldSpoilers | PartsFieldEngines | PartsFieldOnGround
)

// Lights состояние огней
type Lights struct {
	Strobe  bool `json:"strobe"`
	Landing bool `json:"landing"`
	Taxi    bool `json:"taxi"`
	Beacon  bool `json:"beacon"`
	Nav     bool `json:"nav"`
	Logo    bool `json:"logo"`
}

// Engine состояние одного двигателя
type Engine struct {
	Number int  `json:"number"`
	On     bool `json:"on"`
}

// AircraftParts некинематическое состояние (шасси, огни, механизация, двигатели).
// Полный снимок (Incremental=false) задает базу, инкрементальные накладываются
// в порядке поступления, затрагивая только поля из Fields.
type AircraftParts struct {
	Lights       Lights     `json:"lights"`
	GearDown     bool       `json:"gear_down"`
	FlapsPercent int        `json:"flaps_percent"`
	SpoilersOut  bool       `json:"spoilers_out"`
	Engines      []Engine   `json:"engines,omitempty"`
	OnGround     bool       `json:"on_ground"`
	Incremental  bool       `json:"incremental"`
	Fields       PartsField `json:"fields"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Clone копирует parts вместе со срезом двигателей
func (p AircraftParts) Clone() AircraftParts {
	if p.Engines != nil {
		engines := make([]Engine, len(p.Engines))
		copy(engines, p.Engines)
		p.Engines = engines
	}
	return p
}

// Overlay накладывает инкрементальное обновление на базу
func (p AircraftParts) Overlay(update AircraftParts) AircraftParts {
	if !update.Incremental {
		return update.Clone()
	}

	out := p.Clone()
	if update.Fields&PartsFieldLights != 0 {
		out.Lights = update.Lights
	}
	if update.Fields&PartsFieldGear != 0 {
		out.GearDown = update.GearDown
	}
	if update.Fields&PartsFieldFlaps != 0 {
		out.FlapsPercent = update.FlapsPercent
	}
	if update.Fields&PartsFieldSpoilers != 0 {
		out.SpoilersOut = update.SpoilersOut
	}
	if update.Fields&PartsFieldEngines != 0 {
		out.Engines = update.Clone().Engines
	}
	if update.Fields&PartsFieldOnGround != 0 {
		out.OnGround = update.OnGround
	}
	out.Incremental = false
	out.Fields = PartsFieldAll
	out.Timestamp = update.Timestamp
	return out
}
