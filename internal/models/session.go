package models

import "time"

// EntityKind класс отслеживаемой сущности
type EntityKind string

const (
	KindAircraft EntityKind = "aircraft"
	KindAtc      EntityKind = "atc"
)

// EndReason причина завершения сессии
type EndReason string

const (
	EndRemoved    EndReason = "removed"
	EndTimeout    EndReason = "timeout"
	EndDisconnect EndReason = "disconnect"
)

// SessionRecord запись об окончании сессии позывного в сети
type SessionRecord struct {
	Callsign  Callsign   `json:"callsign"`
	Kind      EntityKind `json:"kind"`
	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
	EndReason EndReason  `json:"end_reason"`
}

// Duration длительность сессии
func (r SessionRecord) Duration() time.Duration {
	if r.LastSeen.Before(r.FirstSeen) {
		return 0
	}
	return r.LastSeen.Sub(r.FirstSeen)
}
