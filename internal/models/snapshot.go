package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotAircraft одно воздушное судно в зоне видимости на момент снапшота
type SnapshotAircraft struct {
	Callsign           Callsign    `json:"callsign" msgpack:"callsign"`
	DistanceNM         float64     `json:"distance_nm" msgpack:"distance_nm"`
	Enabled            bool        `json:"enabled" msgpack:"enabled"`
	ExplicitlyDisabled bool        `json:"explicitly_disabled,omitempty" msgpack:"explicitly_disabled,omitempty"`
	Position           GeoPoint    `json:"position" msgpack:"position"`
	Heading            float64     `json:"heading" msgpack:"heading"`
	GroundSpeed        float64     `json:"ground_speed" msgpack:"ground_speed"`
	Transponder        Transponder `json:"transponder" msgpack:"transponder"`
}

// SnapshotRestriction значения политики отрисовки, с которыми считался снапшот
type SnapshotRestriction struct {
	RenderingEnabled    bool    `json:"rendering_enabled" msgpack:"rendering_enabled"`
	RenderingRestricted bool    `json:"rendering_restricted" msgpack:"rendering_restricted"`
	MaxAircraft         int     `json:"max_aircraft" msgpack:"max_aircraft"`
	DistanceRestricted  bool    `json:"distance_restricted" msgpack:"distance_restricted"`
	MaxDistanceNM       float64 `json:"max_distance_nm" msgpack:"max_distance_nm"`
}

// AirspaceAircraftSnapshot неизменяемый результат одного цикла анализатора.
// Поля закрыты, аксессоры возвращают копии: снапшот можно отдавать
// любому числу читателей без синхронизации.
type AirspaceAircraftSnapshot struct {
	generation    uint64
	timestamp     time.Time
	restriction   SnapshotRestriction
	aircraft      []SnapshotAircraft
	enabled       map[Callsign]struct{}
	newlyEnabled  []Callsign
	newlyDisabled []Callsign
}

// NewAirspaceAircraftSnapshot собирает снапшот. Судна сортируются по дистанции,
// при равной дистанции по позывному. Если передан previous, считаются
// списки впервые включенных и выключенных позывных.
func NewAirspaceAircraftSnapshot(
	generation uint64,
	ts time.Time,
	restriction SnapshotRestriction,
	aircraft []SnapshotAircraft,
	previous *AirspaceAircraftSnapshot,
) *AirspaceAircraftSnapshot {
	list := make([]SnapshotAircraft, len(aircraft))
	copy(list, aircraft)
	SortByDistance(list)

	s := &AirspaceAircraftSnapshot{
		generation:  generation,
		timestamp:   ts,
		restriction: restriction,
		aircraft:    list,
		enabled:     make(map[Callsign]struct{}),
	}
	for _, a := range list {
		if a.Enabled {
			s.enabled[a.Callsign] = struct{}{}
		}
	}

	if previous != nil {
		s.newlyEnabled, s.newlyDisabled = diffEnabled(previous.enabled, s.enabled)
	}
	return s
}

// EmptySnapshot снапшот без воздушных судов
func EmptySnapshot(generation uint64, ts time.Time, restriction SnapshotRestriction, previous *AirspaceAircraftSnapshot) *AirspaceAircraftSnapshot {
	return NewAirspaceAircraftSnapshot(generation, ts, restriction, nil, previous)
}

// SortByDistance сортирует по дистанции, равные по позывному
func SortByDistance(list []SnapshotAircraft) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].DistanceNM != list[j].DistanceNM {
			return list[i].DistanceNM < list[j].DistanceNM
		}
		return list[i].Callsign < list[j].Callsign
	})
}

func diffEnabled(before, after map[Callsign]struct{}) (enabled, disabled []Callsign) {
	for cs := range after {
		if _, ok := before[cs]; !ok {
			enabled = append(enabled, cs)
		}
	}
	for cs := range before {
		if _, ok := after[cs]; !ok {
			disabled = append(disabled, cs)
		}
	}
	sort.Sort(Callsigns(enabled))
	sort.Sort(Callsigns(disabled))
	return enabled, disabled
}

// Generation порядковый номер цикла анализатора
func (s *AirspaceAircraftSnapshot) Generation() uint64 { return s.generation }

// Timestamp время расчета
func (s *AirspaceAircraftSnapshot) Timestamp() time.Time { return s.timestamp }

// Restriction политика отрисовки на момент расчета
func (s *AirspaceAircraftSnapshot) Restriction() SnapshotRestriction { return s.restriction }

// Aircraft копия списка судов в зоне видимости, ближайшие первыми
func (s *AirspaceAircraftSnapshot) Aircraft() []SnapshotAircraft {
	out := make([]SnapshotAircraft, len(s.aircraft))
	copy(out, s.aircraft)
	return out
}

// InRangeCount число судов в зоне видимости
func (s *AirspaceAircraftSnapshot) InRangeCount() int { return len(s.aircraft) }

// EnabledCount число судов, включенных для отрисовки
func (s *AirspaceAircraftSnapshot) EnabledCount() int { return len(s.enabled) }

// IsEmpty true, если в снапшоте нет судов
func (s *AirspaceAircraftSnapshot) IsEmpty() bool { return len(s.aircraft) == 0 }

// IsEnabled включено ли судно для отрисовки
func (s *AirspaceAircraftSnapshot) IsEnabled(cs Callsign) bool {
	_, ok := s.enabled[cs]
	return ok
}

// EnabledCallsigns позывные для отрисовки, ближайшие первыми
func (s *AirspaceAircraftSnapshot) EnabledCallsigns() []Callsign {
	out := make([]Callsign, 0, len(s.enabled))
	for _, a := range s.aircraft {
		if a.Enabled {
			out = append(out, a.Callsign)
		}
	}
	return out
}

// DisabledCallsigns позывные в зоне видимости, не попавшие в отрисовку
func (s *AirspaceAircraftSnapshot) DisabledCallsigns() []Callsign {
	out := make([]Callsign, 0, len(s.aircraft)-len(s.enabled))
	for _, a := range s.aircraft {
		if !a.Enabled {
			out = append(out, a.Callsign)
		}
	}
	return out
}

// NewlyEnabled позывные, включенные в этом цикле
func (s *AirspaceAircraftSnapshot) NewlyEnabled() []Callsign {
	return append([]Callsign(nil), s.newlyEnabled...)
}

// NewlyDisabled позывные, выключенные в этом цикле
func (s *AirspaceAircraftSnapshot) NewlyDisabled() []Callsign {
	return append([]Callsign(nil), s.newlyDisabled...)
}

// snapshotWire внешнее представление снапшота для JSON и msgpack
type snapshotWire struct {
	Generation    uint64              `json:"generation" msgpack:"generation"`
	Timestamp     time.Time           `json:"timestamp" msgpack:"timestamp"`
	Restriction   SnapshotRestriction `json:"restriction" msgpack:"restriction"`
	Aircraft      []SnapshotAircraft  `json:"aircraft" msgpack:"aircraft"`
	EnabledCount  int                 `json:"enabled_count" msgpack:"enabled_count"`
	NewlyEnabled  []Callsign          `json:"newly_enabled,omitempty" msgpack:"newly_enabled,omitempty"`
	NewlyDisabled []Callsign          `json:"newly_disabled,omitempty" msgpack:"newly_disabled,omitempty"`
}

func (s *AirspaceAircraftSnapshot) toWire() snapshotWire {
	aircraft := s.aircraft
	if aircraft == nil {
		aircraft = []SnapshotAircraft{}
	}
	return snapshotWire{
		Generation:    s.generation,
		Timestamp:     s.timestamp,
		Restriction:   s.restriction,
		Aircraft:      aircraft,
		EnabledCount:  len(s.enabled),
		NewlyEnabled:  s.newlyEnabled,
		NewlyDisabled: s.newlyDisabled,
	}
}

func (s *AirspaceAircraftSnapshot) fromWire(w snapshotWire) {
	*s = *NewAirspaceAircraftSnapshot(w.Generation, w.Timestamp, w.Restriction, w.Aircraft, nil)
	s.newlyEnabled = w.NewlyEnabled
	s.newlyDisabled = w.NewlyDisabled
}

// MarshalJSON реализует json.Marshaler
func (s *AirspaceAircraftSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toWire())
}

// UnmarshalJSON реализует json.Unmarshaler
func (s *AirspaceAircraftSnapshot) UnmarshalJSON(data []byte) error {
	var w snapshotWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.fromWire(w)
	return nil
}

// EncodeMsgpack реализует msgpack.CustomEncoder
func (s *AirspaceAircraftSnapshot) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(s.toWire())
}

// DecodeMsgpack реализует msgpack.CustomDecoder
func (s *AirspaceAircraftSnapshot) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w snapshotWire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	s.fromWire(w)
	return nil
}
