package models

import "strings"

// Callsign идентификатор сессии воздушного судна или станции УВД.
// Всегда хранится в верхнем регистре, поэтому сравнение через == регистронезависимо.
type Callsign string

// NewCallsign нормализует позывной из сетевых данных
func NewCallsign(raw string) Callsign {
	return Callsign(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsEmpty true для пустого позывного
func (c Callsign) IsEmpty() bool {
	return c == ""
}

// Equals сравнивает с ненормализованной строкой
func (c Callsign) Equals(raw string) bool {
	return c == NewCallsign(raw)
}

func (c Callsign) String() string {
	return string(c)
}

// Callsigns отсортированный список позывных
type Callsigns []Callsign

func (c Callsigns) Len() int           { return len(c) }
func (c Callsigns) Less(i, j int) bool { return c[i] < c[j] }
func (c Callsigns) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }

// Strings конвертирует в []string для логов и JSON
func (c Callsigns) Strings() []string {
	out := make([]string, len(c))
	for i, cs := range c {
		out[i] = string(cs)
	}
	return out
}
