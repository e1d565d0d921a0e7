package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func testAircraft(cs string, dist float64, enabled bool) SnapshotAircraft {
	return SnapshotAircraft{
		Callsign:   NewCallsign(cs),
		DistanceNM: dist,
		Enabled:    enabled,
		Position:   GeoPoint{Latitude: 50, Longitude: 8},
	}
}

func TestSnapshot_SortedAndCounted(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := NewAirspaceAircraftSnapshot(1, ts, SnapshotRestriction{RenderingEnabled: true}, []SnapshotAircraft{
		testAircraft("dlh2", 20, true),
		testAircraft("afr1", 5, true),
		testAircraft("baw3", 20, false),
	}, nil)

	aircraft := snap.Aircraft()
	require.Len(t, aircraft, 3)
	assert.Equal(t, Callsign("AFR1"), aircraft[0].Callsign)
	// Равная дистанция: порядок по позывному
	assert.Equal(t, Callsign("BAW3"), aircraft[1].Callsign)
	assert.Equal(t, Callsign("DLH2"), aircraft[2].Callsign)

	assert.Equal(t, 3, snap.InRangeCount())
	assert.Equal(t, 2, snap.EnabledCount())
	assert.True(t, snap.IsEnabled("DLH2"))
	assert.False(t, snap.IsEnabled("BAW3"))
	assert.Equal(t, []Callsign{"AFR1", "DLH2"}, snap.EnabledCallsigns())
	assert.Equal(t, []Callsign{"BAW3"}, snap.DisabledCallsigns())
}

func TestSnapshot_AccessorsReturnCopies(t *testing.T) {
	snap := NewAirspaceAircraftSnapshot(1, time.Now(), SnapshotRestriction{}, []SnapshotAircraft{
		testAircraft("AFR1", 5, true),
	}, nil)

	list := snap.Aircraft()
	list[0].Callsign = "HACKED"
	assert.Equal(t, Callsign("AFR1"), snap.Aircraft()[0].Callsign)
}

func TestSnapshot_Diff(t *testing.T) {
	first := NewAirspaceAircraftSnapshot(1, time.Now(), SnapshotRestriction{}, []SnapshotAircraft{
		testAircraft("AFR1", 5, true),
		testAircraft("DLH2", 10, true),
	}, nil)
	second := NewAirspaceAircraftSnapshot(2, time.Now(), SnapshotRestriction{}, []SnapshotAircraft{
		testAircraft("AFR1", 5, true),
		testAircraft("DLH2", 10, false),
		testAircraft("BAW3", 12, true),
	}, first)

	assert.Empty(t, first.NewlyEnabled())
	assert.Equal(t, []Callsign{"BAW3"}, second.NewlyEnabled())
	assert.Equal(t, []Callsign{"DLH2"}, second.NewlyDisabled())
}

func TestSnapshot_Encoding(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := NewAirspaceAircraftSnapshot(7, ts, SnapshotRestriction{
		RenderingEnabled:    true,
		RenderingRestricted: true,
		MaxAircraft:         10,
	}, []SnapshotAircraft{testAircraft("AFR1", 5, true), testAircraft("DLH2", 9, false)}, nil)

	t.Run("json", func(t *testing.T) {
		data, err := json.Marshal(snap)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"enabled_count":1`)

		var restored AirspaceAircraftSnapshot
		require.NoError(t, json.Unmarshal(data, &restored))
		assert.Equal(t, uint64(7), restored.Generation())
		assert.Equal(t, 1, restored.EnabledCount())
		assert.True(t, restored.IsEnabled("AFR1"))
		assert.Equal(t, 10, restored.Restriction().MaxAircraft)
	})

	t.Run("msgpack", func(t *testing.T) {
		data, err := msgpack.Marshal(snap)
		require.NoError(t, err)

		var restored AirspaceAircraftSnapshot
		require.NoError(t, msgpack.Unmarshal(data, &restored))
		assert.Equal(t, snap.Generation(), restored.Generation())
		assert.True(t, ts.Equal(restored.Timestamp()))
		assert.Equal(t, snap.EnabledCallsigns(), restored.EnabledCallsigns())
	})

	t.Run("empty snapshot encodes empty list", func(t *testing.T) {
		data, err := json.Marshal(EmptySnapshot(0, ts, SnapshotRestriction{}, nil))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"aircraft":[]`)
	})
}

func TestParts_Overlay(t *testing.T) {
	base := AircraftParts{
		GearDown:     true,
		FlapsPercent: 30,
		Lights:       Lights{Landing: true, Nav: true},
		Engines:      []Engine{{Number: 1, On: true}, {Number: 2, On: true}},
		Timestamp:    time.Unix(100, 0),
	}

	update := AircraftParts{
		Incremental: true,
		Fields:      PartsFieldGear,
		GearDown:    false,
		Timestamp:   time.Unix(105, 0),
	}

	out := base.Overlay(update)
	assert.False(t, out.GearDown)
	assert.Equal(t, 30, out.FlapsPercent)
	assert.True(t, out.Lights.Landing)
	assert.Len(t, out.Engines, 2)
	assert.Equal(t, time.Unix(105, 0), out.Timestamp)

	// Полный снимок заменяет базу целиком
	full := AircraftParts{FlapsPercent: 0, Timestamp: time.Unix(110, 0)}
	out = out.Overlay(full)
	assert.Equal(t, 0, out.FlapsPercent)
	assert.Empty(t, out.Engines)
}

func TestCallsign_Normalization(t *testing.T) {
	assert.Equal(t, Callsign("DLH123"), NewCallsign("  dlh123 "))
	assert.True(t, NewCallsign("DLH123").Equals("dlh123"))
	assert.True(t, NewCallsign("   ").IsEmpty())
}

func TestTransponder_Validate(t *testing.T) {
	assert.NoError(t, Transponder{Code: 7000}.Validate())
	assert.NoError(t, Transponder{Code: 1200}.Validate())
	assert.Error(t, Transponder{Code: 7800}.Validate())
	assert.Error(t, Transponder{Code: -1}.Validate())
}
