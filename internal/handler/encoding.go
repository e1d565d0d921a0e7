package handler

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/flybeeper/fsd-airspace/internal/models"
)

// Номера полей бинарного кадра снапшота
//
//	SnapshotFrame {
//	  1 generation      varint
//	  2 timestamp_ms    varint
//	  3 restriction     RestrictionFrame
//	  4 aircraft        repeated AircraftFrame
//	  5 newly_enabled   repeated string
//	  6 newly_disabled  repeated string
//	}
const (
	frameGeneration    protowire.Number = 1
	frameTimestamp     protowire.Number = 2
	frameRestriction   protowire.Number = 3
	frameAircraft      protowire.Number = 4
	frameNewlyEnabled  protowire.Number = 5
	frameNewlyDisabled protowire.Number = 6
)

// RestrictionFrame
const (
	restrictionEnabled     protowire.Number = 1
	restrictionRestricted  protowire.Number = 2
	restrictionMaxAircraft protowire.Number = 3
	restrictionMaxDistance protowire.Number = 4
)

// AircraftFrame
const (
	aircraftCallsign    protowire.Number = 1
	aircraftDistance    protowire.Number = 2
	aircraftEnabled     protowire.Number = 3
	aircraftLatitude    protowire.Number = 4
	aircraftLongitude   protowire.Number = 5
	aircraftAltitude    protowire.Number = 6
	aircraftHeading     protowire.Number = 7
	aircraftGroundSpeed protowire.Number = 8
	aircraftSquawk      protowire.Number = 9
)

// EncodeSnapshotFrame кодирует снапшот в protobuf-совместимый кадр
func EncodeSnapshotFrame(snap *models.AirspaceAircraftSnapshot) []byte {
	var b []byte

	b = appendVarint(b, frameGeneration, snap.Generation())
	b = appendVarint(b, frameTimestamp, uint64(snap.Timestamp().UnixMilli()))
	b = protowire.AppendTag(b, frameRestriction, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeRestriction(snap.Restriction()))

	for _, a := range snap.Aircraft() {
		b = protowire.AppendTag(b, frameAircraft, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAircraft(a))
	}
	for _, cs := range snap.NewlyEnabled() {
		b = appendString(b, frameNewlyEnabled, string(cs))
	}
	for _, cs := range snap.NewlyDisabled() {
		b = appendString(b, frameNewlyDisabled, string(cs))
	}
	return b
}

func encodeRestriction(r models.SnapshotRestriction) []byte {
	var b []byte
	b = appendBool(b, restrictionEnabled, r.RenderingEnabled)
	b = appendBool(b, restrictionRestricted, r.RenderingRestricted)
	b = appendVarint(b, restrictionMaxAircraft, uint64(r.MaxAircraft))
	if r.DistanceRestricted {
		b = appendDouble(b, restrictionMaxDistance, r.MaxDistanceNM)
	}
	return b
}

func encodeAircraft(a models.SnapshotAircraft) []byte {
	var b []byte
	b = appendString(b, aircraftCallsign, string(a.Callsign))
	b = appendDouble(b, aircraftDistance, a.DistanceNM)
	b = appendBool(b, aircraftEnabled, a.Enabled)
	b = appendDouble(b, aircraftLatitude, a.Position.Latitude)
	b = appendDouble(b, aircraftLongitude, a.Position.Longitude)
	b = appendDouble(b, aircraftAltitude, a.Position.Altitude)
	b = appendDouble(b, aircraftHeading, a.Heading)
	b = appendDouble(b, aircraftGroundSpeed, a.GroundSpeed)
	b = appendVarint(b, aircraftSquawk, uint64(a.Transponder.Code))
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
