package benchmarks

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/registry"
)

var (
	benchTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ownPos    = models.GeoPoint{Latitude: 50.03, Longitude: 8.57}
)

// generateInRange суда вокруг ownPos, отсортированные по дальности
func generateInRange(n int) []registry.InRangeAircraft {
	rng := rand.New(rand.NewSource(42))
	out := make([]registry.InRangeAircraft, n)
	for i := range out {
		pos := models.GeoPoint{
			Latitude:  ownPos.Latitude + rng.Float64()*4 - 2,
			Longitude: ownPos.Longitude + rng.Float64()*4 - 2,
			Altitude:  float64(rng.Intn(40000)),
		}
		cs := models.Callsign(fmt.Sprintf("TST%04d", i))
		out[i] = registry.InRangeAircraft{
			Callsign: cs,
			Latest: models.AircraftSituation{
				Callsign:    cs,
				Position:    pos,
				Heading:     float64(rng.Intn(360)),
				GroundSpeed: float64(150 + rng.Intn(350)),
				Timestamp:   benchTime,
			},
			Transponder: models.Transponder{Code: 1000 + rng.Intn(6000), Mode: models.TransponderModeC},
			DistanceNM:  ownPos.DistanceNM(pos),
			Enabled:     true,
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceNM != out[j].DistanceNM {
			return out[i].DistanceNM < out[j].DistanceNM
		}
		return out[i].Callsign < out[j].Callsign
	})
	return out
}

// generateSnapshot снапшот из n судов, половина отрисовывается
func generateSnapshot(n int, previous *models.AirspaceAircraftSnapshot) *models.AirspaceAircraftSnapshot {
	inRange := generateInRange(n)
	aircraft := make([]models.SnapshotAircraft, len(inRange))
	for i, a := range inRange {
		aircraft[i] = models.SnapshotAircraft{
			Callsign:    a.Callsign,
			DistanceNM:  a.DistanceNM,
			Enabled:     i < n/2,
			Position:    a.Latest.Position,
			Heading:     a.Latest.Heading,
			GroundSpeed: a.Latest.GroundSpeed,
			Transponder: a.Transponder,
		}
	}
	var gen uint64 = 1
	if previous != nil {
		gen = previous.Generation() + 1
	}
	return models.NewAirspaceAircraftSnapshot(gen, benchTime,
		models.SnapshotRestriction{RenderingEnabled: true, RenderingRestricted: true, MaxAircraft: n / 2},
		aircraft, previous)
}
