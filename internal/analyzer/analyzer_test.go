package analyzer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/registry"
	"github.com/flybeeper/fsd-airspace/internal/restriction"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	analyzer *Analyzer
	registry *registry.Registry
	clock    *clock.Manual
}

func newFixture(t *testing.T, cfg Config, policy restriction.RenderRestriction, wrap func(*registry.Registry) Source) *fixture {
	t.Helper()
	logger := utils.NewLogger("debug", "text")
	clk := clock.NewManual(t0)

	acWD, atcWD, err := NewWatchdogs(cfg, clk, logger)
	require.NoError(t, err)

	own := models.GeoPoint{Latitude: 50.0, Longitude: 8.0}
	reg, err := registry.New(registry.DefaultConfig(), registry.NewRangeFilter(own, 0),
		registry.NewWatchdogTracker(acWD, atcWD), clk, logger)
	require.NoError(t, err)
	reg.SetConnectionStatus(models.Disconnected, models.Connected)

	var src Source = reg
	if wrap != nil {
		src = wrap(reg)
	}
	a, err := New(cfg, src, acWD, atcWD, policy, clk, logger)
	require.NoError(t, err)
	return &fixture{analyzer: a, registry: reg, clock: clk}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinCycleSpacing = 0
	return cfg
}

func position(cs string, ts time.Time, lat float64) models.AircraftSituation {
	return models.AircraftSituation{
		Callsign:    models.Callsign(cs),
		Position:    models.GeoPoint{Latitude: lat, Longitude: 8.0, Altitude: 12000},
		Heading:     270,
		GroundSpeed: 280,
		Timestamp:   ts,
	}
}

func TestNew_Validation(t *testing.T) {
	logger := utils.NewLogger("info", "text")
	acWD, atcWD, err := NewWatchdogs(testConfig(), nil, logger)
	require.NoError(t, err)
	reg, err := registry.New(registry.DefaultConfig(), registry.NewRangeFilter(models.GeoPoint{}, 0), nil, nil, logger)
	require.NoError(t, err)

	_, err = New(testConfig(), reg, acWD, atcWD, restriction.NewRenderRestriction(), nil, nil)
	assert.Error(t, err)

	_, err = New(testConfig(), nil, acWD, atcWD, restriction.NewRenderRestriction(), nil, logger)
	assert.Error(t, err)

	_, err = New(testConfig(), reg, nil, atcWD, restriction.NewRenderRestriction(), nil, logger)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Interval = 0
	_, err = New(cfg, reg, acWD, atcWD, restriction.NewRenderRestriction(), nil, logger)
	assert.Error(t, err)

	a, err := New(testConfig(), reg, acWD, atcWD, restriction.NewRenderRestriction(), nil, logger)
	require.NoError(t, err)
	require.NotNil(t, a.LatestSnapshot(), "initial snapshot")
	assert.True(t, a.LatestSnapshot().IsEmpty())
}

// Суд присылает позиции в 0, 2, 4 с и замолкает; при таймауте 15 с
// на 20-й секунде он удаляется.
func TestAnalyzer_EndToEndTimeout(t *testing.T) {
	f := newFixture(t, testConfig(), restriction.NewRenderRestriction(), nil)

	var timedOut []models.Callsign
	f.analyzer.TimeoutAircraft.Connect(func(cs models.Callsign) { timedOut = append(timedOut, cs) })

	var sessions []models.SessionRecord
	f.registry.SessionEnded.Connect(func(r models.SessionRecord) { sessions = append(sessions, r) })

	for _, sec := range []int{0, 2, 4} {
		f.clock.Set(t0.Add(time.Duration(sec) * time.Second))
		require.True(t, f.registry.AddOrUpdateSituation(position("DLH123", f.clock.Now(), 50.5)))
	}

	require.True(t, f.analyzer.Tick())
	snap := f.analyzer.LatestSnapshot()
	assert.Equal(t, 1, snap.InRangeCount())
	assert.True(t, snap.IsEnabled("DLH123"))
	assert.Equal(t, []models.Callsign{"DLH123"}, snap.NewlyEnabled())

	// ровно на границе таймаута судно еще живо
	f.clock.Set(t0.Add(19 * time.Second))
	require.True(t, f.analyzer.Tick())
	assert.Empty(t, timedOut)

	f.clock.Set(t0.Add(20 * time.Second))
	require.True(t, f.analyzer.Tick())
	assert.Equal(t, []models.Callsign{"DLH123"}, timedOut)
	assert.Empty(t, f.registry.AircraftInRange())
	assert.False(t, f.registry.HasAircraft("DLH123"))

	snap = f.analyzer.LatestSnapshot()
	assert.True(t, snap.IsEmpty())
	assert.Equal(t, []models.Callsign{"DLH123"}, snap.NewlyDisabled())

	require.Len(t, sessions, 1)
	assert.Equal(t, models.EndTimeout, sessions[0].EndReason)

	// повторная проверка не дает второго события
	f.clock.Set(t0.Add(40 * time.Second))
	require.True(t, f.analyzer.Tick())
	assert.Len(t, timedOut, 1)
}

func TestAnalyzer_AtcTimeoutMarksOffline(t *testing.T) {
	f := newFixture(t, testConfig(), restriction.NewRenderRestriction(), nil)

	var timedOut []models.Callsign
	f.analyzer.TimeoutAtc.Connect(func(cs models.Callsign) { timedOut = append(timedOut, cs) })

	require.True(t, f.registry.AddAtcStation(models.AtcStation{
		Callsign:      "EDDF_TWR",
		Controller:    "John Doe",
		Frequency:     119.9,
		Position:      models.GeoPoint{Latitude: 50.03, Longitude: 8.57},
		VisualRangeNM: 50,
	}))

	f.clock.Advance(30 * time.Second)
	f.analyzer.Tick()
	assert.Empty(t, timedOut, "ATC timeout is longer than aircraft timeout")

	f.clock.Advance(25 * time.Second)
	f.analyzer.Tick()
	assert.Equal(t, []models.Callsign{"EDDF_TWR"}, timedOut)

	st, ok := f.registry.AtcStation("EDDF_TWR")
	require.True(t, ok, "station is kept as offline")
	assert.False(t, st.Online)
	assert.Empty(t, f.registry.AtcStationsOnline())
}

func TestAnalyzer_WatchdogDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.WatchdogEnabled = false
	f := newFixture(t, cfg, restriction.NewRenderRestriction(), nil)

	f.registry.AddOrUpdateSituation(position("DLH1", t0, 50.2))
	f.clock.Advance(time.Hour)
	f.analyzer.Tick()
	assert.True(t, f.registry.HasAircraft("DLH1"))
}

// blockingSource задерживает чтение судов до закрытия release
type blockingSource struct {
	Source
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) AircraftInRange() []registry.InRangeAircraft {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.Source.AircraftInRange()
}

// lateUpdateSource доставляет свежую позицию между проверкой watchdog и удалением
type lateUpdateSource struct {
	Source
	reg   *registry.Registry
	clock *clock.Manual
	calls int
}

func (l *lateUpdateSource) RemoveAircraftIfIdle(cs models.Callsign, lastActivity time.Time) bool {
	l.calls++
	l.reg.AddOrUpdateSituation(position(string(cs), l.clock.Now(), 50.3))
	return l.Source.RemoveAircraftIfIdle(cs, lastActivity)
}

func TestAnalyzer_TimeoutKeepsFreshlyUpdatedAircraft(t *testing.T) {
	late := &lateUpdateSource{}
	f := newFixture(t, testConfig(), restriction.NewRenderRestriction(), func(r *registry.Registry) Source {
		late.Source = r
		late.reg = r
		return late
	})
	late.clock = f.clock

	var timedOut []models.Callsign
	f.analyzer.TimeoutAircraft.Connect(func(cs models.Callsign) { timedOut = append(timedOut, cs) })
	var sessions []models.SessionRecord
	f.registry.SessionEnded.Connect(func(r models.SessionRecord) { sessions = append(sessions, r) })

	require.True(t, f.registry.AddOrUpdateSituation(position("DLH1", t0, 50.2)))
	f.clock.Advance(16 * time.Second)
	require.True(t, f.analyzer.Tick())

	assert.Equal(t, 1, late.calls, "watchdog reported the aircraft as idle")
	assert.Empty(t, timedOut)
	assert.Empty(t, sessions)
	assert.True(t, f.registry.HasAircraft("DLH1"))
	assert.True(t, f.analyzer.LatestSnapshot().IsEnabled("DLH1"))
}

func TestAnalyzer_TimeoutKeepsFreshlyUpdatedAtc(t *testing.T) {
	f := newFixture(t, testConfig(), restriction.NewRenderRestriction(), func(r *registry.Registry) Source {
		return &lateAtcSource{Source: r, reg: r}
	})

	var timedOut []models.Callsign
	f.analyzer.TimeoutAtc.Connect(func(cs models.Callsign) { timedOut = append(timedOut, cs) })

	require.True(t, f.registry.AddAtcStation(models.AtcStation{Callsign: "EDDF_TWR", Frequency: 119.9}))
	f.clock.Advance(time.Minute)
	f.analyzer.Tick()

	assert.Empty(t, timedOut)
	assert.Equal(t, 1, f.registry.AtcOnlineCount())
}

type lateAtcSource struct {
	Source
	reg *registry.Registry
}

func (l *lateAtcSource) SetAtcOfflineIfIdle(cs models.Callsign, lastActivity time.Time) bool {
	l.reg.AddAtcStation(models.AtcStation{Callsign: cs, Frequency: 119.9})
	return l.Source.SetAtcOfflineIfIdle(cs, lastActivity)
}

func TestAnalyzer_ReentrantTickIsSkipped(t *testing.T) {
	blocker := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, testConfig(), restriction.NewRenderRestriction(), func(r *registry.Registry) Source {
		blocker.Source = r
		return blocker
	})
	f.registry.AddOrUpdateSituation(position("DLH1", t0, 50.2))

	done := make(chan bool)
	go func() { done <- f.analyzer.Tick() }()

	<-blocker.entered
	assert.False(t, f.analyzer.Tick(), "second tick must be skipped while first runs")
	assert.Equal(t, uint64(1), f.analyzer.SkippedTicks())
	assert.Equal(t, uint64(0), f.analyzer.LatestSnapshot().Generation(), "nothing published yet")

	close(blocker.release)
	assert.True(t, <-done)
	assert.Equal(t, uint64(1), f.analyzer.LatestSnapshot().Generation())

	// после завершения цикла тики снова выполняются
	assert.True(t, f.analyzer.Tick())
	assert.Equal(t, uint64(2), f.analyzer.LatestSnapshot().Generation())
}

func TestAnalyzer_MinCycleSpacing(t *testing.T) {
	cfg := testConfig()
	cfg.MinCycleSpacing = time.Second
	f := newFixture(t, cfg, restriction.NewRenderRestriction(), nil)

	assert.True(t, f.analyzer.Tick())
	assert.False(t, f.analyzer.Tick())

	f.clock.Advance(500 * time.Millisecond)
	assert.False(t, f.analyzer.Tick())

	f.clock.Advance(500 * time.Millisecond)
	assert.True(t, f.analyzer.Tick())
	assert.Equal(t, uint64(2), f.analyzer.SkippedTicks())
}

func TestAnalyzer_DisconnectedPublishesEmpty(t *testing.T) {
	f := newFixture(t, testConfig(), restriction.NewRenderRestriction(), nil)
	f.registry.AddOrUpdateSituation(position("DLH1", t0, 50.2))
	f.analyzer.Tick()
	require.Equal(t, 1, f.analyzer.LatestSnapshot().InRangeCount())

	f.registry.SetConnectionStatus(models.Connected, models.Disconnected)
	f.analyzer.Tick()
	assert.True(t, f.analyzer.LatestSnapshot().IsEmpty())
	assert.Equal(t, []models.Callsign{"DLH1"}, f.analyzer.LatestSnapshot().NewlyDisabled())
}

func TestAnalyzer_SnapshotPublishedSignal(t *testing.T) {
	f := newFixture(t, testConfig(), restriction.NewRenderRestriction(), nil)

	var got []uint64
	f.analyzer.SnapshotPublished.Connect(func(s *models.AirspaceAircraftSnapshot) {
		got = append(got, s.Generation())
	})

	// пустой цикл тоже публикует снапшот
	f.analyzer.Tick()
	f.analyzer.Tick()
	assert.Equal(t, []uint64{1, 2}, got)
}

func TestPartition(t *testing.T) {
	list := []registry.InRangeAircraft{
		{Callsign: "A", DistanceNM: 1, Enabled: true},
		{Callsign: "B", DistanceNM: 2, Enabled: false},
		{Callsign: "C", DistanceNM: 3, Enabled: true},
		{Callsign: "D", DistanceNM: 4, Enabled: true},
		{Callsign: "E", DistanceNM: 40, Enabled: true},
	}

	enabledOf := func(out []models.SnapshotAircraft) []models.Callsign {
		var cs []models.Callsign
		for _, a := range out {
			if a.Enabled {
				cs = append(cs, a.Callsign)
			}
		}
		return cs
	}

	tests := []struct {
		name   string
		policy restriction.RenderRestriction
		want   []models.Callsign
	}{
		{"unrestricted", restriction.NewRenderRestriction(), []models.Callsign{"A", "C", "D", "E"}},
		{"max aircraft closest first", restriction.FromValues(2, -1, true), []models.Callsign{"A", "C"}},
		{"distance before count", restriction.FromValues(10, 3.5, true), []models.Callsign{"A", "C"}},
		{"distance then count", restriction.FromValues(1, 3.5, true), []models.Callsign{"A"}},
		{"rendering disabled", restriction.FromValues(0, -1, true), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Partition(list, tt.policy)
			require.Len(t, out, len(list))
			assert.Equal(t, tt.want, enabledOf(out))
			assert.True(t, out[1].ExplicitlyDisabled)
			assert.LessOrEqual(t, len(enabledOf(out)), tt.policy.MaxRenderedAircraft())
		})
	}
}

func TestAnalyzer_ConcurrentSnapshotReaders(t *testing.T) {
	const maxAircraft = 3
	f := newFixture(t, testConfig(), restriction.FromValues(maxAircraft, -1, true), nil)

	for i := 0; i < 20; i++ {
		f.registry.AddOrUpdateSituation(position(fmt.Sprintf("TST%02d", i), t0, 50.0+float64(i)*0.05))
	}

	var stop atomic.Bool
	var violations, reads atomic.Int64
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				s := f.analyzer.LatestSnapshot()
				if s.EnabledCount() > maxAircraft || len(s.EnabledCallsigns()) != s.EnabledCount() {
					violations.Add(1)
				}
				reads.Add(1)
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			f.analyzer.SetRenderRestriction(restriction.FromValues(maxAircraft, -1, true))
		} else {
			f.analyzer.SetRenderRestriction(restriction.FromValues(1, 20, true))
		}
		f.analyzer.Tick()
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Positive(t, reads.Load())
}

func TestAnalyzer_SimulatorRenderRestrictions(t *testing.T) {
	f := newFixture(t, testConfig(), restriction.NewRenderRestriction(), nil)

	var changes int
	f.analyzer.RestrictionChanged.Connect(func(restriction.RenderRestriction) { changes++ })

	assert.True(t, f.analyzer.SetSimulatorRenderRestrictionsChanged(true, true, 5, 20))
	r := f.analyzer.RenderRestriction()
	assert.Equal(t, 5, r.MaxRenderedAircraft())
	assert.True(t, r.IsMaxDistanceRestricted())
	assert.Equal(t, 20.0, r.MaxRenderedDistanceNM())

	assert.False(t, f.analyzer.SetSimulatorRenderRestrictionsChanged(true, true, 5, 20), "same values")

	assert.True(t, f.analyzer.SetSimulatorRenderRestrictionsChanged(true, false, 5, 20))
	assert.False(t, f.analyzer.RenderRestriction().IsRenderingEnabled())

	assert.True(t, f.analyzer.SetSimulatorRenderRestrictionsChanged(false, true, 0, 0))
	assert.False(t, f.analyzer.RenderRestriction().IsRenderingRestricted())
	assert.Equal(t, 3, changes)

	// новая политика применяется со следующего цикла
	f.registry.AddOrUpdateSituation(position("DLH1", t0, 50.2))
	f.analyzer.SetSimulatorRenderRestrictionsChanged(true, false, 0, 0)
	f.analyzer.Tick()
	snap := f.analyzer.LatestSnapshot()
	assert.Equal(t, 1, snap.InRangeCount())
	assert.Zero(t, snap.EnabledCount())
	assert.False(t, snap.Restriction().RenderingEnabled)
}
