// Package analyzer периодически сверяет реестр, watchdog и политику
// отрисовки и публикует один неизменяемый снапшот за цикл.
package analyzer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/registry"
	"github.com/flybeeper/fsd-airspace/internal/restriction"
	"github.com/flybeeper/fsd-airspace/internal/signal"
	"github.com/flybeeper/fsd-airspace/internal/watchdog"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// Source то, что анализатор читает и меняет в реестре
type Source interface {
	AircraftInRange() []registry.InRangeAircraft
	IsConnected() bool
	// RemoveAircraftIfIdle и SetAtcOfflineIfIdle не трогают позывной,
	// обновленный после lastActivity
	RemoveAircraftIfIdle(cs models.Callsign, lastActivity time.Time) bool
	SetAtcOfflineIfIdle(cs models.Callsign, lastActivity time.Time) bool
}

// Config параметры анализатора
type Config struct {
	Interval        time.Duration
	AircraftTimeout time.Duration
	AtcTimeout      time.Duration
	WatchdogEnabled bool
	// MinCycleSpacing минимальный интервал между началами циклов
	MinCycleSpacing time.Duration
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		Interval:        2 * time.Second,
		AircraftTimeout: 15 * time.Second,
		AtcTimeout:      50 * time.Second,
		WatchdogEnabled: true,
		MinCycleSpacing: time.Second,
	}
}

// NewWatchdogs создает watchdog судов и станций УВД с таймаутами анализатора
func NewWatchdogs(cfg Config, clk clock.Clock, logger *utils.Logger) (aircraft, atc *watchdog.Watchdog, err error) {
	aircraft, err = watchdog.New(string(models.KindAircraft), cfg.AircraftTimeout, clk, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create aircraft watchdog: %w", err)
	}
	atc, err = watchdog.New(string(models.KindAtc), cfg.AtcTimeout, clk, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create atc watchdog: %w", err)
	}
	aircraft.SetEnabled(cfg.WatchdogEnabled)
	atc.SetEnabled(cfg.WatchdogEnabled)
	return aircraft, atc, nil
}

// Analyzer фоновый обработчик воздушного пространства
type Analyzer struct {
	cfg        Config
	source     Source
	aircraftWD *watchdog.Watchdog
	atcWD      *watchdog.Watchdog
	clock      clock.Clock
	logger     *utils.Logger

	restrictionMu sync.RWMutex
	restriction   restriction.RenderRestriction

	// защита от реентерабельности: флаг выполнения и "не раньше чем"
	running   atomic.Bool
	notBefore atomic.Int64
	skipped   atomic.Uint64

	generation uint64 // меняется только внутри цикла
	latest     atomic.Pointer[models.AirspaceAircraftSnapshot]

	// TimeoutAircraft судно удалено по таймауту
	TimeoutAircraft signal.Signal[models.Callsign]
	// TimeoutAtc станция помечена как не в сети по таймауту
	TimeoutAtc signal.Signal[models.Callsign]
	// SnapshotPublished новый снапшот опубликован
	SnapshotPublished signal.Signal[*models.AirspaceAircraftSnapshot]
	// RestrictionChanged политика отрисовки изменилась
	RestrictionChanged signal.Signal[restriction.RenderRestriction]
}

// New создает анализатор
func New(
	cfg Config,
	source Source,
	aircraftWD, atcWD *watchdog.Watchdog,
	policy restriction.RenderRestriction,
	clk clock.Clock,
	logger *utils.Logger,
) (*Analyzer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if aircraftWD == nil || atcWD == nil {
		return nil, fmt.Errorf("watchdogs cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("analyzer interval must be positive")
	}
	if clk == nil {
		clk = clock.System{}
	}

	a := &Analyzer{
		cfg:         cfg,
		source:      source,
		aircraftWD:  aircraftWD,
		atcWD:       atcWD,
		clock:       clk,
		logger:      logger.WithComponent("analyzer"),
		restriction: policy,
	}
	a.latest.Store(models.EmptySnapshot(0, clk.Now(), policy.Snapshot(), nil))
	return a, nil
}

// LatestSnapshot последний опубликованный снапшот, никогда не nil.
// Неблокирующее чтение.
func (a *Analyzer) LatestSnapshot() *models.AirspaceAircraftSnapshot {
	return a.latest.Load()
}

// Tick запускает цикл, если предыдущий завершен и не сработал ограничитель частоты.
// Возвращает false для пропущенного тика.
func (a *Analyzer) Tick() bool {
	now := a.clock.Now()

	if !a.running.CompareAndSwap(false, true) {
		a.skip("previous cycle still running")
		return false
	}
	defer a.running.Store(false)

	if now.UnixNano() < a.notBefore.Load() {
		a.skip("cycle requested too early")
		return false
	}
	a.notBefore.Store(now.Add(a.cfg.MinCycleSpacing).UnixNano())

	start := time.Now()
	a.cycle(now)
	metrics.AnalyzerCycleDuration.Observe(time.Since(start).Seconds())
	return true
}

func (a *Analyzer) skip(reason string) {
	n := a.skipped.Add(1)
	metrics.AnalyzerSkippedCycles.Inc()
	a.logger.WithFields(map[string]interface{}{
		"reason":  reason,
		"skipped": n,
	}).Warn("Analyzer tick skipped")
}

// SkippedTicks число пропущенных тиков
func (a *Analyzer) SkippedTicks() uint64 {
	return a.skipped.Load()
}

func (a *Analyzer) cycle(now time.Time) {
	// 1. Таймауты: у судов и станций свои значения и своя обработка
	a.checkTimeouts()

	// 2. Политика читается один раз на цикл
	policy := a.RenderRestriction()

	var snap *models.AirspaceAircraftSnapshot
	prev := a.latest.Load()
	a.generation++

	if !a.source.IsConnected() {
		// без соединения не держим устаревших судов
		snap = models.EmptySnapshot(a.generation, now, policy.Snapshot(), prev)
	} else {
		// 3. Разбиение на отрисовываемые и остальные
		parted := Partition(a.source.AircraftInRange(), policy)
		if policy.LogRenderingDecisions {
			for _, sa := range parted {
				a.logger.WithFields(map[string]interface{}{
					"callsign":    sa.Callsign,
					"distance_nm": sa.DistanceNM,
					"enabled":     sa.Enabled,
					"disabled":    sa.ExplicitlyDisabled,
				}).Debug("Rendering decision")
			}
		}
		snap = models.NewAirspaceAircraftSnapshot(a.generation, now, policy.Snapshot(), parted, prev)
	}

	// 4. Атомарная публикация
	a.latest.Store(snap)
	metrics.SnapshotInRange.Set(float64(snap.InRangeCount()))
	metrics.SnapshotEnabled.Set(float64(snap.EnabledCount()))

	if newly, gone := snap.NewlyEnabled(), snap.NewlyDisabled(); len(newly) > 0 || len(gone) > 0 {
		a.logger.WithFields(map[string]interface{}{
			"generation": snap.Generation(),
			"enabled":    len(newly),
			"disabled":   len(gone),
			"in_range":   snap.InRangeCount(),
		}).Debug("Rendered aircraft set changed")
	}
	a.SnapshotPublished.Emit(snap)
}

// checkTimeouts выключенный watchdog возвращает пустой список.
// Позывной, приславший обновление между проверкой и удалением, остается:
// обновление уже вернуло его в watchdog.
func (a *Analyzer) checkTimeouts() {
	for _, e := range a.aircraftWD.Expire() {
		if !a.source.RemoveAircraftIfIdle(e.Callsign, e.LastActivity) {
			continue
		}
		metrics.WatchdogTimeouts.WithLabelValues(string(models.KindAircraft)).Inc()
		a.TimeoutAircraft.Emit(e.Callsign)
	}
	for _, e := range a.atcWD.Expire() {
		if !a.source.SetAtcOfflineIfIdle(e.Callsign, e.LastActivity) {
			continue
		}
		metrics.WatchdogTimeouts.WithLabelValues(string(models.KindAtc)).Inc()
		a.TimeoutAtc.Emit(e.Callsign)
	}
}

// Partition применяет политику к судам, отсортированным от ближнего к дальнему:
// явное выключение, затем дальность, затем число судов по близости.
// Выключенная отрисовка дает пустое множество.
func Partition(inRange []registry.InRangeAircraft, policy restriction.RenderRestriction) []models.SnapshotAircraft {
	out := make([]models.SnapshotAircraft, 0, len(inRange))
	renderingEnabled := policy.IsRenderingEnabled()
	distanceRestricted := policy.IsMaxDistanceRestricted()
	maxDistance := policy.MaxRenderedDistanceNM()
	maxAircraft := policy.MaxRenderedAircraft()

	enabled := 0
	for _, a := range inRange {
		sa := models.SnapshotAircraft{
			Callsign:           a.Callsign,
			DistanceNM:         a.DistanceNM,
			ExplicitlyDisabled: !a.Enabled,
			Position:           a.Latest.Position,
			Heading:            a.Latest.Heading,
			GroundSpeed:        a.Latest.GroundSpeed,
			Transponder:        a.Transponder,
		}

		switch {
		case !a.Enabled, !renderingEnabled:
		case distanceRestricted && a.DistanceNM > maxDistance:
		case enabled >= maxAircraft:
		default:
			sa.Enabled = true
			enabled++
		}
		out = append(out, sa)
	}
	return out
}

// RenderRestriction копия текущей политики
func (a *Analyzer) RenderRestriction() restriction.RenderRestriction {
	a.restrictionMu.RLock()
	defer a.restrictionMu.RUnlock()
	return a.restriction
}

// SetRenderRestriction заменяет политику целиком; применяется со следующего цикла
func (a *Analyzer) SetRenderRestriction(policy restriction.RenderRestriction) bool {
	a.restrictionMu.Lock()
	changed := a.restriction != policy
	a.restriction = policy
	a.restrictionMu.Unlock()

	if changed {
		a.logger.WithField("restriction", policy.String()).Info("Render restriction changed")
		a.RestrictionChanged.Emit(policy)
	}
	return changed
}

// SetSimulatorRenderRestrictionsChanged значения ограничений от драйвера симулятора
func (a *Analyzer) SetSimulatorRenderRestrictionsChanged(restricted, enabled bool, maxAircraft int, maxDistanceNM float64) bool {
	policy := a.RenderRestriction()
	switch {
	case !enabled:
		policy.DisableRendering()
	case !restricted:
		policy.ClearAllRestrictions()
	default:
		policy.ClearAllRestrictions()
		policy.SetMaxRenderedAircraft(maxAircraft)
		if maxDistanceNM > 0 {
			policy.SetMaxRenderedDistance(maxDistanceNM)
		}
	}
	return a.SetRenderRestriction(policy)
}

// SetWatchdogEnabled включает и выключает оба watchdog (например, под отладчиком)
func (a *Analyzer) SetWatchdogEnabled(enabled bool) {
	a.aircraftWD.SetEnabled(enabled)
	a.atcWD.SetEnabled(enabled)
}

// Run выполняет циклы с заданным периодом до отмены контекста
func (a *Analyzer) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.logger.WithField("interval", a.cfg.Interval.String()).Info("Airspace analyzer started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Airspace analyzer stopped")
			return nil
		case <-ticker.C:
			a.Tick()
		}
	}
}
