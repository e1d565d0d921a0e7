package airspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/analyzer"
	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/interpolation"
	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/registry"
	"github.com/flybeeper/fsd-airspace/internal/restriction"
	"github.com/flybeeper/fsd-airspace/internal/signal"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// LocalOptions параметры Local контекста
type LocalOptions struct {
	Analyzer      analyzer.Config
	Registry      registry.Config
	OwnPosition   models.GeoPoint
	MaxRangeNM    float64
	Render        restriction.RenderRestriction
	Interpolation interpolation.Setup
	Cache         interpolation.Options

	DigestInterval time.Duration
	DigestMaxBatch int
}

// LocalOptionsFromConfig переводит конфигурацию приложения в параметры контекста
func LocalOptionsFromConfig(cfg *config.Config) LocalOptions {
	return LocalOptions{
		Analyzer: analyzer.Config{
			Interval:        cfg.Airspace.AnalyzerInterval,
			AircraftTimeout: cfg.Airspace.AircraftTimeout,
			AtcTimeout:      cfg.Airspace.AtcTimeout,
			WatchdogEnabled: cfg.Airspace.WatchdogEnabled,
			MinCycleSpacing: cfg.Airspace.AnalyzerInterval / 2,
		},
		Registry: registry.Config{
			MaxSituations:      cfg.History.MaxSituationsPerCallsign,
			SituationRetention: cfg.History.SituationRetention,
			MaxParts:           cfg.History.MaxPartsPerCallsign,
			PartsRetention:     cfg.History.PartsRetention,
		},
		OwnPosition: models.GeoPoint{Latitude: cfg.Airspace.OwnLatitude, Longitude: cfg.Airspace.OwnLongitude},
		MaxRangeNM:  cfg.Airspace.MaxRangeNM,
		Render:      restriction.FromValues(cfg.Render.MaxAircraft, cfg.Render.MaxDistanceNM, cfg.Render.PartsEnabled),
		Interpolation: interpolation.Setup{
			ForceFullInterpolation: cfg.Interpolation.ForceFullInterpolation,
			LogInterpolation:       cfg.Interpolation.LogInterpolation,
			PartsEnabled:           cfg.Interpolation.PartsEnabled,
		},
		Cache: interpolation.Options{
			CacheSize: cfg.Interpolation.ChangeCacheSize,
			CacheTTL:  cfg.Interpolation.ChangeCacheTTL,
		},
		DigestInterval: cfg.Airspace.DigestInterval,
		DigestMaxBatch: cfg.Airspace.DigestMaxBatch,
	}
}

// Local контекст, владеющий состоянием воздушного пространства.
// Он же приемник сетевых событий.
type Local struct {
	registry     *registry.Registry
	analyzer     *analyzer.Analyzer
	interpolator *interpolation.Interpolator
	logger       *utils.Logger

	situationsDigest *signal.Digest[models.Callsign]
	atcDigest        *signal.Digest[models.Callsign]

	// AircraftSituationsChanged пачка позывных с новыми ситуациями, не чаще DigestInterval
	AircraftSituationsChanged signal.Signal[[]models.Callsign]
	// AtcStationsChanged пачка позывных измененных станций
	AtcStationsChanged signal.Signal[[]models.Callsign]

	closeOnce   sync.Once
	disconnects []func()
}

// NewLocal собирает Local контекст
func NewLocal(opts LocalOptions, clk clock.Clock, logger *utils.Logger) (*Local, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if opts.DigestInterval <= 0 {
		opts.DigestInterval = time.Second
	}
	if opts.DigestMaxBatch <= 0 {
		opts.DigestMaxBatch = 50
	}

	acWD, atcWD, err := analyzer.NewWatchdogs(opts.Analyzer, clk, logger)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(opts.Registry, registry.NewRangeFilter(opts.OwnPosition, opts.MaxRangeNM),
		registry.NewWatchdogTracker(acWD, atcWD), clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	an, err := analyzer.New(opts.Analyzer, reg, acWD, atcWD, opts.Render, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	ip, err := interpolation.New(reg, opts.Interpolation, opts.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create interpolator: %w", err)
	}

	l := &Local{
		registry:     reg,
		analyzer:     an,
		interpolator: ip,
		logger:       logger.WithComponent("airspace"),
	}

	l.situationsDigest = signal.NewDigest(opts.DigestInterval, opts.DigestMaxBatch, clk, l.digestFlush("situations", &l.AircraftSituationsChanged))
	l.atcDigest = signal.NewDigest(opts.DigestInterval, opts.DigestMaxBatch, clk, l.digestFlush("atc", &l.AtcStationsChanged))

	l.disconnects = append(l.disconnects,
		reg.SituationsChanged.Connect(l.situationsDigest.Add),
		reg.AtcChanged.Connect(func(st models.AtcStation) { l.atcDigest.Add(st.Callsign) }),
		reg.SessionEnded.Connect(func(rec models.SessionRecord) {
			if rec.Kind == models.KindAircraft {
				ip.Forget(rec.Callsign)
			}
		}),
		an.TimeoutAircraft.Connect(func(cs models.Callsign) {
			l.logger.WithField("callsign", cs).Info("Aircraft timed out")
		}),
		an.TimeoutAtc.Connect(func(cs models.Callsign) {
			l.logger.WithField("callsign", cs).Info("ATC station timed out")
		}),
	)

	return l, nil
}

func (l *Local) digestFlush(name string, sig *signal.Signal[[]models.Callsign]) func([]models.Callsign) {
	return func(batch []models.Callsign) {
		metrics.DigestFlushes.WithLabelValues(name).Inc()
		metrics.DigestBatchSize.WithLabelValues(name).Observe(float64(len(batch)))
		sig.Emit(batch)
	}
}

// Kind вид контекста
func (l *Local) Kind() config.AirspaceMode { return config.AirspaceModeLocal }

// Registry реестр (для HTTP слоя и тестов)
func (l *Local) Registry() *registry.Registry { return l.registry }

// Analyzer анализатор
func (l *Local) Analyzer() *analyzer.Analyzer { return l.analyzer }

// Interpolator интерполятор
func (l *Local) Interpolator() *interpolation.Interpolator { return l.interpolator }

// LatestSnapshot последний снапшот анализатора
func (l *Local) LatestSnapshot() *models.AirspaceAircraftSnapshot {
	return l.analyzer.LatestSnapshot()
}

// InterpolatedSituation интерполированная ситуация позывного
func (l *Local) InterpolatedSituation(cs models.Callsign, at time.Time, isVtol bool) (models.AircraftSituation, models.InterpolationStatus) {
	return l.interpolator.InterpolatedSituation(models.NewCallsign(string(cs)), at, isVtol)
}

// InterpolatedSituationFor интерполированная ситуация для заданного потребителя
func (l *Local) InterpolatedSituationFor(consumer interpolation.Consumer, cs models.Callsign, at time.Time, isVtol bool) (models.AircraftSituation, models.InterpolationStatus) {
	return l.interpolator.InterpolatedSituationFor(consumer, models.NewCallsign(string(cs)), at, isVtol)
}

// PartsBeforeTime parts позывного до момента cutoff
func (l *Local) PartsBeforeTime(cs models.Callsign, cutoff time.Time) ([]models.AircraftParts, models.PartsStatus) {
	return l.interpolator.PartsBeforeTime(models.NewCallsign(string(cs)), cutoff)
}

// AtcStationsOnline станции в сети
func (l *Local) AtcStationsOnline() []models.AtcStation {
	return l.registry.AtcStationsOnline()
}

// AllAircraft все известные суда
func (l *Local) AllAircraft() []registry.AircraftInfo {
	return l.registry.AllAircraft()
}

// RenderRestriction текущая политика отрисовки
func (l *Local) RenderRestriction() restriction.RenderRestriction {
	return l.analyzer.RenderRestriction()
}

// SetSimulatorRenderRestrictionsChanged ограничения от драйвера симулятора
func (l *Local) SetSimulatorRenderRestrictionsChanged(restricted, enabled bool, maxAircraft int, maxDistanceNM float64) bool {
	return l.analyzer.SetSimulatorRenderRestrictionsChanged(restricted, enabled, maxAircraft, maxDistanceNM)
}

// InterpolationSetup глобальные настройки интерполяции
func (l *Local) InterpolationSetup() interpolation.Setup {
	return l.interpolator.Setup()
}

// SetInterpolationSetup меняет глобальные настройки интерполяции
func (l *Local) SetInterpolationSetup(setup interpolation.Setup) bool {
	return l.interpolator.SetSetup(setup)
}

// SetOwnPosition собственная позиция, от которой считаются дистанции
func (l *Local) SetOwnPosition(p models.GeoPoint) bool {
	if err := p.Validate(); err != nil {
		l.logger.WithError(err).Warn("Own position rejected")
		return false
	}
	l.registry.Range().SetOwnPosition(p)
	return true
}

// SetWatchdogEnabled включает и выключает проверку таймаутов
func (l *Local) SetWatchdogEnabled(enabled bool) {
	l.analyzer.SetWatchdogEnabled(enabled)
}

// OnSnapshot подписка на снапшоты анализатора
func (l *Local) OnSnapshot(fn func(*models.AirspaceAircraftSnapshot)) func() {
	return l.analyzer.SnapshotPublished.Connect(fn)
}

// Run запускает циклы анализатора
func (l *Local) Run(ctx context.Context) error {
	return l.analyzer.Run(ctx)
}

// FlushDigests немедленно сбрасывает накопленные изменения
func (l *Local) FlushDigests() {
	l.situationsDigest.Flush()
	l.atcDigest.Flush()
}

// Close сбрасывает накопленные digest и отписывает внутренние обработчики
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		l.situationsDigest.Stop()
		l.atcDigest.Stop()
		for _, d := range l.disconnects {
			d()
		}
		l.logger.Info("Local airspace context closed")
	})
	return nil
}

// OnPositionUpdate позиция судна из сети. transponder может быть nil.
func (l *Local) OnPositionUpdate(s models.AircraftSituation, transponder *models.Transponder) error {
	if err := s.Validate(); err != nil {
		metrics.NetworkEventsRejected.WithLabelValues("position").Inc()
		return fmt.Errorf("invalid situation: %w", err)
	}
	if !l.registry.AddOrUpdateSituation(s) {
		metrics.NetworkEventsRejected.WithLabelValues("position").Inc()
		return fmt.Errorf("situation rejected for %q", s.Callsign)
	}
	metrics.NetworkEvents.WithLabelValues("position").Inc()

	if transponder != nil {
		if err := transponder.Validate(); err != nil {
			l.logger.WithFields(map[string]interface{}{
				"callsign": s.Callsign,
				"code":     transponder.Code,
			}).Debug("Ignoring invalid transponder")
			return nil
		}
		l.registry.UpdateTransponder(models.NewCallsign(string(s.Callsign)), *transponder)
	}
	return nil
}

// OnPartsUpdate parts судна из сети
func (l *Local) OnPartsUpdate(cs models.Callsign, parts models.AircraftParts, incremental bool) error {
	cs = models.NewCallsign(string(cs))
	if cs.IsEmpty() || parts.Timestamp.IsZero() {
		metrics.NetworkEventsRejected.WithLabelValues("parts").Inc()
		return fmt.Errorf("parts update requires callsign and timestamp")
	}
	if !l.registry.AddOrUpdateParts(cs, parts, incremental) {
		metrics.NetworkEventsRejected.WithLabelValues("parts").Inc()
		return fmt.Errorf("parts rejected for %q", cs)
	}
	metrics.NetworkEvents.WithLabelValues("parts").Inc()
	return nil
}

// OnPartsSupport объявление поддержки parts
func (l *Local) OnPartsSupport(cs models.Callsign, supported bool) {
	l.registry.SetPartsSupported(models.NewCallsign(string(cs)), supported)
}

// OnAtcStationUpdate станция УВД вошла в сеть, обновилась или вышла
func (l *Local) OnAtcStationUpdate(st models.AtcStation, isOnline bool) error {
	st.Callsign = models.NewCallsign(string(st.Callsign))
	if !isOnline {
		metrics.NetworkEvents.WithLabelValues("atc_removed").Inc()
		l.registry.RemoveAtcStation(st.Callsign)
		return nil
	}
	if err := st.Validate(); err != nil {
		metrics.NetworkEventsRejected.WithLabelValues("atc").Inc()
		return fmt.Errorf("invalid atc station: %w", err)
	}
	metrics.NetworkEvents.WithLabelValues("atc").Inc()
	l.registry.AddAtcStation(st)
	return nil
}

// OnAtcText ATIS/METAR известной станции
func (l *Local) OnAtcText(cs models.Callsign, atis, metar string) {
	metrics.NetworkEvents.WithLabelValues("atc_text").Inc()
	l.registry.UpdateAtcText(models.NewCallsign(string(cs)), atis, metar)
}

// OnAircraftRemoved явное удаление судна; неизвестный позывной не ошибка
func (l *Local) OnAircraftRemoved(cs models.Callsign) error {
	metrics.NetworkEvents.WithLabelValues("removed").Inc()
	l.registry.RemoveAircraft(models.NewCallsign(string(cs)))
	return nil
}

// OnConnectionStatusChanged смена состояния подключения к сети
func (l *Local) OnConnectionStatusChanged(from, to models.ConnectionStatus) error {
	metrics.NetworkEvents.WithLabelValues("connection").Inc()
	l.registry.SetConnectionStatus(from, to)
	if to == models.Disconnected {
		l.interpolator.Reset()
	}
	return nil
}
