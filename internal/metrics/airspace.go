package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AircraftTracked число судов в реестре
	AircraftTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsd_airspace_aircraft_tracked",
		Help: "Current number of remote aircraft in the registry",
	})

	// AtcOnline число станций УВД в сети
	AtcOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsd_airspace_atc_online",
		Help: "Current number of online ATC stations",
	})

	// NetworkConnected состояние подключения к сети
	NetworkConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsd_airspace_network_connected",
		Help: "Network connection status (1 = connected, 0 = disconnected)",
	})

	// NetworkEvents сетевые события по типам
	NetworkEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsd_airspace_network_events_total",
		Help: "Network events applied to the registry by type",
	}, []string{"type"})

	// NetworkEventsRejected отброшенные события (невалидные данные)
	NetworkEventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsd_airspace_network_events_rejected_total",
		Help: "Network events rejected during validation by type",
	}, []string{"type"})

	// SessionsEnded завершенные сессии по причинам
	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsd_airspace_sessions_ended_total",
		Help: "Aircraft and ATC sessions ended by kind and reason",
	}, []string{"kind", "reason"})

	// WatchdogTimeouts срабатывания watchdog по классам
	WatchdogTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsd_airspace_watchdog_timeouts_total",
		Help: "Callsigns removed by the watchdog by class",
	}, []string{"class"}) // aircraft, atc

	// AnalyzerCycleDuration длительность цикла анализатора
	AnalyzerCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fsd_airspace_analyzer_cycle_duration_seconds",
		Help:    "Duration of airspace analyzer cycles in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	})

	// AnalyzerSkippedCycles пропущенные из-за реентерабельности циклы
	AnalyzerSkippedCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fsd_airspace_analyzer_skipped_cycles_total",
		Help: "Analyzer ticks skipped because a cycle was still running",
	})

	// SnapshotInRange судов в зоне видимости в последнем снапшоте
	SnapshotInRange = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsd_airspace_snapshot_in_range",
		Help: "Aircraft in range in the latest snapshot",
	})

	// SnapshotEnabled судов для отрисовки в последнем снапшоте
	SnapshotEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsd_airspace_snapshot_enabled",
		Help: "Aircraft enabled for rendering in the latest snapshot",
	})

	// InterpolationResults исходы запросов интерполяции
	InterpolationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsd_airspace_interpolation_results_total",
		Help: "Interpolation queries by outcome",
	}, []string{"outcome"}) // interpolated, held, stationary, empty

	// DigestFlushes сбросы digest сигналов
	DigestFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsd_airspace_digest_flushes_total",
		Help: "Digest signal flushes by digest name",
	}, []string{"digest"})

	// DigestBatchSize размер сброшенных пачек
	DigestBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fsd_airspace_digest_batch_size",
		Help:    "Number of distinct callsigns per digest flush",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	}, []string{"digest"})
)
