package airspace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/interpolation"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/registry"
	"github.com/flybeeper/fsd-airspace/internal/restriction"
	"github.com/flybeeper/fsd-airspace/internal/signal"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// Remote контекст только для чтения: снапшоты и станции публикует Local
// экземпляр, истории для интерполяции здесь нет.
type Remote struct {
	reader SnapshotReader
	poll   time.Duration
	policy restriction.RenderRestriction
	clock  clock.Clock
	logger *utils.Logger

	refreshMu sync.Mutex
	// loaded latest прочитан из хранилища, а не создан локально
	loaded bool

	latest atomic.Pointer[models.AirspaceAircraftSnapshot]
	atc    atomic.Pointer[[]models.AtcStation]

	snapshots signal.Signal[*models.AirspaceAircraftSnapshot]
}

// NewRemote создает Remote контекст
func NewRemote(reader SnapshotReader, poll time.Duration, policy restriction.RenderRestriction, clk clock.Clock, logger *utils.Logger) (*Remote, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if reader == nil {
		return nil, fmt.Errorf("snapshot reader cannot be nil")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if poll <= 0 {
		poll = time.Second
	}

	r := &Remote{
		reader: reader,
		poll:   poll,
		policy: policy,
		clock:  clk,
		logger: logger.WithComponent("airspace_remote"),
	}
	r.latest.Store(models.EmptySnapshot(0, clk.Now(), policy.Snapshot(), nil))
	empty := []models.AtcStation{}
	r.atc.Store(&empty)
	return r, nil
}

// Kind вид контекста
func (r *Remote) Kind() config.AirspaceMode { return config.AirspaceModeRemote }

// Refresh читает снапшот и станции. Уже прочитанный снапшот (то же поколение
// и время) повторно не публикуется. Если ключ снапшота истек, публикуется
// пустой снапшот; при ошибке чтения остается прежний.
func (r *Remote) Refresh(ctx context.Context) error {
	snap, err := r.reader.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if next := r.advance(snap); next != nil {
		r.snapshots.Emit(next)
	}

	stations, err := r.reader.LoadAtcStations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load atc stations: %w", err)
	}
	r.atc.Store(&stations)
	return nil
}

// advance сохраняет снапшот, который нужно опубликовать после чтения; nil если ничего
func (r *Remote) advance(snap *models.AirspaceAircraftSnapshot) *models.AirspaceAircraftSnapshot {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	prev := r.latest.Load()
	if snap == nil {
		if !r.loaded {
			return nil
		}
		r.loaded = false
		r.logger.WithFields(map[string]interface{}{
			"generation": prev.Generation(),
			"enabled":    prev.EnabledCount(),
		}).Warn("Published snapshot expired, clearing remote airspace")
		empty := models.EmptySnapshot(prev.Generation()+1, r.clock.Now(), r.policy.Snapshot(), prev)
		r.latest.Store(empty)
		return empty
	}

	// после перезапуска публикатора поколения начинаются заново, поэтому сравнивается и время
	if r.loaded && snap.Generation() == prev.Generation() && snap.Timestamp().Equal(prev.Timestamp()) {
		return nil
	}
	r.loaded = true
	r.latest.Store(snap)
	return snap
}

// LatestSnapshot последний прочитанный снапшот
func (r *Remote) LatestSnapshot() *models.AirspaceAircraftSnapshot {
	return r.latest.Load()
}

// InterpolatedSituation без истории возвращает пустую ситуацию
func (r *Remote) InterpolatedSituation(models.Callsign, time.Time, bool) (models.AircraftSituation, models.InterpolationStatus) {
	return models.AircraftSituation{}, models.InterpolationStatus{}
}

func (r *Remote) InterpolatedSituationFor(interpolation.Consumer, models.Callsign, time.Time, bool) (models.AircraftSituation, models.InterpolationStatus) {
	return models.AircraftSituation{}, models.InterpolationStatus{}
}

// PartsBeforeTime без истории parts не известны
func (r *Remote) PartsBeforeTime(models.Callsign, time.Time) ([]models.AircraftParts, models.PartsStatus) {
	return nil, models.PartsStatus{}
}

// AtcStationsOnline станции из последнего чтения
func (r *Remote) AtcStationsOnline() []models.AtcStation {
	stations := *r.atc.Load()
	out := make([]models.AtcStation, 0, len(stations))
	for _, st := range stations {
		if st.Online {
			out = append(out, st)
		}
	}
	return out
}

// AllAircraft сводки, восстановленные из снапшота
func (r *Remote) AllAircraft() []registry.AircraftInfo {
	snap := r.latest.Load()
	aircraft := snap.Aircraft()
	out := make([]registry.AircraftInfo, 0, len(aircraft))
	for _, a := range aircraft {
		out = append(out, registry.AircraftInfo{
			Callsign: a.Callsign,
			Latest: models.AircraftSituation{
				Callsign:    a.Callsign,
				Position:    a.Position,
				Heading:     a.Heading,
				GroundSpeed: a.GroundSpeed,
				Timestamp:   snap.Timestamp(),
			},
			SituationsCount: 1,
			Transponder:     a.Transponder,
			Enabled:         !a.ExplicitlyDisabled,
			LastUpdate:      snap.Timestamp(),
		})
	}
	return out
}

// RenderRestriction политика из конфигурации; удаленно не меняется
func (r *Remote) RenderRestriction() restriction.RenderRestriction { return r.policy }

// SetSimulatorRenderRestrictionsChanged не поддерживается удаленно
func (r *Remote) SetSimulatorRenderRestrictionsChanged(bool, bool, int, float64) bool {
	r.logger.Debug("Render restrictions are read-only in remote mode")
	return false
}

// InterpolationSetup настройки по умолчанию
func (r *Remote) InterpolationSetup() interpolation.Setup { return interpolation.DefaultSetup() }

// SetInterpolationSetup не поддерживается удаленно
func (r *Remote) SetInterpolationSetup(interpolation.Setup) bool {
	r.logger.Debug("Interpolation setup is read-only in remote mode")
	return false
}

// SetOwnPosition не поддерживается удаленно
func (r *Remote) SetOwnPosition(models.GeoPoint) bool { return false }

// OnSnapshot подписка на новые прочитанные снапшоты
func (r *Remote) OnSnapshot(fn func(*models.AirspaceAircraftSnapshot)) func() {
	return r.snapshots.Connect(fn)
}

// Run периодически читает Redis до отмены ctx. Ошибки чтения логируются, опрос продолжается.
func (r *Remote) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	r.logger.WithField("poll", r.poll.String()).Info("Remote airspace reader started")

	for {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Warn("Remote airspace refresh failed")
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Remote airspace reader stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Close ничего не держит
func (r *Remote) Close() error { return nil }
