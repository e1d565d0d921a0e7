// Package airspace собирает реестр, анализатор и интерполятор в единый
// контекст воздушного пространства, к которому обращаются HTTP слой и
// драйвер симулятора.
//
// Контекст бывает трех видов: Local владеет всем состоянием и принимает
// сетевые события, Remote читает снапшоты, опубликованные Local экземпляром
// в Redis, Disabled ничего не делает.
package airspace

import (
	"context"
	"fmt"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/interpolation"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/registry"
	"github.com/flybeeper/fsd-airspace/internal/restriction"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// Context общий интерфейс всех вариантов контекста
type Context interface {
	Kind() config.AirspaceMode

	// LatestSnapshot последний снапшот, никогда не nil
	LatestSnapshot() *models.AirspaceAircraftSnapshot
	InterpolatedSituation(cs models.Callsign, at time.Time, isVtol bool) (models.AircraftSituation, models.InterpolationStatus)
	// InterpolatedSituationFor ChangedPosition считается отдельно для каждого потребителя
	InterpolatedSituationFor(consumer interpolation.Consumer, cs models.Callsign, at time.Time, isVtol bool) (models.AircraftSituation, models.InterpolationStatus)
	PartsBeforeTime(cs models.Callsign, cutoff time.Time) ([]models.AircraftParts, models.PartsStatus)
	AtcStationsOnline() []models.AtcStation
	AllAircraft() []registry.AircraftInfo

	RenderRestriction() restriction.RenderRestriction
	SetSimulatorRenderRestrictionsChanged(restricted, enabled bool, maxAircraft int, maxDistanceNM float64) bool
	InterpolationSetup() interpolation.Setup
	SetInterpolationSetup(setup interpolation.Setup) bool
	SetOwnPosition(p models.GeoPoint) bool

	// OnSnapshot подписка на публикацию снапшотов
	OnSnapshot(fn func(*models.AirspaceAircraftSnapshot)) (disconnect func())

	// Run выполняет фоновую работу контекста до отмены ctx
	Run(ctx context.Context) error
	Close() error
}

// SnapshotReader источник снапшотов для Remote контекста
type SnapshotReader interface {
	// LoadSnapshot последний опубликованный снапшот, nil если его еще нет
	LoadSnapshot(ctx context.Context) (*models.AirspaceAircraftSnapshot, error)
	LoadAtcStations(ctx context.Context) ([]models.AtcStation, error)
}

// Deps внешние зависимости контекста
type Deps struct {
	Clock  clock.Clock
	Logger *utils.Logger
	// Reader нужен только для Remote
	Reader SnapshotReader
}

// NewContext создает контекст нужного вида по конфигурации
func NewContext(cfg *config.Config, deps Deps) (Context, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	switch cfg.Airspace.Mode {
	case config.AirspaceModeLocal:
		return NewLocal(LocalOptionsFromConfig(cfg), deps.Clock, deps.Logger)
	case config.AirspaceModeRemote:
		return NewRemote(deps.Reader, cfg.Airspace.RemotePoll, restriction.FromValues(cfg.Render.MaxAircraft, cfg.Render.MaxDistanceNM, cfg.Render.PartsEnabled), deps.Clock, deps.Logger)
	case config.AirspaceModeDisabled:
		return NewDisabled(deps.Clock, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown airspace mode: %q", cfg.Airspace.Mode)
	}
}
