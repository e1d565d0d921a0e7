package airspace

import (
	"context"
	"time"

	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/interpolation"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/registry"
	"github.com/flybeeper/fsd-airspace/internal/restriction"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// Disabled пустой контекст
type Disabled struct {
	snapshot *models.AirspaceAircraftSnapshot
	logger   *utils.Logger
}

// NewDisabled создает пустой контекст
func NewDisabled(clk clock.Clock, logger *utils.Logger) *Disabled {
	if clk == nil {
		clk = clock.System{}
	}
	var policy restriction.RenderRestriction
	policy.DisableRendering()
	return &Disabled{
		snapshot: models.EmptySnapshot(0, clk.Now(), policy.Snapshot(), nil),
		logger:   logger.WithComponent("airspace_disabled"),
	}
}

func (d *Disabled) Kind() config.AirspaceMode { return config.AirspaceModeDisabled }

func (d *Disabled) LatestSnapshot() *models.AirspaceAircraftSnapshot { return d.snapshot }

func (d *Disabled) InterpolatedSituation(models.Callsign, time.Time, bool) (models.AircraftSituation, models.InterpolationStatus) {
	return models.AircraftSituation{}, models.InterpolationStatus{}
}

func (d *Disabled) InterpolatedSituationFor(interpolation.Consumer, models.Callsign, time.Time, bool) (models.AircraftSituation, models.InterpolationStatus) {
	return models.AircraftSituation{}, models.InterpolationStatus{}
}

func (d *Disabled) PartsBeforeTime(models.Callsign, time.Time) ([]models.AircraftParts, models.PartsStatus) {
	return nil, models.PartsStatus{}
}

func (d *Disabled) AtcStationsOnline() []models.AtcStation { return []models.AtcStation{} }

func (d *Disabled) AllAircraft() []registry.AircraftInfo { return []registry.AircraftInfo{} }

func (d *Disabled) RenderRestriction() restriction.RenderRestriction {
	var policy restriction.RenderRestriction
	policy.DisableRendering()
	return policy
}

func (d *Disabled) SetSimulatorRenderRestrictionsChanged(bool, bool, int, float64) bool { return false }

func (d *Disabled) InterpolationSetup() interpolation.Setup { return interpolation.Setup{} }

func (d *Disabled) SetInterpolationSetup(interpolation.Setup) bool { return false }

func (d *Disabled) SetOwnPosition(models.GeoPoint) bool { return false }

func (d *Disabled) OnSnapshot(func(*models.AirspaceAircraftSnapshot)) func() { return func() {} }

// Run ждет отмены контекста
func (d *Disabled) Run(ctx context.Context) error {
	d.logger.Info("Airspace is disabled")
	<-ctx.Done()
	return nil
}

func (d *Disabled) Close() error { return nil }
