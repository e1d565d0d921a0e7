package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flybeeper/fsd-airspace/internal/airspace"
	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/interpolation"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/registry"
	"github.com/flybeeper/fsd-airspace/internal/repository"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// ErrUnknownCallsign по позывному нет данных
var ErrUnknownCallsign = errors.New("unknown callsign")

const maxRadiusNM = 500

// AircraftLocator поиск судов по радиусу в опубликованном снапшоте
type AircraftLocator interface {
	AircraftInRadius(ctx context.Context, center models.GeoPoint, radiusNM float64) ([]repository.AircraftRecord, error)
}

// SessionHistory история сессий позывных
type SessionHistory interface {
	RecentSessions(ctx context.Context, cs models.Callsign, limit int) ([]models.SessionRecord, error)
}

// RESTHandler обработчик REST API endpoints
type RESTHandler struct {
	airspace airspace.Context
	locator  AircraftLocator
	sessions SessionHistory
	clock    clock.Clock
	logger   *utils.Logger
	timeout  time.Duration
}

// NewRESTHandler создает REST handler. locator и sessions опциональны.
func NewRESTHandler(ctx airspace.Context, locator AircraftLocator, sessions SessionHistory, clk clock.Clock, logger *utils.Logger) *RESTHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &RESTHandler{
		airspace: ctx,
		locator:  locator,
		sessions: sessions,
		clock:    clk,
		logger:   logger.WithComponent("rest"),
		timeout:  10 * time.Second,
	}
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": code, "message": message})
}

func notFound(c *gin.Context, cs models.Callsign) {
	c.JSON(http.StatusNotFound, gin.H{
		"code":    "unknown_callsign",
		"message": ErrUnknownCallsign.Error() + ": " + string(cs),
	})
}

// GetSnapshot последний снапшот анализатора
// GET /api/v1/snapshot
func (h *RESTHandler) GetSnapshot(c *gin.Context) {
	snap := h.airspace.LatestSnapshot()

	if strings.Contains(c.GetHeader("Accept"), "application/x-protobuf") {
		c.Data(http.StatusOK, "application/x-protobuf", EncodeSnapshotFrame(snap))
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetAircraft все известные суда
// GET /api/v1/aircraft?geohash=u0yj&lat=50.1&lon=8.6&radius_nm=30
func (h *RESTHandler) GetAircraft(c *gin.Context) {
	if c.Query("lat") != "" || c.Query("lon") != "" || c.Query("radius_nm") != "" {
		h.getAircraftInRadius(c)
		return
	}

	prefix := strings.ToLower(c.Query("geohash"))
	if prefix != "" && !isGeohash(prefix) {
		badRequest(c, "invalid_geohash", "geohash must be 1-12 base32 characters")
		return
	}

	all := h.airspace.AllAircraft()
	aircraft := make([]registry.AircraftInfo, 0, len(all))
	for _, a := range all {
		if prefix != "" && !strings.HasPrefix(a.Latest.Position.Geohash(len(prefix)), prefix) {
			continue
		}
		aircraft = append(aircraft, a)
	}

	c.JSON(http.StatusOK, gin.H{
		"aircraft": aircraft,
		"count":    len(aircraft),
	})
}

func (h *RESTHandler) getAircraftInRadius(c *gin.Context) {
	if h.locator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "locator_unavailable",
			"message": "Radius search requires the snapshot store",
		})
		return
	}

	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		badRequest(c, "invalid_latitude", "Latitude must be between -90 and 90")
		return
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		badRequest(c, "invalid_longitude", "Longitude must be between -180 and 180")
		return
	}
	radius, err := strconv.ParseFloat(c.Query("radius_nm"), 64)
	if err != nil || radius <= 0 || radius > maxRadiusNM {
		badRequest(c, "invalid_radius", "Radius must be between 0 and 500 NM")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	records, err := h.locator.AircraftInRadius(ctx, models.GeoPoint{Latitude: lat, Longitude: lon}, radius)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to get aircraft in radius")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "Failed to retrieve aircraft",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"aircraft": records,
		"count":    len(records),
	})
}

func isGeohash(s string) bool {
	if len(s) > 12 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789bcdefghjkmnpqrstuvwxyz", r) {
			return false
		}
	}
	return true
}

// parseTime принимает unix миллисекунды или RFC3339, пустое значение = сейчас
func (h *RESTHandler) parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return h.clock.Now(), nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// GetSituation интерполированная ситуация судна
// GET /api/v1/aircraft/:callsign/situation?at=1717243200000&vtol=false
func (h *RESTHandler) GetSituation(c *gin.Context) {
	cs := models.NewCallsign(c.Param("callsign"))
	at, err := h.parseTime(c.Query("at"))
	if err != nil {
		badRequest(c, "invalid_time", "at must be unix milliseconds or RFC3339")
		return
	}
	vtol, _ := strconv.ParseBool(c.DefaultQuery("vtol", "false"))

	situation, status := h.airspace.InterpolatedSituationFor(interpolation.ConsumerHTTP, cs, at, vtol)
	if status.SituationsCount == 0 && h.airspace.Kind() == config.AirspaceModeLocal {
		notFound(c, cs)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"situation": situation,
		"status":    status,
	})
}

// GetParts parts судна до момента времени
// GET /api/v1/aircraft/:callsign/parts?before=2024-06-01T12:00:00Z
func (h *RESTHandler) GetParts(c *gin.Context) {
	cs := models.NewCallsign(c.Param("callsign"))
	cutoff, err := h.parseTime(c.Query("before"))
	if err != nil {
		badRequest(c, "invalid_time", "before must be unix milliseconds or RFC3339")
		return
	}

	parts, status := h.airspace.PartsBeforeTime(cs, cutoff)
	if parts == nil {
		parts = []models.AircraftParts{}
	}

	c.JSON(http.StatusOK, gin.H{
		"parts":  parts,
		"status": status,
	})
}

// GetSessions последние сессии позывного
// GET /api/v1/aircraft/:callsign/sessions?limit=20
func (h *RESTHandler) GetSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "history_disabled",
			"message": "Session history is not configured",
		})
		return
	}

	cs := models.NewCallsign(c.Param("callsign"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 500 {
		badRequest(c, "invalid_limit", "Limit must be between 1 and 500")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	sessions, err := h.sessions.RecentSessions(ctx, cs, limit)
	if err != nil {
		h.logger.WithFields(map[string]interface{}{
			"callsign": cs,
			"error":    err,
		}).Error("Failed to get sessions")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "Failed to retrieve sessions",
		})
		return
	}
	if sessions == nil {
		sessions = []models.SessionRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetAtc станции УВД в сети
// GET /api/v1/atc
func (h *RESTHandler) GetAtc(c *gin.Context) {
	stations := h.airspace.AtcStationsOnline()
	if stations == nil {
		stations = []models.AtcStation{}
	}
	c.JSON(http.StatusOK, gin.H{
		"stations": stations,
		"count":    len(stations),
	})
}

// RenderRestrictionsRequest настройки отрисовки из симулятора
type RenderRestrictionsRequest struct {
	Restricted    bool    `json:"restricted"`
	Enabled       bool    `json:"enabled"`
	MaxAircraft   int     `json:"max_aircraft"`
	MaxDistanceNM float64 `json:"max_distance_nm"`
}

func restrictionResponse(ctx airspace.Context, changed bool) gin.H {
	r := ctx.RenderRestriction()
	return gin.H{
		"changed":           changed,
		"rendering_enabled": r.IsRenderingEnabled(),
		"restricted":        r.IsRenderingRestricted(),
		"max_aircraft":      r.MaxRenderedAircraft(),
		"max_distance_nm":   r.MaxRenderedDistanceNM(),
		"description":       r.String(),
	}
}

// GetRenderRestrictions текущая политика отрисовки
// GET /api/v1/render-restrictions
func (h *RESTHandler) GetRenderRestrictions(c *gin.Context) {
	c.JSON(http.StatusOK, restrictionResponse(h.airspace, false))
}

// PutRenderRestrictions PUT /api/v1/render-restrictions
func (h *RESTHandler) PutRenderRestrictions(c *gin.Context) {
	var req RenderRestrictionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_body", err.Error())
		return
	}
	if req.MaxAircraft < 0 || req.MaxDistanceNM < 0 {
		badRequest(c, "invalid_restriction", "Limits must not be negative")
		return
	}

	changed := h.airspace.SetSimulatorRenderRestrictionsChanged(req.Restricted, req.Enabled, req.MaxAircraft, req.MaxDistanceNM)
	c.JSON(http.StatusOK, restrictionResponse(h.airspace, changed))
}

// GetInterpolationSetup GET /api/v1/interpolation-setup
func (h *RESTHandler) GetInterpolationSetup(c *gin.Context) {
	c.JSON(http.StatusOK, h.airspace.InterpolationSetup())
}

// PutInterpolationSetup PUT /api/v1/interpolation-setup
func (h *RESTHandler) PutInterpolationSetup(c *gin.Context) {
	var setup interpolation.Setup
	if err := c.ShouldBindJSON(&setup); err != nil {
		badRequest(c, "invalid_body", err.Error())
		return
	}

	changed := h.airspace.SetInterpolationSetup(setup)
	c.JSON(http.StatusOK, gin.H{
		"changed": changed,
		"setup":   h.airspace.InterpolationSetup(),
	})
}

// PutOwnPosition PUT /api/v1/own-position
func (h *RESTHandler) PutOwnPosition(c *gin.Context) {
	var p models.GeoPoint
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "invalid_body", err.Error())
		return
	}
	if err := p.Validate(); err != nil {
		badRequest(c, "invalid_position", err.Error())
		return
	}

	if !h.airspace.SetOwnPosition(p) {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "not_supported",
			"message": "Own position cannot be set in " + string(h.airspace.Kind()) + " mode",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": p})
}
