package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/flybeeper/fsd-airspace/internal/airspace"
	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// Pinger зависимость, проверяемая в /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerDeps зависимости HTTP сервера. Все поля кроме Airspace опциональны.
type ServerDeps struct {
	Airspace airspace.Context
	Locator  AircraftLocator
	Sessions SessionHistory
	Hub      *SnapshotHub
	Clock    clock.Clock
	// Checks имя -> зависимость для /health
	Checks map[string]Pinger
}

// Server HTTP сервер API
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	logger      *utils.Logger
	config      *config.Config
	deps        ServerDeps
	restHandler *RESTHandler
	startedAt   time.Time
}

// NewServer создает новый HTTP сервер
func NewServer(cfg *config.Config, deps ServerDeps, logger *utils.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if deps.Airspace == nil {
		return nil, fmt.Errorf("airspace context cannot be nil")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger = logger.WithComponent("http")
	router := gin.New()

	router.Use(LoggerMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(RateLimitMiddleware(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	router.Use(SecurityHeadersMiddleware())
	if cfg.Monitoring.MetricsEnabled {
		router.Use(metrics.HTTPMetricsMiddleware())
	}

	s := &Server{
		router:      router,
		logger:      logger,
		config:      cfg,
		deps:        deps,
		restHandler: NewRESTHandler(deps.Airspace, deps.Locator, deps.Sessions, deps.Clock, logger),
		startedAt:   time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	s.setupRoutes()
	return s, nil
}

// Router gin роутер (тесты)
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/snapshot", s.restHandler.GetSnapshot)
		v1.GET("/aircraft", s.restHandler.GetAircraft)
		v1.GET("/aircraft/:callsign/situation", s.restHandler.GetSituation)
		v1.GET("/aircraft/:callsign/parts", s.restHandler.GetParts)
		v1.GET("/aircraft/:callsign/sessions", s.restHandler.GetSessions)
		v1.GET("/atc", s.restHandler.GetAtc)

		v1.GET("/render-restrictions", s.restHandler.GetRenderRestrictions)
		v1.PUT("/render-restrictions", s.restHandler.PutRenderRestrictions)
		v1.GET("/interpolation-setup", s.restHandler.GetInterpolationSetup)
		v1.PUT("/interpolation-setup", s.restHandler.PutInterpolationSetup)
		v1.PUT("/own-position", s.restHandler.PutOwnPosition)
	}

	if s.deps.Hub != nil {
		s.router.GET("/ws/v1/snapshots", s.deps.Hub.HandleWebSocket)
	}

	if s.config.Monitoring.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// Run обслуживает запросы до отмены контекста
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(map[string]interface{}{
			"address": s.config.Server.Address,
			"mode":    gin.Mode(),
		}).Info("Starting HTTP server")

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown корректное завершение сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// healthCheck GET /health
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, p := range s.deps.Checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	snap := s.deps.Airspace.LatestSnapshot()
	body := gin.H{
		"status":         "ok",
		"mode":           s.deps.Airspace.Kind(),
		"generation":     snap.Generation(),
		"snapshot_time":  snap.Timestamp(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"checks":         checks,
	}
	if s.deps.Hub != nil {
		body["websocket_clients"] = s.deps.Hub.ClientCount()
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// ==================== Middleware ====================

// LoggerMiddleware логирование запросов
func LoggerMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.WithFields(fields).Warn("HTTP request failed")
			return
		}
		logger.WithFields(fields).Debug("HTTP request completed")
	}
}

// CORSMiddleware настройка CORS
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// RateLimitMiddleware ограничение частоты запросов
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = max(1, int(rps))
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			metrics.HTTPRateLimited.Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    "rate_limit_exceeded",
				"message": "Too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware заголовки безопасности
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
