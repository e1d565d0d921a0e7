package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flybeeper/fsd-airspace/internal/airspace"
	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/handler"
	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/mqtt"
	"github.com/flybeeper/fsd-airspace/internal/repository"
	"github.com/flybeeper/fsd-airspace/internal/service"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

var (
	// Version будет установлен при сборке через ldflags
	Version = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *utils.Logger
	if cfg.Logging.File != "" {
		logger = utils.NewFileLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	} else {
		logger = utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	}
	logger.WithFields(map[string]interface{}{
		"version": Version,
		"mode":    cfg.Airspace.Mode,
	}).Info("Starting FSD airspace engine")
	metrics.SetAppInfo(Version, string(cfg.Airspace.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Airspace engine stopped with error")
		os.Exit(1)
	}
	logger.Info("Airspace engine stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	checks := make(map[string]handler.Pinger)

	// Redis обязателен для remote, в local режиме опционален
	var store *repository.SnapshotStore
	if cfg.Redis.URL != "" {
		s, err := repository.NewSnapshotStore(&cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Ping(ctx); err != nil {
			if cfg.Airspace.Mode == config.AirspaceModeRemote {
				return err
			}
			logger.WithError(err).Warn("Redis unavailable, snapshots will be retried on publish")
		}
		store = s
		checks["redis"] = s
	}

	deps := airspace.Deps{Clock: clock.System{}, Logger: logger}
	if store != nil {
		deps.Reader = store
	}
	airspaceCtx, err := airspace.NewContext(cfg, deps)
	if err != nil {
		return err
	}
	defer airspaceCtx.Close()

	hub := handler.NewSnapshotHub(airspaceCtx.LatestSnapshot, cfg.Server.AllowedOrigins, logger)
	airspaceCtx.OnSnapshot(hub.Submit)
	g.Go(func() error { return hub.Run(ctx) })

	serverDeps := handler.ServerDeps{
		Airspace: airspaceCtx,
		Hub:      hub,
		Clock:    clock.System{},
		Checks:   checks,
	}
	if store != nil {
		serverDeps.Locator = store
	}

	if local, ok := airspaceCtx.(*airspace.Local); ok {
		if err := wireLocal(ctx, g, cfg, local, store, &serverDeps, logger); err != nil {
			return err
		}
	}

	server, err := handler.NewServer(cfg, serverDeps, logger)
	if err != nil {
		return err
	}

	g.Go(func() error { return airspaceCtx.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	return g.Wait()
}

// wireLocal подключает источник событий сети и писателей Local контекста
func wireLocal(ctx context.Context, g *errgroup.Group, cfg *config.Config, local *airspace.Local,
	store *repository.SnapshotStore, serverDeps *handler.ServerDeps, logger *utils.Logger) error {

	if store != nil {
		publisher, err := service.NewSnapshotPublisher(store, local.AtcStationsOnline, logger)
		if err != nil {
			return err
		}
		local.OnSnapshot(publisher.Submit)
		local.AtcStationsChanged.Connect(func([]models.Callsign) { publisher.MarkAtcChanged() })
		g.Go(func() error { return publisher.Run(ctx) })
	}

	if cfg.MySQL.DSN != "" {
		mysqlRepo, err := repository.NewMySQLRepository(&cfg.MySQL, logger)
		if err != nil {
			return err
		}
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = mysqlRepo.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Failed to prepare session table, history disabled")
			mysqlRepo.Close()
		} else {
			historyCfg := service.DefaultHistoryConfig()
			historyCfg.BatchSize = cfg.History.SessionBatchSize
			historyCfg.FlushInterval = cfg.History.SessionFlushInterval
			writer, err := service.NewHistoryWriter(mysqlRepo, logger, historyCfg)
			if err != nil {
				mysqlRepo.Close()
				return err
			}
			local.Registry().SessionEnded.Connect(writer.OnSessionEnded)
			serverDeps.Sessions = mysqlRepo
			serverDeps.Checks["mysql"] = mysqlRepo

			g.Go(func() error {
				<-ctx.Done()
				err := writer.Stop()
				mysqlRepo.Close()
				return err
			})
		}
	}

	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger, local)
	if err != nil {
		return err
	}
	if err := mqttClient.Connect(); err != nil {
		return err
	}
	serverDeps.Checks["mqtt"] = mqttClient
	g.Go(func() error {
		<-ctx.Done()
		mqttClient.Disconnect()
		return nil
	})
	return nil
}
