// Package app wires the verification engine together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/km-mtb/kmtb-bot/app/api"
	"github.com/km-mtb/kmtb-bot/app/events"
	routedomain "github.com/km-mtb/kmtb-bot/app/modules/route/domain"
	routeservice "github.com/km-mtb/kmtb-bot/app/modules/route/service"
	"github.com/km-mtb/kmtb-bot/app/modules/strava"
	verificationqueue "github.com/km-mtb/kmtb-bot/app/modules/verification/queue"
	verificationservice "github.com/km-mtb/kmtb-bot/app/modules/verification/service"
	"github.com/km-mtb/kmtb-bot/app/observability"
	"github.com/km-mtb/kmtb-bot/config"
	"github.com/km-mtb/kmtb-bot/db/bundb"
)

// App holds every long-lived component of the engine.
type App struct {
	Cfg       *config.Config
	Routes    *routeservice.Store
	Scheduler *verificationservice.Scheduler
	Queue     *verificationqueue.Service
	Bus       *events.Bus
	OpsServer *api.Server
	Metrics   *observability.Metrics

	db     *bundb.DBService
	logger *slog.Logger
}

// NewApp builds the application from configuration. Route files are loaded
// here, so a broken route directory fails startup instead of a pass.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	dbService, err := bundb.NewBunDBService(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(registry)

	routes, err := routeservice.New(cfg.Routes.Dir, routedomain.MatchConfig{
		MaxDeviationM:       cfg.Verification.MaxDeviationM,
		SimilarityThreshold: cfg.Verification.SimilarityThreshold,
		MinDistanceM:        cfg.Verification.MinDistanceM,
		SimplifyToleranceM:  cfg.Routes.SimplifyToleranceM,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load source routes: %w", err)
	}

	bus := events.NewBus(logger)
	if err := events.StartAuditSubscriber(ctx, bus, dbService.VerificationDB, logger); err != nil {
		return nil, fmt.Errorf("failed to start audit subscriber: %w", err)
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: metrics.InstrumentedTransport(nil),
	}
	stravaClient := strava.NewClient(httpClient, cfg.Strava.RequestsPerMinute, logger)
	tokenManager := strava.NewTokenManager(
		cfg.Strava.ClientID,
		cfg.Strava.ClientSecret,
		dbService.ParticipantDB,
		cfg.Strava.RefreshMargin,
		logger,
	)

	scheduler := verificationservice.NewScheduler(
		cfg.Verification,
		routes,
		stravaClient,
		tokenManager,
		dbService.ParticipantDB,
		dbService.VerificationDB,
		bus,
		metrics,
		logger,
	)

	queue, err := verificationqueue.NewService(ctx, dbService.GetDB(), cfg.Postgres.DSN, cfg.Verification, scheduler, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize verification queue: %w", err)
	}

	opsServer := api.NewServer(cfg.Ops.Addr, dbService.GetDB(), queue, dbService.VerificationDB, registry, logger)

	return &App{
		Cfg:       cfg,
		Routes:    routes,
		Scheduler: scheduler,
		Queue:     queue,
		Bus:       bus,
		OpsServer: opsServer,
		Metrics:   metrics,
		db:        dbService,
		logger:    logger,
	}, nil
}

// DB returns the database service.
func (a *App) DB() *bundb.DBService {
	return a.db
}

// Start brings up the queue and the ops server. The ops server runs in its
// own goroutine; its fatal errors are reported on the returned channel.
func (a *App) Start(ctx context.Context) (<-chan error, error) {
	if err := a.Queue.Start(ctx); err != nil {
		return nil, err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.OpsServer.Start(); err != nil {
			errCh <- fmt.Errorf("ops server failed: %w", err)
		}
	}()

	a.logger.Info("application started",
		slog.Int("routes", len(a.Routes.Routes())),
		slog.String("ops_addr", a.Cfg.Ops.Addr),
	)
	return errCh, nil
}

// Shutdown stops everything in reverse start order.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.OpsServer.Shutdown(ctx); err != nil {
		a.logger.Error("ops server shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.Queue.Stop(ctx); err != nil {
		a.logger.Error("queue shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.Bus.Close(); err != nil {
		a.logger.Error("event bus close failed", slog.String("error", err.Error()))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close failed", slog.String("error", err.Error()))
	}
	a.logger.Info("application shut down")
}
