// Package verificationqueue schedules the periodic verification pass with
// River on a dedicated pgx pool.
package verificationqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/uptrace/bun"

	"github.com/km-mtb/kmtb-bot/config"
)

const verifyQueue = "verification"

// Service owns the River client and the pgx pool it runs on.
type Service struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	db     *bun.DB
	logger *slog.Logger
}

// NewService builds the queue service: a pgx pool (River does not run on
// database/sql), the pass worker, and a periodic job at the configured
// cadence. The single-worker queue plus unique job args guarantee that passes
// never overlap.
func NewService(ctx context.Context, bunDB *bun.DB, dsn string, cfg config.VerificationConfig, runner PassRunner, logger *slog.Logger) (*Service, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewVerifyActivitiesWorker(runner, cfg.WindowStartHour, cfg.WindowEndHour, loc, logger))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			verifyQueue: {MaxWorkers: 1},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.Cadence),
				func() (river.JobArgs, *river.InsertOpts) {
					return VerifyActivitiesJob{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create river client: %w", err)
	}

	logger.Info("verification queue initialized",
		slog.Duration("cadence", cfg.Cadence),
		slog.Int("window_start", cfg.WindowStartHour),
		slog.Int("window_end", cfg.WindowEndHour),
		slog.String("timezone", cfg.Timezone),
	)

	return &Service{client: client, pool: pool, db: bunDB, logger: logger}, nil
}

// Start begins working jobs.
func (s *Service) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start river client: %w", err)
	}
	s.logger.Info("verification queue started")
	return nil
}

// Stop drains in-flight jobs and closes the pool.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop river client: %w", err)
	}
	s.pool.Close()
	s.logger.Info("verification queue stopped")
	return nil
}

// HealthCheck verifies the job table is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	var count int
	err := s.db.NewSelect().
		Table("river_job").
		ColumnExpr("COUNT(*)").
		Scan(ctx, &count)
	if err != nil {
		return fmt.Errorf("queue health check failed: %w", err)
	}
	return nil
}
