package verificationmigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating verification tables...")

		_, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS activity_attempts (
				id BIGSERIAL PRIMARY KEY,
				participant_id UUID NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
				strava_activity_id BIGINT NOT NULL,
				try INT NOT NULL DEFAULT 0,
				verdict TEXT NOT NULL,
				route_id TEXT,
				similarity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
				message TEXT NOT NULL,
				activity_name TEXT NOT NULL,
				activity_start_at TIMESTAMPTZ NOT NULL,
				distance_m DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (participant_id, strava_activity_id, try)
			);
		`)
		if err != nil {
			return fmt.Errorf("failed to create activity_attempts table: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS approved_activities (
				strava_activity_id BIGINT PRIMARY KEY,
				participant_id UUID NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
				route_id TEXT NOT NULL,
				similarity_score DOUBLE PRECISION NOT NULL,
				distance_m DOUBLE PRECISION NOT NULL,
				verified_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`)
		if err != nil {
			return fmt.Errorf("failed to create approved_activities table: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS leaderboard_entries (
				participant_id UUID PRIMARY KEY REFERENCES participants(id) ON DELETE CASCADE,
				verified_count INT NOT NULL DEFAULT 0,
				total_distance_m DOUBLE PRECISION NOT NULL DEFAULT 0,
				last_verified_at TIMESTAMPTZ
			);
		`)
		if err != nil {
			return fmt.Errorf("failed to create leaderboard_entries table: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS audit_logs (
				id BIGSERIAL PRIMARY KEY,
				participant_id UUID REFERENCES participants(id) ON DELETE SET NULL,
				event TEXT NOT NULL,
				detail TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`)
		if err != nil {
			return fmt.Errorf("failed to create audit_logs table: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_attempts_participant_activity
				ON activity_attempts (participant_id, strava_activity_id);
			CREATE INDEX IF NOT EXISTS idx_audit_logs_event ON audit_logs (event);
		`)
		if err != nil {
			return fmt.Errorf("failed to create verification indexes: %w", err)
		}

		fmt.Println("Verification tables created successfully!")
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping verification tables...")

		_, err := db.ExecContext(ctx, `
			DROP TABLE IF EXISTS audit_logs;
			DROP TABLE IF EXISTS leaderboard_entries;
			DROP TABLE IF EXISTS approved_activities;
			DROP TABLE IF EXISTS activity_attempts;
		`)
		if err != nil {
			return fmt.Errorf("failed to drop verification tables: %w", err)
		}
		return nil
	})
}
