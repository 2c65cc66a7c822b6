package participantmigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating participants and participant_credentials tables...")

		_, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS participants (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				status TEXT NOT NULL DEFAULT 'pending_email',
				strava_athlete_id BIGINT UNIQUE,
				last_activity_check BIGINT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`)
		if err != nil {
			return fmt.Errorf("failed to create participants table: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS participant_credentials (
				participant_id UUID PRIMARY KEY REFERENCES participants(id) ON DELETE CASCADE,
				access_token TEXT NOT NULL,
				refresh_token TEXT NOT NULL,
				pending_refresh_token TEXT,
				expires_at TIMESTAMPTZ NOT NULL,
				state TEXT NOT NULL DEFAULT 'connected',
				invalid_reason TEXT,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`)
		if err != nil {
			return fmt.Errorf("failed to create participant_credentials table: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_participants_status ON participants (status);
		`)
		if err != nil {
			return fmt.Errorf("failed to create status index: %w", err)
		}

		fmt.Println("Participant tables created successfully!")
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping participant tables...")

		_, err := db.ExecContext(ctx, `
			DROP TABLE IF EXISTS participant_credentials;
			DROP TABLE IF EXISTS participants;
		`)
		if err != nil {
			return fmt.Errorf("failed to drop participant tables: %w", err)
		}
		return nil
	})
}
