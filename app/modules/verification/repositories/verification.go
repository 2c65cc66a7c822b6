package verificationdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	verificationdomain "github.com/km-mtb/kmtb-bot/app/modules/verification/domain"
)

// VerificationDBImpl is the bun-backed verification repository.
type VerificationDBImpl struct {
	DB *bun.DB
}

var _ Repository = (*VerificationDBImpl)(nil)

// LastAttempt returns the highest-try decision row for the activity, or nil.
func (db *VerificationDBImpl) LastAttempt(ctx context.Context, participantID string, stravaActivityID int64) (*ActivityAttempt, error) {
	attempt := &ActivityAttempt{}
	err := db.DB.NewSelect().
		Model(attempt).
		Where("participant_id = ?", participantID).
		Where("strava_activity_id = ?", stravaActivityID).
		Order("try DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load last attempt: %w", err)
	}
	return attempt, nil
}

// RecordAttempt inserts the attempt row and, for a verified verdict, the
// approval and the leaderboard increment, all in one transaction. The unique
// index on (participant_id, strava_activity_id, try) rejects duplicate
// decisions; the approval insert additionally ignores conflicts so an
// activity can never be counted twice even across tries.
func (db *VerificationDBImpl) RecordAttempt(ctx context.Context, attempt *ActivityAttempt) error {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NewInsert().Model(attempt).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}

	if attempt.Verdict == verificationdomain.VerdictVerified {
		if err := db.approve(ctx, tx, attempt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempt: %w", err)
	}
	return nil
}

func (db *VerificationDBImpl) approve(ctx context.Context, tx bun.Tx, attempt *ActivityAttempt) error {
	routeID := ""
	if attempt.RouteID != nil {
		routeID = *attempt.RouteID
	}

	approved := &ApprovedActivity{
		StravaActivityID: attempt.StravaActivityID,
		ParticipantID:    attempt.ParticipantID,
		RouteID:          routeID,
		SimilarityScore:  attempt.SimilarityScore,
		DistanceM:        attempt.DistanceM,
	}
	res, err := tx.NewInsert().
		Model(approved).
		On("CONFLICT (strava_activity_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already counted by an earlier try; leave the tally alone.
		return nil
	}

	entry := &LeaderboardEntry{
		ParticipantID:  attempt.ParticipantID,
		VerifiedCount:  1,
		TotalDistanceM: attempt.DistanceM,
	}
	_, err = tx.NewInsert().
		Model(entry).
		On("CONFLICT (participant_id) DO UPDATE").
		Set("verified_count = le.verified_count + 1").
		Set("total_distance_m = le.total_distance_m + EXCLUDED.total_distance_m").
		Set("last_verified_at = current_timestamp").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update leaderboard: %w", err)
	}
	return nil
}

// RecordAudit appends an audit event.
func (db *VerificationDBImpl) RecordAudit(ctx context.Context, log *AuditLog) error {
	if _, err := db.DB.NewInsert().Model(log).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Leaderboard returns the current standings with participant names.
func (db *VerificationDBImpl) Leaderboard(ctx context.Context) ([]LeaderboardRow, error) {
	var rows []LeaderboardRow
	err := db.DB.NewSelect().
		Model((*LeaderboardEntry)(nil)).
		Column("le.participant_id", "le.verified_count", "le.total_distance_m", "le.last_verified_at").
		ColumnExpr("p.name AS name").
		Join("JOIN participants AS p ON p.id = le.participant_id").
		Order("le.verified_count DESC", "le.total_distance_m DESC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return rows, nil
}
