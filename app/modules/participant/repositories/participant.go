package participantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/km-mtb/kmtb-bot/app/modules/strava"
)

// ParticipantDBImpl is the bun-backed participant repository.
type ParticipantDBImpl struct {
	DB *bun.DB
}

var _ Repository = (*ParticipantDBImpl)(nil)

// ListActive returns every participant eligible for a verification pass,
// oldest first so long-waiting participants are not starved by new signups.
func (db *ParticipantDBImpl) ListActive(ctx context.Context) ([]Participant, error) {
	var participants []Participant
	err := db.DB.NewSelect().
		Model(&participants).
		Where("status = ?", StatusActive).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active participants: %w", err)
	}
	return participants, nil
}

// GetCredential retrieves the stored token pair for one participant. A pair
// that was marked invalid is never handed out; callers get
// ErrCredentialInvalid until the participant reconnects.
func (db *ParticipantDBImpl) GetCredential(ctx context.Context, participantID string) (*Credential, error) {
	cred := &Credential{}
	err := db.DB.NewSelect().
		Model(cred).
		Where("participant_id = ?", participantID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if cred.State == CredentialInvalid {
		return nil, ErrCredentialInvalid
	}
	return cred, nil
}

// ReplaceToken commits a rotated token pair in two phases inside a single
// transaction: stage the new refresh token in pending_refresh_token, then
// promote it over the live columns. An advisory lock on the participant ID
// serializes concurrent rotations for the same row.
func (db *ParticipantDBImpl) ReplaceToken(ctx context.Context, participantID string, tok strava.RotatedToken) error {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", participantID).Exec(ctx); err != nil {
		return fmt.Errorf("failed to take rotation lock: %w", err)
	}

	staged, err := tx.NewUpdate().
		Model((*Credential)(nil)).
		Set("pending_refresh_token = ?", tok.RefreshToken).
		Set("state = ?", CredentialRefreshPending).
		Set("updated_at = current_timestamp").
		Where("participant_id = ?", participantID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to stage rotated refresh token: %w", err)
	}
	if n, _ := staged.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = tx.NewUpdate().
		Model((*Credential)(nil)).
		Set("access_token = ?", tok.AccessToken).
		Set("refresh_token = pending_refresh_token").
		Set("pending_refresh_token = NULL").
		Set("expires_at = ?", tok.ExpiresAt).
		Set("state = ?", CredentialConnected).
		Set("invalid_reason = NULL").
		Set("updated_at = current_timestamp").
		Where("participant_id = ?", participantID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to promote rotated token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token rotation: %w", err)
	}
	return nil
}

// MarkInvalid flags the credential as unusable until the participant
// reconnects through the authorization flow.
func (db *ParticipantDBImpl) MarkInvalid(ctx context.Context, participantID string, reason string) error {
	res, err := db.DB.NewUpdate().
		Model((*Credential)(nil)).
		Set("state = ?", CredentialInvalid).
		Set("invalid_reason = ?", reason).
		Set("updated_at = current_timestamp").
		Where("participant_id = ?", participantID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark credential invalid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceCursor moves the verification cursor forward. The WHERE guard keeps
// the cursor monotonic even if two passes for the same participant ever race.
func (db *ParticipantDBImpl) AdvanceCursor(ctx context.Context, participantID string, cursorUnix int64) error {
	_, err := db.DB.NewUpdate().
		Model((*Participant)(nil)).
		Set("last_activity_check = ?", cursorUnix).
		Set("updated_at = current_timestamp").
		Where("id = ?", participantID).
		Where("last_activity_check IS NULL OR last_activity_check < ?", cursorUnix).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}

// ResetCursor clears the cursor so the next pass re-seeds from the initial
// lookback window.
func (db *ParticipantDBImpl) ResetCursor(ctx context.Context, participantID string) error {
	_, err := db.DB.NewUpdate().
		Model((*Participant)(nil)).
		Set("last_activity_check = NULL").
		Set("updated_at = current_timestamp").
		Where("id = ?", participantID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}

// SetStatus transitions a participant's lifecycle state.
func (db *ParticipantDBImpl) SetStatus(ctx context.Context, participantID string, status ParticipantStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid participant status: %s", status)
	}
	res, err := db.DB.NewUpdate().
		Model((*Participant)(nil)).
		Set("status = ?", status).
		Set("updated_at = current_timestamp").
		Where("id = ?", participantID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set participant status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
