package participantdb

import (
	"context"

	"github.com/km-mtb/kmtb-bot/app/modules/strava"
)

// FakeRepository is a fake implementation of Repository for testing.
type FakeRepository struct {
	ListActiveFn    func(ctx context.Context) ([]Participant, error)
	GetCredentialFn func(ctx context.Context, participantID string) (*Credential, error)
	ReplaceTokenFn  func(ctx context.Context, participantID string, tok strava.RotatedToken) error
	MarkInvalidFn   func(ctx context.Context, participantID string, reason string) error
	AdvanceCursorFn func(ctx context.Context, participantID string, cursorUnix int64) error
	ResetCursorFn   func(ctx context.Context, participantID string) error
	SetStatusFn     func(ctx context.Context, participantID string, status ParticipantStatus) error
}

var _ Repository = (*FakeRepository)(nil)

func (f *FakeRepository) ListActive(ctx context.Context) ([]Participant, error) {
	if f.ListActiveFn != nil {
		return f.ListActiveFn(ctx)
	}
	return nil, nil
}

func (f *FakeRepository) GetCredential(ctx context.Context, participantID string) (*Credential, error) {
	if f.GetCredentialFn != nil {
		return f.GetCredentialFn(ctx, participantID)
	}
	return nil, ErrNotFound
}

func (f *FakeRepository) ReplaceToken(ctx context.Context, participantID string, tok strava.RotatedToken) error {
	if f.ReplaceTokenFn != nil {
		return f.ReplaceTokenFn(ctx, participantID, tok)
	}
	return nil
}

func (f *FakeRepository) MarkInvalid(ctx context.Context, participantID string, reason string) error {
	if f.MarkInvalidFn != nil {
		return f.MarkInvalidFn(ctx, participantID, reason)
	}
	return nil
}

func (f *FakeRepository) AdvanceCursor(ctx context.Context, participantID string, cursorUnix int64) error {
	if f.AdvanceCursorFn != nil {
		return f.AdvanceCursorFn(ctx, participantID, cursorUnix)
	}
	return nil
}

func (f *FakeRepository) ResetCursor(ctx context.Context, participantID string) error {
	if f.ResetCursorFn != nil {
		return f.ResetCursorFn(ctx, participantID)
	}
	return nil
}

func (f *FakeRepository) SetStatus(ctx context.Context, participantID string, status ParticipantStatus) error {
	if f.SetStatusFn != nil {
		return f.SetStatusFn(ctx, participantID, status)
	}
	return nil
}
