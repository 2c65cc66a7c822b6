package verificationdb

import "context"

// FakeRepository is a fake implementation of Repository for testing.
type FakeRepository struct {
	LastAttemptFn   func(ctx context.Context, participantID string, stravaActivityID int64) (*ActivityAttempt, error)
	RecordAttemptFn func(ctx context.Context, attempt *ActivityAttempt) error
	RecordAuditFn   func(ctx context.Context, log *AuditLog) error
	LeaderboardFn   func(ctx context.Context) ([]LeaderboardRow, error)
}

var _ Repository = (*FakeRepository)(nil)

func (f *FakeRepository) LastAttempt(ctx context.Context, participantID string, stravaActivityID int64) (*ActivityAttempt, error) {
	if f.LastAttemptFn != nil {
		return f.LastAttemptFn(ctx, participantID, stravaActivityID)
	}
	return nil, nil
}

func (f *FakeRepository) RecordAttempt(ctx context.Context, attempt *ActivityAttempt) error {
	if f.RecordAttemptFn != nil {
		return f.RecordAttemptFn(ctx, attempt)
	}
	return nil
}

func (f *FakeRepository) RecordAudit(ctx context.Context, log *AuditLog) error {
	if f.RecordAuditFn != nil {
		return f.RecordAuditFn(ctx, log)
	}
	return nil
}

func (f *FakeRepository) Leaderboard(ctx context.Context) ([]LeaderboardRow, error) {
	if f.LeaderboardFn != nil {
		return f.LeaderboardFn(ctx)
	}
	return nil, nil
}
