package verificationdb

import "context"

// Repository is the persistence surface for verification decisions and the
// leaderboard they feed.
type Repository interface {
	// LastAttempt returns the newest decision for the activity, or nil when
	// none exists. The pass uses it to skip already-examined activities
	// before any API or geometry work.
	LastAttempt(ctx context.Context, participantID string, stravaActivityID int64) (*ActivityAttempt, error)

	// RecordAttempt makes a decision durable. For a verified verdict the
	// attempt row, the approval, and the leaderboard update commit in one
	// transaction or not at all.
	RecordAttempt(ctx context.Context, attempt *ActivityAttempt) error

	// RecordAudit appends an audit event outside any decision transaction.
	RecordAudit(ctx context.Context, log *AuditLog) error

	// Leaderboard returns the standings ordered by verified count, then
	// total distance.
	Leaderboard(ctx context.Context) ([]LeaderboardRow, error)
}
