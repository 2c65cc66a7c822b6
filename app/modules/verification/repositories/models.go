package verificationdb

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	verificationdomain "github.com/km-mtb/kmtb-bot/app/modules/verification/domain"
)

// ActivityAttempt is one durable verification decision for one Strava
// activity. Rows are append-only; a decision is never updated or deleted.
// The (participant_id, strava_activity_id, try) unique index is what makes
// re-running a pass harmless.
type ActivityAttempt struct {
	bun.BaseModel `bun:"table:activity_attempts,alias:aa"`

	ID               int64                      `bun:"id,pk,autoincrement" json:"id"`
	ParticipantID    uuid.UUID                  `bun:"participant_id,notnull,type:uuid,unique:attempt_once" json:"participant_id"`
	StravaActivityID int64                      `bun:"strava_activity_id,notnull,unique:attempt_once" json:"strava_activity_id"`
	Try              int                        `bun:"try,notnull,default:0,unique:attempt_once" json:"try"`
	Verdict          verificationdomain.Verdict `bun:"verdict,notnull" json:"verdict"`
	RouteID          *string                    `bun:"route_id,nullzero" json:"route_id,omitempty"`
	SimilarityScore  float64                    `bun:"similarity_score,notnull,default:0" json:"similarity_score"`
	Message          string                     `bun:"message,notnull" json:"message"`
	ActivityName     string                     `bun:"activity_name,notnull" json:"activity_name"`
	ActivityStartAt  time.Time                  `bun:"activity_start_at,notnull" json:"activity_start_at"`
	DistanceM        float64                    `bun:"distance_m,notnull,default:0" json:"distance_m"`
	CreatedAt        time.Time                  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// ApprovedActivity marks an activity as counted for the contest. One row per
// Strava activity, ever, regardless of how many attempts examined it.
type ApprovedActivity struct {
	bun.BaseModel `bun:"table:approved_activities,alias:ap"`

	StravaActivityID int64     `bun:"strava_activity_id,pk" json:"strava_activity_id"`
	ParticipantID    uuid.UUID `bun:"participant_id,notnull,type:uuid" json:"participant_id"`
	RouteID          string    `bun:"route_id,notnull" json:"route_id"`
	SimilarityScore  float64   `bun:"similarity_score,notnull" json:"similarity_score"`
	DistanceM        float64   `bun:"distance_m,notnull" json:"distance_m"`
	VerifiedAt       time.Time `bun:"verified_at,notnull,default:current_timestamp" json:"verified_at"`
}

// LeaderboardEntry is the per-participant running tally, maintained in the
// same transaction that approves an activity.
type LeaderboardEntry struct {
	bun.BaseModel `bun:"table:leaderboard_entries,alias:le"`

	ParticipantID  uuid.UUID  `bun:"participant_id,pk,type:uuid" json:"participant_id"`
	VerifiedCount  int        `bun:"verified_count,notnull,default:0" json:"verified_count"`
	TotalDistanceM float64    `bun:"total_distance_m,notnull,default:0" json:"total_distance_m"`
	LastVerifiedAt *time.Time `bun:"last_verified_at,nullzero" json:"last_verified_at,omitempty"`
}

// AuditLog records operationally interesting engine events (skipped
// participants, invalidated credentials, pass summaries).
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	ParticipantID *uuid.UUID `bun:"participant_id,nullzero,type:uuid" json:"participant_id,omitempty"`
	Event         string     `bun:"event,notnull" json:"event"`
	Detail        string     `bun:"detail,notnull" json:"detail"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// LeaderboardRow is a leaderboard entry joined with the participant's name
// for presentation.
type LeaderboardRow struct {
	ParticipantID  uuid.UUID  `bun:"participant_id" json:"participant_id"`
	Name           string     `bun:"name" json:"name"`
	VerifiedCount  int        `bun:"verified_count" json:"verified_count"`
	TotalDistanceM float64    `bun:"total_distance_m" json:"total_distance_m"`
	LastVerifiedAt *time.Time `bun:"last_verified_at" json:"last_verified_at,omitempty"`
}
