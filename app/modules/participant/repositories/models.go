package participantdb

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ParticipantStatus is the lifecycle state of a contest participant.
type ParticipantStatus string

const (
	StatusPendingEmail      ParticipantStatus = "pending_email"
	StatusPendingConnection ParticipantStatus = "pending_connection"
	StatusActive            ParticipantStatus = "active"
	StatusDisconnected      ParticipantStatus = "disconnected"
	StatusRemoved           ParticipantStatus = "removed"
)

func (s ParticipantStatus) IsValid() bool {
	switch s {
	case StatusPendingEmail, StatusPendingConnection, StatusActive, StatusDisconnected, StatusRemoved:
		return true
	}
	return false
}

// CredentialState tracks where a stored token pair is in its rotation cycle.
type CredentialState string

const (
	CredentialConnected      CredentialState = "connected"
	CredentialRefreshPending CredentialState = "refresh_pending"
	CredentialInvalid        CredentialState = "invalid"
)

// Participant is a registered contest entrant.
type Participant struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID              uuid.UUID         `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name            string            `bun:"name,notnull" json:"name"`
	Email           string            `bun:"email,unique,notnull" json:"email"`
	Status          ParticipantStatus `bun:"status,notnull,default:'pending_email'" json:"status"`
	StravaAthleteID *int64            `bun:"strava_athlete_id,unique,nullzero" json:"strava_athlete_id,omitempty"`

	// LastActivityCheck is the verification cursor: the start instant (unix
	// seconds) of the newest activity a pass has already examined. NULL until
	// the first pass, which then looks back over the initial window.
	LastActivityCheck *int64 `bun:"last_activity_check,nullzero" json:"last_activity_check,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Credential *Credential `bun:"rel:has-one,join:id=participant_id" json:"-"`
}

// Credential is the stored OAuth token pair for one participant.
//
// Rotation is two-phase inside a single transaction: the fresh refresh token
// is staged in pending_refresh_token before the live columns are overwritten,
// so a crash between the two writes never loses the only working token.
type Credential struct {
	bun.BaseModel `bun:"table:participant_credentials,alias:pc"`

	ParticipantID       uuid.UUID       `bun:"participant_id,pk,type:uuid" json:"participant_id"`
	AccessToken         string          `bun:"access_token,notnull" json:"-"`
	RefreshToken        string          `bun:"refresh_token,notnull" json:"-"`
	PendingRefreshToken *string         `bun:"pending_refresh_token,nullzero" json:"-"`
	ExpiresAt           time.Time       `bun:"expires_at,notnull" json:"expires_at"`
	State               CredentialState `bun:"state,notnull,default:'connected'" json:"state"`
	InvalidReason       *string         `bun:"invalid_reason,nullzero" json:"invalid_reason,omitempty"`
	UpdatedAt           time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Participant *Participant `bun:"rel:belongs-to,join:participant_id=id" json:"-"`
}
