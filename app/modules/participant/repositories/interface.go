package participantdb

import (
	"context"

	"github.com/km-mtb/kmtb-bot/app/modules/strava"
)

// Repository is the persistence surface the verification engine needs from
// the participant module. ReplaceToken and MarkInvalid make *ParticipantDBImpl
// a strava.CredentialStore. GetCredential reports missing rows as ErrNotFound
// and invalidated pairs as ErrCredentialInvalid.
type Repository interface {
	ListActive(ctx context.Context) ([]Participant, error)
	GetCredential(ctx context.Context, participantID string) (*Credential, error)
	ReplaceToken(ctx context.Context, participantID string, tok strava.RotatedToken) error
	MarkInvalid(ctx context.Context, participantID string, reason string) error
	AdvanceCursor(ctx context.Context, participantID string, cursorUnix int64) error
	ResetCursor(ctx context.Context, participantID string) error
	SetStatus(ctx context.Context, participantID string, status ParticipantStatus) error
}
