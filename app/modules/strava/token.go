package strava

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	verificationdomain "github.com/km-mtb/kmtb-bot/app/modules/verification/domain"
)

// CredentialStore persists rotated token pairs. Implemented by the
// participant repository; ReplaceToken must be atomic — the old refresh token
// may only disappear in the same transaction that makes the new one durable.
type CredentialStore interface {
	ReplaceToken(ctx context.Context, participantID string, tok RotatedToken) error
	MarkInvalid(ctx context.Context, participantID string, reason string) error
}

// TokenManager owns the OAuth credential lifecycle: expiry checks with a
// safety margin, synchronous refresh, rotation commit, and invalidation.
type TokenManager struct {
	oauth   *oauth2.Config
	store   CredentialStore
	margin  time.Duration
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewTokenManager creates a TokenManager for the Strava OAuth endpoint.
func NewTokenManager(clientID, clientSecret string, store CredentialStore, margin time.Duration, logger *slog.Logger) *TokenManager {
	if margin <= 0 {
		margin = 5 * time.Minute
	}
	return &TokenManager{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: TokenURL},
		},
		store:   store,
		margin:  margin,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// WithTokenURL overrides the OAuth token endpoint. Used by tests.
func (m *TokenManager) WithTokenURL(u string) *TokenManager {
	m.oauth.Endpoint.TokenURL = u
	return m
}

// FreshAccessToken returns an access token that is valid for at least the
// safety margin, refreshing and rotating the stored pair when needed.
//
// A refresh rejected by the authorization server marks the credential invalid
// and returns a KindAuth error; network trouble, server errors, and rate
// limiting leave the credential alone and return a transient error so the
// next pass retries.
func (m *TokenManager) FreshAccessToken(ctx context.Context, cred Credential) (string, error) {
	if m.nowFunc().Add(m.margin).Before(cred.ExpiresAt) {
		return cred.AccessToken, nil
	}

	m.logger.Info("refreshing access token",
		slog.String("participant_id", cred.ParticipantID),
		slog.Time("expires_at", cred.ExpiresAt),
	)

	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", m.refreshFailed(ctx, cred, err)
	}

	rotated := RotatedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if rotated.RefreshToken == "" {
		// Strava always rotates; an empty refresh token means the response
		// cannot be trusted enough to overwrite the stored pair.
		return "", verificationdomain.Classify(verificationdomain.KindAuth, "token refresh",
			errors.New("refresh response carried no refresh token"))
	}

	if err := m.store.ReplaceToken(ctx, cred.ParticipantID, rotated); err != nil {
		return "", verificationdomain.Classify(verificationdomain.KindTransientAPI, "persist rotated token", err)
	}

	m.logger.Info("access token refreshed",
		slog.String("participant_id", cred.ParticipantID),
		slog.Time("new_expiry", rotated.ExpiresAt),
	)
	return rotated.AccessToken, nil
}

func (m *TokenManager) refreshFailed(ctx context.Context, cred Credential, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) || retrieveErr.Response == nil {
		return verificationdomain.Classify(verificationdomain.KindTransientAPI, "token refresh", err)
	}

	status := retrieveErr.Response.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		// Quota exhaustion on the token endpoint says nothing about the
		// credential; the sentinel lets the pass apply its global backoff.
		return verificationdomain.Classify(verificationdomain.KindTransientAPI, "token refresh",
			fmt.Errorf("status 429: %w", verificationdomain.ErrRateLimited))
	case status >= 500:
		return verificationdomain.Classify(verificationdomain.KindTransientAPI, "token refresh", err)
	}

	// Any other 4xx: the authorization server rejected the refresh token,
	// unrecoverable without the participant reconnecting through the web flow.
	reason := fmt.Sprintf("token refresh rejected: status %d", status)
	if markErr := m.store.MarkInvalid(ctx, cred.ParticipantID, reason); markErr != nil {
		m.logger.Error("failed to mark credential invalid",
			slog.String("participant_id", cred.ParticipantID),
			slog.String("error", markErr.Error()),
		)
	}
	return verificationdomain.Classify(verificationdomain.KindAuth, "token refresh", err)
}
