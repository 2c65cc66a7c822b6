package verificationservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-mtb/kmtb-bot/app/events"
	participantdb "github.com/km-mtb/kmtb-bot/app/modules/participant/repositories"
	routedomain "github.com/km-mtb/kmtb-bot/app/modules/route/domain"
	"github.com/km-mtb/kmtb-bot/app/modules/strava"
	verificationdomain "github.com/km-mtb/kmtb-bot/app/modules/verification/domain"
	verificationdb "github.com/km-mtb/kmtb-bot/app/modules/verification/repositories"
	"github.com/km-mtb/kmtb-bot/app/observability"
	"github.com/km-mtb/kmtb-bot/config"
)

type fakeActivitySource struct {
	ListRidesAfterFn  func(ctx context.Context, accessToken string, after time.Time) ([]strava.Activity, error)
	ActivityStreamsFn func(ctx context.Context, accessToken string, activityID int64) (routedomain.Polyline, error)
}

func (f *fakeActivitySource) ListRidesAfter(ctx context.Context, accessToken string, after time.Time) ([]strava.Activity, error) {
	if f.ListRidesAfterFn != nil {
		return f.ListRidesAfterFn(ctx, accessToken, after)
	}
	return nil, nil
}

func (f *fakeActivitySource) ActivityStreams(ctx context.Context, accessToken string, activityID int64) (routedomain.Polyline, error) {
	if f.ActivityStreamsFn != nil {
		return f.ActivityStreamsFn(ctx, accessToken, activityID)
	}
	return routedomain.Polyline{{Lat: 52, Lon: 17}}, nil
}

type fakeTokenProvider struct {
	FreshAccessTokenFn func(ctx context.Context, cred strava.Credential) (string, error)
}

func (f *fakeTokenProvider) FreshAccessToken(ctx context.Context, cred strava.Credential) (string, error) {
	if f.FreshAccessTokenFn != nil {
		return f.FreshAccessTokenFn(ctx, cred)
	}
	return cred.AccessToken, nil
}

type fakeRouteMatcher struct {
	BestMatchFn func(trace routedomain.Polyline, activityDistanceM float64) (string, routedomain.Verdict)
}

func (f *fakeRouteMatcher) BestMatch(trace routedomain.Polyline, activityDistanceM float64) (string, routedomain.Verdict) {
	if f.BestMatchFn != nil {
		return f.BestMatchFn(trace, activityDistanceM)
	}
	return "route-1", routedomain.Verdict{Verified: true, SimilarityScore: 0.95, Message: "route verified with 95.0% match"}
}

// recorder collects repository writes under a mutex so tests can assert on
// them after a concurrent pass.
type recorder struct {
	mu       sync.Mutex
	attempts []*verificationdb.ActivityAttempt
	audits   []*verificationdb.AuditLog
	cursors  map[string]int64
}

func newRecorder() *recorder {
	return &recorder{cursors: make(map[string]int64)}
}

func (r *recorder) recordAttempt(_ context.Context, attempt *verificationdb.ActivityAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *recorder) recordAudit(_ context.Context, log *verificationdb.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, log)
	return nil
}

func (r *recorder) advanceCursor(_ context.Context, participantID string, cursorUnix int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cursorUnix > r.cursors[participantID] {
		r.cursors[participantID] = cursorUnix
	}
	return nil
}

func (r *recorder) auditEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.audits))
	for _, a := range r.audits {
		out = append(out, a.Event)
	}
	return out
}

func testConfig() config.VerificationConfig {
	return config.VerificationConfig{
		WorkerCount:        1,
		ParticipantTimeout: time.Minute,
		LookbackDays:       30,
		CursorOverlap:      24 * time.Hour,
	}
}

func activeParticipant() participantdb.Participant {
	return participantdb.Participant{
		ID:     uuid.New(),
		Name:   "Anna Kowalska",
		Status: participantdb.StatusActive,
	}
}

func connectedCredential(id uuid.UUID) *participantdb.Credential {
	return &participantdb.Credential{
		ParticipantID: id,
		AccessToken:   "access",
		RefreshToken:  "refresh",
		ExpiresAt:     time.Now().Add(time.Hour),
		State:         participantdb.CredentialConnected,
	}
}

func newTestScheduler(
	cfg config.VerificationConfig,
	participants participantdb.Repository,
	results verificationdb.Repository,
	api ActivitySource,
	tokens TokenProvider,
	matcher RouteMatcher,
	publisher events.Publisher,
) *Scheduler {
	return NewScheduler(cfg, matcher, api, tokens, participants, results,
		publisher,
		observability.NewMetrics(prometheus.NewRegistry()),
		slog.New(slog.DiscardHandler),
	)
}

func TestRunPass_RecordsVerdictsAndAdvancesCursor(t *testing.T) {
	p := activeParticipant()
	rec := newRecorder()

	goodRide := strava.Activity{ID: 11, Name: "long ride", DistanceM: 105000, StartDate: time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)}
	shortRide := strava.Activity{ID: 12, Name: "commute", DistanceM: 9000, StartDate: time.Date(2026, 6, 11, 8, 0, 0, 0, time.UTC)}

	participants := &participantdb.FakeRepository{
		ListActiveFn:    func(ctx context.Context) ([]participantdb.Participant, error) { return []participantdb.Participant{p}, nil },
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) { return connectedCredential(p.ID), nil },
		AdvanceCursorFn: rec.advanceCursor,
	}
	results := &verificationdb.FakeRepository{
		RecordAttemptFn: rec.recordAttempt,
		RecordAuditFn:   rec.recordAudit,
	}
	matcher := &fakeRouteMatcher{
		BestMatchFn: func(trace routedomain.Polyline, distanceM float64) (string, routedomain.Verdict) {
			if distanceM >= 100000 {
				return "route-1", routedomain.Verdict{Verified: true, SimilarityScore: 0.92, Message: "route verified with 92.0% match"}
			}
			return "route-1", routedomain.Verdict{Verified: false, SimilarityScore: 0.92, Message: "activity distance (9.0 km) is less than required (100.0 km)"}
		},
	}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			return []strava.Activity{shortRide, goodRide}, nil
		},
	}
	publisher := &events.FakePublisher{}

	sched := newTestScheduler(testConfig(), participants, results, api, &fakeTokenProvider{}, matcher, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	require.Len(t, rec.attempts, 2)
	assert.Equal(t, verificationdomain.VerdictVerified, rec.attempts[0].Verdict, "rides are examined oldest first")
	assert.Equal(t, int64(11), rec.attempts[0].StravaActivityID)
	assert.Equal(t, verificationdomain.VerdictRejected, rec.attempts[1].Verdict)

	require.Len(t, publisher.Verified, 1)
	assert.Equal(t, int64(11), publisher.Verified[0].StravaActivityID)
	assert.Equal(t, "route-1", publisher.Verified[0].RouteID)

	assert.Equal(t, shortRide.StartDate.Unix(), rec.cursors[p.ID.String()], "cursor lands on the newest examined activity")
	assert.Contains(t, rec.auditEvents(), "pass_completed")
}

func TestRunPass_SecondPassIsIdempotent(t *testing.T) {
	p := activeParticipant()
	rec := newRecorder()
	ride := strava.Activity{ID: 21, Name: "ride", DistanceM: 105000, StartDate: time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)}

	var streamFetches int
	participants := &participantdb.FakeRepository{
		ListActiveFn:    func(ctx context.Context) ([]participantdb.Participant, error) { return []participantdb.Participant{p}, nil },
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) { return connectedCredential(p.ID), nil },
		AdvanceCursorFn: rec.advanceCursor,
	}
	results := &verificationdb.FakeRepository{
		LastAttemptFn: func(ctx context.Context, pid string, aid int64) (*verificationdb.ActivityAttempt, error) {
			return &verificationdb.ActivityAttempt{
				StravaActivityID: aid,
				Verdict:          verificationdomain.VerdictVerified,
			}, nil
		},
		RecordAttemptFn: rec.recordAttempt,
		RecordAuditFn:   rec.recordAudit,
	}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			return []strava.Activity{ride}, nil
		},
		ActivityStreamsFn: func(ctx context.Context, token string, id int64) (routedomain.Polyline, error) {
			streamFetches++
			return nil, nil
		},
	}
	publisher := &events.FakePublisher{}

	sched := newTestScheduler(testConfig(), participants, results, api, &fakeTokenProvider{}, &fakeRouteMatcher{}, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	assert.Zero(t, streamFetches, "decided activities are skipped before any stream fetch")
	assert.Empty(t, rec.attempts, "no second decision row")
	assert.Empty(t, publisher.Verified)
	assert.Equal(t, ride.StartDate.Unix(), rec.cursors[p.ID.String()], "cursor still advances past decided activities")
}

func TestRunPass_FailureIsolation(t *testing.T) {
	broken := activeParticipant()
	healthy := activeParticipant()
	rec := newRecorder()
	ride := strava.Activity{ID: 31, Name: "ride", DistanceM: 105000, StartDate: time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)}

	participants := &participantdb.FakeRepository{
		ListActiveFn: func(ctx context.Context) ([]participantdb.Participant, error) {
			return []participantdb.Participant{broken, healthy}, nil
		},
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) {
			return connectedCredential(uuid.MustParse(id)), nil
		},
		AdvanceCursorFn: rec.advanceCursor,
	}
	results := &verificationdb.FakeRepository{
		RecordAttemptFn: rec.recordAttempt,
		RecordAuditFn:   rec.recordAudit,
	}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			return []strava.Activity{ride}, nil
		},
	}
	tokens := &fakeTokenProvider{
		FreshAccessTokenFn: func(ctx context.Context, cred strava.Credential) (string, error) {
			if cred.ParticipantID == broken.ID.String() {
				return "", verificationdomain.Classify(verificationdomain.KindTransientAPI, "token refresh", errors.New("connection refused"))
			}
			return "access", nil
		},
	}
	publisher := &events.FakePublisher{}

	sched := newTestScheduler(testConfig(), participants, results, api, tokens, &fakeRouteMatcher{}, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	require.Len(t, rec.attempts, 1, "the healthy participant is still processed")
	assert.Equal(t, healthy.ID, rec.attempts[0].ParticipantID)
	assert.Contains(t, rec.auditEvents(), "fetch_failure")
}

func TestRunPass_InvalidCredentialSkippedNotProcessed(t *testing.T) {
	revoked := activeParticipant()
	healthy := activeParticipant()
	rec := newRecorder()
	ride := strava.Activity{ID: 61, Name: "ride", DistanceM: 105000, StartDate: time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)}

	participants := &participantdb.FakeRepository{
		ListActiveFn: func(ctx context.Context) ([]participantdb.Participant, error) {
			return []participantdb.Participant{revoked, healthy}, nil
		},
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) {
			if id == revoked.ID.String() {
				return nil, participantdb.ErrCredentialInvalid
			}
			return connectedCredential(healthy.ID), nil
		},
		AdvanceCursorFn: rec.advanceCursor,
	}
	results := &verificationdb.FakeRepository{
		RecordAttemptFn: rec.recordAttempt,
		RecordAuditFn:   rec.recordAudit,
	}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			return []strava.Activity{ride}, nil
		},
	}
	publisher := &events.FakePublisher{}

	sched := newTestScheduler(testConfig(), participants, results, api, &fakeTokenProvider{}, &fakeRouteMatcher{}, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	require.Len(t, rec.attempts, 1)
	assert.Equal(t, healthy.ID, rec.attempts[0].ParticipantID)
	assert.Contains(t, rec.auditEvents(), "participant_skipped")

	summary := rec.audits[len(rec.audits)-1]
	require.Equal(t, "pass_completed", summary.Event)
	assert.Contains(t, summary.Detail, "processed=1 skipped=1 failed=0 attempts=1",
		"a skipped participant must not also count as processed")
}

func TestRunPass_ParticipantTimeoutIsolated(t *testing.T) {
	hung := activeParticipant()
	healthy := activeParticipant()
	rec := newRecorder()
	ride := strava.Activity{ID: 62, Name: "ride", DistanceM: 105000, StartDate: time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)}

	participants := &participantdb.FakeRepository{
		ListActiveFn: func(ctx context.Context) ([]participantdb.Participant, error) {
			return []participantdb.Participant{hung, healthy}, nil
		},
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) {
			cred := connectedCredential(uuid.MustParse(id))
			cred.AccessToken = id
			return cred, nil
		},
		AdvanceCursorFn: rec.advanceCursor,
	}
	results := &verificationdb.FakeRepository{
		RecordAttemptFn: rec.recordAttempt,
		RecordAuditFn:   rec.recordAudit,
	}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			if token == hung.ID.String() {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return []strava.Activity{ride}, nil
		},
	}
	publisher := &events.FakePublisher{}

	cfg := testConfig()
	cfg.ParticipantTimeout = 50 * time.Millisecond
	sched := newTestScheduler(cfg, participants, results, api, &fakeTokenProvider{}, &fakeRouteMatcher{}, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	require.Len(t, rec.attempts, 1, "a hanging participant must not block the others")
	assert.Equal(t, healthy.ID, rec.attempts[0].ParticipantID)
	assert.NotContains(t, rec.cursors, hung.ID.String(), "a timed-out participant keeps its cursor for the next pass")
	assert.Equal(t, ride.StartDate.Unix(), rec.cursors[healthy.ID.String()])
	assert.Contains(t, rec.auditEvents(), "fetch_failure")
}

func TestRunPass_RateLimitAbortsRemainingParticipants(t *testing.T) {
	first := activeParticipant()
	second := activeParticipant()
	rec := newRecorder()

	participants := &participantdb.FakeRepository{
		ListActiveFn: func(ctx context.Context) ([]participantdb.Participant, error) {
			return []participantdb.Participant{first, second}, nil
		},
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) {
			return connectedCredential(uuid.MustParse(id)), nil
		},
		AdvanceCursorFn: rec.advanceCursor,
	}
	results := &verificationdb.FakeRepository{
		RecordAttemptFn: rec.recordAttempt,
		RecordAuditFn:   rec.recordAudit,
	}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, verificationdomain.Classify(verificationdomain.KindTransientAPI, "/athlete/activities",
				fmt.Errorf("status 429: %w", verificationdomain.ErrRateLimited))
		},
	}
	publisher := &events.FakePublisher{}

	sched := newTestScheduler(testConfig(), participants, results, api, &fakeTokenProvider{}, &fakeRouteMatcher{}, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	assert.Empty(t, rec.attempts, "no verdicts after the quota is exhausted")
	summary := rec.audits[len(rec.audits)-1]
	assert.Equal(t, "pass_completed", summary.Event)
	assert.Contains(t, summary.Detail, "rate_limited=true")
}

func TestRunPass_DataErrorBecomesDurableVerdict(t *testing.T) {
	p := activeParticipant()
	rec := newRecorder()
	ride := strava.Activity{ID: 41, Name: "corrupt ride", DistanceM: 105000, StartDate: time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)}

	participants := &participantdb.FakeRepository{
		ListActiveFn:    func(ctx context.Context) ([]participantdb.Participant, error) { return []participantdb.Participant{p}, nil },
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) { return connectedCredential(p.ID), nil },
		AdvanceCursorFn: rec.advanceCursor,
	}
	results := &verificationdb.FakeRepository{
		RecordAttemptFn: rec.recordAttempt,
		RecordAuditFn:   rec.recordAudit,
	}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			return []strava.Activity{ride}, nil
		},
		ActivityStreamsFn: func(ctx context.Context, token string, id int64) (routedomain.Polyline, error) {
			return nil, verificationdomain.Classify(verificationdomain.KindData, "/activities/41/streams", errors.New("status 404"))
		},
	}
	publisher := &events.FakePublisher{}

	sched := newTestScheduler(testConfig(), participants, results, api, &fakeTokenProvider{}, &fakeRouteMatcher{}, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	require.Len(t, rec.attempts, 1)
	assert.Equal(t, verificationdomain.VerdictDataError, rec.attempts[0].Verdict)
	assert.Contains(t, rec.attempts[0].Message, "failed to load GPS streams")
	assert.Empty(t, publisher.Verified)
	assert.Equal(t, ride.StartDate.Unix(), rec.cursors[p.ID.String()], "a durable data_error counts as examined")
}

func TestRunPass_ReattemptsDataErrorsWhenConfigured(t *testing.T) {
	p := activeParticipant()
	rec := newRecorder()
	ride := strava.Activity{ID: 71, Name: "healed ride", DistanceM: 105000, StartDate: time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)}

	participants := &participantdb.FakeRepository{
		ListActiveFn:    func(ctx context.Context) ([]participantdb.Participant, error) { return []participantdb.Participant{p}, nil },
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) { return connectedCredential(p.ID), nil },
		AdvanceCursorFn: rec.advanceCursor,
	}
	results := &verificationdb.FakeRepository{
		LastAttemptFn: func(ctx context.Context, pid string, aid int64) (*verificationdb.ActivityAttempt, error) {
			return &verificationdb.ActivityAttempt{
				StravaActivityID: aid,
				Try:              1,
				Verdict:          verificationdomain.VerdictDataError,
				Message:          "failed to load GPS streams: status 404",
			}, nil
		},
		RecordAttemptFn: rec.recordAttempt,
		RecordAuditFn:   rec.recordAudit,
	}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			return []strava.Activity{ride}, nil
		},
	}
	publisher := &events.FakePublisher{}

	cfg := testConfig()
	cfg.ReattemptDataErrors = true
	sched := newTestScheduler(cfg, participants, results, api, &fakeTokenProvider{}, &fakeRouteMatcher{}, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	require.Len(t, rec.attempts, 1)
	assert.Equal(t, 2, rec.attempts[0].Try, "a re-score appends the next try number")
	assert.Equal(t, verificationdomain.VerdictVerified, rec.attempts[0].Verdict)
	require.Len(t, publisher.Verified, 1)
	assert.Equal(t, ride.ID, publisher.Verified[0].StravaActivityID)
}

func TestRunPass_TransientStreamFailureHoldsCursor(t *testing.T) {
	p := activeParticipant()
	rec := newRecorder()
	decided := strava.Activity{ID: 51, Name: "earlier", DistanceM: 105000, StartDate: time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)}
	failing := strava.Activity{ID: 52, Name: "later", DistanceM: 105000, StartDate: time.Date(2026, 6, 11, 8, 0, 0, 0, time.UTC)}

	participants := &participantdb.FakeRepository{
		ListActiveFn:    func(ctx context.Context) ([]participantdb.Participant, error) { return []participantdb.Participant{p}, nil },
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) { return connectedCredential(p.ID), nil },
		AdvanceCursorFn: rec.advanceCursor,
	}
	results := &verificationdb.FakeRepository{
		RecordAttemptFn: rec.recordAttempt,
		RecordAuditFn:   rec.recordAudit,
	}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			return []strava.Activity{decided, failing}, nil
		},
		ActivityStreamsFn: func(ctx context.Context, token string, id int64) (routedomain.Polyline, error) {
			if id == failing.ID {
				return nil, verificationdomain.Classify(verificationdomain.KindTransientAPI, "/activities/52/streams", errors.New("status 503"))
			}
			return routedomain.Polyline{{Lat: 52, Lon: 17}}, nil
		},
	}
	publisher := &events.FakePublisher{}

	sched := newTestScheduler(testConfig(), participants, results, api, &fakeTokenProvider{}, &fakeRouteMatcher{}, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	require.Len(t, rec.attempts, 1)
	assert.Equal(t, decided.ID, rec.attempts[0].StravaActivityID)
	assert.Equal(t, decided.StartDate.Unix(), rec.cursors[p.ID.String()],
		"cursor never moves past an activity without a durable attempt")
	assert.Contains(t, rec.auditEvents(), "fetch_failure")
}

func TestRunPass_AuthFailurePublishesInvalidation(t *testing.T) {
	p := activeParticipant()
	rec := newRecorder()

	var listCalls int
	participants := &participantdb.FakeRepository{
		ListActiveFn:    func(ctx context.Context) ([]participantdb.Participant, error) { return []participantdb.Participant{p}, nil },
		GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) { return connectedCredential(p.ID), nil },
	}
	results := &verificationdb.FakeRepository{RecordAuditFn: rec.recordAudit}
	api := &fakeActivitySource{
		ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
			listCalls++
			return nil, nil
		},
	}
	tokens := &fakeTokenProvider{
		FreshAccessTokenFn: func(ctx context.Context, cred strava.Credential) (string, error) {
			return "", verificationdomain.Classify(verificationdomain.KindAuth, "token refresh", errors.New("invalid_grant"))
		},
	}
	publisher := &events.FakePublisher{}

	sched := newTestScheduler(testConfig(), participants, results, api, tokens, &fakeRouteMatcher{}, publisher)
	require.NoError(t, sched.RunPass(context.Background()))

	assert.Zero(t, listCalls, "no API work with a dead credential")
	require.Len(t, publisher.Invalidated, 1)
	assert.Equal(t, p.ID.String(), publisher.Invalidated[0].ParticipantID)
	assert.Contains(t, rec.auditEvents(), "participant_skipped")
}

func TestRunPass_FetchWindows(t *testing.T) {
	cursor := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC).Unix()

	tests := []struct {
		name      string
		cursor    *int64
		wantAfter func(now time.Time) time.Time
	}{
		{
			name:      "first check looks back the initial window",
			cursor:    nil,
			wantAfter: func(now time.Time) time.Time { return now.AddDate(0, 0, -30) },
		},
		{
			name:      "subsequent checks re-fetch the overlap",
			cursor:    &cursor,
			wantAfter: func(time.Time) time.Time { return time.Unix(cursor, 0).Add(-24 * time.Hour) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := activeParticipant()
			p.LastActivityCheck = tt.cursor
			rec := newRecorder()

			var gotAfter time.Time
			participants := &participantdb.FakeRepository{
				ListActiveFn:    func(ctx context.Context) ([]participantdb.Participant, error) { return []participantdb.Participant{p}, nil },
				GetCredentialFn: func(ctx context.Context, id string) (*participantdb.Credential, error) { return connectedCredential(p.ID), nil },
			}
			results := &verificationdb.FakeRepository{RecordAuditFn: rec.recordAudit}
			api := &fakeActivitySource{
				ListRidesAfterFn: func(ctx context.Context, token string, after time.Time) ([]strava.Activity, error) {
					gotAfter = after
					return nil, nil
				},
			}
			publisher := &events.FakePublisher{}

			sched := newTestScheduler(testConfig(), participants, results, api, &fakeTokenProvider{}, &fakeRouteMatcher{}, publisher)
			require.NoError(t, sched.RunPass(context.Background()))

			assert.WithinDuration(t, tt.wantAfter(time.Now()), gotAfter, 5*time.Second)
		})
	}
}
