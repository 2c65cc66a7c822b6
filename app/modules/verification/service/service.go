// Package verificationservice runs the periodic verification pass: pull new
// rides for every active participant, match each against the source routes,
// and record a durable verdict per activity.
package verificationservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/km-mtb/kmtb-bot/app/events"
	participantdb "github.com/km-mtb/kmtb-bot/app/modules/participant/repositories"
	routedomain "github.com/km-mtb/kmtb-bot/app/modules/route/domain"
	"github.com/km-mtb/kmtb-bot/app/modules/strava"
	verificationdomain "github.com/km-mtb/kmtb-bot/app/modules/verification/domain"
	verificationdb "github.com/km-mtb/kmtb-bot/app/modules/verification/repositories"
	"github.com/km-mtb/kmtb-bot/app/observability"
	"github.com/km-mtb/kmtb-bot/config"
)

// RouteMatcher scores a GPS trace against the source routes.
type RouteMatcher interface {
	BestMatch(trace routedomain.Polyline, activityDistanceM float64) (string, routedomain.Verdict)
}

// ActivitySource lists rides and downloads their GPS traces.
type ActivitySource interface {
	ListRidesAfter(ctx context.Context, accessToken string, after time.Time) ([]strava.Activity, error)
	ActivityStreams(ctx context.Context, accessToken string, activityID int64) (routedomain.Polyline, error)
}

// TokenProvider hands out access tokens that are valid for the whole
// participant timeout.
type TokenProvider interface {
	FreshAccessToken(ctx context.Context, cred strava.Credential) (string, error)
}

// Scheduler orchestrates one verification pass at a time.
type Scheduler struct {
	cfg          config.VerificationConfig
	routes       RouteMatcher
	api          ActivitySource
	tokens       TokenProvider
	participants participantdb.Repository
	results      verificationdb.Repository
	publisher    events.Publisher
	metrics      *observability.Metrics
	logger       *slog.Logger
	nowFunc      func() time.Time
}

// NewScheduler wires a Scheduler.
func NewScheduler(
	cfg config.VerificationConfig,
	routes RouteMatcher,
	api ActivitySource,
	tokens TokenProvider,
	participants participantdb.Repository,
	results verificationdb.Repository,
	publisher events.Publisher,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		routes:       routes,
		api:          api,
		tokens:       tokens,
		participants: participants,
		results:      results,
		publisher:    publisher,
		metrics:      metrics,
		logger:       logger,
		nowFunc:      time.Now,
	}
}

// passStats aggregates what a pass did, for the summary audit row.
type passStats struct {
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	attempts  atomic.Int64
}

// RunPass verifies new activities for every active participant.
//
// Participants are processed concurrently up to the configured worker count,
// each under its own timeout. A failure for one participant never stops the
// others; the single exception is a Strava rate-limit response, which aborts
// the remaining participants so the whole application backs off. Work
// committed before the abort stays committed.
func (s *Scheduler) RunPass(ctx context.Context) error {
	started := s.nowFunc()
	s.metrics.PassesTotal.Inc()
	defer s.metrics.ObservePass(started)

	participants, err := s.participants.ListActive(ctx)
	if err != nil {
		return verificationdomain.Classify(verificationdomain.KindTransientAPI, "list active participants", err)
	}

	s.logger.Info("verification pass started",
		slog.Int("participants", len(participants)),
	)

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stats       passStats
		rateLimited atomic.Bool
		sem         = make(chan struct{}, s.cfg.WorkerCount)
		wg          sync.WaitGroup
	)

	for _, p := range participants {
		if passCtx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(p participantdb.Participant) {
			defer wg.Done()
			defer func() { <-sem }()

			pCtx, pCancel := context.WithTimeout(passCtx, s.cfg.ParticipantTimeout)
			defer pCancel()

			worked, err := s.processParticipant(pCtx, p, &stats)
			switch {
			case err == nil:
				if worked {
					stats.processed.Add(1)
					s.metrics.ParticipantsProcessed.Inc()
				}
			case errors.Is(err, verificationdomain.ErrRateLimited):
				stats.failed.Add(1)
				if rateLimited.CompareAndSwap(false, true) {
					s.logger.Warn("rate limited by strava, aborting remaining participants")
					cancel()
				}
			default:
				stats.failed.Add(1)
				s.logger.Error("participant processing failed",
					slog.String("participant_id", p.ID.String()),
					slog.String("error", err.Error()),
				)
				s.audit(ctx, &p.ID, "fetch_failure", err.Error())
			}
		}(p)
	}
	wg.Wait()

	s.recordPassSummary(ctx, started, &stats, rateLimited.Load())
	return nil
}

func (s *Scheduler) recordPassSummary(ctx context.Context, started time.Time, stats *passStats, rateLimited bool) {
	detail := fmt.Sprintf("processed=%d skipped=%d failed=%d attempts=%d duration=%s rate_limited=%t",
		stats.processed.Load(), stats.skipped.Load(), stats.failed.Load(),
		stats.attempts.Load(), s.nowFunc().Sub(started).Round(time.Millisecond), rateLimited)

	s.audit(ctx, nil, "pass_completed", detail)
	s.logger.Info("verification pass completed", slog.String("summary", detail))
}

// processParticipant pulls the participant's new rides and records a verdict
// for each one not yet examined. The cursor only moves past activities that
// have a durable attempt row, so nothing is ever silently skipped. The bool
// reports whether the participant actually went through the fetch/verify
// path; skipped participants count as skipped only.
func (s *Scheduler) processParticipant(ctx context.Context, p participantdb.Participant, stats *passStats) (bool, error) {
	cred, err := s.participants.GetCredential(ctx, p.ID.String())
	if err != nil {
		switch {
		case errors.Is(err, participantdb.ErrNotFound):
			s.skip(ctx, p, stats, "missing_credential", "active participant has no stored credential")
			return false, nil
		case errors.Is(err, participantdb.ErrCredentialInvalid):
			s.skip(ctx, p, stats, "invalid_credential", "credential requires reconnection")
			return false, nil
		}
		return false, verificationdomain.Classify(verificationdomain.KindTransientAPI, "get credential", err)
	}

	accessToken, err := s.tokens.FreshAccessToken(ctx, strava.Credential{
		ParticipantID: p.ID.String(),
		AccessToken:   cred.AccessToken,
		RefreshToken:  cred.RefreshToken,
		ExpiresAt:     cred.ExpiresAt,
	})
	if err != nil {
		if verificationdomain.KindOf(err) == verificationdomain.KindAuth {
			s.metrics.TokenRefreshesTotal.WithLabelValues("rejected").Inc()
			s.credentialInvalidated(ctx, p, stats, err)
			return false, nil
		}
		s.metrics.TokenRefreshesTotal.WithLabelValues("transient_failure").Inc()
		return false, err
	}

	rides, err := s.api.ListRidesAfter(ctx, accessToken, s.fetchAfter(p))
	if err != nil {
		return false, err
	}

	sort.Slice(rides, func(i, j int) bool { return rides[i].StartDate.Before(rides[j].StartDate) })

	var cursor int64
	if p.LastActivityCheck != nil {
		cursor = *p.LastActivityCheck
	}

	for _, ride := range rides {
		examined, err := s.verifyRide(ctx, p, accessToken, ride, stats)
		if err != nil {
			// Commit progress up to the last examined activity before
			// surfacing the failure; the next pass resumes from there.
			s.advanceCursor(ctx, p, cursor)
			return false, err
		}
		if examined && ride.StartDate.Unix() > cursor {
			cursor = ride.StartDate.Unix()
		}
	}

	s.advanceCursor(ctx, p, cursor)
	return true, nil
}

// fetchAfter computes the listing cutoff: the initial lookback window for a
// never-checked participant, otherwise the cursor minus a re-fetch overlap.
// Durable attempts make re-examining the overlap a cheap no-op.
func (s *Scheduler) fetchAfter(p participantdb.Participant) time.Time {
	if p.LastActivityCheck == nil {
		return s.nowFunc().AddDate(0, 0, -s.cfg.LookbackDays)
	}
	return time.Unix(*p.LastActivityCheck, 0).Add(-s.cfg.CursorOverlap)
}

// verifyRide records a verdict for one ride unless a prior decision already
// covers it. The bool reports whether the ride now has a durable attempt.
func (s *Scheduler) verifyRide(ctx context.Context, p participantdb.Participant, accessToken string, ride strava.Activity, stats *passStats) (bool, error) {
	last, err := s.results.LastAttempt(ctx, p.ID.String(), ride.ID)
	if err != nil {
		return false, verificationdomain.Classify(verificationdomain.KindTransientAPI, "idempotency probe", err)
	}

	try := 0
	if last != nil {
		if last.Verdict != verificationdomain.VerdictDataError || !s.cfg.ReattemptDataErrors {
			return true, nil
		}
		try = last.Try + 1
	}

	trace, err := s.api.ActivityStreams(ctx, accessToken, ride.ID)
	if err != nil {
		if verificationdomain.KindOf(err) == verificationdomain.KindData {
			// The activity itself is broken; a durable data_error verdict
			// stops the pass from refetching it forever.
			return true, s.recordVerdict(ctx, p, ride, try, verificationdomain.VerdictDataError, nil, routedomain.Verdict{
				Message: fmt.Sprintf("failed to load GPS streams: %v", err),
			}, stats)
		}
		return false, err
	}

	routeID, verdict := s.routes.BestMatch(trace, ride.DistanceM)

	outcome := verificationdomain.VerdictRejected
	if verdict.Verified {
		outcome = verificationdomain.VerdictVerified
	}

	if err := s.recordVerdict(ctx, p, ride, try, outcome, &routeID, verdict, stats); err != nil {
		return false, err
	}

	if outcome == verificationdomain.VerdictVerified {
		ev := events.ActivityVerified{
			ParticipantID:    p.ID.String(),
			StravaActivityID: ride.ID,
			RouteID:          routeID,
			SimilarityScore:  verdict.SimilarityScore,
			DistanceM:        ride.DistanceM,
			VerifiedAt:       s.nowFunc(),
		}
		if err := s.publisher.PublishActivityVerified(ctx, ev); err != nil {
			s.logger.Error("failed to publish verified event",
				slog.String("participant_id", p.ID.String()),
				slog.Int64("activity_id", ride.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return true, nil
}

func (s *Scheduler) recordVerdict(ctx context.Context, p participantdb.Participant, ride strava.Activity, try int, outcome verificationdomain.Verdict, routeID *string, match routedomain.Verdict, stats *passStats) error {
	attempt := &verificationdb.ActivityAttempt{
		ParticipantID:    p.ID,
		StravaActivityID: ride.ID,
		Try:              try,
		Verdict:          outcome,
		RouteID:          routeID,
		SimilarityScore:  match.SimilarityScore,
		Message:          match.Message,
		ActivityName:     ride.Name,
		ActivityStartAt:  ride.StartDate,
		DistanceM:        ride.DistanceM,
	}
	if err := s.results.RecordAttempt(ctx, attempt); err != nil {
		return verificationdomain.Classify(verificationdomain.KindTransientAPI, "record attempt", err)
	}

	stats.attempts.Add(1)
	s.metrics.AttemptsTotal.WithLabelValues(string(outcome)).Inc()

	s.logger.Info("verdict recorded",
		slog.String("participant_id", p.ID.String()),
		slog.Int64("activity_id", ride.ID),
		slog.String("verdict", string(outcome)),
		slog.Float64("score", match.SimilarityScore),
		slog.String("message", match.Message),
	)
	return nil
}

func (s *Scheduler) credentialInvalidated(ctx context.Context, p participantdb.Participant, stats *passStats, cause error) {
	s.skip(ctx, p, stats, "credential_invalidated", cause.Error())
	ev := events.CredentialInvalidated{
		ParticipantID: p.ID.String(),
		Reason:        cause.Error(),
	}
	if err := s.publisher.PublishCredentialInvalidated(ctx, ev); err != nil {
		s.logger.Error("failed to publish credential invalidated event",
			slog.String("participant_id", p.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) skip(ctx context.Context, p participantdb.Participant, stats *passStats, reason, detail string) {
	if stats != nil {
		stats.skipped.Add(1)
	}
	s.metrics.ParticipantsSkipped.WithLabelValues(reason).Inc()
	s.logger.Warn("participant skipped",
		slog.String("participant_id", p.ID.String()),
		slog.String("reason", reason),
	)
	s.audit(ctx, &p.ID, "participant_skipped", reason+": "+detail)
}

func (s *Scheduler) advanceCursor(ctx context.Context, p participantdb.Participant, cursor int64) {
	if cursor == 0 || (p.LastActivityCheck != nil && cursor <= *p.LastActivityCheck) {
		return
	}
	if err := s.participants.AdvanceCursor(ctx, p.ID.String(), cursor); err != nil {
		s.logger.Error("failed to advance cursor",
			slog.String("participant_id", p.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) audit(ctx context.Context, participantID *uuid.UUID, event, detail string) {
	log := &verificationdb.AuditLog{
		ParticipantID: participantID,
		Event:         event,
		Detail:        detail,
	}
	if err := s.results.RecordAudit(ctx, log); err != nil {
		s.logger.Error("failed to record audit entry",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
