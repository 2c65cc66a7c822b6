// Package observability holds the engine's prometheus instrumentation.
package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of engine-level collectors. One instance per process,
// registered against a single registry and shared by the scheduler and the
// ops server.
type Metrics struct {
	PassesTotal           prometheus.Counter
	PassDuration          prometheus.Histogram
	ParticipantsProcessed prometheus.Counter
	ParticipantsSkipped   *prometheus.CounterVec
	AttemptsTotal         *prometheus.CounterVec
	TokenRefreshesTotal   *prometheus.CounterVec
	StravaRequestsTotal   *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PassesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "verification_passes_total",
			Help: "Verification passes started.",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verification_pass_duration_seconds",
			Help:    "Wall time of a full verification pass.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ParticipantsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "verification_participants_processed_total",
			Help: "Participants fully processed by a pass.",
		}),
		ParticipantsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_participants_skipped_total",
			Help: "Participants skipped during a pass, by reason.",
		}, []string{"reason"}),
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_attempts_total",
			Help: "Recorded verification decisions, by verdict.",
		}, []string{"verdict"}),
		TokenRefreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strava_token_refreshes_total",
			Help: "OAuth refresh outcomes.",
		}, []string{"outcome"}),
		StravaRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strava_api_requests_total",
			Help: "Strava API requests, by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
	}
}

// InstrumentedTransport wraps next so every Strava request is counted by
// endpoint and status. Wire it into the http.Client handed to the API client.
func (m *Metrics) InstrumentedTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(req)
		status := "error"
		if err == nil {
			status = strconv.Itoa(resp.StatusCode)
		}
		m.StravaRequestsTotal.WithLabelValues(endpointLabel(req.URL.Path), status).Inc()
		return resp, err
	})
}

// endpointLabel collapses request paths into a bounded label set.
func endpointLabel(path string) string {
	switch {
	case strings.HasSuffix(path, "/athlete/activities"):
		return "activities"
	case strings.HasSuffix(path, "/streams"):
		return "streams"
	case strings.HasSuffix(path, "/oauth/token"):
		return "token"
	default:
		return "other"
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// ObservePass records the duration of one completed pass.
func (m *Metrics) ObservePass(started time.Time) {
	m.PassDuration.Observe(time.Since(started).Seconds())
}
