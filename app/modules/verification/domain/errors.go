// Package verificationdomain holds the pure types shared by the verification
// engine: the error taxonomy and attempt verdicts.
package verificationdomain

import (
	"errors"
	"fmt"
)

// ErrKind is the closed set of failure categories the engine distinguishes.
// Every external failure is converted into one of these before it propagates;
// free-form error text is carried alongside, never dispatched on.
type ErrKind string

const (
	// KindTransientAPI covers network failures, timeouts, and rate limiting.
	// Nothing is recorded; the work is retried on the next pass.
	KindTransientAPI ErrKind = "transient_api"
	// KindAuth covers invalid or unrefreshable credentials. The participant
	// is skipped until they reconnect out of band.
	KindAuth ErrKind = "auth"
	// KindData covers malformed streams or geometry input. The attempt is
	// recorded as failed and the activity is not retried.
	KindData ErrKind = "data"
	// KindConfig covers invalid routes or thresholds. Only this kind may
	// abort the whole process, and only at startup.
	KindConfig ErrKind = "config"
)

// ErrRateLimited signals that the external API refused further requests for
// the whole application. A pass that sees it stops processing remaining
// participants and resumes on the next scheduled run.
var ErrRateLimited = errors.New("api rate limit exhausted")

// ClassifiedError attaches an ErrKind and the failing operation to an
// underlying error.
type ClassifiedError struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err with a kind and operation name.
func Classify(kind ErrKind, op string, err error) error {
	return &ClassifiedError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrKind from err, defaulting to KindTransientAPI for
// unclassified errors so unknown failures are retried rather than recorded as
// permanent.
func KindOf(err error) ErrKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransientAPI
}

// Verdict is the outcome recorded on an activity attempt.
type Verdict string

const (
	VerdictVerified  Verdict = "verified"
	VerdictRejected  Verdict = "rejected"
	VerdictDataError Verdict = "data_error"
)
