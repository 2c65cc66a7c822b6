package verificationqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// VerifyActivitiesJob is the periodic job that triggers one verification
// pass. It carries no arguments; uniqueness by args plus a single-worker
// queue means at most one pass runs at a time.
type VerifyActivitiesJob struct{}

func (VerifyActivitiesJob) Kind() string { return "verify_activities" }

func (VerifyActivitiesJob) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: verifyQueue,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
		},
	}
}

// PassRunner runs one verification pass.
type PassRunner interface {
	RunPass(ctx context.Context) error
}

// activeWindow is the daily hour range, in the contest's timezone, inside
// which passes are allowed to run.
type activeWindow struct {
	startHour int
	endHour   int
	loc       *time.Location
}

func (w activeWindow) contains(t time.Time) bool {
	h := t.In(w.loc).Hour()
	return h >= w.startHour && h < w.endHour
}

// VerifyActivitiesWorker runs the pass when a scheduled job fires, unless the
// current time falls outside the active window.
type VerifyActivitiesWorker struct {
	river.WorkerDefaults[VerifyActivitiesJob]

	runner  PassRunner
	window  activeWindow
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewVerifyActivitiesWorker creates the pass worker.
func NewVerifyActivitiesWorker(runner PassRunner, startHour, endHour int, loc *time.Location, logger *slog.Logger) *VerifyActivitiesWorker {
	return &VerifyActivitiesWorker{
		runner:  runner,
		window:  activeWindow{startHour: startHour, endHour: endHour, loc: loc},
		logger:  logger,
		nowFunc: time.Now,
	}
}

func (w *VerifyActivitiesWorker) Work(ctx context.Context, job *river.Job[VerifyActivitiesJob]) error {
	now := w.nowFunc()
	if !w.window.contains(now) {
		w.logger.Info("outside active window, skipping pass",
			slog.Time("now", now.In(w.window.loc)),
			slog.Int("window_start", w.window.startHour),
			slog.Int("window_end", w.window.endHour),
		)
		return nil
	}
	return w.runner.RunPass(ctx)
}
