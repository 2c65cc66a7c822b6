package verificationqueue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePassRunner struct {
	calls int
	err   error
}

func (f *fakePassRunner) RunPass(ctx context.Context) error {
	f.calls++
	return f.err
}

func warsaw(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	return loc
}

func TestActiveWindow_Contains(t *testing.T) {
	loc := warsaw(t)
	w := activeWindow{startHour: 6, endHour: 22, loc: loc}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before window", time.Date(2026, 6, 10, 5, 59, 0, 0, loc), false},
		{"window opens", time.Date(2026, 6, 10, 6, 0, 0, 0, loc), true},
		{"midday", time.Date(2026, 6, 10, 13, 30, 0, 0, loc), true},
		{"last active hour", time.Date(2026, 6, 10, 21, 59, 0, 0, loc), true},
		{"window closes", time.Date(2026, 6, 10, 22, 0, 0, 0, loc), false},
		{"night", time.Date(2026, 6, 10, 2, 0, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.contains(tt.at))
		})
	}
}

func TestActiveWindow_EvaluatedInContestTimezone(t *testing.T) {
	w := activeWindow{startHour: 6, endHour: 22, loc: warsaw(t)}

	// 04:30 UTC in June is 06:30 in Warsaw (CEST), inside the window even
	// though the UTC hour is not.
	assert.True(t, w.contains(time.Date(2026, 6, 10, 4, 30, 0, 0, time.UTC)))

	// 21:30 UTC is 23:30 in Warsaw, outside the window.
	assert.False(t, w.contains(time.Date(2026, 6, 10, 21, 30, 0, 0, time.UTC)))
}

func TestVerifyActivitiesWorker_SkipsOutsideWindow(t *testing.T) {
	runner := &fakePassRunner{}
	w := NewVerifyActivitiesWorker(runner, 6, 22, warsaw(t), slog.New(slog.DiscardHandler))
	w.nowFunc = func() time.Time { return time.Date(2026, 6, 10, 3, 0, 0, 0, warsaw(t)) }

	job := &river.Job[VerifyActivitiesJob]{JobRow: &rivertype.JobRow{ID: 1}}
	require.NoError(t, w.Work(context.Background(), job))
	assert.Zero(t, runner.calls)
}

func TestVerifyActivitiesWorker_RunsInsideWindow(t *testing.T) {
	runner := &fakePassRunner{}
	w := NewVerifyActivitiesWorker(runner, 6, 22, warsaw(t), slog.New(slog.DiscardHandler))
	w.nowFunc = func() time.Time { return time.Date(2026, 6, 10, 12, 0, 0, 0, warsaw(t)) }

	job := &river.Job[VerifyActivitiesJob]{JobRow: &rivertype.JobRow{ID: 1}}
	require.NoError(t, w.Work(context.Background(), job))
	assert.Equal(t, 1, runner.calls)
}
