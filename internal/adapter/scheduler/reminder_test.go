package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmbot/internal/reminder"
)

type fakeEvaluator struct {
	calls   int64
	running int64
	overlap int64
	delay   time.Duration
	err     error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context) (reminder.Evaluation, error) {
	atomic.AddInt64(&f.calls, 1)
	if atomic.AddInt64(&f.running, 1) > 1 {
		atomic.AddInt64(&f.overlap, 1)
	}
	defer atomic.AddInt64(&f.running, -1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	return reminder.Evaluation{Outcome: reminder.OutcomeNotDue}, f.err
}

func TestAddReminderCheck_RunsOnStartWithoutOverlap(t *testing.T) {
	var finished int64
	s := New(Config{JobHooks: JobHooks{
		OnJobFinish: func(name string, _ time.Duration, _ error) {
			assert.Equal(t, ReminderJobName, name)
			atomic.AddInt64(&finished, 1)
		},
	}})
	defer s.Stop()

	ev := &fakeEvaluator{delay: 80 * time.Millisecond}
	require.NoError(t, s.AddReminderCheck(ev, ReminderSchedule{Interval: 10 * time.Millisecond}))
	s.Start()

	waitForAtLeast(t, &finished, 2, 2*time.Second)
	assert.Zero(t, atomic.LoadInt64(&ev.overlap))
}

func TestAddReminderCheck_Cron(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	ev := &fakeEvaluator{}
	require.NoError(t, s.AddReminderCheck(ev, ReminderSchedule{Cron: "0 9 * * *", Interval: time.Millisecond}))
	s.Start()

	// Only the start-up run happens; the next firing is at 09:00.
	waitForAtLeast(t, &ev.calls, 1, time.Second)
	ensureNoIncrement(t, &ev.calls, 1, 100*time.Millisecond)
}

func TestAddReminderCheck_InvalidSchedule(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	assert.Error(t, s.AddReminderCheck(&fakeEvaluator{}, ReminderSchedule{Cron: "whenever"}))
	assert.Error(t, s.AddReminderCheck(&fakeEvaluator{}, ReminderSchedule{}))
}

func TestReminderJob_ReturnsEvaluationError(t *testing.T) {
	want := errors.New("save failed")
	job := ReminderJob(&fakeEvaluator{err: want}, nil)
	assert.ErrorIs(t, job(context.Background()), want)
}
