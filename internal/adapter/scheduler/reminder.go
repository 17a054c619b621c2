package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"confirmbot/internal/reminder"
	"confirmbot/internal/shared"
)

// ReminderJobName is the job name used in logs and metrics.
const ReminderJobName = "reminder-check"

// Evaluator runs one reminder cycle.
type Evaluator interface {
	Evaluate(ctx context.Context) (reminder.Evaluation, error)
}

// ReminderSchedule picks when the reminder check runs. Cron wins over Interval when set.
type ReminderSchedule struct {
	Interval time.Duration
	Cron     string
	// Timeout bounds a whole cycle including fan-out. Zero means no bound.
	Timeout time.Duration
}

// ReminderJob adapts an Evaluator to a JobFunc and logs each decision.
func ReminderJob(ev Evaluator, log *slog.Logger) JobFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context) error {
		res, err := ev.Evaluate(ctx)
		attrs := []any{
			"outcome", res.Outcome.String(),
			"today", res.Today.String(),
			"days_passed", res.DaysPassed,
		}
		if res.Report != nil {
			attrs = append(attrs,
				"cycle_id", res.Report.CycleID,
				"attempted", res.Report.Attempted,
				"succeeded", res.Report.Succeeded,
				"failed", res.Report.Failed,
			)
		}
		if err != nil {
			attrs = append(attrs, "error_kind", shared.KindOf(err).String(), "error", err)
			log.Warn("reminder check finished with errors", attrs...)
			return err
		}
		log.Info("reminder check finished", attrs...)
		return nil
	}
}

// AddReminderCheck registers the reminder check. It never overlaps itself and runs
// once right after Start.
func (s *Scheduler) AddReminderCheck(ev Evaluator, sched ReminderSchedule) error {
	opts := JobOptions{
		Name:          ReminderJobName,
		Timeout:       sched.Timeout,
		OverlapPolicy: SkipIfRunning,
		RunOnStart:    true,
	}
	job := ReminderJob(ev, s.logger.With("component", "reminder-job"))
	if sched.Cron != "" {
		if _, err := s.AddCronJobWithOptions(sched.Cron, job, opts); err != nil {
			return fmt.Errorf("reminder schedule %q: %w", sched.Cron, err)
		}
		return nil
	}
	if sched.Interval <= 0 {
		return fmt.Errorf("reminder interval must be positive, got %s", sched.Interval)
	}
	s.AddTickerJobWithOptions(sched.Interval, job, opts)
	return nil
}
