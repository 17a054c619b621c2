// Package scheduler drives periodic jobs: cron schedules via github.com/robfig/cron/v3
// and fixed intervals via time.Ticker.
//
// Jobs have a name, an optional timeout, an overlap policy (Allow, Skip or Delay) and
// can run once on Start. Panics are recovered and reported as errors, errors are
// logged and passed to the optional JobHooks, and the scheduler keeps running.
//
// The reminder check is registered with AddReminderCheck:
//
//	s := scheduler.NewWithContext(ctx, scheduler.Config{Logger: log, Location: loc})
//	if err := s.AddReminderCheck(clock, scheduler.ReminderSchedule{Interval: 24 * time.Hour}); err != nil {
//		return err
//	}
//	s.Start()
//	defer s.StopContext(shutdownCtx)
//
// Cron expressions accept five fields, six fields with leading seconds, and
// descriptors such as "@daily" or "@every 12h".
package scheduler
