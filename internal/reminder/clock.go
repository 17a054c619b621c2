package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"confirmbot/internal/platform/metrics"
	"confirmbot/internal/shared"
)

// Outcome is the decision taken by one evaluation.
type Outcome int

const (
	// OutcomeNotDue means fewer than interval_days have passed.
	OutcomeNotDue Outcome = iota
	// OutcomeBaseline means last_reminder was unset and is now today; nothing was sent.
	OutcomeBaseline
	// OutcomeReset means last_reminder could not be decoded and was reset to today.
	OutcomeReset
	// OutcomeFired means reminders were dispatched and last_reminder advanced.
	OutcomeFired
	// OutcomeInterrupted means the context ended during dispatch; last_reminder was kept.
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotDue:
		return "not_due"
	case OutcomeBaseline:
		return "baseline"
	case OutcomeReset:
		return "reset"
	case OutcomeFired:
		return "fired"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Evaluation describes one Clock.Evaluate call.
type Evaluation struct {
	Outcome    Outcome
	Today      Date
	LastFired  Date
	DaysPassed int
	// Normalized is set when a legacy last_reminder was rewritten in canonical form.
	Normalized bool
	Report     *DeliveryReport
}

// Estimate is the answer to "when is the next reminder".
type Estimate struct {
	// Known is false before the first evaluation or while last_reminder is unreadable.
	Known     bool
	LastFired Date
	NextDate  Date
	// DaysLeft is never negative.
	DaysLeft int
	DueNow   bool
}

// ClockOption customizes a Clock.
type ClockOption func(*Clock)

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) ClockOption {
	return func(c *Clock) { c.now = now }
}

// WithLocation sets the zone used to derive calendar dates.
func WithLocation(loc *time.Location) ClockOption {
	return func(c *Clock) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithLogger(log *slog.Logger) ClockOption {
	return func(c *Clock) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(r metrics.Recorder) ClockOption {
	return func(c *Clock) { c.metrics = metrics.OrNoop(r) }
}

// Clock decides when reminders are due and records when they were sent.
type Clock struct {
	state    *SharedState
	notifier Notifier
	now      func() time.Time
	loc      *time.Location
	log      *slog.Logger
	metrics  metrics.Recorder

	cycle sync.Mutex
}

func NewClock(state *SharedState, n Notifier, opts ...ClockOption) *Clock {
	c := &Clock{
		state:    state,
		notifier: n,
		now:      time.Now,
		loc:      time.Local,
		log:      slog.Default(),
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(slog.String("component", "clock"))
	return c
}

// Today returns the current calendar date in the clock's location.
func (c *Clock) Today() Date {
	return DateOf(c.now(), c.loc)
}

// Evaluate runs one reminder cycle. Save failures do not stop the cycle: they are
// returned (wrapping shared.ErrPersistence) after the decision has been applied in
// memory, and the state is saved again on the next cycle or mutation.
func (c *Clock) Evaluate(ctx context.Context) (Evaluation, error) {
	c.cycle.Lock()
	defer c.cycle.Unlock()

	var errs []error
	if err := c.state.Flush(ctx); err != nil {
		c.log.Warn("pending state still not saved", slog.Any("error", err))
		errs = append(errs, err)
	}

	ev := Evaluation{Today: c.Today()}
	c.log.Info("running reminder check", slog.String("today", ev.Today.String()))

	var (
		due         bool
		subscribers []Identity
	)
	err := c.state.Update(ctx, func(st *State) bool {
		today := ev.Today.String()
		if st.LastFired == nil {
			st.LastFired = &today
			ev.Outcome = OutcomeBaseline
			return true
		}
		stamp := DecodeStamp(*st.LastFired, c.loc)
		switch stamp.Kind {
		case StampUnparseable:
			c.log.Error("resetting unreadable last_reminder",
				slog.String("value", *st.LastFired),
				slog.Any("error", shared.ErrStateCorruption),
			)
			st.LastFired = &today
			ev.Outcome = OutcomeReset
			return true
		case StampLegacy:
			canonical := stamp.Date.String()
			c.log.Info("normalizing legacy last_reminder",
				slog.String("from", *st.LastFired),
				slog.String("to", canonical),
			)
			st.LastFired = &canonical
			ev.Normalized = true
		}
		ev.LastFired = stamp.Date
		ev.DaysPassed = stamp.daysSince(ev.Today, c.loc)
		if ev.DaysPassed >= st.IntervalDays {
			due = true
			subscribers = st.Subscribers.Items()
		}
		return ev.Normalized
	})
	if err != nil {
		c.log.Error("save after evaluation failed", slog.Any("error", err))
		errs = append(errs, err)
	}

	if due {
		rep := c.notifier.Dispatch(ctx, subscribers)
		ev.Report = &rep
		if ctx.Err() != nil {
			ev.Outcome = OutcomeInterrupted
			c.log.Warn("reminder cycle interrupted, last_reminder kept", slog.Any("error", ctx.Err()))
			errs = append(errs, fmt.Errorf("dispatch interrupted: %w", ctx.Err()))
		} else {
			ev.Outcome = OutcomeFired
			err := c.state.Update(ctx, func(st *State) bool {
				today := ev.Today.String()
				st.LastFired = &today
				return true
			})
			if err != nil {
				c.log.Error("save after dispatch failed", slog.Any("error", err))
				errs = append(errs, err)
			}
		}
	} else if ev.Outcome == OutcomeNotDue {
		c.log.Info("reminder not due",
			slog.Int("days_passed", ev.DaysPassed),
			slog.String("last_reminder", ev.LastFired.String()),
		)
	}

	c.metrics.IncCycle(ev.Outcome.String())
	return ev, errors.Join(errs...)
}

// NextFireEstimate reports when the next reminder is due. It does not modify state.
func (c *Clock) NextFireEstimate() Estimate {
	st := c.state.Snapshot()
	if st.LastFired == nil {
		return Estimate{}
	}
	stamp := DecodeStamp(*st.LastFired, c.loc)
	if stamp.Kind == StampUnparseable {
		return Estimate{}
	}
	est := Estimate{Known: true, LastFired: stamp.Date, NextDate: stamp.Date.AddDays(st.IntervalDays)}
	est.DaysLeft = DaysBetween(c.Today(), est.NextDate)
	if est.DaysLeft <= 0 {
		est.DaysLeft = 0
		est.DueNow = true
	}
	return est
}
