package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"confirmbot/internal/platform/metrics"
	"confirmbot/internal/shared"
)

// Placeholder is shown when no display context can be resolved for a subscriber.
const Placeholder = "your server"

// ReminderText is the direct message sent to every subscriber.
func ReminderText(displayContext string) string {
	return fmt.Sprintf("Reminder: Please type `/confirm` in %s to confirm your activity!", displayContext)
}

// Recipient is a subscriber resolved on the messaging platform.
type Recipient struct {
	ID   Identity
	Name string
}

// Channel is the messaging platform as seen by the dispatcher.
type Channel interface {
	// LookupRecipient resolves id to a platform user.
	LookupRecipient(ctx context.Context, id Identity) (Recipient, error)
	// ResolveDisplayContext returns a link or label pointing to where r should confirm.
	ResolveDisplayContext(ctx context.Context, r Recipient) (string, error)
	// SendDirectMessage delivers text privately to r.
	SendDirectMessage(ctx context.Context, r Recipient, text string) error
}

// Stage names the step a delivery failed at.
type Stage string

const (
	StageNone      Stage = ""
	StageRecipient Stage = "recipient"
	StageDelivery  Stage = "delivery"
)

// DeliveryOutcome is the result for one subscriber.
type DeliveryOutcome struct {
	ID          Identity
	Name        string
	Context     string
	Placeholder bool
	Stage       Stage
	Err         error
	Duration    time.Duration
}

func (o DeliveryOutcome) OK() bool { return o.Err == nil }

// DeliveryReport summarizes one fan-out. Outcomes follow the input order.
type DeliveryReport struct {
	CycleID   string
	Attempted int
	Succeeded int
	Failed    int
	Duration  time.Duration
	Outcomes  []DeliveryOutcome
}

// Notifier fans a reminder out to subscribers.
type Notifier interface {
	Dispatch(ctx context.Context, subscribers []Identity) DeliveryReport
}

// DispatcherOptions configures a Dispatcher. Zero values pick the defaults.
type DispatcherOptions struct {
	// Concurrency bounds parallel deliveries. Default 4.
	Concurrency int
	// Rate limits sends per second; zero disables throttling.
	Rate float64
	// Burst is the token bucket size. Default 1.
	Burst int
	// Timeout bounds each subscriber's lookup, resolution and send. Default 30s.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// Dispatcher delivers reminders through a Channel, isolating failures per subscriber.
type Dispatcher struct {
	channel     Channel
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
	log         *slog.Logger
	metrics     metrics.Recorder
}

func NewDispatcher(ch Channel, opts DispatcherOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		channel:     ch,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		limiter:     rate.NewLimiter(limit, opts.Burst),
		log:         log.With(slog.String("component", "dispatcher")),
		metrics:     metrics.OrNoop(opts.Metrics),
	}
}

// Dispatch sends the reminder to every subscriber and waits for all of them.
// It never returns early on a failed subscriber and never touches the state.
func (d *Dispatcher) Dispatch(ctx context.Context, subscribers []Identity) DeliveryReport {
	start := time.Now()
	rep := DeliveryReport{
		CycleID:   uuid.NewString(),
		Attempted: len(subscribers),
		Outcomes:  make([]DeliveryOutcome, len(subscribers)),
	}
	log := d.log.With(slog.String("cycle_id", rep.CycleID))
	log.Info("dispatching reminders", slog.Int("subscribers", len(subscribers)))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, id := range subscribers {
		g.Go(func() error {
			rep.Outcomes[i] = d.deliver(ctx, log, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range rep.Outcomes {
		if o.OK() {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
	}
	rep.Duration = time.Since(start)
	d.metrics.ObserveDispatchDuration(rep.Duration)
	log.Info("dispatch finished",
		slog.Int("attempted", rep.Attempted),
		slog.Int("succeeded", rep.Succeeded),
		slog.Int("failed", rep.Failed),
		slog.Duration("duration", rep.Duration),
	)
	return rep
}

func (d *Dispatcher) deliver(ctx context.Context, log *slog.Logger, id Identity) (out DeliveryOutcome) {
	out.ID = id
	stage := StageRecipient
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: panic: %v", shared.ErrDelivery, r)
		}
		if out.Err != nil {
			out.Stage = stage
		}
		out.Duration = time.Since(start)
		d.metrics.IncDelivery(string(out.Stage), out.Err == nil)
		if out.Err != nil {
			log.Warn("reminder not delivered",
				slog.String("user_id", string(id)),
				slog.String("stage", string(out.Stage)),
				slog.Any("error", out.Err),
			)
			return
		}
		log.Info("reminder sent", slog.String("user_id", string(id)), slog.String("name", out.Name))
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	rcpt, err := d.channel.LookupRecipient(ctx, id)
	if err != nil {
		out.Err = shared.MarkKind(fmt.Errorf("lookup %s: %w", id, err), shared.KindDelivery)
		return out
	}
	out.Name = rcpt.Name

	out.Context, out.Placeholder = d.displayContext(ctx, log, rcpt)

	stage = StageDelivery
	if err := d.limiter.Wait(ctx); err != nil {
		out.Err = shared.MarkKind(fmt.Errorf("throttle: %w", err), shared.KindDelivery)
		return out
	}
	if err := d.channel.SendDirectMessage(ctx, rcpt, ReminderText(out.Context)); err != nil {
		out.Err = shared.MarkKind(fmt.Errorf("send to %s: %w", id, err), shared.KindDelivery)
		return out
	}
	return out
}

// displayContext resolves where r should confirm, falling back to Placeholder.
func (d *Dispatcher) displayContext(ctx context.Context, log *slog.Logger, r Recipient) (string, bool) {
	link, err := d.channel.ResolveDisplayContext(ctx, r)
	if err != nil || link == "" {
		if err != nil {
			log.Debug("display context unresolved",
				slog.String("user_id", string(r.ID)),
				slog.Any("error", shared.MarkKind(err, shared.KindResolution)),
			)
		}
		return Placeholder, true
	}
	return link, false
}
