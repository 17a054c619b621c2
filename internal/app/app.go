// Package app wires configuration, storage, the reminder core and the chat platform
// into a running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"confirmbot/internal/adapter/scheduler"
	"confirmbot/internal/command"
	"confirmbot/internal/config"
	"confirmbot/internal/platform/httpclient"
	"confirmbot/internal/platform/logger"
	"confirmbot/internal/platform/metrics"
	"confirmbot/internal/reminder"
	"confirmbot/internal/store"
	"confirmbot/pkg/retry"
)

const shutdownTimeout = 10 * time.Second

// App wires application components.
type App struct {
	cfg     config.Config
	log     *slog.Logger
	metrics *metrics.PrometheusRecorder
}

// New loads configuration and sets up logging and metrics.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "confirmbot",
	})
	return &App{cfg: cfg, log: log, metrics: metrics.NewPrometheusRecorder()}, nil
}

// Run starts the bot and blocks until SIGINT or SIGTERM. A failure to load the
// persisted state is returned before anything connects.
func (a *App) Run() error {
	defer logger.Close(a.log)
	a.log.Info("starting", slog.String("platform", a.cfg.Platform), slog.String("store", a.cfg.Store.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		Driver: a.cfg.Store.Driver,
		Path:   a.cfg.Store.Path,
		DSN:    a.cfg.Store.DSN,
	}, a.log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	state, err := reminder.OpenState(ctx, st, reminder.StateOptions{
		DefaultIntervalDays: a.cfg.Reminder.IntervalDays,
		Logger:              a.log,
		Metrics:             a.metrics,
	})
	if err != nil {
		return err
	}
	registry := reminder.NewRegistry(state, a.log)

	client := httpclient.New(
		httpclient.WithLogger(a.log.With(slog.String("component", "httpclient"))),
		httpclient.WithRetries(2, 300*time.Millisecond),
	)
	p, err := a.newPlatform(client)
	if err != nil {
		return err
	}
	defer p.Close()

	dispatcher := reminder.NewDispatcher(p.Channel(), reminder.DispatcherOptions{
		Concurrency: a.cfg.Reminder.DispatchConcurrency,
		Rate:        a.cfg.Reminder.DispatchRate,
		Timeout:     a.cfg.Reminder.DeliveryTimeout,
		Logger:      a.log,
		Metrics:     a.metrics,
	})
	clock := reminder.NewClock(state, dispatcher,
		reminder.WithLocation(a.cfg.Location()),
		reminder.WithLogger(a.log),
		reminder.WithMetrics(a.metrics),
	)
	p.Serve(command.New(registry, clock, state.IntervalDays, a.log))

	rc := retry.DefaultConfig()
	rc.MaxAttempts = 5
	rc.InitialDelay = time.Second
	rc.OnRetry = func(attempt int, err error, next time.Duration) {
		a.log.Warn("connect failed, retrying", slog.String("platform", p.Name()), slog.Int("attempt", attempt), slog.Duration("next", next), slog.Any("error", err))
	}
	if err := retry.Do(ctx, rc, p.Connect); err != nil {
		return fmt.Errorf("connect %s: %w", p.Name(), err)
	}
	p.Run(ctx)

	sched := scheduler.NewWithContext(ctx, scheduler.Config{
		Logger:   a.log.With(slog.String("component", "scheduler")),
		Location: a.cfg.Location(),
		JobHooks: scheduler.JobHooks{OnJobFinish: a.metrics.ObserveJob},
	})
	if err := sched.AddReminderCheck(clock, scheduler.ReminderSchedule{
		Interval: a.cfg.Reminder.CheckInterval,
		Cron:     a.cfg.Reminder.CheckCron,
	}); err != nil {
		return err
	}
	if tg, ok := p.(*telegramPlatform); ok {
		sched.AddTickerJobWithOptions(10*time.Minute, tg.pruneLimiter, scheduler.JobOptions{Name: "ratelimit-prune"})
	}
	sched.Start()

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr: a.cfg.HTTP.Addr,
			Handler: NewRouter(HTTPDeps{
				State:   state,
				Clock:   clock,
				Store:   st,
				Metrics: a.metrics.Handler(),
				Webhook: p.Webhook(),
				Logger:  a.log,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error { return serve(gctx, srv, a.log) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()
	a.log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.StopContext(stopCtx); err != nil {
		a.log.Warn("scheduler stop", slog.Any("error", err))
	}
	if err := state.Flush(stopCtx); err != nil {
		a.log.Error("final state save failed", slog.Any("error", err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func (a *App) newPlatform(client *httpclient.Client) (chatPlatform, error) {
	switch a.cfg.Platform {
	case config.PlatformTelegram:
		return newTelegram(a.cfg, client, a.log)
	case config.PlatformDiscord:
		return newDiscord(a.cfg, client, a.log)
	default:
		return nil, fmt.Errorf("unknown platform %q", a.cfg.Platform)
	}
}
