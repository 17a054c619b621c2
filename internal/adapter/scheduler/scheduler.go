package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is a scheduled unit of work.
type JobFunc func(ctx context.Context) error

// CronJobID identifies a cron job.
type CronJobID = cron.EntryID

// TickerJobID identifies a ticker job.
type TickerJobID int

// OverlapPolicy controls what happens when a job fires while its previous run is active.
type OverlapPolicy int

const (
	// AllowOverlap runs every firing concurrently (default).
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning drops a firing while the previous run is active.
	SkipIfRunning
	// DelayIfRunning waits for the previous run to finish.
	DelayIfRunning
)

func (p OverlapPolicy) String() string {
	switch p {
	case SkipIfRunning:
		return "skip"
	case DelayIfRunning:
		return "delay"
	default:
		return "allow"
	}
}

// JobOptions configures a job.
type JobOptions struct {
	// Name is used in logs and hooks.
	Name string
	// Timeout bounds a single run. Zero means no timeout.
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
	// RunOnStart runs the job once as soon as the scheduler starts, in addition to
	// its schedule.
	RunOnStart bool
}

type jobWrapper struct {
	job     JobFunc
	options JobOptions
	running sync.Mutex
}

type tickerJob struct {
	id      TickerJobID
	cancel  context.CancelFunc
	wrapper *jobWrapper
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, kvAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func kvAttrs(kv []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return attrs
}

// Scheduler runs cron and fixed interval jobs until it is stopped or its context ends.
type Scheduler struct {
	cron         *cron.Cron
	cronLog      cron.Logger
	logger       *slog.Logger
	hooks        JobHooks
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	tickerJobs   map[TickerJobID]*tickerJob
	nextTickerID TickerJobID
	onStart      []*jobWrapper
	started      bool
	mu           sync.Mutex
	stopOnce     sync.Once
	startOnce    sync.Once
}

// JobHooks are optional observability callbacks.
type JobHooks struct {
	OnJobStart  func(jobName string)
	OnJobFinish func(jobName string, duration time.Duration, err error)
	OnJobError  func(jobName string, err error)
}

// Config configures a Scheduler.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
	// Location is the zone cron schedules are evaluated in. Defaults to time.Local.
	Location *time.Location
}

// cronParser accepts five field specs, six field specs with seconds and descriptors
// such as @daily or @every 24h.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron validates a cron expression.
func ParseCron(spec string) error {
	_, err := cronParser.Parse(spec)
	return err
}

func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext returns a Scheduler that stops when parentCtx is done.
func NewWithContext(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger: logger.With("component", "cron")}

	return &Scheduler{
		cron:         cron.New(cron.WithParser(cronParser), cron.WithLogger(cl), cron.WithLocation(loc)),
		cronLog:      cl,
		logger:       logger,
		hooks:        cfg.JobHooks,
		ctx:          ctx,
		cancel:       cancel,
		tickerJobs:   make(map[TickerJobID]*tickerJob),
		nextTickerID: 1,
	}
}

// AddCronJobWithOptions adds a job on a cron schedule, for example "0 9 * * *",
// "@daily" or "@every 12h".
func (s *Scheduler) AddCronJobWithOptions(schedule string, job JobFunc, opts JobOptions) (CronJobID, error) {
	wrapper := &jobWrapper{job: job, options: opts}

	var chain cron.Chain
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		chain = cron.NewChain(cron.SkipIfStillRunning(s.cronLog))
	case DelayIfRunning:
		chain = cron.NewChain(cron.DelayIfStillRunning(s.cronLog))
	default:
		chain = cron.NewChain()
	}

	id, err := s.cron.AddJob(schedule, chain.Then(cron.FuncJob(func() {
		s.runJobWrapper(wrapper)
	})))
	if err != nil {
		s.logger.Error("failed to add cron job", "schedule", schedule, "name", opts.Name, "error", err)
		return 0, err
	}
	s.registerOnStart(wrapper)

	s.logger.Info("cron job added", "schedule", schedule, "name", opts.Name, "overlap_policy", opts.OverlapPolicy.String(), "id", id)
	return id, nil
}

// AddTickerJobWithOptions adds a job that runs every interval.
func (s *Scheduler) AddTickerJobWithOptions(interval time.Duration, job JobFunc, opts JobOptions) TickerJobID {
	wrapper := &jobWrapper{job: job, options: opts}

	s.mu.Lock()
	id := s.nextTickerID
	s.nextTickerID++

	ticker := time.NewTicker(interval)
	ctx, cancel := context.WithCancel(s.ctx)
	s.tickerJobs[id] = &tickerJob{id: id, cancel: cancel, wrapper: wrapper}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		defer cancel()

		for {
			select {
			case <-ticker.C:
				s.runJobWrapper(wrapper)
			case <-ctx.Done():
				s.logger.Debug("ticker job stopped", "name", opts.Name, "id", id)
				return
			}
		}
	}()
	s.registerOnStart(wrapper)

	s.logger.Info("ticker job added", "interval", interval, "name", opts.Name, "overlap_policy", opts.OverlapPolicy.String(), "id", id)
	return id
}

// registerOnStart queues a RunOnStart job, or runs it now if the scheduler already started.
func (s *Scheduler) registerOnStart(w *jobWrapper) {
	if !w.options.RunOnStart {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.runAsync(w)
		return
	}
	s.onStart = append(s.onStart, w)
}

func (s *Scheduler) runAsync(w *jobWrapper) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJobWrapper(w)
	}()
}

// Start starts cron scheduling and runs RunOnStart jobs. It is idempotent.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()

		s.mu.Lock()
		s.started = true
		pending := s.onStart
		s.onStart = nil
		for _, w := range pending {
			s.runAsync(w)
		}
		s.mu.Unlock()

		go func() {
			<-s.ctx.Done()
			s.logger.Info("stopping scheduler due to context cancellation")
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext is Stop bounded by ctx. When ctx expires first it still waits for the
// shutdown to complete and then returns ctx.Err().
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}

	s.logger.Info("stopping scheduler with deadline")
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully within deadline")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded, waiting for running jobs")
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	for _, job := range s.tickerJobs {
		job.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runJobWrapper(wrapper *jobWrapper) {
	jobName := wrapper.options.Name
	if jobName == "" {
		jobName = "unnamed"
	}

	switch wrapper.options.OverlapPolicy {
	case SkipIfRunning:
		if !wrapper.running.TryLock() {
			s.logger.Debug("skipping job execution, already running", "name", jobName)
			return
		}
		defer wrapper.running.Unlock()
	case DelayIfRunning:
		wrapper.running.Lock()
		defer wrapper.running.Unlock()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(jobName)
	}

	ctx := s.ctx
	if wrapper.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wrapper.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.safeRun(ctx, wrapper.job, jobName)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(jobName, duration, err)
	}

	if err != nil {
		s.logger.Error("job failed", "name", jobName, "error", err, "duration", duration)
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(jobName, err)
		}
		return
	}
	s.logger.Debug("job completed successfully", "name", jobName, "duration", duration)
}

// safeRun turns a panic in job into an error.
func (s *Scheduler) safeRun(ctx context.Context, job JobFunc, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "name", name, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job(ctx)
}

// IsRunning reports whether the scheduler has not been stopped.
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}
