// Package scheduler runs the periodic deadline cycle: remind assignees of
// tasks whose deadline is near and move late tasks to overdue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"taskbot/internal/config"
	"taskbot/internal/metrics"
	"taskbot/internal/models"
	"taskbot/internal/repositories"
	"taskbot/internal/services"
)

type Config struct {
	Interval       time.Duration
	Lookahead      time.Duration
	RetryBackoff   time.Duration
	ReminderPolicy string
}

func FromConfig(c config.SchedulerConfig) Config {
	return Config{
		Interval:       c.Interval,
		Lookahead:      c.Lookahead,
		RetryBackoff:   c.RetryBackoff,
		ReminderPolicy: c.ReminderPolicy,
	}
}

// CycleResult counts what one cycle acted on.
type CycleResult struct {
	Reminded int
	Overdue  int
}

type Scheduler struct {
	tasks      repositories.TaskRepository
	dispatcher services.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	digest   services.EmailService
	digestTo string
	loc      *time.Location

	cfgMu  sync.RWMutex
	cfg    Config
	reload chan struct{}

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	cyclesRun    atomic.Int64
	cyclesFailed atomic.Int64
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithOverdueDigest mails every non-empty overdue sweep to one address.
func WithOverdueDigest(email services.EmailService, to string, loc *time.Location) Option {
	return func(s *Scheduler) {
		s.digest, s.digestTo, s.loc = email, to, loc
	}
}

func New(cfg Config, tasks repositories.TaskRepository, dispatcher services.Dispatcher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:      tasks,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		cfg:        cfg,
		reload:     make(chan struct{}, 1),
		loc:        time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Update swaps the cadence and reminder policy. A running loop re-arms its
// timer with the new interval.
func (s *Scheduler) Update(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()

	select {
	case s.reload <- struct{}{}:
	default:
	}
	s.logger.Info("Scheduler config updated",
		"interval", cfg.Interval, "lookahead", cfg.Lookahead, "reminder_policy", cfg.ReminderPolicy)
}

// Start launches the loop. The first cycle runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	select {
	case <-s.reload:
	default:
	}

	go s.loop(subCtx, s.done)

	cfg := s.config()
	s.logger.Info("Deadline scheduler started",
		"interval", cfg.Interval, "lookahead", cfg.Lookahead, "reminder_policy", cfg.ReminderPolicy)
	return nil
}

// Stop prevents new cycles, waits for the in-flight one to finish and then
// for the notifications it started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	ctx, cancel := context.WithTimeout(context.Background(), s.config().Interval)
	defer cancel()
	if err := s.dispatcher.Drain(ctx); err != nil {
		s.logger.Warn("Notifications still in flight after stop", "error", err)
	}
	s.logger.Info("Deadline scheduler stopped",
		"cycles_run", s.cyclesRun.Load(), "cycles_failed", s.cyclesFailed.Load())
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) CyclesRun() int64 { return s.cyclesRun.Load() }

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	next := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reload:
			wait := rearm(time.Until(next), s.config().Interval)
			next = time.Now().Add(wait)
			timer.Reset(wait)
		case <-timer.C:
			cfg := s.config()
			cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Interval)
			_, err := s.RunCycle(cycleCtx)
			cancel()

			wait := cfg.Interval
			if err != nil {
				wait = cfg.RetryBackoff
				s.logger.Error("Deadline cycle failed, retrying", "retry_in", wait, "error", err)
			}
			next = time.Now().Add(wait)
			timer.Reset(wait)
		}
	}
}

// rearm picks the wait after a config reload: a pending retry or an earlier
// cycle is never pushed back by a longer interval.
func rearm(remaining, interval time.Duration) time.Duration {
	if remaining < 0 {
		return 0
	}
	return min(remaining, interval)
}

// RunCycle runs both passes once. The passes are independent: a failure in
// one does not skip the other, and the errors are joined.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	started := time.Now()
	now := s.now()
	cfg := s.config()

	var (
		res  CycleResult
		errs []error
		err  error
	)
	if res.Reminded, err = s.remindApproaching(ctx, now, cfg); err != nil {
		errs = append(errs, err)
	}
	if res.Overdue, err = s.sweepOverdue(ctx, now); err != nil {
		errs = append(errs, err)
	}

	err = errors.Join(errs...)
	s.cyclesRun.Add(1)
	if err != nil {
		s.cyclesFailed.Add(1)
	}
	s.metrics.CycleFinished(time.Since(started), err)
	s.logger.Debug("Deadline cycle finished", "reminded", res.Reminded, "overdue", res.Overdue, "took", time.Since(started))
	return res, err
}

func (s *Scheduler) remindApproaching(ctx context.Context, now time.Time, cfg Config) (int, error) {
	until := now.Add(cfg.Lookahead)

	var (
		tasks []models.Task
		err   error
	)
	if cfg.ReminderPolicy == config.ReminderOnce {
		tasks, err = s.tasks.ClaimReminders(ctx, now, until)
	} else {
		tasks, err = s.tasks.ListApproaching(ctx, now, until)
	}
	if err != nil {
		return 0, fmt.Errorf("approaching scan: %w", err)
	}

	for i := range tasks {
		s.dispatcher.DeadlineApproaching(ctx, &tasks[i], now)
	}
	s.metrics.Reminded(len(tasks))
	if len(tasks) > 0 {
		s.logger.Info("Deadline reminders dispatched", "count", len(tasks))
	}
	return len(tasks), nil
}

func (s *Scheduler) sweepOverdue(ctx context.Context, now time.Time) (int, error) {
	tasks, err := s.tasks.MarkOverdue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("overdue sweep: %w", err)
	}

	for i := range tasks {
		s.logger.Info("Task is overdue", "task_id", tasks[i].ID, "deadline", tasks[i].Deadline)
		s.dispatcher.Overdue(ctx, &tasks[i])
	}
	s.metrics.Overdue(len(tasks))

	if len(tasks) > 0 && s.digest != nil && s.digestTo != "" {
		if err := s.digest.SendOverdueDigest(s.digestTo, tasks, s.loc); err != nil {
			s.logger.Warn("Overdue digest not sent", "to", s.digestTo, "error", err)
		}
	}
	return len(tasks), nil
}
