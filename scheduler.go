package futurez

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler fires bodies on cron schedules through an Executor.
//
// A body is prepared once, when it is scheduled, so every firing installs
// the span that was active at registration.
type Scheduler struct {
	cron    *cron.Cron
	exec    Executor
	logger  *slog.Logger
	mu      sync.Mutex
	running bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerConfig)

type schedulerConfig struct {
	logger  *slog.Logger
	seconds bool
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(c *schedulerConfig) {
		c.logger = l
	}
}

// WithSeconds accepts six-field specs with a leading seconds field.
func WithSeconds() SchedulerOption {
	return func(c *schedulerConfig) {
		c.seconds = true
	}
}

// NewScheduler returns a stopped scheduler that dispatches to exec.
func NewScheduler(exec Executor, opts ...SchedulerOption) *Scheduler {
	cfg := schedulerConfig{logger: discardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	var cronOpts []cron.Option
	if cfg.seconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}
	return &Scheduler{
		cron:   cron.New(cronOpts...),
		exec:   exec,
		logger: cfg.logger.With("component", "futurez.scheduler"),
	}
}

// Schedule registers body under spec. Firings after ctx is done are skipped.
func (s *Scheduler) Schedule(ctx context.Context, spec string, body Body) (cron.EntryID, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	run := s.exec.Prepare(ctx, body)
	id, err := s.cron.AddFunc(spec, func() {
		s.fire(ctx, spec, run)
	})
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return id, nil
}

func (s *Scheduler) fire(ctx context.Context, spec string, run Runnable) {
	err := s.exec.Dispatch(ctx, run, func(err error) {
		if err != nil {
			s.logger.Warn("scheduled body failed", "schedule", spec, "error", err)
		}
	})
	if err != nil {
		s.logger.Debug("scheduled body skipped", "schedule", spec, "error", err)
	}
}

// Trigger fires an entry immediately, outside its schedule.
func (s *Scheduler) Trigger(id cron.EntryID) bool {
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return false
	}
	entry.Job.Run()
	return true
}

// Remove unregisters an entry.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Start begins firing entries in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop stops firing and waits for running firings to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}
