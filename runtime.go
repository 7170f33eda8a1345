package futurez

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/futurez/config"
)

// Runtime wires a Tracer, a Propagator and an instrumented Pool from a
// config.Config, and applies later configs to them.
type Runtime struct {
	Tracer     *Tracer
	Propagator *Propagator
	Pool       *Pool
	Metrics    *Metrics

	logger  *slog.Logger
	remove  func()
	mu      sync.Mutex
	cfg     config.Config
	watcher *config.Watcher
}

// RuntimeOption configures Configure.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	registerer prometheus.Registerer
	logger     *slog.Logger
	logOutput  io.Writer
	clock      clockz.Clock
	carriers   []Carrier
}

// WithRegisterer registers the runtime's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) RuntimeOption {
	return func(o *runtimeOptions) {
		o.registerer = reg
	}
}

// WithRuntimeLogger overrides the logger built from the log config.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logger = l
	}
}

// WithLogOutput sends the logger built from the log config to w.
func WithLogOutput(w io.Writer) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logOutput = w
	}
}

// WithRuntimeClock sets the clock for the tracer and pool.
func WithRuntimeClock(c clockz.Clock) RuntimeOption {
	return func(o *runtimeOptions) {
		o.clock = c
	}
}

// WithRuntimeCarriers adds carriers to the propagator.
func WithRuntimeCarriers(carriers ...Carrier) RuntimeOption {
	return func(o *runtimeOptions) {
		o.carriers = append(o.carriers, carriers...)
	}
}

// Configure validates cfg and builds a running Runtime.
func Configure(cfg config.Config, opts ...RuntimeOption) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o runtimeOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = config.NewLogger(cfg.Log, o.logOutput)
	}
	clock := o.clock
	if clock == nil {
		clock = clockz.RealClock
	}

	metrics := NewMetrics(o.registerer)
	tracer := New().WithClock(clock).WithLogger(logger)

	prop := NewPropagator(
		WithCarriers(o.carriers...),
		WithPropagatorMetrics(metrics),
		WithPropagatorLogger(logger),
	)
	prop.Toggle().Set(cfg.Propagation.Enabled)

	poolOpts := []PoolOption{
		WithWorkers(cfg.Pool.Workers),
		WithQueueSize(cfg.Pool.QueueSize),
		WithRetry(RetryPolicy{
			MaxRetries:      cfg.Retry.MaxRetries,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		}),
		WithClock(clock),
		WithLogger(logger),
		WithMetrics(metrics),
	}
	if cfg.Pool.WorkerSpans {
		poolOpts = append(poolOpts, WithWorkerSpans(tracer))
	}
	pool := NewPool(poolOpts...)

	r := &Runtime{
		Tracer:     tracer,
		Propagator: prop,
		Pool:       pool,
		Metrics:    metrics,
		logger:     logger.With("component", "futurez.runtime"),
		remove:     Use(prop, pool),
		cfg:        cfg,
	}
	r.logger.Info("runtime configured",
		"propagation", cfg.Propagation.Enabled,
		"workers", cfg.Pool.Workers,
		"queue_size", cfg.Pool.QueueSize,
	)
	return r, nil
}

// Config returns the config currently applied.
func (r *Runtime) Config() config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Apply switches propagation to cfg's setting. Bodies wrapped before the
// switch keep the behavior they were wrapped with. Pool sizing only takes
// effect on a new Runtime.
func (r *Runtime) Apply(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	prev := r.cfg
	r.cfg = cfg
	r.mu.Unlock()

	if r.Propagator.Toggle().Set(cfg.Propagation.Enabled) {
		r.logger.Info("propagation toggled", "enabled", cfg.Propagation.Enabled)
	}
	if prev.Pool != cfg.Pool || prev.Retry != cfg.Retry {
		r.logger.Warn("pool settings changed; restart to apply",
			"workers", cfg.Pool.Workers, "queue_size", cfg.Pool.QueueSize)
	}
	return nil
}

// Watch applies path every time it changes until ctx is done or Close is called.
func (r *Runtime) Watch(ctx context.Context, path string, opts ...config.WatcherOption) error {
	opts = append([]config.WatcherOption{config.WithWatcherLogger(r.logger)}, opts...)
	w, err := config.NewWatcher(path, func(cfg config.Config) {
		if err := r.Apply(cfg); err != nil {
			r.logger.Error("applying reloaded config", "error", err)
		}
	}, opts...)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watching config: %w", err)
	}

	r.mu.Lock()
	old := r.watcher
	r.watcher = w
	r.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	return nil
}

// Close stops watching, uninstruments and drains the pool, and closes the tracer.
func (r *Runtime) Close() {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w != nil {
		w.Stop()
	}

	r.remove()
	r.Pool.Close()
	r.Tracer.Close()
}
