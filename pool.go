package futurez

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zoobzio/clockz"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("pool closed")
	// ErrQueueFull is returned by TryGo when no queue slot is free.
	ErrQueueFull = errors.New("pool queue full")
)

// PanicError is the error a future resolves with when its body panicked.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// RetryPolicy re-invokes a failed runnable with exponential backoff.
// Every attempt installs the snapshot taken at submission.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type task struct {
	ctx      context.Context
	run      Runnable
	done     func(error)
	enqueued time.Time
	id       string
}

// Pool runs submitted bodies on a fixed set of worker goroutines.
// Each worker owns one ActiveContext for its whole life.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Pool struct {
	hook
	tasks     chan *task
	quit      chan struct{}
	base      context.Context
	cancel    context.CancelFunc
	tracer    *Tracer
	clock     clockz.Clock
	logger    *slog.Logger
	metrics   *Metrics
	retry     RetryPolicy
	workers   int
	queueSize int
	wg        sync.WaitGroup
	sendMu    sync.RWMutex
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Uint64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets how many submitted tasks may wait for a worker.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.queueSize = n
		}
	}
}

// WithWorkerSpans gives every worker a long-lived "pool.worker" span as its
// ambient context. Bodies that are not propagated see it as their parent.
func WithWorkerSpans(tracer *Tracer) PoolOption {
	return func(p *Pool) {
		p.tracer = tracer
	}
}

// WithRetry enables retries of failed bodies.
func WithRetry(policy RetryPolicy) PoolOption {
	return func(p *Pool) {
		p.retry = policy
	}
}

// WithClock sets the clock used for queue timings and for the waits
// between retries.
func WithClock(clock clockz.Clock) PoolOption {
	return func(p *Pool) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records pool activity.
func WithMetrics(m *Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// NewPool starts a pool. Defaults are 4 workers and a queue of 64.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		workers:   4,
		queueSize: 64,
		clock:     clockz.RealClock,
		logger:    discardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "futurez.pool")
	p.base, p.cancel = context.WithCancel(context.Background())
	p.tasks = make(chan *task, p.queueSize)
	p.quit = make(chan struct{})

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(i)
	}

	p.logger.Debug("pool started", "workers", p.workers, "queue_size", p.queueSize)
	return p
}

// Go submits body and returns a future for its outcome. It blocks while the
// queue is full, until ctx is done or the pool is closed.
func (p *Pool) Go(ctx context.Context, body Body) *Future[struct{}] {
	return Submit(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, body(ctx)
	})
}

// TryGo submits body without blocking. When the queue is full the body is
// dropped and ErrQueueFull is returned.
func (p *Pool) TryGo(ctx context.Context, body Body) (*Future[struct{}], error) {
	f := newFuture[struct{}]()
	run := p.Prepare(ctx, body)
	if err := p.enqueue(ctx, run, f.complete, false); err != nil {
		return nil, err
	}
	return f, nil
}

// Dispatch queues run. done is called exactly once when run has finished or
// will never run.
func (p *Pool) Dispatch(ctx context.Context, run Runnable, done func(error)) error {
	return p.enqueue(ctx, run, done, true)
}

func (p *Pool) enqueue(ctx context.Context, run Runnable, done func(error), block bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Checked before RLock so a submission from a running body never
	// queues behind Close's write lock.
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	t := &task{
		ctx:      ctx,
		run:      run,
		done:     done,
		enqueued: p.clock.Now(),
		id:       newTaskID(),
	}

	if !block {
		select {
		case p.tasks <- t:
			p.metrics.submitted()
			return nil
		default:
			p.dropped.Add(1)
			p.metrics.droppedTask()
			return ErrQueueFull
		}
	}

	select {
	case p.tasks <- t:
		p.metrics.submitted()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	ac := NewActiveContext()
	if p.tracer == nil {
		p.loop(ac)
		return
	}

	_, span := p.tracer.StartSpan(context.Background(), "pool.worker")
	span.SetTag("worker.id", strconv.Itoa(id))
	defer span.Finish()

	_ = ac.WithScoped(span.span, func() error {
		p.loop(ac)
		return nil
	})
}

func (p *Pool) loop(ac *ActiveContext) {
	for t := range p.tasks {
		p.execute(t, ac)
	}
}

func (p *Pool) execute(t *task, ac *ActiveContext) {
	p.metrics.observeQueueWait(p.clock.Since(t.enqueued))

	if err := t.ctx.Err(); err != nil {
		p.metrics.completed(err)
		t.done(err)
		return
	}

	err := p.invoke(t, ac)
	var pe *PanicError
	if errors.As(err, &pe) {
		p.logger.Error("task panicked", "task", t.id, "panic", pe.Value)
	}
	p.metrics.completed(err)
	t.done(err)
}

func (p *Pool) invoke(t *task, ac *ActiveContext) error {
	if p.retry.MaxRetries == 0 {
		return invokeRecover(t.run, p.base, ac)
	}

	b := backoff.NewExponentialBackOff()
	if p.retry.InitialInterval > 0 {
		b.InitialInterval = p.retry.InitialInterval
	}
	if p.retry.MaxInterval > 0 {
		b.MaxInterval = p.retry.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Clock = p.clock
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.retry.MaxRetries), t.ctx)

	attempt := 0
	return backoff.RetryNotifyWithTimer(func() error {
		attempt++
		err := invokeRecover(t.run, p.base, ac)
		var pe *PanicError
		if errors.As(err, &pe) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		p.metrics.retried()
		p.logger.Debug("retrying task", "task", t.id, "attempt", attempt, "wait", wait, "error", err)
	}, &clockTimer{clock: p.clock})
}

// clockTimer is a backoff.Timer driven by the pool's clock.
type clockTimer struct {
	clock clockz.Clock
	c     <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.c = t.clock.After(d)
}

func (*clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}

// invokeRecover runs run and turns a panic into a *PanicError. By the time
// the panic is recovered, the slot has already been restored. A scope
// violation is not recovered.
func invokeRecover(run Runnable, base context.Context, ac *ActiveContext) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok && errors.Is(e, ErrScopeViolation) {
			panic(r)
		}
		err = &PanicError{Value: r, Stack: debug.Stack()}
	}()
	return run(base, ac)
}

// Dropped returns how many TryGo submissions were dropped.
func (p *Pool) Dropped() uint64 {
	return p.dropped.Load()
}

// Close stops accepting work, runs everything already queued, and waits for
// the workers to exit. Submissions blocked on a full queue fail with
// ErrPoolClosed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.quit)
		p.sendMu.Lock()
		close(p.tasks)
		p.sendMu.Unlock()
		p.wg.Wait()
		p.cancel()
		p.logger.Debug("pool stopped")
	})
}
