package futurez

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

// SpanHandler is called when a span completes.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Tracer creates spans and reads their parentage from a context.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers       []handlerEntry
	collectors     map[string]*Collector
	panicHook      func(handlerID uint64, r interface{})
	workers        *Pool
	traceIDPool    *IDPool
	spanIDPool     *IDPool
	clock          clockz.Clock
	logger         *slog.Logger
	handlersLock   sync.RWMutex
	collectorsLock sync.RWMutex
	idPoolOnce     sync.Once
	nextID         atomic.Uint64
	droppedSpans   atomic.Uint64
}

// New creates a new tracer.
// Uses the real clock for production behavior.
func New() *Tracer {
	return &Tracer{
		handlers:   make([]handlerEntry, 0),
		collectors: make(map[string]*Collector),
		clock:      clockz.RealClock,
		logger:     discardLogger(),
	}
}

// WithClock returns a new tracer with the specified clock.
// Enables clock injection for deterministic testing.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	return &Tracer{
		handlers:   make([]handlerEntry, 0),
		collectors: make(map[string]*Collector),
		clock:      clock,
		logger:     t.logger,
	}
}

// WithLogger sets the logger used for handler panics and dropped spans.
func (t *Tracer) WithLogger(logger *slog.Logger) *Tracer {
	if logger != nil {
		t.logger = logger.With("component", "futurez.tracer")
	}
	return t
}

func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		poolSize := runtime.NumCPU() * 100

		t.traceIDPool = NewIDPool(poolSize, func() string {
			return randomHex(16, func() string {
				return hex16(t.clock.Now().Format(time.RFC3339Nano))
			})
		})

		t.spanIDPool = NewIDPool(poolSize, func() string {
			return randomHex(8, func() string {
				return hex16(t.clock.Now().Format("15:04:05.000000"))
			})
		})
	})
}

// hex16 is the time-based fallback when no random source is available.
func hex16(s string) string {
	return fmt.Sprintf("%x", s)
}

// AddCollector registers a collector under name, replacing any previous one.
func (t *Tracer) AddCollector(name string, collector *Collector) {
	if collector == nil {
		return
	}
	t.collectorsLock.Lock()
	defer t.collectorsLock.Unlock()
	t.collectors[name] = collector
}

// RemoveCollector unregisters a collector. The collector is not closed.
func (t *Tracer) RemoveCollector(name string) {
	t.collectorsLock.Lock()
	defer t.collectorsLock.Unlock()
	delete(t.collectors, name)
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any completion handler is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// StartSpan creates a new span and returns it wrapped in an ActiveSpan.
// If the context has an active span, the new span will be its child.
func (t *Tracer) StartSpan(ctx context.Context, operation Key) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}

	span := &Span{
		SpanID:    t.generateSpanID(),
		Name:      operation,
		StartTime: t.clock.Now(),
	}

	if parentSpan := GetSpan(ctx); parentSpan != nil {
		span.TraceID = parentSpan.TraceID
		span.ParentID = parentSpan.SpanID
	} else {
		span.TraceID = t.generateTraceID()
	}

	activeSpan := &ActiveSpan{
		span:   span,
		tracer: t,
	}

	bundle := &contextBundle{tracer: t, span: span}
	newCtx := context.WithValue(ctx, bundleKey, bundle)

	return newCtx, activeSpan
}

// Trace runs fn inside a new span and finishes the span on every path.
// A returned error or a panic is recorded in the "error" tag; panics are re-raised.
func (t *Tracer) Trace(ctx context.Context, operation Key, fn func(context.Context) error) (err error) {
	ctx, span := t.StartSpan(ctx, operation)
	defer func() {
		if r := recover(); r != nil {
			span.SetTag("error", fmt.Sprint(r))
			span.Finish()
			panic(r)
		}
		if err != nil {
			span.SetTag("error", err.Error())
		}
		span.Finish()
	}()
	return fn(ctx)
}

// Active returns the span active in ctx, or nil.
func (*Tracer) Active(ctx context.Context) *Span {
	return GetSpan(ctx)
}

// collectSpan fans a finished span out to collectors and handlers.
func (t *Tracer) collectSpan(span *Span) {
	t.collectorsLock.RLock()
	for _, c := range t.collectors {
		c.Collect(span)
	}
	t.collectorsLock.RUnlock()

	t.executeHandlers(*span)
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if !h.async {
			t.safeCall(h, span)
			continue
		}
		entry := h
		if workers == nil {
			go t.safeCall(entry, span)
			continue
		}
		_, err := workers.TryGo(context.Background(), func(context.Context) error {
			t.safeCall(entry, span)
			return nil
		})
		if err != nil {
			t.droppedSpans.Add(1)
			t.logger.Debug("async handler dropped", "handler", entry.id, "span", span.Name, "error", err)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("span handler panicked", "handler", entry.id, "panic", r)
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool runs async handlers on a bounded Pool instead of one
// goroutine per span. Handlers that do not fit in the queue are dropped.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.workers = NewPool(
		WithWorkers(workers),
		WithQueueSize(queueSize),
		WithClock(t.clock),
		WithLogger(t.logger),
	)
	return nil
}

// DroppedSpans returns the number of async handler calls dropped due to a full queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	if workers != nil {
		workers.Close()
	}

	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.spanIDPool != nil {
		t.spanIDPool.Close()
	}
}

func (t *Tracer) generateTraceID() string {
	t.ensureIDPools()
	return t.traceIDPool.Get()
}

func (t *Tracer) generateSpanID() string {
	t.ensureIDPools()
	return t.spanIDPool.Get()
}
