package futurez

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestTracerStartSpanNoParent(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	newCtx, activeSpan := tracer.StartSpan(context.Background(), "test-operation")

	if activeSpan.span.Name != "test-operation" {
		t.Errorf("Expected span name 'test-operation', got %s", activeSpan.span.Name)
	}
	if activeSpan.span.TraceID == "" {
		t.Error("Expected non-empty TraceID")
	}
	if activeSpan.span.SpanID == "" {
		t.Error("Expected non-empty SpanID")
	}
	if !activeSpan.span.IsRoot() {
		t.Error("Expected empty ParentID for root span")
	}
	if activeSpan.span.StartTime.IsZero() {
		t.Error("Expected non-zero StartTime")
	}
	if GetSpan(newCtx) != activeSpan.span {
		t.Error("Expected span to be active in returned context")
	}
}

func TestTracerStartSpanWithParent(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	parentCtx, parentSpan := tracer.StartSpan(context.Background(), "parent-operation")
	childCtx, childSpan := tracer.StartSpan(parentCtx, "child-operation")

	if childSpan.span.TraceID != parentSpan.span.TraceID {
		t.Errorf("Expected child TraceID %s, got %s", parentSpan.span.TraceID, childSpan.span.TraceID)
	}
	if childSpan.span.ParentID != parentSpan.span.SpanID {
		t.Errorf("Expected child ParentID %s, got %s", parentSpan.span.SpanID, childSpan.span.ParentID)
	}
	if childSpan.span.SpanID == parentSpan.span.SpanID {
		t.Error("Expected child to have different SpanID from parent")
	}
	if GetSpan(childCtx) != childSpan.span {
		t.Error("Expected child span to be in context")
	}
	if tracer.Active(parentCtx) != parentSpan.span {
		t.Error("Expected parent context unchanged by child creation")
	}
}

func TestTracerStartSpanNilContext(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	//nolint:staticcheck // nil context is tolerated
	ctx, span := tracer.StartSpan(nil, "op")
	if ctx == nil || span == nil {
		t.Fatal("Expected context and span for nil parent context")
	}
}

func TestTracerCollectSpanMultipleCollectors(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	collector1 := NewCollector("collector1", 10)
	collector2 := NewCollector("collector2", 10)
	collector1.SetSyncMode(true)
	collector2.SetSyncMode(true)
	defer collector1.Close()
	defer collector2.Close()

	tracer.AddCollector("collector1", collector1)
	tracer.AddCollector("collector2", collector2)

	_, span := tracer.StartSpan(context.Background(), "op")
	span.Finish()

	if collector1.Count() != 1 || collector2.Count() != 1 {
		t.Errorf("Expected one span per collector, got %d and %d", collector1.Count(), collector2.Count())
	}

	tracer.RemoveCollector("collector2")
	_, span = tracer.StartSpan(context.Background(), "op")
	span.Finish()

	if collector1.Count() != 2 {
		t.Errorf("Expected 2 spans in collector1, got %d", collector1.Count())
	}
	if collector2.Count() != 1 {
		t.Errorf("Expected removed collector to stop receiving, got %d", collector2.Count())
	}
}

func TestTracerTrace(t *testing.T) {
	tracer, collector := newRecordingTracer(t)

	want := errors.New("query failed")
	ctx, outer := tracer.StartSpan(context.Background(), "outer")
	err := tracer.Trace(ctx, "inner", func(ctx context.Context) error {
		if tracer.Active(ctx) == nil || tracer.Active(ctx).Name != "inner" {
			t.Error("Expected inner active during fn")
		}
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("Expected fn error returned, got %v", err)
	}

	inner, ok := collector.Find("inner")
	if !ok {
		t.Fatal("Expected inner span finished")
	}
	if inner.ParentID != outer.SpanID() {
		t.Error("Expected inner to be a child of outer")
	}
	if inner.Tags["error"] != "query failed" {
		t.Errorf("Expected error tag, got %q", inner.Tags["error"])
	}
}

func TestTracerTraceFinishesOnPanic(t *testing.T) {
	tracer, collector := newRecordingTracer(t)

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Errorf("Expected panic re-raised, got %v", r)
			}
		}()
		_ = tracer.Trace(context.Background(), "panics", func(context.Context) error {
			panic("boom")
		})
	}()

	span, ok := collector.Find("panics")
	if !ok {
		t.Fatal("Expected span finished despite panic")
	}
	if span.Tags["error"] != "boom" {
		t.Errorf("Expected panic value tagged, got %q", span.Tags["error"])
	}
}

func TestTracerHandlers(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	var syncCalls atomic.Int32
	id := tracer.OnSpanComplete(func(Span) { syncCalls.Add(1) })
	if !tracer.HasHandlers() {
		t.Fatal("Expected handler registered")
	}

	_, span := tracer.StartSpan(context.Background(), "op")
	span.Finish()
	span.Finish()

	if syncCalls.Load() != 1 {
		t.Errorf("Expected one handler call for a span finished twice, got %d", syncCalls.Load())
	}

	tracer.RemoveHandler(id)
	if tracer.HasHandlers() {
		t.Error("Expected no handlers after removal")
	}
}

func TestTracerAsyncHandlersOnWorkerPool(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	if err := tracer.EnableWorkerPool(2, 16); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := tracer.EnableWorkerPool(2, 16); err == nil {
		t.Error("Expected error enabling the pool twice")
	}

	var wg sync.WaitGroup
	wg.Add(3)
	tracer.OnSpanCompleteAsync(func(Span) { wg.Done() })

	for i := 0; i < 3; i++ {
		_, span := tracer.StartSpan(context.Background(), "op")
		span.Finish()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Async handlers did not run")
	}
}

func TestTracerEnableWorkerPoolValidation(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	if err := tracer.EnableWorkerPool(0, 10); err == nil {
		t.Error("Expected error for zero workers")
	}
	if err := tracer.EnableWorkerPool(1, 0); err == nil {
		t.Error("Expected error for zero queue size")
	}
}

func TestTracerHandlerPanicHook(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	var hooked atomic.Uint64
	tracer.SetPanicHook(func(id uint64, _ interface{}) { hooked.Store(id) })
	id := tracer.OnSpanComplete(func(Span) { panic("handler bug") })

	_, span := tracer.StartSpan(context.Background(), "op")
	span.Finish()

	if hooked.Load() != id {
		t.Errorf("Expected panic hook called with handler %d, got %d", id, hooked.Load())
	}
}

func TestTracerGenerateIDs(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		_, span := tracer.StartSpan(context.Background(), "op")
		if len(span.TraceID()) != 32 {
			t.Fatalf("Expected trace ID length 32, got %d", len(span.TraceID()))
		}
		if len(span.SpanID()) != 16 {
			t.Fatalf("Expected span ID length 16, got %d", len(span.SpanID()))
		}
		if seen[span.SpanID()] {
			t.Fatalf("Duplicate span ID %s", span.SpanID())
		}
		seen[span.SpanID()] = true
	}
}

func TestTracerConcurrentSpanCreation(t *testing.T) {
	tracer, collector := newRecordingTracer(t)

	const goroutines = 50
	const spansEach = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, parent := tracer.StartSpan(context.Background(), "parent")
			for j := 0; j < spansEach; j++ {
				_, child := tracer.StartSpan(ctx, "child")
				child.Finish()
			}
			parent.Finish()
		}()
	}
	wg.Wait()

	want := goroutines * (spansEach + 1)
	if got := collector.Count(); got != want {
		t.Errorf("Expected %d spans, got %d", want, got)
	}
}

func TestTracerWithFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := clockz.NewFakeClockAt(start)
	tracer := New().WithClock(clock)
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "timed")
	clock.Advance(250 * time.Millisecond)
	span.Finish()

	finished := span.Span()
	if !finished.StartTime.Equal(start) {
		t.Errorf("Expected start %v, got %v", start, finished.StartTime)
	}
	if finished.Duration != 250*time.Millisecond {
		t.Errorf("Expected duration 250ms, got %v", finished.Duration)
	}
}

func TestTracerClose(t *testing.T) {
	tracer := New()
	_, span := tracer.StartSpan(context.Background(), "op")
	span.Finish()

	tracer.Close()
	tracer.Close()

	// IDs are still generated after the pools stop refilling.
	_, span = tracer.StartSpan(context.Background(), "after-close")
	if span.SpanID() == "" {
		t.Error("Expected span ID after close")
	}
}
