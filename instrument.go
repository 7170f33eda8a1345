package futurez

import (
	"context"
	"sync"
	"sync/atomic"
)

// Executor runs Bodies asynchronously. Prepare is called on the submitting
// goroutine and decides what will run; Dispatch hands the result to the
// executing goroutine and calls done with its outcome.
type Executor interface {
	Prepare(ctx context.Context, body Body) Runnable
	Dispatch(ctx context.Context, run Runnable, done func(error)) error
}

// Instrumentable is an executor whose submissions can be routed through a
// Wrapper. Uninstrument returns it to its pristine behavior.
type Instrumentable interface {
	Instrument(w Wrapper)
	Uninstrument()
	Instrumented() bool
}

// Use instruments every target with w and returns a function that undoes it.
func Use(w Wrapper, targets ...Instrumentable) (remove func()) {
	for _, t := range targets {
		t.Instrument(w)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, t := range targets {
				t.Uninstrument()
			}
		})
	}
}

type wrapperBox struct {
	w Wrapper
}

// hook is the instrumentation slot shared by every executor.
type hook struct {
	slot atomic.Pointer[wrapperBox]
}

// Instrument routes future submissions through w. A nil w uninstruments.
func (h *hook) Instrument(w Wrapper) {
	if w == nil {
		h.slot.Store(nil)
		return
	}
	h.slot.Store(&wrapperBox{w: w})
}

// Uninstrument removes any installed wrapper.
func (h *hook) Uninstrument() {
	h.slot.Store(nil)
}

// Instrumented reports whether a wrapper is installed.
func (h *hook) Instrumented() bool {
	return h.slot.Load() != nil
}

// Prepare wraps body with the installed wrapper, or runs it with whatever
// the executing unit has active when none is installed.
func (h *hook) Prepare(ctx context.Context, body Body) Runnable {
	if box := h.slot.Load(); box != nil {
		return box.w.Wrap(ctx, body)
	}
	return passthrough(body)
}
