// Package futurez links spans created inside asynchronous work to the span
// that was active where the work was submitted.
//
// Goroutines have no local storage, so the active span travels explicitly:
// the submitting side carries it in its context.Context, and every execution
// unit (a pool worker, a group goroutine, an inline call) owns an
// ActiveContext slot that only that unit touches.
//
// Core Components:
//   - Tracer: Creates spans and reads parentage from a context.
//   - ActiveContext: Scoped push/pop slot for the span active on one unit.
//   - Snapshot: Immutable capture of a submitter's active span.
//   - Propagator: Wraps a Body at submission time, gated by a Toggle.
//   - Pool, Inline, Group, Scheduler: Executors that route submissions
//     through an installed Wrapper.
//
// Basic Usage:
//
//	tracer := futurez.New()
//	defer tracer.Close()
//
//	prop := futurez.NewPropagator()
//	prop.Toggle().Enable()
//
//	pool := futurez.NewPool(futurez.WithWorkers(4))
//	defer pool.Close()
//	pool.Instrument(prop)
//
//	ctx, outer := tracer.StartSpan(ctx, "outer")
//	f := pool.Go(ctx, func(ctx context.Context) error {
//		return tracer.Trace(ctx, "inner", func(context.Context) error { return nil })
//	})
//	_ = f.Wait(ctx)
//	outer.Finish()
//
// With the toggle off, or with the pool uninstrumented, "inner" is a root
// span. With it on, "inner" is a child of "outer".
//
// Thread Safety:
//
// Tracer, Pool, Group, Scheduler, Propagator and Toggle are safe for
// concurrent use. Snapshot is immutable. ActiveContext is owned by a single
// goroutine and must never be shared.
package futurez

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string
