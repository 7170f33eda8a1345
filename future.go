package futurez

import (
	"context"
	"sync"
)

// Future is the eventual outcome of a submitted body.
type Future[T any] struct {
	done      chan struct{}
	pending   T // written by the body on the executing goroutine
	value     T
	err       error
	callbacks []func()
	mu        sync.Mutex
	once      sync.Once
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Submit runs fn on ex and returns its future. The body is prepared on the
// calling goroutine, so an instrumented executor captures ctx's active span
// here, before Submit returns.
func Submit[T any](ctx context.Context, ex Executor, fn func(context.Context) (T, error)) *Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFuture[T]()
	run := ex.Prepare(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		f.pending = v
		return err
	})
	if err := ex.Dispatch(ctx, run, f.complete); err != nil {
		f.complete(err)
	}
	return f
}

// Then runs fn with f's value once f succeeds. The continuation is prepared
// now, on the calling goroutine, not when f completes. If f fails, the
// returned future fails with the same error and fn never runs.
func Then[T, U any](ctx context.Context, f *Future[T], ex Executor, fn func(context.Context, T) (U, error)) *Future[U] {
	if ctx == nil {
		ctx = context.Background()
	}
	g := newFuture[U]()
	run := ex.Prepare(ctx, func(ctx context.Context) error {
		u, err := fn(ctx, f.value)
		g.pending = u
		return err
	})

	f.onComplete(func() {
		if f.err != nil {
			g.complete(f.err)
			return
		}
		// Dispatch can block on a full queue; never do that on the worker
		// that completed f.
		go func() {
			if err := ex.Dispatch(ctx, run, g.complete); err != nil {
				g.complete(err)
			}
		}()
	})
	return g
}

func (f *Future[T]) complete(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		if err == nil {
			f.value = f.pending
		}
		f.err = err
		close(f.done)
		callbacks := f.callbacks
		f.callbacks = nil
		f.mu.Unlock()

		for _, cb := range callbacks {
			cb()
		}
	})
}

func (f *Future[T]) onComplete(cb func()) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		cb()
		return
	default:
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

// Done is closed when the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future has resolved.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx is done, and returns the
// body's error or ctx's.
func (f *Future[T]) Wait(ctx context.Context) error {
	_, err := f.Get(ctx)
	return err
}

// Get blocks until the future resolves or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
