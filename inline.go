package futurez

import "context"

// Inline is an executor that runs every body synchronously on the goroutine
// that dispatches it, like a future that is already resolved. The slot it
// runs with is seeded from the dispatching context, and is back to that
// value when Dispatch returns.
type Inline struct {
	hook
}

// NewInline returns an uninstrumented inline executor.
func NewInline() *Inline {
	return &Inline{}
}

// Go runs body and returns its already resolved future.
func (i *Inline) Go(ctx context.Context, body Body) *Future[struct{}] {
	return Submit(ctx, i, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, body(ctx)
	})
}

// Dispatch runs run before returning. A done ctx skips the run.
func (*Inline) Dispatch(ctx context.Context, run Runnable, done func(error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ac := ActiveContextFrom(ctx)
	done(invokeRecover(run, ctx, ac))
	return nil
}
