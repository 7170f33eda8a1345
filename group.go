package futurez

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group is an errgroup whose goroutines can be instrumented. Each goroutine
// it starts is a fresh execution unit with an empty slot.
type Group struct {
	hook
	eg  *errgroup.Group
	ctx context.Context
}

// NewGroup returns a group and a context that is canceled when the first
// body fails or Wait returns, as errgroup.WithContext does.
func NewGroup(ctx context.Context) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{eg: eg, ctx: gctx}, gctx
}

// SetLimit bounds the number of active goroutines. See errgroup.Group.SetLimit.
func (g *Group) SetLimit(n int) {
	g.eg.SetLimit(n)
}

// Go prepares body on the calling goroutine and runs it on a new one.
// The body's context derives from the group context.
func (g *Group) Go(ctx context.Context, body Body) {
	g.start(g.Prepare(ctx, body), func(error) {})
}

// Dispatch starts run on a new goroutine and always returns nil; the
// outcome reaches done and Wait. Panics resolve as *PanicError and fail the
// group like any other error.
func (g *Group) Dispatch(_ context.Context, run Runnable, done func(error)) error {
	g.start(run, done)
	return nil
}

func (g *Group) start(run Runnable, done func(error)) {
	g.eg.Go(func() error {
		err := invokeRecover(run, g.ctx, NewActiveContext())
		done(err)
		return err
	})
}

// Wait blocks until every goroutine has returned and reports the first error.
func (g *Group) Wait() error {
	return g.eg.Wait()
}
