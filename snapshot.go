package futurez

import "context"

// Carrier moves a context value other than the native span across a task
// boundary. It is called on the submitting goroutine with the submit context
// and returns the function that re-applies the captured value on the
// executing side.
type Carrier func(from context.Context) func(to context.Context) context.Context

// Snapshot is the active span of a submitting context, captured at one
// instant. It is immutable and may be installed any number of times from any
// goroutine.
type Snapshot struct {
	span    *Span
	carried []func(context.Context) context.Context
}

// Capture reads the span active in ctx now. Later changes on the submitting
// side do not affect the returned snapshot.
func Capture(ctx context.Context, carriers ...Carrier) Snapshot {
	snap := Snapshot{span: GetSpan(ctx)}
	if len(carriers) == 0 {
		return snap
	}
	snap.carried = make([]func(context.Context) context.Context, 0, len(carriers))
	for _, c := range carriers {
		if c == nil {
			continue
		}
		if apply := c(ctx); apply != nil {
			snap.carried = append(snap.carried, apply)
		}
	}
	return snap
}

// Span returns the captured span, or nil if nothing was active.
func (s Snapshot) Span() *Span {
	return s.span
}

// Install makes the captured span current on ac for the duration of body.
// body receives a context derived from base in which the captured span and
// every carried value are active. ac is restored afterward on every path.
func (s Snapshot) Install(ac *ActiveContext, base context.Context, body func(context.Context) error) error {
	return ac.WithScoped(s.span, func() error {
		ctx := ac.Context(base)
		for _, apply := range s.carried {
			ctx = apply(ctx)
		}
		return body(ctx)
	})
}
