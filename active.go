package futurez

import (
	"context"
	"errors"
	"fmt"
)

// ErrScopeViolation is the panic value (wrapped) raised when an ActiveContext
// is restored out of order. It means the slot was shared between goroutines
// or a scope was exited twice; it is never returned as an ordinary error.
var ErrScopeViolation = errors.New("active context scope violation")

// ActiveContext is the active-span slot of a single execution unit.
//
// A pool worker, a group goroutine or an inline call each own exactly one
// ActiveContext and are the only code that touches it, so it needs no
// locking. The slot starts empty and only changes through WithScoped.
type ActiveContext struct {
	current *Span
	depth   int
}

// NewActiveContext returns an empty slot for a freshly started execution unit.
func NewActiveContext() *ActiveContext {
	return &ActiveContext{}
}

// ActiveContextFrom returns a slot seeded with the span active in ctx.
// Used when work runs inline on the goroutine that owns ctx.
func ActiveContextFrom(ctx context.Context) *ActiveContext {
	return &ActiveContext{current: GetSpan(ctx)}
}

// Current returns the span active on this unit, or nil.
func (a *ActiveContext) Current() *Span {
	return a.current
}

// Context derives a context in which the slot's current span is active.
// When the slot is empty the derived context has no active span, even if
// parent carried one.
func (a *ActiveContext) Context(parent context.Context) context.Context {
	return ContextWithSpan(parent, a.current)
}

// WithScoped makes span current for the duration of body and then restores
// the previous value, whether body returns, fails or panics. The error from
// body is returned, and a panic re-raised, only after the restore.
func (a *ActiveContext) WithScoped(span *Span, body func() error) error {
	tok := a.enter(span)
	defer a.exit(tok)
	return body()
}

// Scoped is WithScoped for bodies that produce a value.
func Scoped[T any](a *ActiveContext, span *Span, body func() (T, error)) (T, error) {
	var v T
	err := a.WithScoped(span, func() error {
		var err error
		v, err = body()
		return err
	})
	return v, err
}

type scopeToken struct {
	prev      *Span
	installed *Span
	depth     int
}

func (a *ActiveContext) enter(span *Span) scopeToken {
	tok := scopeToken{prev: a.current, installed: span, depth: a.depth + 1}
	a.depth = tok.depth
	a.current = span
	return tok
}

func (a *ActiveContext) exit(tok scopeToken) {
	if a.depth != tok.depth || a.current != tok.installed {
		panic(fmt.Errorf("%w: exiting scope at depth %d while slot is at depth %d", ErrScopeViolation, tok.depth, a.depth))
	}
	a.current = tok.prev
	a.depth--
}
