package futurez

import (
	"context"
	"log/slog"
)

// Body is a unit of asynchronous work. ctx carries the span active on the
// unit that runs it.
type Body func(ctx context.Context) error

// Runnable is a Body bound to how it will be run. Executors call it on the
// executing goroutine with their base context and that goroutine's slot.
type Runnable func(base context.Context, ac *ActiveContext) error

// Wrapper turns a Body into a Runnable at submission time, on the
// submitting goroutine.
type Wrapper interface {
	Wrap(ctx context.Context, body Body) Runnable
}

// passthrough runs body with whatever the executing unit has active.
func passthrough(body Body) Runnable {
	return func(base context.Context, ac *ActiveContext) error {
		return body(ac.Context(base))
	}
}

// Propagator carries the submitter's active span into asynchronous bodies
// when its Toggle is on.
type Propagator struct {
	toggle   *Toggle
	carriers []Carrier
	metrics  *Metrics
	logger   *slog.Logger
}

// PropagatorOption configures a Propagator.
type PropagatorOption func(*Propagator)

// WithToggle shares an existing toggle instead of a private one.
func WithToggle(t *Toggle) PropagatorOption {
	return func(p *Propagator) {
		if t != nil {
			p.toggle = t
		}
	}
}

// WithCarriers adds carriers run at every capture.
func WithCarriers(carriers ...Carrier) PropagatorOption {
	return func(p *Propagator) {
		p.carriers = append(p.carriers, carriers...)
	}
}

// WithPropagatorMetrics records wrap decisions.
func WithPropagatorMetrics(m *Metrics) PropagatorOption {
	return func(p *Propagator) {
		p.metrics = m
	}
}

// WithPropagatorLogger sets the logger.
func WithPropagatorLogger(l *slog.Logger) PropagatorOption {
	return func(p *Propagator) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPropagator returns a propagator whose toggle starts off.
func NewPropagator(opts ...PropagatorOption) *Propagator {
	p := &Propagator{
		toggle: &Toggle{},
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "futurez.propagator")
	return p
}

// Toggle returns the switch consulted by Wrap.
func (p *Propagator) Toggle() *Toggle {
	return p.toggle
}

// Enabled reports whether Wrap currently captures.
func (p *Propagator) Enabled() bool {
	return p != nil && p.toggle.Enabled()
}

// Wrap must be called on the submitting goroutine. With the toggle off the
// body is returned unchanged in behavior. With it on, the span active in ctx
// is captured now and installed around every invocation of the result.
func (p *Propagator) Wrap(ctx context.Context, body Body) Runnable {
	if p == nil {
		return passthrough(body)
	}
	if !p.Enabled() {
		p.metrics.wrapped(false)
		return passthrough(body)
	}

	snap := Capture(ctx, p.carriers...)
	p.metrics.wrapped(true)
	if snap.span != nil {
		p.logger.Debug("captured active span", "span", snap.span.Name, "span_id", snap.span.SpanID)
	}

	return func(base context.Context, ac *ActiveContext) error {
		return snap.Install(ac, base, body)
	}
}
