// Package otelz carries OpenTelemetry span context and baggage across the
// same task boundaries futurez carries its own spans.
//
//	prop := futurez.NewPropagator(futurez.WithCarriers(
//		otelz.SpanCarrier(),
//		otelz.BaggageCarrier(),
//	))
package otelz

import (
	"context"

	"go.opentelemetry.io/otel/baggage"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/futurez"
)

// SpanCarrier captures the OpenTelemetry span active in the submitting
// context. When none is active the executing context is given an invalid
// span context, so spans started in the body are roots rather than children
// of whatever the executing side had.
func SpanCarrier() futurez.Carrier {
	return func(from context.Context) func(context.Context) context.Context {
		span := oteltrace.SpanFromContext(from)
		if !span.SpanContext().IsValid() {
			return func(to context.Context) context.Context {
				return oteltrace.ContextWithSpanContext(to, oteltrace.SpanContext{})
			}
		}
		return func(to context.Context) context.Context {
			return oteltrace.ContextWithSpan(to, span)
		}
	}
}

// BaggageCarrier captures the baggage of the submitting context. An empty
// baggage replaces whatever the executing side had.
func BaggageCarrier() futurez.Carrier {
	return func(from context.Context) func(context.Context) context.Context {
		bag := baggage.FromContext(from)
		return func(to context.Context) context.Context {
			return baggage.ContextWithBaggage(to, bag)
		}
	}
}
