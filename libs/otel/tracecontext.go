package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	keyTraceparent = "traceparent"
	keyTracestate  = "tracestate"
)

// TraceContextStrings renders the span context in ctx as W3C header values so it can be
// stored next to an outbox row and resumed by the publisher.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier[keyTraceparent], carrier[keyTracestate]
}

// ContextWithTraceContext is the inverse of TraceContextStrings. Empty values leave ctx as is.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{keyTraceparent: traceparent}
	if tracestate != "" {
		carrier[keyTracestate] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
