package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "simgate"

// StartToolSpan starts a span for one tool invocation.
func StartToolSpan(ctx context.Context, tool, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool",
		trace.WithAttributes(
			attribute.String("tool.name", tool),
			attribute.String("session.id", sessionID),
		),
	)
}

// StartEngineSpan starts a span for a simulation engine call.
func StartEngineSpan(ctx context.Context, inputHash string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "engine.simulate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("simulation.input_hash", inputHash),
		),
	)
}
