// Package tracing holds span helpers shared by the sync loop and its sources.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on tick and fetch spans.
const (
	AttrPlugin      = attribute.Key("plugin.name")
	AttrTickID      = attribute.Key("tick.id")
	AttrOutcome     = attribute.Key("tick.outcome")
	AttrReason      = attribute.Key("tick.reason")
	AttrDestination = attribute.Key("tick.destination")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when
// tracer is nil.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed with description.
// An empty description falls back to a generic one so that rendered content
// never leaks into the span status.
func RecordError(span trace.Span, err error, description string) {
	if err == nil || span == nil {
		return
	}
	if description == "" {
		description = "operation failed"
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}
