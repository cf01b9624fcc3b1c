package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// SpanLookup starts a span for a store lookup.
func SpanLookup(ctx context.Context, entity, by string) (context.Context, trace.Span) {
	return StartSpan(ctx, "kidentity."+entity+".find",
		AttrEntity.String(entity),
		AttrLookup.String(by),
	)
}

// SpanFlush starts a span for a session flush.
func SpanFlush(ctx context.Context, operations int) (context.Context, trace.Span) {
	return StartSpan(ctx, "kidentity.session.flush", AttrOperation.Int(operations))
}

// SetSpanError marks a span as having an error.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// EndSpan ends a span, recording err when non-nil.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		SetSpanError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
