package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan creates a span for a CLI command execution.
//
// Usage:
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "take")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("commands")
	ctx, span := tracer.Start(ctx, "command."+cmdName)

	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)

	return ctx, span
}

// StartResolveSpan creates a span around fetching and expanding one document.
func StartResolveSpan(ctx context.Context, ref string) (context.Context, trace.Span) {
	ctx, span := GetTracerProvider().Tracer("ld").Start(ctx, "ld.resolve")
	span.SetAttributes(
		attribute.String("ld.ref", ref),
		attribute.String("component", "resolver"),
	)
	return ctx, span
}

// StartScreenSpan creates a span around building one screen model.
func StartScreenSpan(ctx context.Context, ref string) (context.Context, trace.Span) {
	ctx, span := GetTracerProvider().Tracer("screen").Start(ctx, "screen.build")
	span.SetAttributes(
		attribute.String("screen.ref", ref),
		attribute.String("component", "screen"),
	)
	return ctx, span
}

// StartActivitySpan creates a span for an activity controller operation
// such as "load" or "restore".
func StartActivitySpan(ctx context.Context, operation, ref string) (context.Context, trace.Span) {
	ctx, span := GetTracerProvider().Tracer("activity").Start(ctx, "activity."+operation)
	span.SetAttributes(
		attribute.String("activity.ref", ref),
		attribute.String("operation", operation),
		attribute.String("component", "activity"),
	)
	return ctx, span
}

// StartRequestSpan creates a server span for an HTTP API request.
func StartRequestSpan(ctx context.Context, method, route string) (context.Context, trace.Span) {
	ctx, span := GetTracerProvider().Tracer("server").Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("component", "server"),
	)
	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
// A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.Bool("error", true),
	)
}

// End records err (if any) or success on span and ends it.
//
// Usage:
//
//	ctx, span := telemetry.StartScreenSpan(ctx, ref)
//	defer func() { telemetry.End(span, err) }()
func End(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err != nil {
		span.SetAttributes(attrs...)
		RecordError(span, err)
	} else {
		RecordSuccess(span, attrs...)
	}
	span.End()
}
