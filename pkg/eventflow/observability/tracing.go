package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("eventflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartEmitSpan starts a span for a flat emission.
	StartEmitSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span)

	// StartDispatchSpan starts a span for a hierarchical dispatch.
	StartDispatchSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartEmitSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span) {
	return StartEmitSpan(ctx, eventType, eventID)
}

func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span) {
	return StartDispatchSpan(ctx, eventType, eventID)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartEmitSpan starts a span named "eventflow.emit" using the global tracer.
func StartEmitSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span) {
	return startSpan(ctx, "eventflow.emit", eventType, eventID)
}

// StartDispatchSpan starts a span named "eventflow.dispatch" using the global tracer.
func StartDispatchSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span) {
	return startSpan(ctx, "eventflow.dispatch", eventType, eventID)
}

// startSpan accepts a nil ctx.
func startSpan(ctx context.Context, name, eventType, eventID string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("event.id", eventID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
