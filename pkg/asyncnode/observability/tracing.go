package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the asyncnode tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("asyncnode")

// SpanManager handles trace span lifecycle around worker runs.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartWorkerSpan starts a span for one worker's background task.
	StartWorkerSpan(ctx context.Context, nodeID string, workerIndex int) (context.Context, trace.Span)

	// StartProviderSpan starts a span for an AI provider call.
	// The provider span should be a child of the worker span.
	StartProviderSpan(ctx context.Context, provider, model string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartWorkerSpan starts a span for one worker's background task.
func (m *otelSpanManager) StartWorkerSpan(ctx context.Context, nodeID string, workerIndex int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "asyncnode.worker",
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.Int("worker.index", workerIndex),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartProviderSpan starts a span for an AI provider call.
func (m *otelSpanManager) StartProviderSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "asyncnode.provider."+provider,
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
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

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
