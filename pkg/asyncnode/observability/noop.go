package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordTransition does nothing.
func (NoopMetrics) RecordTransition(_ context.Context, _, _ string, _ bool) {}

// RecordDebounce does nothing.
func (NoopMetrics) RecordDebounce(_ context.Context, _ string, _ bool) {}

// RecordWorker does nothing.
func (NoopMetrics) RecordWorker(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordAICall does nothing.
func (NoopMetrics) RecordAICall(_ context.Context, _, _ string, _ time.Duration, _, _ int64, _ error) {
}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
// We use the OTel noop package for a proper no-op span implementation.
var noopSpan = noop.Span{}

// StartWorkerSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartWorkerSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartProviderSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartProviderSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
