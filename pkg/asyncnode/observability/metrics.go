package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records component runtime metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordTransition records a state transition, accepted or rejected.
	RecordTransition(ctx context.Context, from, to string, accepted bool)

	// RecordDebounce records a debounce arm or a stale-callback discard.
	RecordDebounce(ctx context.Context, target string, discarded bool)

	// RecordWorker records a worker run with its duration and error status.
	RecordWorker(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordAICall records an AI provider call with token usage.
	RecordAICall(ctx context.Context, provider, model string, duration time.Duration, inputTokens, outputTokens int64, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	transitions    metric.Int64Counter
	rejections     metric.Int64Counter
	debounceArms   metric.Int64Counter
	debounceStale  metric.Int64Counter
	workerRuns     metric.Int64Counter
	workerLatency  metric.Float64Histogram
	workerErrors   metric.Int64Counter
	aiCalls        metric.Int64Counter
	aiLatency      metric.Float64Histogram
	aiInputTokens  metric.Int64Counter
	aiOutputTokens metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("asyncnode")

	transitions, err := meter.Int64Counter("asyncnode.state.transitions",
		metric.WithDescription("Number of accepted state transitions"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter("asyncnode.state.rejections",
		metric.WithDescription("Number of rejected transition requests"),
	)
	if err != nil {
		return nil, err
	}

	debounceArms, err := meter.Int64Counter("asyncnode.debounce.arms",
		metric.WithDescription("Number of debounce timers armed"),
	)
	if err != nil {
		return nil, err
	}

	debounceStale, err := meter.Int64Counter("asyncnode.debounce.stale_discards",
		metric.WithDescription("Number of stale debounce callbacks discarded"),
	)
	if err != nil {
		return nil, err
	}

	workerRuns, err := meter.Int64Counter("asyncnode.worker.runs",
		metric.WithDescription("Number of worker task runs"),
	)
	if err != nil {
		return nil, err
	}

	workerLatency, err := meter.Float64Histogram("asyncnode.worker.latency_ms",
		metric.WithDescription("Worker task latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	workerErrors, err := meter.Int64Counter("asyncnode.worker.errors",
		metric.WithDescription("Number of worker task faults"),
	)
	if err != nil {
		return nil, err
	}

	aiCalls, err := meter.Int64Counter("asyncnode.ai.calls",
		metric.WithDescription("Number of AI provider calls"),
	)
	if err != nil {
		return nil, err
	}

	aiLatency, err := meter.Float64Histogram("asyncnode.ai.latency_ms",
		metric.WithDescription("AI provider call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	aiInputTokens, err := meter.Int64Counter("asyncnode.ai.input_tokens",
		metric.WithDescription("AI provider input tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	aiOutputTokens, err := meter.Int64Counter("asyncnode.ai.output_tokens",
		metric.WithDescription("AI provider output tokens produced"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		transitions:    transitions,
		rejections:     rejections,
		debounceArms:   debounceArms,
		debounceStale:  debounceStale,
		workerRuns:     workerRuns,
		workerLatency:  workerLatency,
		workerErrors:   workerErrors,
		aiCalls:        aiCalls,
		aiLatency:      aiLatency,
		aiInputTokens:  aiInputTokens,
		aiOutputTokens: aiOutputTokens,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordTransition records a state transition.
func (m *otelMetrics) RecordTransition(ctx context.Context, from, to string, accepted bool) {
	attrs := []attribute.KeyValue{
		attribute.String("from", from),
		attribute.String("to", to),
	}
	if accepted {
		m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		m.rejections.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordDebounce records debounce activity.
func (m *otelMetrics) RecordDebounce(ctx context.Context, target string, discarded bool) {
	attrs := []attribute.KeyValue{
		attribute.String("target", target),
	}
	if discarded {
		m.debounceStale.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		m.debounceArms.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordWorker records a worker run.
func (m *otelMetrics) RecordWorker(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_id", nodeID),
	}

	m.workerRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.workerLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.workerErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordAICall records an AI provider call.
func (m *otelMetrics) RecordAICall(ctx context.Context, provider, model string, duration time.Duration, inputTokens, outputTokens int64, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("success", err == nil),
	}

	m.aiCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.aiLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.aiInputTokens.Add(ctx, inputTokens, metric.WithAttributes(attrs...))
	m.aiOutputTokens.Add(ctx, outputTokens, metric.WithAttributes(attrs...))
}
