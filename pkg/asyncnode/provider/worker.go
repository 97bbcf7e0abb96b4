package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halverson/asyncnode/pkg/asyncnode/host"
	"github.com/halverson/asyncnode/pkg/asyncnode/observability"
	"github.com/halverson/asyncnode/pkg/asyncnode/persist"
)

// Input parameter names a CompletionWorker reads.
const (
	InputPrompt = "prompt"
	InputSystem = "system"
	InputModel  = "model"
)

// ErrEmptyPrompt means the prompt input had no usable text.
var ErrEmptyPrompt = errors.New("provider: prompt input is empty")

// CompletionWorker runs one AI completion per solve run. Input is
// gathered on the host thread, the provider call happens on the
// background goroutine, and the completion text is written back on the
// host thread.
type CompletionWorker struct {
	provider Provider
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager

	outputIndex int
	outputGUID  uuid.UUID
	persistFn   func(uuid.UUID, persist.Value)

	req  Request
	resp Response
}

// CompletionWorkerOption configures a CompletionWorker.
type CompletionWorkerOption func(*CompletionWorker)

// WithWorkerMetrics sets the metrics recorder for AI-call accounting.
func WithWorkerMetrics(rec observability.MetricsRecorder) CompletionWorkerOption {
	return func(w *CompletionWorker) { w.metrics = rec }
}

// WithWorkerSpans sets the span manager for provider-call tracing.
func WithWorkerSpans(spans observability.SpanManager) CompletionWorkerOption {
	return func(w *CompletionWorker) { w.spans = spans }
}

// WithPersistFunc sets the callback that records the completion text
// for persistence, keyed by the output parameter's GUID.
func WithPersistFunc(fn func(uuid.UUID, persist.Value)) CompletionWorkerOption {
	return func(w *CompletionWorker) { w.persistFn = fn }
}

// NewCompletionWorker creates a worker that writes its completion text
// to the given output slot.
func NewCompletionWorker(p Provider, outputIndex int, outputGUID uuid.UUID, opts ...CompletionWorkerOption) *CompletionWorker {
	w := &CompletionWorker{
		provider:    p,
		metrics:     observability.NoopMetrics{},
		spans:       observability.NoopSpanManager{},
		outputIndex: outputIndex,
		outputGUID:  outputGUID,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// GatherInput copies the prompt, system, and model inputs into the
// worker. The prompt is required; the rest default sensibly.
func (w *CompletionWorker) GatherInput(da host.DataAccess) (int, error) {
	prompt, ok := da.GetData(InputPrompt)
	if !ok {
		return 0, ErrEmptyPrompt
	}
	text, _ := prompt.(string)
	if text == "" {
		return 0, ErrEmptyPrompt
	}
	w.req.Prompt = text

	count := 1
	if v, ok := da.GetData(InputSystem); ok {
		if s, _ := v.(string); s != "" {
			w.req.System = s
			count++
		}
	}
	if v, ok := da.GetData(InputModel); ok {
		if s, _ := v.(string); s != "" {
			w.req.Model = s
			count++
		}
	}
	return count, nil
}

// DoWork calls the provider. Runs on the background goroutine.
func (w *CompletionWorker) DoWork(ctx context.Context) error {
	callCtx, span := w.spans.StartProviderSpan(ctx, w.provider.Name(), w.req.Model)
	start := time.Now()

	resp, err := w.provider.Complete(callCtx, w.req)

	w.metrics.RecordAICall(ctx, w.provider.Name(), resp.Model, time.Since(start),
		int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), err)
	w.spans.EndSpanWithError(span, err)

	if err != nil {
		return err
	}
	w.resp = resp
	return nil
}

// SetOutput writes the completion text to the output slot and records it
// for persistence. Runs on the host thread.
func (w *CompletionWorker) SetOutput(da host.DataAccess) (string, error) {
	if err := da.SetData(w.outputIndex, w.resp.Text); err != nil {
		return "", err
	}
	if w.persistFn != nil {
		w.persistFn(w.outputGUID, persist.TextValue(w.resp.Text))
	}
	return fmt.Sprintf("%s: %d tokens", w.resp.Model, w.resp.Usage.TotalTokens()), nil
}
