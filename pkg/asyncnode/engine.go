package asyncnode

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/halverson/asyncnode/pkg/asyncnode/host"
	"github.com/halverson/asyncnode/pkg/asyncnode/observability"
)

// Engine drives workers through the two-phase solve protocol that makes
// a single synchronous entry point (the host's repeated solve call)
// drive asynchronous work without blocking the host thread.
//
// Phase 1 (Launch): gather input synchronously, start the worker's task
// on a background goroutine with a cancellable context, and return
// immediately without setting output.
//
// When the task finishes (success, fault, or panic) the engine flips the
// output-ready latch, parks the worker on the ready list, and schedules
// a re-solve on the host's UI thread.
//
// Phase 2 (Harvest): the re-triggered solve call writes each ready
// worker's output on the host thread, and once all workers are drained
// the engine resets to idle.
//
// A faulted task still advances the latch: partial failure is
// completion-with-error, never a hang.
type Engine struct {
	nodeID     string
	dispatcher host.Dispatcher
	expire     func()
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	timeout    time.Duration

	mu        sync.Mutex
	active    []*activeWorker
	ready     []*activeWorker
	latch     bool
	nextIndex int
}

// activeWorker pairs a worker with its cancellation source.
type activeWorker struct {
	worker Worker
	cancel context.CancelFunc
	index  int
	err    error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger. Nil disables logging.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithEngineMetrics sets the metrics recorder.
func WithEngineMetrics(rec observability.MetricsRecorder) EngineOption {
	return func(e *Engine) { e.metrics = rec }
}

// WithEngineSpans sets the span manager for worker tracing.
func WithEngineSpans(spans observability.SpanManager) EngineOption {
	return func(e *Engine) { e.spans = spans }
}

// WithWorkerTimeout sets a hard deadline on each worker's background
// task. Zero (the default) means no deadline: a worker that never
// observes cancellation is left to the owner's safety-net re-check.
func WithWorkerTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates an engine for one node instance. expire schedules a
// host re-solve (the ExpireSolution analogue) and is always invoked via
// the dispatcher.
func NewEngine(nodeID string, dispatcher host.Dispatcher, expire func(), opts ...EngineOption) *Engine {
	e := &Engine{
		nodeID:     nodeID,
		dispatcher: dispatcher,
		expire:     expire,
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Launch gathers input on the calling (host) thread and starts the
// worker's task on a background goroutine. Returns a gather error
// without starting the task.
func (e *Engine) Launch(da host.DataAccess, w Worker) error {
	if _, err := w.GatherInput(da); err != nil {
		return &WorkerError{NodeID: e.nodeID, Op: "gather", Err: err}
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	aw := &activeWorker{worker: w, cancel: cancel}

	e.mu.Lock()
	aw.index = e.nextIndex
	e.nextIndex++
	e.active = append(e.active, aw)
	e.mu.Unlock()

	observability.LogWorkerStart(e.logger, e.nodeID, aw.index)
	go e.run(ctx, aw)
	return nil
}

// run executes the worker's task with panic recovery, then advances the
// output-ready latch and schedules a host re-solve.
func (e *Engine) run(ctx context.Context, aw *activeWorker) {
	start := time.Now()
	workCtx, span := e.spans.StartWorkerSpan(ctx, e.nodeID, aw.index)

	func() {
		defer func() {
			if r := recover(); r != nil {
				aw.err = &WorkerPanicError{
					NodeID: e.nodeID,
					Value:  r,
					Stack:  string(debug.Stack()),
				}
			}
		}()
		if err := aw.worker.DoWork(workCtx); err != nil {
			aw.err = &WorkerError{NodeID: e.nodeID, Op: "work", Err: err}
		}
	}()

	duration := time.Since(start)
	e.spans.EndSpanWithError(span, aw.err)
	e.metrics.RecordWorker(ctx, e.nodeID, duration, aw.err)

	if aw.err != nil {
		observability.LogWorkerError(e.logger, e.nodeID, aw.index, aw.err)
	} else {
		observability.LogWorkerComplete(e.logger, e.nodeID, aw.index, float64(duration.Milliseconds()))
	}

	// Faulted or not, the worker is ready for harvest. The latch must
	// advance so the owner never waits on output that cannot arrive.
	e.mu.Lock()
	e.ready = append(e.ready, aw)
	e.latch = true
	e.mu.Unlock()

	e.dispatcher.Invoke(e.expire)
}

// OutputReady reports whether at least one worker has finished and is
// awaiting harvest.
func (e *Engine) OutputReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latch
}

// ActiveCount returns the number of workers launched and not yet
// harvested or flushed.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Harvest writes each ready worker's output through the data-access
// handle. Must run on the host thread, since output parameters are not
// thread-safe.
//
// Returns drained=true once every launched worker has been harvested
// and the engine is back to idle. status carries the last non-empty
// worker status message. err is the first worker fault, if any; a fault
// does not stop harvesting of the remaining workers.
func (e *Engine) Harvest(da host.DataAccess) (drained bool, status string, err error) {
	e.mu.Lock()
	ready := e.ready
	e.ready = nil
	e.mu.Unlock()

	for _, aw := range ready {
		if aw.err != nil {
			if err == nil {
				err = aw.err
			}
		} else if msg, outErr := aw.worker.SetOutput(da); outErr != nil {
			if err == nil {
				err = &WorkerError{NodeID: e.nodeID, Op: "output", Err: outErr}
			}
		} else if msg != "" {
			status = msg
		}
		aw.cancel()
		e.remove(aw)
	}

	e.mu.Lock()
	drained = len(e.active) == 0 && len(e.ready) == 0
	e.latch = len(e.ready) > 0
	e.mu.Unlock()
	return drained, status, err
}

// CancelAll cancels every active worker's context. Cancellation is
// cooperative: tasks that ignore the context keep running, but their
// results will be flushed rather than harvested.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	workers := make([]*activeWorker, len(e.active))
	copy(workers, e.active)
	e.mu.Unlock()

	for _, aw := range workers {
		aw.cancel()
	}
}

// Flush discards ready workers without writing their outputs. Used after
// cancellation: late results from abandoned work are never trusted. A
// result that lands while the flush is in progress stays latched for the
// next pass.
func (e *Engine) Flush() {
	e.mu.Lock()
	ready := e.ready
	e.ready = nil
	e.mu.Unlock()

	for _, aw := range ready {
		aw.cancel()
		e.remove(aw)
	}

	e.mu.Lock()
	e.latch = len(e.ready) > 0
	e.mu.Unlock()
}

func (e *Engine) remove(target *activeWorker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, aw := range e.active {
		if aw == target {
			e.active = append(e.active[:i], e.active[i+1:]...)
			return
		}
	}
}
