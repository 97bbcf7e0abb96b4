// Package observability provides structured logging, metrics, and tracing
// for the component runtime.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds component context to a logger.
// Returns a new logger with node_id and component fields.
func EnrichLogger(logger *slog.Logger, nodeID, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("node_id", nodeID),
		slog.String("component", component),
	)
}

// LogTransition logs a completed state transition.
func LogTransition(logger *slog.Logger, nodeID, from, to, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("state transition",
		slog.String("node_id", nodeID),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("reason", reason),
	)
}

// LogTransitionRejected logs a transition request that failed validation.
// Rejections are a normal consequence of racing UI events, hence Debug.
func LogTransitionRejected(logger *slog.Logger, nodeID, current, requested string) {
	if logger == nil {
		return
	}
	logger.Debug("transition rejected",
		slog.String("node_id", nodeID),
		slog.String("current", current),
		slog.String("requested", requested),
	)
}

// LogDebounceArmed logs a debounce timer being armed.
func LogDebounceArmed(logger *slog.Logger, nodeID, target string, duration time.Duration, generation uint64) {
	if logger == nil {
		return
	}
	logger.Debug("debounce armed",
		slog.String("node_id", nodeID),
		slog.String("target", target),
		slog.Duration("duration", duration),
		slog.Uint64("generation", generation),
	)
}

// LogDebounceDiscarded logs a stale debounce callback being discarded.
func LogDebounceDiscarded(logger *slog.Logger, nodeID string, captured, current uint64) {
	if logger == nil {
		return
	}
	logger.Debug("stale debounce discarded",
		slog.String("node_id", nodeID),
		slog.Uint64("captured_generation", captured),
		slog.Uint64("current_generation", current),
	)
}

// LogWorkerStart logs a worker's background task launching.
func LogWorkerStart(logger *slog.Logger, nodeID string, workerIndex int) {
	if logger == nil {
		return
	}
	logger.Debug("worker started",
		slog.String("node_id", nodeID),
		slog.Int("worker", workerIndex),
	)
}

// LogWorkerComplete logs successful worker completion.
func LogWorkerComplete(logger *slog.Logger, nodeID string, workerIndex int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("worker completed",
		slog.String("node_id", nodeID),
		slog.Int("worker", workerIndex),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogWorkerError logs a worker task fault.
func LogWorkerError(logger *slog.Logger, nodeID string, workerIndex int, err error) {
	if logger == nil {
		return
	}
	logger.Error("worker failed",
		slog.String("node_id", nodeID),
		slog.Int("worker", workerIndex),
		slog.String("error", err.Error()),
	)
}

// LogRestore logs document-state restoration.
func LogRestore(logger *slog.Logger, nodeID string, hashCount, outputCount int) {
	if logger == nil {
		return
	}
	logger.Info("state restored",
		slog.String("node_id", nodeID),
		slog.Int("input_hashes", hashCount),
		slog.Int("outputs", outputCount),
	)
}

// LogRestoreError logs a failed restoration (non-fatal; treated as no
// persisted data).
func LogRestoreError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("state restore failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
