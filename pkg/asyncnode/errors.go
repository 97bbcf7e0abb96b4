package asyncnode

import "fmt"

// ErrManagerClosed is the panic value when a StateManager is used after
// Close. Using a closed manager is a programming error, not a runtime
// condition.
const ErrManagerClosed = managerClosedError("asyncnode: state manager used after Close")

type managerClosedError string

func (e managerClosedError) Error() string { return string(e) }

// WorkerError wraps a fault from a worker task with node context.
type WorkerError struct {
	// NodeID is the owning node instance.
	NodeID string
	// Op is the phase that failed ("gather", "work", "output").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s on node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *WorkerError) Unwrap() error {
	return e.Err
}

// WorkerPanicError captures panic information from a worker task.
// It includes the stack trace for debugging.
type WorkerPanicError struct {
	// NodeID is the owning node instance.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *WorkerPanicError) Error() string {
	return fmt.Sprintf("worker on node %s panicked: %v", e.NodeID, e.Value)
}
