package asyncnode

import "time"

// State is the run lifecycle of one node instance.
//
// The terminal-looking states (Completed, Cancelled, Error) are idle, not
// terminal: the node sits in them until the next input change or run
// toggle moves it forward again.
type State int

// Lifecycle states.
const (
	// StateCompleted: the last run finished and its outputs are current.
	StateCompleted State = iota
	// StateWaiting: run is enabled but the node is waiting for an input
	// change before it will process.
	StateWaiting
	// StateNeedsRun: inputs changed while run was disabled; the node
	// needs the user to enable run.
	StateNeedsRun
	// StateProcessing: a worker task is in flight.
	StateProcessing
	// StateCancelled: the in-flight work was abandoned on request.
	StateCancelled
	// StateError: the last run faulted. Recoverable by changing inputs
	// or re-running.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateWaiting:
		return "waiting"
	case StateNeedsRun:
		return "needs_run"
	case StateProcessing:
		return "processing"
	case StateCancelled:
		return "cancelled"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Reason records why a transition was requested.
type Reason int

// Transition reasons.
const (
	ReasonInputChanged Reason = iota
	ReasonRunEnabled
	ReasonRunDisabled
	ReasonDebounceComplete
	ReasonProcessingComplete
	ReasonCancelled
	ReasonError
	ReasonFileRestoration
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonInputChanged:
		return "input_changed"
	case ReasonRunEnabled:
		return "run_enabled"
	case ReasonRunDisabled:
		return "run_disabled"
	case ReasonDebounceComplete:
		return "debounce_complete"
	case ReasonProcessingComplete:
		return "processing_complete"
	case ReasonCancelled:
		return "cancelled"
	case ReasonError:
		return "error"
	case ReasonFileRestoration:
		return "file_restoration"
	default:
		return "unknown"
	}
}

// TransitionRequest is an immutable queued request to move the state
// machine to a target state.
type TransitionRequest struct {
	Target    State
	Reason    Reason
	Timestamp time.Time
}

// validTransitions is the explicit transition table. Transitions into
// StateError are always permitted regardless of this table; same-state
// transitions are always rejected.
var validTransitions = map[State][]State{
	StateCompleted:  {StateWaiting, StateNeedsRun, StateProcessing, StateError},
	StateWaiting:    {StateNeedsRun, StateProcessing, StateError},
	StateNeedsRun:   {StateProcessing, StateError},
	StateProcessing: {StateCompleted, StateCancelled, StateError},
	StateCancelled:  {StateWaiting, StateNeedsRun, StateProcessing, StateError},
	StateError:      {StateWaiting, StateNeedsRun, StateProcessing, StateError},
}

// IsValidTransition reports whether moving from one state to another is
// legal. Same-state moves are never valid; moves into StateError always
// are (the universal escape hatch for fatal conditions).
func IsValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	if to == StateError {
		return true
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
