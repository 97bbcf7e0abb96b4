package asyncnode

import "time"

// Events are the notifications a StateManager fires as it works. All
// callbacks are fire-and-forget: they are invoked synchronously but
// outside the manager's locks, so handlers may call back into the
// manager. They are not synchronization primitives and must not be
// treated as such.
//
// Nil callbacks are skipped.
type Events struct {
	// StateChanged fires after every accepted transition.
	StateChanged func(old, new State)

	// StateEntered fires after StateChanged with the new state.
	StateEntered func(s State)

	// StateExited fires before StateChanged with the old state.
	StateExited func(s State)

	// DebounceStarted fires when a debounce timer is armed.
	DebounceStarted func(target State, d time.Duration)

	// DebounceCancelled fires when a pending debounce is disarmed.
	DebounceCancelled func()

	// TransitionRejected fires when a requested transition fails
	// validation, either at request time or at dequeue time.
	TransitionRejected func(current, requested State, detail string)
}
