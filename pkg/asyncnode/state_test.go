package asyncnode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateCompleted:  "completed",
		StateWaiting:    "waiting",
		StateNeedsRun:   "needs_run",
		StateProcessing: "processing",
		StateCancelled:  "cancelled",
		StateError:      "error",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
	assert.Equal(t, "unknown", State(99).String())
}

func TestIsValidTransition_SameStateAlwaysRejected(t *testing.T) {
	for _, s := range allStates() {
		assert.False(t, IsValidTransition(s, s), "self-transition from %s must be rejected", s)
	}
}

func TestIsValidTransition_ErrorAlwaysReachable(t *testing.T) {
	for _, s := range allStates() {
		if s == StateError {
			continue
		}
		assert.True(t, IsValidTransition(s, StateError), "error must be reachable from %s", s)
	}
}

func TestIsValidTransition_Table(t *testing.T) {
	type pair struct{ from, to State }
	valid := map[pair]bool{}
	add := func(from State, tos ...State) {
		for _, to := range tos {
			valid[pair{from, to}] = true
		}
	}

	add(StateCompleted, StateWaiting, StateNeedsRun, StateProcessing, StateError)
	add(StateWaiting, StateNeedsRun, StateProcessing, StateError)
	add(StateNeedsRun, StateProcessing, StateError)
	add(StateProcessing, StateCompleted, StateCancelled, StateError)
	add(StateCancelled, StateWaiting, StateNeedsRun, StateProcessing, StateError)
	add(StateError, StateWaiting, StateNeedsRun, StateProcessing)

	for _, from := range allStates() {
		for _, to := range allStates() {
			want := valid[pair{from, to}]
			assert.Equal(t, want, IsValidTransition(from, to),
				"transition %s -> %s", from, to)
		}
	}
}

func allStates() []State {
	return []State{
		StateCompleted, StateWaiting, StateNeedsRun,
		StateProcessing, StateCancelled, StateError,
	}
}
