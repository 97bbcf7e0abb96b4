package asyncnode

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halverson/asyncnode/pkg/asyncnode/hash"
	"github.com/halverson/asyncnode/pkg/asyncnode/observability"
)

// StateManager is the explicit, thread-safe finite state machine governing
// one node's run lifecycle. It validates transitions against the table in
// state.go, serializes them through a FIFO queue with a re-entrancy guard,
// schedules debounced transitions with a generation-counted single-shot
// timer, and tracks dual pending/committed input fingerprints with a
// restoration-aware suppression gate.
//
// Two dedicated locks guard independent concerns: stateLock for the
// current state, the transition queue, and the debounce session; hashLock
// for the fingerprint dictionaries and the suppression gate. Hash updates
// are frequent and cheap; transitions are rarer and fire events.
type StateManager struct {
	nodeID  string
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	events  Events

	stateLock sync.Mutex
	current   State
	queue     []TransitionRequest
	draining  bool

	// Debounce session. A session is stale the instant a newer one
	// starts; the generation counter is what an expired timer checks
	// before acting.
	debounceGen      uint64
	debounceTarget   State
	debounceDuration time.Duration
	debounceTimer    *time.Timer

	hashLock  sync.Mutex
	pending   map[string]hash.Fingerprint
	committed map[string]hash.Fingerprint

	// Restoration suppression gate: restoring covers BeginRestoration
	// through EndRestoration; suppressFirstSolve extends the window
	// through the first solve call after EndRestoration.
	restoring          bool
	suppressFirstSolve bool

	closed atomic.Bool
}

// ManagerOption configures a StateManager.
type ManagerOption func(*StateManager)

// WithManagerLogger sets the logger. Nil disables logging.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *StateManager) { m.logger = logger }
}

// WithManagerMetrics sets the metrics recorder.
func WithManagerMetrics(rec observability.MetricsRecorder) ManagerOption {
	return func(m *StateManager) { m.metrics = rec }
}

// WithManagerEvents sets the event callbacks.
func WithManagerEvents(ev Events) ManagerOption {
	return func(m *StateManager) { m.events = ev }
}

// WithInitialState sets the starting state. Default: StateCompleted.
func WithInitialState(s State) ManagerOption {
	return func(m *StateManager) { m.current = s }
}

// NewStateManager creates a state manager for one node instance.
// The node starts in StateCompleted unless WithInitialState says
// otherwise.
func NewStateManager(nodeID string, opts ...ManagerOption) *StateManager {
	m := &StateManager{
		nodeID:    nodeID,
		metrics:   observability.NoopMetrics{},
		current:   StateCompleted,
		pending:   make(map[string]hash.Fingerprint),
		committed: make(map[string]hash.Fingerprint),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *StateManager) ensureOpen() {
	if m.closed.Load() {
		panic(ErrManagerClosed)
	}
}

// Current returns the current state.
func (m *StateManager) Current() State {
	m.ensureOpen()
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	return m.current
}

// RequestTransition validates a transition against the current state,
// enqueues it, and drains the queue if no drain is already in progress.
// Returns false (and fires TransitionRejected) if the transition is
// invalid from the current state.
//
// Requests are re-validated at dequeue time: concurrent requests land in
// submission order, but execution reflects the latest known state, so a
// request that was valid when submitted may still be discarded.
func (m *StateManager) RequestTransition(target State, reason Reason) bool {
	m.ensureOpen()

	m.stateLock.Lock()
	if !IsValidTransition(m.current, target) {
		current := m.current
		m.stateLock.Unlock()
		m.reject(current, target, "invalid at request time")
		return false
	}

	m.queue = append(m.queue, TransitionRequest{
		Target:    target,
		Reason:    reason,
		Timestamp: time.Now(),
	})

	if m.draining {
		// Another call is already draining; it will pick this up.
		m.stateLock.Unlock()
		return true
	}
	m.draining = true
	m.drain()
	return true
}

// ForceState bypasses validation entirely and moves straight to target.
// Intended for explicit developer/debug resets and for cancellation,
// where consistency with abandoned work outranks the table.
func (m *StateManager) ForceState(target State) {
	m.ensureOpen()

	m.stateLock.Lock()
	if m.current == target {
		m.stateLock.Unlock()
		return
	}
	old := m.current
	m.current = target
	m.stateLock.Unlock()

	m.fireTransition(old, target, "forced")
}

// drain processes queued requests in FIFO order. Called with stateLock
// held and draining set; it releases the lock around event callbacks so
// handlers can re-enter the manager (re-entrant requests queue up and are
// picked up by this loop).
func (m *StateManager) drain() {
	for {
		if len(m.queue) == 0 {
			m.draining = false
			m.stateLock.Unlock()
			return
		}
		req := m.queue[0]
		m.queue = m.queue[1:]

		if !IsValidTransition(m.current, req.Target) {
			current := m.current
			m.stateLock.Unlock()
			m.reject(current, req.Target, "invalid at dequeue time")
			m.stateLock.Lock()
			continue
		}

		old := m.current
		m.current = req.Target
		m.stateLock.Unlock()

		observability.LogTransition(m.logger, m.nodeID, old.String(), req.Target.String(), req.Reason.String())
		m.fireTransition(old, req.Target, req.Reason.String())

		m.stateLock.Lock()
	}
}

func (m *StateManager) fireTransition(old, new State, _ string) {
	m.metrics.RecordTransition(context.Background(), old.String(), new.String(), true)
	if m.events.StateExited != nil {
		m.events.StateExited(old)
	}
	if m.events.StateChanged != nil {
		m.events.StateChanged(old, new)
	}
	if m.events.StateEntered != nil {
		m.events.StateEntered(new)
	}
}

func (m *StateManager) reject(current, requested State, detail string) {
	observability.LogTransitionRejected(m.logger, m.nodeID, current.String(), requested.String())
	m.metrics.RecordTransition(context.Background(), current.String(), requested.String(), false)
	if m.events.TransitionRejected != nil {
		m.events.TransitionRejected(current, requested, detail)
	}
}

// StartDebounce arms a single-shot timer that will request a transition
// to target after d elapses. Re-arming supersedes any pending session:
// the generation counter advances and the previous timer's callback,
// even if the system timer still fires, discards itself.
//
// A duration <= 0 short-circuits to an immediate RequestTransition.
func (m *StateManager) StartDebounce(target State, d time.Duration) {
	m.ensureOpen()

	m.stateLock.Lock()
	m.debounceGen++
	gen := m.debounceGen

	if d <= 0 {
		m.debounceDuration = 0
		m.stateLock.Unlock()
		m.RequestTransition(target, ReasonDebounceComplete)
		return
	}

	m.debounceTarget = target
	m.debounceDuration = d
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.AfterFunc(d, func() { m.debounceFired(gen) })
	m.stateLock.Unlock()

	observability.LogDebounceArmed(m.logger, m.nodeID, target.String(), d, gen)
	m.metrics.RecordDebounce(context.Background(), target.String(), false)
	if m.events.DebounceStarted != nil {
		m.events.DebounceStarted(target, d)
	}
}

// CancelDebounce disarms any pending debounce and bumps the generation so
// an already-fired callback becomes stale.
func (m *StateManager) CancelDebounce() {
	m.ensureOpen()

	m.stateLock.Lock()
	m.debounceGen++
	armed := m.debounceDuration > 0
	m.debounceDuration = 0
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
	m.stateLock.Unlock()

	if armed && m.events.DebounceCancelled != nil {
		m.events.DebounceCancelled()
	}
}

// debounceFired is the timer callback. Stopping a system timer does not
// guarantee its callback will not run, so the callback itself is the
// race guard: it claims the session by zeroing the stored duration, then
// checks its captured generation against the live one and the captured
// target against the live state's transition table. Any mismatch is a
// silent discard.
func (m *StateManager) debounceFired(gen uint64) {
	if m.closed.Load() {
		return
	}

	m.stateLock.Lock()
	if gen != m.debounceGen || m.debounceDuration == 0 {
		current := m.debounceGen
		m.stateLock.Unlock()
		observability.LogDebounceDiscarded(m.logger, m.nodeID, gen, current)
		m.metrics.RecordDebounce(context.Background(), "", true)
		return
	}
	target := m.debounceTarget
	m.debounceDuration = 0

	if !IsValidTransition(m.current, target) {
		m.stateLock.Unlock()
		m.metrics.RecordDebounce(context.Background(), target.String(), true)
		return
	}
	m.stateLock.Unlock()

	m.RequestTransition(target, ReasonDebounceComplete)
}

// BeginRestoration opens the suppression window: input-change detection
// is disabled until the first solve call after EndRestoration completes.
// Loading a file with saved hashes must never itself register as a
// change.
func (m *StateManager) BeginRestoration() {
	m.ensureOpen()
	m.hashLock.Lock()
	defer m.hashLock.Unlock()
	m.restoring = true
	m.suppressFirstSolve = true
}

// EndRestoration closes the restoration phase. Suppression remains
// active until ClearSuppressionAfterFirstSolve is called from a solve
// pass.
func (m *StateManager) EndRestoration() {
	m.ensureOpen()
	m.hashLock.Lock()
	defer m.hashLock.Unlock()
	m.restoring = false
}

// ClearSuppressionAfterFirstSolve ends the suppression window. Call at
// the end of every solve pass; it is a no-op unless EndRestoration has
// already run, so calling it mid-restoration never unfreezes detection
// early.
func (m *StateManager) ClearSuppressionAfterFirstSolve() {
	m.ensureOpen()
	m.hashLock.Lock()
	defer m.hashLock.Unlock()
	if !m.restoring {
		m.suppressFirstSolve = false
	}
}

// Suppressed reports whether input-change detection is currently
// suppressed.
func (m *StateManager) Suppressed() bool {
	m.ensureOpen()
	m.hashLock.Lock()
	defer m.hashLock.Unlock()
	return m.restoring || m.suppressFirstSolve
}

// UpdatePendingHashes replaces the pending fingerprint set with a copy
// of fps, reflecting the live canvas state as of the current solve call.
func (m *StateManager) UpdatePendingHashes(fps map[string]hash.Fingerprint) {
	m.ensureOpen()
	m.hashLock.Lock()
	defer m.hashLock.Unlock()
	m.pending = make(map[string]hash.Fingerprint, len(fps))
	for name, fp := range fps {
		m.pending[name] = fp
	}
}

// CommitHashes promotes the pending set to the committed baseline.
// Called only on successful completion of processing; this split is what
// keeps a node from perpetually re-triggering itself mid-run.
func (m *StateManager) CommitHashes() {
	m.ensureOpen()
	m.hashLock.Lock()
	defer m.hashLock.Unlock()
	m.committed = make(map[string]hash.Fingerprint, len(m.pending))
	for name, fp := range m.pending {
		m.committed[name] = fp
	}
}

// RestoreCommittedHashes installs fingerprints read from a saved
// document as the committed baseline, and mirrors them into pending so
// the load itself does not appear as a diff.
func (m *StateManager) RestoreCommittedHashes(fps map[string]hash.Fingerprint) {
	m.ensureOpen()
	m.hashLock.Lock()
	defer m.hashLock.Unlock()
	m.committed = make(map[string]hash.Fingerprint, len(fps))
	m.pending = make(map[string]hash.Fingerprint, len(fps))
	for name, fp := range fps {
		m.committed[name] = fp
		m.pending[name] = fp
	}
}

// CommittedHashes returns a copy of the committed baseline, for
// persistence at document save.
func (m *StateManager) CommittedHashes() map[string]hash.Fingerprint {
	m.ensureOpen()
	m.hashLock.Lock()
	defer m.hashLock.Unlock()
	out := make(map[string]hash.Fingerprint, len(m.committed))
	for name, fp := range m.committed {
		out[name] = fp
	}
	return out
}

// GetChangedInputs returns the names of inputs whose pending fingerprint
// differs from the committed baseline, sorted. Returns nil while
// suppression is active, even if the sets differ.
func (m *StateManager) GetChangedInputs() []string {
	m.ensureOpen()
	m.hashLock.Lock()
	defer m.hashLock.Unlock()
	if m.restoring || m.suppressFirstSolve {
		return nil
	}
	return hash.Changed(m.pending, m.committed)
}

// Close disposes the manager. Any subsequent operation panics with
// ErrManagerClosed.
func (m *StateManager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.stateLock.Lock()
	m.debounceGen++
	m.debounceDuration = 0
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
	m.stateLock.Unlock()
}
