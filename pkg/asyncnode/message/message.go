// Package message stores keyed runtime diagnostics for a node. The host
// clears its own diagnostic buffer on every solve pass, so messages that
// should outlive a single pass (needs-run hints, cancellation notices,
// provider failures) live here and are re-applied each time the host asks.
//
// Messages are keyed: setting the same key again replaces the previous
// text instead of stacking, which keeps repeated failures from
// accumulating into a wall of identical diagnostics.
package message

import (
	"sort"
	"sync"
)

// Severity classifies a runtime message.
type Severity int

// Severity levels, mildest first.
const (
	Remark Severity = iota
	Warning
	Error
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case Remark:
		return "remark"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Well-known message keys used by the component runtime.
const (
	KeyNeedsRun  = "needs_run"
	KeyCancelled = "cancelled"
	KeyWorker    = "worker_fault"
	KeyProvider  = "provider_error"
)

// Message is one keyed diagnostic.
type Message struct {
	Key      string
	Severity Severity
	Text     string
}

// Store is a thread-safe keyed message map.
// The zero value is not usable; call NewStore.
type Store struct {
	mu       sync.RWMutex
	messages map[string]Message
}

// NewStore creates an empty message store.
func NewStore() *Store {
	return &Store{messages: make(map[string]Message)}
}

// Set adds or replaces the message under key.
func (s *Store) Set(key string, sev Severity, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[key] = Message{Key: key, Severity: sev, Text: text}
}

// Clear removes the message under key. Clearing an absent key is a no-op.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, key)
}

// ClearAll removes every message.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[string]Message)
}

// Get returns the message under key.
func (s *Store) Get(key string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[key]
	return m, ok
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Snapshot returns all messages sorted by key. Hosts call this on every
// solve pass to re-apply diagnostics after their own buffer was cleared.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
