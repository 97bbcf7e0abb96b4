package config

import (
	"sync"
	"time"

	"github.com/halverson/asyncnode/pkg/asyncnode/host"
)

// DefaultDebounce is used when no debounce_ms key is configured.
const DefaultDebounce = 1500 * time.Millisecond

// Settings is a host.Settings implementation backed by a Config.
// The backing config can be swapped at runtime (e.g. when the user edits
// preferences); DebounceTime always reads the current value, matching the
// runtime's read-fresh-on-every-arm contract.
type Settings struct {
	mu  sync.RWMutex
	cfg Config
}

var _ host.Settings = (*Settings)(nil)

// NewSettings creates a Settings view over cfg.
func NewSettings(cfg Config) *Settings {
	return &Settings{cfg: cfg}
}

// DebounceTime returns the configured debounce window.
// Key: "debounce_ms" (integer milliseconds or a duration string).
func (s *Settings) DebounceTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Duration("debounce_ms", DefaultDebounce)
}

// Replace swaps the backing config.
func (s *Settings) Replace(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
