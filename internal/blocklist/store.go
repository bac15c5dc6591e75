// Package blocklist holds the process-wide block configuration.
package blocklist

import (
	"sync"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// Store is the single shared BlockConfiguration.
// Updates are total replacements; the last writer wins.
type Store struct {
	mu  sync.RWMutex
	cfg domain.BlockConfiguration
}

// NewStore creates a store with monitoring disabled and nothing blocked.
func NewStore() *Store {
	return &Store{cfg: domain.NewBlockConfiguration(false, nil)}
}

// NewStoreWith creates a store seeded with cfg.
func NewStoreWith(cfg domain.BlockConfiguration) *Store {
	return &Store{cfg: cfg.Clone()}
}

// SetEnabled replaces the enabled flag.
func (s *Store) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = domain.BlockConfiguration{Enabled: enabled, BlockedIDs: s.cfg.BlockedIDs}
}

// SetBlockedIDs replaces the blocked set.
func (s *Store) SetBlockedIDs(ids []domain.AppID) {
	next := domain.NewBlockConfiguration(false, ids)

	s.mu.Lock()
	defer s.mu.Unlock()
	next.Enabled = s.cfg.Enabled
	s.cfg = next
}

// Replace swaps in a whole configuration.
func (s *Store) Replace(cfg domain.BlockConfiguration) {
	next := cfg.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = next
}

// Snapshot returns the current configuration.
// The blocked set is never mutated in place, so the returned value is stable.
func (s *Store) Snapshot() domain.BlockConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}
