package usecase

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/blocklist"
	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// BlockListService applies configuration changes to the live store and
// persists them. The store is updated first so monitoring reacts even when
// the repository write fails. Mutations and their saves are serialized so
// the persisted configuration never falls behind the live one.
type BlockListService struct {
	mu     sync.Mutex
	store  *blocklist.Store
	repo   domain.ConfigRepository
	logger *zap.Logger
}

// NewBlockListService creates the service. repo may be nil for an in-memory setup.
func NewBlockListService(store *blocklist.Store, repo domain.ConfigRepository, logger *zap.Logger) *BlockListService {
	return &BlockListService{store: store, repo: repo, logger: logger}
}

// Load restores the persisted configuration into the store.
// A missing configuration leaves the store untouched.
func (s *BlockListService) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		return nil
	}
	cfg, err := s.repo.LoadBlockConfiguration()
	if err != nil {
		return fmt.Errorf("failed to load block configuration: %w", err)
	}
	if cfg == nil {
		return nil
	}
	s.store.Replace(*cfg)
	s.logger.Info("block configuration restored",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("blocked", len(cfg.BlockedIDs)))
	return nil
}

// LoadOrSeed restores the persisted configuration, or installs and persists
// seed when nothing has been saved yet.
func (s *BlockListService) LoadOrSeed(seed domain.BlockConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		s.store.Replace(seed)
		return nil
	}
	cfg, err := s.repo.LoadBlockConfiguration()
	if err != nil {
		return fmt.Errorf("failed to load block configuration: %w", err)
	}
	if cfg != nil {
		s.store.Replace(*cfg)
		return nil
	}

	s.store.Replace(seed)
	s.logger.Info("block configuration seeded",
		zap.Bool("enabled", seed.Enabled),
		zap.Int("blocked", len(seed.BlockedIDs)))
	return s.persist()
}

// Snapshot returns the live configuration.
func (s *BlockListService) Snapshot() domain.BlockConfiguration {
	return s.store.Snapshot()
}

// SetBlockedIDs replaces the blocked set.
func (s *BlockListService) SetBlockedIDs(ids []domain.AppID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.SetBlockedIDs(ids)
	return s.persist()
}

// AddBlockedIDs adds ids to the blocked set.
func (s *BlockListService) AddBlockedIDs(ids []domain.AppID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.store.Snapshot().IDs()
	s.store.SetBlockedIDs(append(current, ids...))
	return s.persist()
}

// RemoveBlockedIDs removes ids from the blocked set.
func (s *BlockListService) RemoveBlockedIDs(ids []domain.AppID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[domain.AppID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	var keep []domain.AppID
	for _, id := range s.store.Snapshot().IDs() {
		if _, ok := drop[id]; !ok {
			keep = append(keep, id)
		}
	}
	s.store.SetBlockedIDs(keep)
	return s.persist()
}

// SetEnabled switches monitoring on or off.
func (s *BlockListService) SetEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.SetEnabled(enabled)
	return s.persist()
}

// persist saves the live configuration. Callers hold s.mu.
func (s *BlockListService) persist() error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SaveBlockConfiguration(s.store.Snapshot()); err != nil {
		return fmt.Errorf("failed to save block configuration: %w", err)
	}
	return nil
}
