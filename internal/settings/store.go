// Package settings provides process-wide access to the runtime bot settings.
package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/robalyx/cotd/internal/database/types"
	"go.uber.org/zap"
)

// Persister loads and saves the settings row.
type Persister interface {
	GetBotSettings(ctx context.Context, defaults types.BotSetting) (*types.BotSetting, error)
	SaveBotSettings(ctx context.Context, settings *types.BotSetting) error
}

// Snapshot is a point-in-time copy of the settings.
type Snapshot struct {
	NotificationsEnabled bool `json:"notificationsEnabled"`
}

// Store guards the settings behind a mutex. Reads go through the persister,
// which caches the row, and fall back to the last known values when it fails.
type Store struct {
	persist  Persister
	defaults types.BotSetting
	logger   *zap.Logger
	mu       sync.Mutex
	current  Snapshot
}

// NewStore creates a Store. A nil persister keeps settings in memory only.
func NewStore(persist Persister, notificationsDefault bool, logger *zap.Logger) *Store {
	return &Store{
		persist:  persist,
		defaults: types.BotSetting{NotificationsEnabled: notificationsDefault},
		logger:   logger.Named("settings"),
		current:  Snapshot{NotificationsEnabled: notificationsDefault},
	}
}

// Snapshot returns the current settings.
func (s *Store) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist == nil {
		return s.current
	}

	row, err := s.persist.GetBotSettings(ctx, s.defaults)
	if err != nil {
		s.logger.Warn("Failed to load settings, using last known values", zap.Error(err))
		return s.current
	}

	s.current = Snapshot{NotificationsEnabled: row.NotificationsEnabled}

	return s.current
}

// SetNotificationsEnabled persists the notifications flag.
func (s *Store) SetNotificationsEnabled(ctx context.Context, enabled bool) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist != nil {
		row := &types.BotSetting{NotificationsEnabled: enabled}
		if err := s.persist.SaveBotSettings(ctx, row); err != nil {
			return s.current, fmt.Errorf("failed to save settings: %w", err)
		}
	}

	s.current.NotificationsEnabled = enabled
	s.logger.Info("Updated notifications setting", zap.Bool("enabled", enabled))

	return s.current, nil
}
