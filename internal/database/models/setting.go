package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robalyx/cotd/internal/database/dbretry"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SettingModel handles database operations for bot settings.
type SettingModel struct {
	db     *bun.DB
	logger *zap.Logger
	mu     sync.Mutex
	cache  *types.BotSetting
}

// NewSetting creates a SettingModel with database access.
func NewSetting(db *bun.DB, logger *zap.Logger) *SettingModel {
	return &SettingModel{
		db:     db,
		logger: logger.Named("db_setting"),
	}
}

// GetBotSettings retrieves the bot settings, creating the row from the given
// defaults if none exists yet.
func (r *SettingModel) GetBotSettings(ctx context.Context, defaults types.BotSetting) (*types.BotSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Return cached settings if they exist and are fresh
	if r.cache != nil && !r.cache.NeedsRefresh() {
		return r.cache, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (*types.BotSetting, error) {
		settings := defaults
		settings.ID = types.BotSettingID

		err := r.db.NewSelect().Model(&settings).
			WherePK().
			Scan(ctx)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("failed to get bot settings: %w", err)
			}

			// Create default settings if none exist
			_, err = r.db.NewInsert().Model(&settings).
				On("CONFLICT (id) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to create bot settings: %w", err)
			}
		}

		settings.UpdateRefreshTime()
		r.cache = &settings

		return &settings, nil
	})
}

// SaveBotSettings saves bot settings to the database.
func (r *SettingModel) SaveBotSettings(ctx context.Context, settings *types.BotSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		settings.ID = types.BotSettingID
		settings.UpdatedAt = time.Now()

		_, err := r.db.NewInsert().Model(settings).
			On("CONFLICT (id) DO UPDATE").
			Set("notifications_enabled = EXCLUDED.notifications_enabled").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save bot settings: %w", err)
		}

		settings.UpdateRefreshTime()
		r.cache = settings

		return nil
	})
}
