package models

import (
	"context"
	"fmt"

	"github.com/robalyx/cotd/internal/database/dbretry"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// StyleModel handles database operations for the style vocabulary table.
type StyleModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewStyle creates a StyleModel.
func NewStyle(db *bun.DB, logger *zap.Logger) *StyleModel {
	return &StyleModel{
		db:     db,
		logger: logger.Named("db_style"),
	}
}

// SyncStyles upserts the given styles by id and returns the number of stored styles.
func (r *StyleModel) SyncStyles(ctx context.Context, styles []*types.Style) (int, error) {
	if len(styles) == 0 {
		return 0, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		_, err := r.db.NewInsert().
			Model(&styles).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to sync styles: %w (count=%d)", err, len(styles))
		}

		count, err := r.db.NewSelect().Model((*types.Style)(nil)).Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count styles: %w", err)
		}

		return count, nil
	})
}

// GetAllStyles returns every stored style ordered by name.
func (r *StyleModel) GetAllStyles(ctx context.Context) ([]*types.Style, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Style, error) {
		var styles []*types.Style

		err := r.db.NewSelect().
			Model(&styles).
			Order("name ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get styles: %w", err)
		}

		return styles, nil
	})
}
