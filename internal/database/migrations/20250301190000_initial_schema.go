package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/cotd/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.Style)(nil),
			(*types.Track)(nil),
			(*types.TrackTag)(nil),
			(*types.Subscription)(nil),
			(*types.BotSetting)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %T: %w", model, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		// Down migration - drop all tables in reverse dependency order
		models := []any{
			(*types.BotSetting)(nil),
			(*types.Subscription)(nil),
			(*types.TrackTag)(nil),
			(*types.Track)(nil),
			(*types.Style)(nil),
		}

		for _, model := range models {
			_, err := db.NewDropTable().
				Model(model).
				IfExists().
				Cascade().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %T: %w", model, err)
			}
		}

		return nil
	})
}
