package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		constraints := []struct {
			name string
			sql  string
		}{
			{
				name: "fk_track_tags_track",
				sql: `ALTER TABLE track_tags ADD CONSTRAINT fk_track_tags_track
					FOREIGN KEY (track_uid) REFERENCES tracks (uid)
					ON UPDATE CASCADE ON DELETE CASCADE`,
			},
			{
				name: "fk_track_tags_style",
				sql: `ALTER TABLE track_tags ADD CONSTRAINT fk_track_tags_style
					FOREIGN KEY (style_id) REFERENCES styles (id)`,
			},
			{
				name: "fk_subscriptions_style",
				sql: `ALTER TABLE subscriptions ADD CONSTRAINT fk_subscriptions_style
					FOREIGN KEY (style_id) REFERENCES styles (id)`,
			},
		}

		for _, c := range constraints {
			if _, err := db.NewRaw(c.sql).Exec(ctx); err != nil {
				return fmt.Errorf("failed to add constraint %s: %w", c.name, err)
			}
		}

		// Lookups by guild and the case-insensitive style match
		_, err := db.NewRaw(`
			CREATE INDEX IF NOT EXISTS idx_subscriptions_guild ON subscriptions (guild_id);
			CREATE INDEX IF NOT EXISTS idx_styles_name_lower ON styles (LOWER(name));
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_styles_name_lower;
			DROP INDEX IF EXISTS idx_subscriptions_guild;
			ALTER TABLE subscriptions DROP CONSTRAINT IF EXISTS fk_subscriptions_style;
			ALTER TABLE track_tags DROP CONSTRAINT IF EXISTS fk_track_tags_style;
			ALTER TABLE track_tags DROP CONSTRAINT IF EXISTS fk_track_tags_track;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop constraints: %w", err)
		}

		return nil
	})
}
