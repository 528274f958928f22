package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/cotd/internal/database/dbretry"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SubscriptionModel handles database operations for style subscriptions.
type SubscriptionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewSubscription creates a SubscriptionModel.
func NewSubscription(db *bun.DB, logger *zap.Logger) *SubscriptionModel {
	return &SubscriptionModel{
		db:     db,
		logger: logger.Named("db_subscription"),
	}
}

// UpsertSubscription creates the subscription or, when the guild already has one
// for the style, overwrites its channel and role. The stored id is written back.
func (r *SubscriptionModel) UpsertSubscription(ctx context.Context, sub *types.Subscription) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		sub.UpdatedAt = time.Now()

		_, err := r.db.NewInsert().
			Model(sub).
			On("CONFLICT (guild_id, style_id) DO UPDATE").
			Set("channel_id = EXCLUDED.channel_id").
			Set("role_id = EXCLUDED.role_id").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("id, created_at").
			Exec(ctx)

		return err
	})
	if err != nil {
		if dbretry.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %w (guildID=%d, styleID=%d)", ErrPersistenceConflict, err, sub.GuildID, sub.StyleID)
		}

		return fmt.Errorf("failed to upsert subscription: %w (guildID=%d, styleID=%d)", err, sub.GuildID, sub.StyleID)
	}

	return nil
}

// DeleteSubscription deletes the first subscription of the guild matching the
// given style name (case-insensitive) and/or role. Zero values are ignored.
// Returns whether a subscription was deleted.
func (r *SubscriptionModel) DeleteSubscription(
	ctx context.Context, guildID snowflake.ID, styleName string, roleID snowflake.ID,
) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		match := r.db.NewSelect().
			Model((*types.Subscription)(nil)).
			Column("subscription.id").
			Join("JOIN styles AS style ON style.id = subscription.style_id").
			Where("subscription.guild_id = ?", guildID).
			Order("subscription.id ASC").
			Limit(1)

		if styleName != "" {
			match = match.Where("LOWER(style.name) = ?", strings.ToLower(strings.TrimSpace(styleName)))
		}

		if roleID != 0 {
			match = match.Where("subscription.role_id = ?", roleID)
		}

		res, err := r.db.NewDelete().
			Model((*types.Subscription)(nil)).
			Where("id = (?)", match).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to delete subscription: %w (guildID=%d)", err, guildID)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to read deleted rows: %w (guildID=%d)", err, guildID)
		}

		return affected > 0, nil
	})
}

// FindMatching returns every subscription whose style equals one of the given
// tags, compared case-insensitively.
func (r *SubscriptionModel) FindMatching(ctx context.Context, tags []string) ([]*types.Subscription, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	lowered := make([]string, len(tags))
	for i, tag := range tags {
		lowered[i] = strings.ToLower(tag)
	}

	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Subscription, error) {
		var subs []*types.Subscription

		err := r.selectWithStyle(&subs).
			Where("LOWER(style.name) IN (?)", bun.In(lowered)).
			Order("subscription.id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to find matching subscriptions: %w", err)
		}

		return subs, nil
	})
}

// GetGuildSubscriptions returns the subscriptions of a guild ordered by style name.
func (r *SubscriptionModel) GetGuildSubscriptions(ctx context.Context, guildID snowflake.ID) ([]*types.Subscription, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Subscription, error) {
		var subs []*types.Subscription

		err := r.selectWithStyle(&subs).
			Where("subscription.guild_id = ?", guildID).
			Order("style.name ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get guild subscriptions: %w (guildID=%d)", err, guildID)
		}

		return subs, nil
	})
}

// GetAllSubscriptions returns every subscription.
func (r *SubscriptionModel) GetAllSubscriptions(ctx context.Context) ([]*types.Subscription, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Subscription, error) {
		var subs []*types.Subscription

		err := r.selectWithStyle(&subs).
			Order("subscription.id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get subscriptions: %w", err)
		}

		return subs, nil
	})
}

// TruncateSubscriptions removes every subscription.
func (r *SubscriptionModel) TruncateSubscriptions(ctx context.Context) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewTruncateTable().
			Model((*types.Subscription)(nil)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to truncate subscriptions: %w", err)
		}

		r.logger.Warn("Truncated subscriptions table")

		return nil
	})
}

// selectWithStyle selects subscriptions joined with their style name.
func (r *SubscriptionModel) selectWithStyle(dest *[]*types.Subscription) *bun.SelectQuery {
	return r.db.NewSelect().
		Model(dest).
		ColumnExpr("subscription.*").
		ColumnExpr("style.name AS style_name").
		Join("JOIN styles AS style ON style.id = subscription.style_id")
}
