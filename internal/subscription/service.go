// Package subscription validates and applies guild style subscriptions.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/robalyx/cotd/internal/style"
	"go.uber.org/zap"
)

var (
	// ErrInvalidStyle is returned when a style is not part of the vocabulary.
	ErrInvalidStyle = errors.New("invalid style")
	// ErrFilterRequired is returned when unsubscribing without a style or role.
	ErrFilterRequired = errors.New("a style or role is required")
)

// Store persists subscriptions.
type Store interface {
	UpsertSubscription(ctx context.Context, sub *types.Subscription) error
	DeleteSubscription(ctx context.Context, guildID snowflake.ID, styleName string, roleID snowflake.ID) (bool, error)
	GetGuildSubscriptions(ctx context.Context, guildID snowflake.ID) ([]*types.Subscription, error)
}

// Service applies subscribe and unsubscribe requests.
type Service struct {
	store  Store
	vocab  *style.Vocabulary
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(store Store, vocab *style.Vocabulary, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		vocab:  vocab,
		logger: logger.Named("subscription"),
	}
}

// Subscribe creates or overwrites the guild's subscription to a style.
// The style is matched case-insensitively against the vocabulary.
func (s *Service) Subscribe(
	ctx context.Context, guildID, channelID, roleID snowflake.ID, styleName string,
) (*types.Subscription, error) {
	st, ok := s.vocab.Lookup(styleName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStyle, styleName)
	}

	sub := &types.Subscription{
		GuildID:   guildID,
		ChannelID: channelID,
		RoleID:    roleID,
		StyleID:   st.ID,
		StyleName: st.Name,
	}

	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("Subscribed",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("channelID", uint64(channelID)),
		zap.String("style", st.Name))

	return sub, nil
}

// Unsubscribe deletes the first guild subscription matching the style and/or role.
// At least one filter is required. Returns whether anything was deleted.
func (s *Service) Unsubscribe(
	ctx context.Context, guildID snowflake.ID, styleName string, roleID snowflake.ID,
) (bool, error) {
	if styleName == "" && roleID == 0 {
		return false, ErrFilterRequired
	}

	deleted, err := s.store.DeleteSubscription(ctx, guildID, styleName, roleID)
	if err != nil {
		return false, err
	}

	if deleted {
		s.logger.Info("Unsubscribed",
			zap.Uint64("guildID", uint64(guildID)),
			zap.String("style", styleName),
			zap.Uint64("roleID", uint64(roleID)))
	}

	return deleted, nil
}

// List returns the guild's subscriptions.
func (s *Service) List(ctx context.Context, guildID snowflake.ID) ([]*types.Subscription, error) {
	return s.store.GetGuildSubscriptions(ctx, guildID)
}

// Styles returns the vocabulary names in display order.
func (s *Service) Styles() []string {
	return s.vocab.Names()
}
