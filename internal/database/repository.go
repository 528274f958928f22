package database

import (
	"github.com/robalyx/cotd/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	track        *models.TrackModel
	style        *models.StyleModel
	subscription *models.SubscriptionModel
	setting      *models.SettingModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		track:        models.NewTrack(db, logger),
		style:        models.NewStyle(db, logger),
		subscription: models.NewSubscription(db, logger),
		setting:      models.NewSetting(db, logger),
	}
}

// Track returns the track model repository.
func (r *Repository) Track() *models.TrackModel {
	return r.track
}

// Style returns the style model repository.
func (r *Repository) Style() *models.StyleModel {
	return r.style
}

// Subscription returns the subscription model repository.
func (r *Repository) Subscription() *models.SubscriptionModel {
	return r.subscription
}

// Setting returns the setting model repository.
func (r *Repository) Setting() *models.SettingModel {
	return r.setting
}
