package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/robalyx/cotd/internal/database/dbretry"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// TrackModel handles database operations for Cup of the Day tracks.
type TrackModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTrack creates a TrackModel.
func NewTrack(db *bun.DB, logger *zap.Logger) *TrackModel {
	return &TrackModel{
		db:     db,
		logger: logger.Named("db_track"),
	}
}

// UpsertTrack stores the track for its date, replacing any track already stored
// for that date, and rewrites its style references in the same transaction.
func (r *TrackModel) UpsertTrack(ctx context.Context, track *types.Track, styleIDs []int) error {
	err := dbretry.Transaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(track).
			On("CONFLICT (date) DO UPDATE").
			Set("uid = EXCLUDED.uid").
			Set("name = EXCLUDED.name").
			Set("author = EXCLUDED.author").
			Set("author_time = EXCLUDED.author_time").
			Set("tags = EXCLUDED.tags").
			Set("thumbnail_url = EXCLUDED.thumbnail_url").
			Set("load_date_time = EXCLUDED.load_date_time").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert track: %w", err)
		}

		_, err = tx.NewDelete().
			Model((*types.TrackTag)(nil)).
			Where("track_uid = ?", track.UID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear track tags: %w", err)
		}

		if len(styleIDs) == 0 {
			return nil
		}

		tags := make([]*types.TrackTag, 0, len(styleIDs))
		for _, id := range styleIDs {
			tags = append(tags, &types.TrackTag{TrackUID: track.UID, StyleID: id})
		}

		_, err = tx.NewInsert().
			Model(&tags).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert track tags: %w", err)
		}

		return nil
	})
	if err != nil {
		if dbretry.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %w (uid=%s, date=%s)",
				ErrPersistenceConflict, err, track.UID, track.Date.Format("2006-01-02"))
		}

		return fmt.Errorf("%w (uid=%s)", err, track.UID)
	}

	r.logger.Debug("Upserted track",
		zap.String("uid", track.UID),
		zap.Time("date", track.Date),
		zap.Int("tags", len(styleIDs)))

	return nil
}

// GetCurrentTrack returns the track with the most recent date.
func (r *TrackModel) GetCurrentTrack(ctx context.Context) (*types.Track, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Track, error) {
		var track types.Track

		err := r.db.NewSelect().
			Model(&track).
			Order("date DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrTrackNotFound
			}

			return nil, fmt.Errorf("failed to get current track: %w", err)
		}

		return &track, nil
	})
}

// GetRecentTracks returns up to limit tracks, newest first.
func (r *TrackModel) GetRecentTracks(ctx context.Context, limit int) ([]*types.Track, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Track, error) {
		var tracks []*types.Track

		err := r.db.NewSelect().
			Model(&tracks).
			Order("date DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent tracks: %w (limit=%d)", err, limit)
		}

		return tracks, nil
	})
}
