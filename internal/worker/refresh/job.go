// Package refresh fetches the current map, stores it and hands it to the notify job.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/cotd/internal/database/models"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/robalyx/cotd/internal/redis"
	"github.com/robalyx/cotd/internal/settings"
	"github.com/robalyx/cotd/internal/upstream"
	"github.com/robalyx/cotd/internal/worker/core"
	"github.com/robalyx/cotd/internal/worker/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// JobName identifies the refresh job for locking and status reporting.
const JobName = "refresh"

// Fetcher loads the current map from upstream.
type Fetcher interface {
	FetchCurrentMap(ctx context.Context) (*upstream.Map, error)
}

// TrackWriter stores a map and its style links.
type TrackWriter interface {
	UpsertTrack(ctx context.Context, track *types.Track, styleIDs []int) error
}

// SettingsReader exposes the runtime settings.
type SettingsReader interface {
	Snapshot(ctx context.Context) settings.Snapshot
}

// Notifier runs the notify job for a freshly stored map.
type Notifier interface {
	Run(ctx context.Context, track *types.Track) (*notify.Summary, error)
}

// Locker excludes concurrent runs of the same job.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(), error)
}

// Result reports how a run ended.
type Result struct {
	RunID   string
	State   State
	Outcome Outcome
	Track   *types.Track
	Notify  *notify.Summary
	Err     error
}

// Job runs the refresh pipeline.
type Job struct {
	fetcher  Fetcher
	tracks   TrackWriter
	settings SettingsReader
	notifier Notifier
	lock     Locker
	monitor  *core.Monitor
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a refresh Job. The monitor may be nil.
func New(
	fetcher Fetcher, tracks TrackWriter, store SettingsReader, notifier Notifier,
	lock Locker, monitor *core.Monitor, logger *zap.Logger,
) *Job {
	return &Job{
		fetcher:  fetcher,
		tracks:   tracks,
		settings: store,
		notifier: notifier,
		lock:     lock,
		monitor:  monitor,
		logger:   logger.Named("refresh"),
		now:      time.Now,
	}
}

// Run fetches, stores and, unless suppressed or disabled, notifies.
// Every error is logged and reported in the result; none escapes as a panic,
// so a failed run never stops later scheduled runs.
func (j *Job) Run(ctx context.Context, suppressNotifications bool) *Result {
	result := &Result{RunID: uuid.New().String(), State: StateIdle}
	logger := j.logger.With(zap.String("run_id", result.RunID))

	ctx, span := otel.Tracer("github.com/robalyx/cotd/worker").Start(ctx, "refresh.run",
		trace.WithAttributes(attribute.Bool("refresh.suppress_notifications", suppressNotifications)))
	defer span.End()

	status := core.Status{Job: JobName, RunID: result.RunID, StartedAt: j.now()}
	transition := func(state State) {
		result.State = state
		status.State = state.String()
		j.monitor.ReportStatus(ctx, status)
	}
	finish := func(outcome Outcome, err error) *Result {
		result.Outcome = outcome
		result.Err = err
		status.Outcome = string(outcome)
		if err != nil {
			status.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("refresh.outcome", string(outcome)))
		transition(StateDone)

		return result
	}

	release, err := j.lock.Acquire(ctx, JobName)
	if err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			logger.Warn("Refresh job already running, skipping")
			result.Outcome = OutcomeLocked
			result.Err = err

			return result
		}

		logger.Error("Failed to acquire refresh lock", zap.Error(err))

		return finish(OutcomeFailed, err)
	}
	defer release()

	// Fetching
	transition(StateFetching)

	current, err := j.fetcher.FetchCurrentMap(ctx)
	if err != nil {
		if upstream.IsFetchError(err) {
			logger.Info("Current map not available, skipping this cycle", zap.Error(err))
			return finish(OutcomeSkipped, err)
		}

		logger.Error("Failed to fetch current map", zap.Error(err))

		return finish(OutcomeFailed, err)
	}

	// Persisting
	transition(StatePersisting)

	track := &types.Track{
		UID:          current.UID,
		Date:         current.Date,
		Name:         current.Name,
		Author:       current.Author,
		AuthorTime:   current.AuthorTime,
		Tags:         current.Tags,
		ThumbnailURL: current.ThumbnailURL,
		LoadDateTime: j.now().UTC(),
	}
	result.Track = track

	if err := j.tracks.UpsertTrack(ctx, track, current.TagIDs); err != nil {
		if errors.Is(err, models.ErrPersistenceConflict) {
			logger.Error("Map uniqueness violated in storage, aborting run",
				zap.String("uid", track.UID),
				zap.Time("date", track.Date),
				zap.Error(err))
		} else {
			logger.Error("Failed to store current map", zap.String("uid", track.UID), zap.Error(err))
		}

		return finish(OutcomeFailed, fmt.Errorf("failed to store map: %w", err))
	}

	logger.Info("Stored current map",
		zap.String("uid", track.UID),
		zap.String("date", track.Date.Format(time.DateOnly)),
		zap.String("name", track.Name),
		zap.String("author", track.Author),
		zap.Float64("authorTime", track.AuthorTime),
		zap.Strings("tags", track.Tags))

	if suppressNotifications {
		logger.Info("Notifications suppressed for this run")
		return finish(OutcomePersisted, nil)
	}

	if !j.settings.Snapshot(ctx).NotificationsEnabled {
		logger.Info("Notifications disabled, not notifying")
		return finish(OutcomePersisted, nil)
	}

	// NotifyTriggered
	transition(StateNotifyTriggered)
	logger.Info("Triggering notifications")

	summary, err := j.notifier.Run(ctx, track)
	result.Notify = summary
	if err != nil {
		logger.Error("Notify job failed", zap.Error(err))
		return finish(OutcomeNotifyFailed, fmt.Errorf("notify job failed: %w", err))
	}

	return finish(OutcomeNotified, nil)
}
