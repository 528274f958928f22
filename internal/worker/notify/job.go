// Package notify fans the current map out to every matching subscription.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/robalyx/cotd/internal/database/models"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/robalyx/cotd/internal/redis"
	"github.com/robalyx/cotd/internal/worker/core"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// JobName identifies the notify job for locking and status reporting.
const JobName = "notify"

// TrackReader loads the current map.
type TrackReader interface {
	GetCurrentTrack(ctx context.Context) (*types.Track, error)
}

// SubscriptionFinder finds subscriptions whose style is one of the tags.
type SubscriptionFinder interface {
	FindMatching(ctx context.Context, tags []string) ([]*types.Subscription, error)
}

// Sender delivers one message to a channel and reports the response status.
type Sender interface {
	Send(ctx context.Context, channelID snowflake.ID, msg discord.MessageCreate) (int, error)
}

// Locker excludes concurrent runs of the same job.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(), error)
}

// Summary reports what a run did.
type Summary struct {
	RunID    string
	TrackUID string
	Matched  int
	Sent     int
	Failed   []*DispatchError
}

// Job sends one notification per matching subscription.
type Job struct {
	tracks      TrackReader
	subs        SubscriptionFinder
	sender      Sender
	lock        Locker
	monitor     *core.Monitor
	concurrency int
	logger      *zap.Logger
}

// New creates a notify Job. The monitor may be nil.
func New(
	tracks TrackReader, subs SubscriptionFinder, sender Sender, lock Locker,
	monitor *core.Monitor, concurrency int, logger *zap.Logger,
) *Job {
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Job{
		tracks:      tracks,
		subs:        subs,
		sender:      sender,
		lock:        lock,
		monitor:     monitor,
		concurrency: concurrency,
		logger:      logger.Named("notify"),
	}
}

// Run notifies every subscription matching the track's tags.
// A nil track means the stored current map is used. Individual delivery
// failures are logged and collected in the summary, never returned.
func (j *Job) Run(ctx context.Context, track *types.Track) (*Summary, error) {
	summary := &Summary{RunID: uuid.New().String()}
	logger := j.logger.With(zap.String("run_id", summary.RunID))

	ctx, span := otel.Tracer("github.com/robalyx/cotd/worker").Start(ctx, "notify.run")
	defer span.End()

	status := core.Status{Job: JobName, RunID: summary.RunID, StartedAt: time.Now()}
	report := func(state, outcome string, err error) {
		status.State = state
		status.Outcome = outcome
		if err != nil {
			status.Error = err.Error()
		}
		j.monitor.ReportStatus(ctx, status)
	}

	release, err := j.lock.Acquire(ctx, JobName)
	if err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			logger.Warn("Notify job already running, skipping")
		}

		span.SetStatus(codes.Error, err.Error())

		return summary, err
	}
	defer release()

	report("loading", "", nil)

	if track == nil {
		track, err = j.tracks.GetCurrentTrack(ctx)
		if errors.Is(err, models.ErrTrackNotFound) {
			logger.Info("No current map, nothing to notify")
			report("done", "no_map", nil)

			return summary, nil
		}

		if err != nil {
			err = fmt.Errorf("failed to load current map: %w", err)
			logger.Error("Notify job failed", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			report("done", "failed", err)

			return summary, err
		}
	}

	summary.TrackUID = track.UID
	span.SetAttributes(attribute.String("track.uid", track.UID), attribute.StringSlice("track.tags", track.Tags))

	subs, err := j.subs.FindMatching(ctx, track.Tags)
	if err != nil {
		err = fmt.Errorf("failed to find matching subscriptions: %w", err)
		logger.Error("Notify job failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		report("done", "failed", err)

		return summary, err
	}

	summary.Matched = len(subs)
	report("dispatching", "", nil)

	logger.Info("Pushing notifications",
		zap.String("uid", track.UID),
		zap.Strings("tags", track.Tags),
		zap.Int("count", len(subs)))

	p := pool.NewWithResults[*DispatchError]().WithMaxGoroutines(j.concurrency)
	for _, sub := range subs {
		p.Go(func() *DispatchError {
			return j.dispatch(ctx, logger, track, sub)
		})
	}

	for _, failure := range p.Wait() {
		if failure != nil {
			summary.Failed = append(summary.Failed, failure)
		}
	}

	summary.Sent = summary.Matched - len(summary.Failed)
	span.SetAttributes(attribute.Int("notify.sent", summary.Sent), attribute.Int("notify.failed", len(summary.Failed)))

	logger.Info("Notifications pushed",
		zap.Int("sent", summary.Sent),
		zap.Int("failed", len(summary.Failed)))
	report("done", fmt.Sprintf("sent=%d failed=%d", summary.Sent, len(summary.Failed)), nil)

	return summary, nil
}

// dispatch sends a single notification and converts a failure into a DispatchError.
func (j *Job) dispatch(
	ctx context.Context, logger *zap.Logger, track *types.Track, sub *types.Subscription,
) *DispatchError {
	status, err := j.sender.Send(ctx, sub.ChannelID, BuildMessage(track, sub))
	if err == nil {
		logger.Debug("Notification sent",
			zap.Int64("subscriptionID", sub.ID),
			zap.Int("status", status))

		return nil
	}

	failure := &DispatchError{
		SubscriptionID: sub.ID,
		ChannelID:      sub.ChannelID,
		StatusCode:     status,
		Err:            err,
	}

	logger.Warn("Failed to dispatch notification",
		zap.Int64("subscriptionID", sub.ID),
		zap.Uint64("channelID", uint64(sub.ChannelID)),
		zap.Int("status", status),
		zap.Error(err))

	return failure
}
