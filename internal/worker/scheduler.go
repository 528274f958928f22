// Package worker drives the scheduled jobs.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // schedule timezones must resolve in minimal containers

	"github.com/robalyx/cotd/internal/setup/config"
	"github.com/robalyx/cotd/internal/worker/refresh"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher runs the refresh pipeline once.
type Refresher interface {
	Run(ctx context.Context, suppressNotifications bool) *refresh.Result
}

// Scheduler runs the refresh job on its cron schedule and on demand.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	entryID   cron.EntryID
	logger    *zap.Logger
	wg        sync.WaitGroup
	mu        sync.Mutex
	stopped   bool
	ctx       context.Context //nolint:containedctx // job runs outlive the triggering request
	cancel    context.CancelFunc
}

// NewScheduler registers the refresh job at the configured cron expression and timezone.
func NewScheduler(refresher Refresher, cfg *config.Schedule, logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("scheduler")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", cfg.Timezone, err)
	}

	cronLogger := &cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      c,
		refresher: refresher,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.entryID, err = c.AddFunc(cfg.RefreshCron, func() {
		s.logger.Info("Scheduled refresh starting")
		s.refresher.Run(s.ctx, false)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid refresh cron %q: %w", cfg.RefreshCron, err)
	}

	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Time("nextRefresh", s.NextRefresh()))
}

// NextRefresh returns when the refresh job runs next.
func (s *Scheduler) NextRefresh() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// TriggerRefresh starts a refresh run without waiting for it.
// Overlapping runs are excluded by the job's own lock.
func (s *Scheduler) TriggerRefresh(suppressNotifications bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Warn("Scheduler stopped, ignoring refresh trigger")
		return
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Manual refresh panicked", zap.Any("panic", r))
			}
		}()

		s.logger.Info("Manual refresh starting", zap.Bool("suppressNotifications", suppressNotifications))
		s.refresher.Run(s.ctx, suppressNotifications)
	}()
}

// Stop stops scheduling and waits for running jobs until ctx is done,
// after which running jobs are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	cronDone := s.cron.Stop()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("Scheduler stopped")

		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("Scheduler stop timed out, cancelled running jobs")

		return ctx.Err()
	}
}

// cronLogger adapts zap to the cron logger interface.
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
