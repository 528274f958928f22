package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robalyx/cotd/internal/setup/config"
	"github.com/robalyx/cotd/internal/worker"
	"github.com/robalyx/cotd/internal/worker/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRefresher struct {
	mu       sync.Mutex
	runs     []bool
	panicRun bool
	block    chan struct{}
}

func (f *fakeRefresher) Run(ctx context.Context, suppress bool) *refresh.Result {
	f.mu.Lock()
	f.runs = append(f.runs, suppress)
	shouldPanic := f.panicRun
	f.mu.Unlock()

	if shouldPanic {
		panic("refresh exploded")
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}

	return &refresh.Result{}
}

func (f *fakeRefresher) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.runs)
}

func dailySchedule() *config.Schedule {
	return &config.Schedule{RefreshCron: "0 19 * * *", Timezone: "CET"}
}

func TestTriggerRefresh(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{}
	s, err := worker.NewScheduler(refresher, dailySchedule(), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	s.TriggerRefresh(true)
	require.NoError(t, s.Stop(t.Context()))

	require.Equal(t, 1, refresher.runCount())
	assert.True(t, refresher.runs[0])
}

func TestTriggerRefreshSurvivesPanic(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{panicRun: true}
	s, err := worker.NewScheduler(refresher, dailySchedule(), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	s.TriggerRefresh(false)
	require.NoError(t, s.Stop(t.Context()))
	assert.Equal(t, 1, refresher.runCount())
}

func TestTriggerAfterStopIsIgnored(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{}
	s, err := worker.NewScheduler(refresher, dailySchedule(), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()
	require.NoError(t, s.Stop(t.Context()))

	s.TriggerRefresh(false)
	assert.Zero(t, refresher.runCount())
}

func TestStopCancelsRunningJobsOnTimeout(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{block: make(chan struct{})}
	s, err := worker.NewScheduler(refresher, dailySchedule(), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	s.TriggerRefresh(false)
	require.Eventually(t, func() bool { return refresher.runCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}

func TestScheduledRefreshRuns(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{}
	s, err := worker.NewScheduler(refresher, &config.Schedule{RefreshCron: "@every 1s", Timezone: "UTC"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool { return refresher.runCount() >= 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop(t.Context()))

	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	assert.False(t, refresher.runs[0], "scheduled runs never suppress notifications")
}

func TestNextRefreshUsesTimezone(t *testing.T) {
	t.Parallel()

	s, err := worker.NewScheduler(&fakeRefresher{}, dailySchedule(), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	next := s.NextRefresh()
	loc, err := time.LoadLocation("CET")
	require.NoError(t, err)

	local := next.In(loc)
	assert.Equal(t, 19, local.Hour())
	assert.Zero(t, local.Minute())
}

func TestNewSchedulerRejectsBadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *config.Schedule
	}{
		{name: "bad cron", cfg: &config.Schedule{RefreshCron: "not a cron", Timezone: "CET"}},
		{name: "bad timezone", cfg: &config.Schedule{RefreshCron: "0 19 * * *", Timezone: "Mars/Olympus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := worker.NewScheduler(&fakeRefresher{}, tt.cfg, zaptest.NewLogger(t))
			require.Error(t, err)
		})
	}
}
