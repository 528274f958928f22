package refresh_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/robalyx/cotd/internal/database/models"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/robalyx/cotd/internal/redis"
	"github.com/robalyx/cotd/internal/settings"
	"github.com/robalyx/cotd/internal/style"
	"github.com/robalyx/cotd/internal/upstream"
	"github.com/robalyx/cotd/internal/worker/core"
	"github.com/robalyx/cotd/internal/worker/notify"
	"github.com/robalyx/cotd/internal/worker/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errBoom = errors.New("boom")

type fakeFetcher struct {
	m     *upstream.Map
	err   error
	calls int
}

func (f *fakeFetcher) FetchCurrentMap(context.Context) (*upstream.Map, error) {
	f.calls++
	return f.m, f.err
}

type upsertCall struct {
	track    *types.Track
	styleIDs []int
}

type fakeTracks struct {
	mu    sync.Mutex
	calls []upsertCall
	err   error
}

func (f *fakeTracks) UpsertTrack(_ context.Context, track *types.Track, styleIDs []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, upsertCall{track: track, styleIDs: styleIDs})

	return f.err
}

type fakeSettings struct {
	enabled bool
}

func (f fakeSettings) Snapshot(context.Context) settings.Snapshot {
	return settings.Snapshot{NotificationsEnabled: f.enabled}
}

type fakeNotifier struct {
	tracks []*types.Track
	err    error
}

func (f *fakeNotifier) Run(_ context.Context, track *types.Track) (*notify.Summary, error) {
	f.tracks = append(f.tracks, track)
	return &notify.Summary{TrackUID: track.UID}, f.err
}

func currentMap() *upstream.Map {
	return &upstream.Map{
		UID:          "uid-1",
		Date:         time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		Name:         "Test Map",
		Author:       "Alice",
		AuthorTime:   45.231,
		Tags:         []string{"Speed", "Tech"},
		TagIDs:       []int{12, 3},
		ThumbnailURL: "https://img/thumb.jpg",
	}
}

type harness struct {
	fetcher  *fakeFetcher
	tracks   *fakeTracks
	notifier *fakeNotifier
	lock     *redis.JobLock
	monitor  *core.Monitor
	job      *refresh.Job
}

func newHarness(t *testing.T, enabled bool) *harness {
	t.Helper()

	logger := zaptest.NewLogger(t)
	h := &harness{
		fetcher:  &fakeFetcher{m: currentMap()},
		tracks:   &fakeTracks{},
		notifier: &fakeNotifier{},
		lock:     redis.NewJobLock(nil, time.Minute, logger),
		monitor:  core.NewMonitor(nil, "test", logger),
	}
	h.job = refresh.New(h.fetcher, h.tracks, fakeSettings{enabled: enabled}, h.notifier, h.lock, h.monitor, logger)

	return h
}

func TestRefreshPersistsAndNotifies(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)

	result := h.job.Run(t.Context(), false)
	require.NoError(t, result.Err)
	assert.Equal(t, refresh.OutcomeNotified, result.Outcome)
	assert.Equal(t, refresh.StateDone, result.State)
	assert.NotEmpty(t, result.RunID)

	require.Len(t, h.tracks.calls, 1)
	stored := h.tracks.calls[0]
	assert.Equal(t, "uid-1", stored.track.UID)
	assert.Equal(t, []string{"Speed", "Tech"}, stored.track.Tags)
	assert.Equal(t, []int{12, 3}, stored.styleIDs)
	assert.InDelta(t, 45.231, stored.track.AuthorTime, 1e-9)
	assert.False(t, stored.track.LoadDateTime.IsZero())

	// The stored record is handed over directly
	require.Len(t, h.notifier.tracks, 1)
	assert.Same(t, stored.track, h.notifier.tracks[0])
	require.NotNil(t, result.Notify)
}

func TestRefreshNotificationGating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		enabled    bool
		suppress   bool
		wantNotify bool
	}{
		{name: "enabled", enabled: true, wantNotify: true},
		{name: "suppressed while enabled", enabled: true, suppress: true},
		{name: "disabled", enabled: false},
		{name: "disabled and suppressed", enabled: false, suppress: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, tt.enabled)

			result := h.job.Run(t.Context(), tt.suppress)
			require.NoError(t, result.Err)
			assert.Len(t, h.tracks.calls, 1, "map is always stored")

			if tt.wantNotify {
				assert.Len(t, h.notifier.tracks, 1)
				assert.Equal(t, refresh.OutcomeNotified, result.Outcome)
			} else {
				assert.Empty(t, h.notifier.tracks)
				assert.Equal(t, refresh.OutcomePersisted, result.Outcome)
			}
		})
	}
}

func TestRefreshSkipsOnFetchError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "not yet indexed", err: fmt.Errorf("%w: uid=x", upstream.ErrNotYetIndexed)},
		{name: "upstream unavailable", err: fmt.Errorf("%w: timeout", upstream.ErrUpstreamUnavailable)},
		{name: "unknown style code", err: fmt.Errorf("%w: 999", style.ErrUnknownStyleCode)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, true)
			h.fetcher.m = nil
			h.fetcher.err = tt.err

			result := h.job.Run(t.Context(), false)
			require.ErrorIs(t, result.Err, tt.err)
			assert.Equal(t, refresh.OutcomeSkipped, result.Outcome)
			assert.Equal(t, refresh.StateDone, result.State)
			assert.Empty(t, h.tracks.calls)
			assert.Empty(t, h.notifier.tracks)
		})
	}
}

func TestRefreshFailsOnPersistenceConflict(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.tracks.err = fmt.Errorf("%w: duplicate key", models.ErrPersistenceConflict)

	result := h.job.Run(t.Context(), false)
	require.ErrorIs(t, result.Err, models.ErrPersistenceConflict)
	assert.Equal(t, refresh.OutcomeFailed, result.Outcome)
	assert.Empty(t, h.notifier.tracks)
}

func TestRefreshReportsNotifyFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.notifier.err = errBoom

	result := h.job.Run(t.Context(), false)
	require.ErrorIs(t, result.Err, errBoom)
	assert.Equal(t, refresh.OutcomeNotifyFailed, result.Outcome)
	assert.Len(t, h.tracks.calls, 1)

	statuses, err := h.monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "notify_failed", statuses[0].Outcome)
	assert.Equal(t, "done", statuses[0].State)
	assert.Contains(t, statuses[0].Error, "boom")
}

func TestRefreshSkipsWhenAlreadyRunning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)

	release, err := h.lock.Acquire(t.Context(), refresh.JobName)
	require.NoError(t, err)

	result := h.job.Run(t.Context(), false)
	require.ErrorIs(t, result.Err, redis.ErrLockHeld)
	assert.Equal(t, refresh.OutcomeLocked, result.Outcome)
	assert.Zero(t, h.fetcher.calls)

	release()

	result = h.job.Run(t.Context(), false)
	require.NoError(t, result.Err)
	assert.Equal(t, 1, h.fetcher.calls)
}

func TestRefreshReportsStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)

	result := h.job.Run(t.Context(), false)
	require.NoError(t, result.Err)

	statuses, err := h.monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, refresh.JobName, statuses[0].Job)
	assert.Equal(t, result.RunID, statuses[0].RunID)
	assert.Equal(t, "done", statuses[0].State)
	assert.Equal(t, "persisted", statuses[0].Outcome)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", refresh.StateIdle.String())
	assert.Equal(t, "fetching", refresh.StateFetching.String())
	assert.Equal(t, "persisting", refresh.StatePersisting.String())
	assert.Equal(t, "notify_triggered", refresh.StateNotifyTriggered.String())
	assert.Equal(t, "done", refresh.StateDone.String())
}
