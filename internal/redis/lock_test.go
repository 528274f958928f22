package redis_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/cotd/internal/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, rueidis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return mr, client
}

func TestJobLockExcludesSameJob(t *testing.T) {
	t.Parallel()

	_, client := setupTestRedis(t)
	lock := redis.NewJobLock(client, time.Minute, zaptest.NewLogger(t))

	release, err := lock.Acquire(t.Context(), "refresh")
	require.NoError(t, err)

	_, err = lock.Acquire(t.Context(), "refresh")
	require.ErrorIs(t, err, redis.ErrLockHeld)

	// Other jobs are not blocked
	releaseNotify, err := lock.Acquire(t.Context(), "notify")
	require.NoError(t, err)
	releaseNotify()

	release()

	release, err = lock.Acquire(t.Context(), "refresh")
	require.NoError(t, err)
	release()
}

func TestJobLockExcludesOtherProcesses(t *testing.T) {
	t.Parallel()

	mr, client := setupTestRedis(t)
	first := redis.NewJobLock(client, time.Minute, zaptest.NewLogger(t))
	second := redis.NewJobLock(client, time.Minute, zaptest.NewLogger(t))

	release, err := first.Acquire(t.Context(), "refresh")
	require.NoError(t, err)
	assert.True(t, mr.Exists("cotd:lock:refresh"))

	_, err = second.Acquire(t.Context(), "refresh")
	require.ErrorIs(t, err, redis.ErrLockHeld)

	release()
	assert.False(t, mr.Exists("cotd:lock:refresh"))

	release, err = second.Acquire(t.Context(), "refresh")
	require.NoError(t, err)
	release()
}

func TestJobLockLeaseExpires(t *testing.T) {
	t.Parallel()

	mr, client := setupTestRedis(t)
	crashed := redis.NewJobLock(client, 30*time.Second, zaptest.NewLogger(t))
	other := redis.NewJobLock(client, 30*time.Second, zaptest.NewLogger(t))

	_, err := crashed.Acquire(t.Context(), "refresh")
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	release, err := other.Acquire(t.Context(), "refresh")
	require.NoError(t, err)
	release()
}

func TestJobLockReleaseOnlyOwnLease(t *testing.T) {
	t.Parallel()

	mr, client := setupTestRedis(t)
	lock := redis.NewJobLock(client, time.Minute, zaptest.NewLogger(t))

	release, err := lock.Acquire(t.Context(), "refresh")
	require.NoError(t, err)

	// Simulate the lease expiring and another process taking over
	require.NoError(t, mr.Set("cotd:lock:refresh", "someone-else"))

	release()

	value, err := mr.Get("cotd:lock:refresh")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}

func TestJobLockWithoutRedis(t *testing.T) {
	t.Parallel()

	lock := redis.NewJobLock(nil, time.Minute, zaptest.NewLogger(t))

	release, err := lock.Acquire(t.Context(), "refresh")
	require.NoError(t, err)

	_, err = lock.Acquire(t.Context(), "refresh")
	require.ErrorIs(t, err, redis.ErrLockHeld)

	release()

	release, err = lock.Acquire(t.Context(), "refresh")
	require.NoError(t, err)
	release()
}
