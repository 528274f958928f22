package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// ErrLockHeld is returned when another run already holds the job lock.
var ErrLockHeld = errors.New("job lock is held by another run")

// lockKeyPrefix namespaces job lock keys.
const lockKeyPrefix = "cotd:lock:"

// releaseScript deletes the lock only if it still carries the caller's token.
var releaseScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// JobLock provides a single-instance lock per job name.
// Runs in the same process are excluded by an in-memory set and runs in other
// processes by a Redis lease. A nil client limits the lock to this process.
type JobLock struct {
	client rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
	mu     sync.Mutex
	held   map[string]struct{}
}

// NewJobLock creates a JobLock. The ttl bounds how long a crashed process can
// keep a job blocked.
func NewJobLock(client rueidis.Client, ttl time.Duration, logger *zap.Logger) *JobLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &JobLock{
		client: client,
		ttl:    ttl,
		logger: logger.Named("job_lock"),
		held:   make(map[string]struct{}),
	}
}

// Acquire takes the lock for the named job without waiting.
// It returns ErrLockHeld when the job is already running.
func (l *JobLock) Acquire(ctx context.Context, name string) (release func(), err error) {
	l.mu.Lock()
	if _, exists := l.held[name]; exists {
		l.mu.Unlock()
		return nil, ErrLockHeld
	}

	l.held[name] = struct{}{}
	l.mu.Unlock()

	releaseLocal := func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}

	if l.client == nil {
		return releaseLocal, nil
	}

	key := lockKeyPrefix + name
	token := uuid.New().String()

	err = l.client.Do(ctx, l.client.B().Set().Key(key).Value(token).Nx().Px(l.ttl).Build()).Error()
	if rueidis.IsRedisNil(err) {
		releaseLocal()
		return nil, ErrLockHeld
	}

	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("failed to acquire job lock: %w (job=%s)", err, name)
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			// The job context may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()

			if err := releaseScript.Exec(releaseCtx, l.client, []string{key}, []string{token}).Error(); err != nil {
				l.logger.Warn("Failed to release job lock", zap.String("job", name), zap.Error(err))
			}

			releaseLocal()
		})
	}, nil
}
