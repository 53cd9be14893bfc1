package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aimd54/questlog/internal/apperrors"
	prommetrics "github.com/aimd54/questlog/internal/metrics"
	"github.com/aimd54/questlog/pkg/logger"
)

const lockRetryInterval = 25 * time.Millisecond

// UserLocker serializes progression writes for one user at a time.
type UserLocker interface {
	LockUser(ctx context.Context, userID uint) (unlock func(), err error)
}

// LockStore is the key/value surface the distributed lock needs.
type LockStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, token string) (bool, error)
}

// RedisLocker takes per-user locks with SET NX PX and releases them with a
// compare-and-delete, so an expired lock is never released by its old holder.
type RedisLocker struct {
	store LockStore
	ttl   time.Duration
	wait  time.Duration
	log   *logger.Logger
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder blocks
// others; wait bounds how long LockUser retries before giving up.
func NewRedisLocker(store LockStore, ttl, wait time.Duration, log *logger.Logger) *RedisLocker {
	return &RedisLocker{store: store, ttl: ttl, wait: wait, log: log}
}

func lockKey(userID uint) string {
	return fmt.Sprintf("questlog:lock:user:%d", userID)
}

// LockUser blocks until the user's lock is held, the wait elapses or ctx ends.
func (l *RedisLocker) LockUser(ctx context.Context, userID uint) (func(), error) {
	key := lockKey(userID)
	token := uuid.NewString()
	start := time.Now()
	deadline := start.Add(l.wait)

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock for user %d: %w", userID, err)
		}
		if ok {
			prommetrics.ObserveUserLockWait(time.Since(start).Seconds())
			return func() {
				// The caller's context may already be cancelled; release on a fresh one.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				released, err := l.store.ReleaseIfOwner(releaseCtx, key, token)
				if err != nil {
					l.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to release user lock")
				} else if !released {
					l.log.Warn().Uint("user_id", userID).Msg("User lock expired before release")
				}
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, apperrors.Conflict("user %d is busy, retry later", userID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// LocalLocker is the single-process fallback used when Redis is disabled.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uint]chan struct{}
	wait  time.Duration
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: make(map[uint]chan struct{}), wait: wait}
}

// LockUser blocks until the user's lock is held, the wait elapses or ctx ends.
func (l *LocalLocker) LockUser(ctx context.Context, userID uint) (func(), error) {
	l.mu.Lock()
	sem, ok := l.locks[userID]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[userID] = sem
	}
	l.mu.Unlock()

	start := time.Now()
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		prommetrics.ObserveUserLockWait(time.Since(start).Seconds())
		var once sync.Once
		return func() { once.Do(func() { <-sem }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, apperrors.Conflict("user %d is busy, retry later", userID)
	}
}
