// Package shared holds small cross-cutting helpers.
package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSyncInProgress signals another sync for the same date holds the lock.
var ErrSyncInProgress = errors.New("shared: sync already in progress for this date")

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SyncLockKey builds the redis key guarding one date's sync critical section.
func SyncLockKey(date string) string {
	return fmt.Sprintf("tariffs:sync:%s:lock", date)
}

// SyncLock is an advisory, TTL-bounded mutex preventing two concurrent
// syncs for the same date from interleaving at the commit boundary. The
// TTL keeps a crashed worker from blocking the date forever.
type SyncLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSyncLock constructs a redis-backed sync lock.
func NewSyncLock(client *redis.Client, ttl time.Duration) *SyncLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SyncLock{client: client, ttl: ttl}
}

// Acquire takes the lock for date, returning a release func. A held lock
// yields ErrSyncInProgress. Release is token-checked so an expired lock
// re-acquired by another flow is never deleted by the original holder.
func (l *SyncLock) Acquire(ctx context.Context, date string) (func(), error) {
	key := SyncLockKey(date)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire sync lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
