// Package lock is a named mutex over redis, used to elect a single
// leader for the periodic reconciliation jobs. It is never taken on the
// request path. A crashed holder is recovered by TTL expiry.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if the caller still owns it, so a
// holder that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Locker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

func lockKey(name string) string {
	return "lock:" + name
}

// TryAcquire attempts to take the named lock for ttl. On success it
// returns an owner token to pass to Release.
func (l *Locker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

func (l *Locker) Release(ctx context.Context, name, token string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{lockKey(name)}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
