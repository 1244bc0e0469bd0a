package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/car-sharing/internal/port"
)

const (
	lockRetryInterval = 50 * time.Millisecond
	releaseTimeout    = 2 * time.Second
)

// Deletes the lock only while it still holds our token, so an expired lock
// taken over by another process is left alone.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker serializes payment session creation across processes with
// SET NX PX locks.
type RedisLocker struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisLocker(client *redis.Client, log *slog.Logger) *RedisLocker {
	return &RedisLocker{client: client, log: log}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(ttl)

	for {
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() { r.release(key, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: %w", key, port.ErrLockNotAcquired)
		}

		select {
		case <-time.After(lockRetryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// release runs on its own context: the request context may already be done.
func (r *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	deleted, err := releaseLockScript.Run(ctx, r.client, []string{key}, token).Int()
	if err != nil {
		r.log.Error("lock release failed, key stays until ttl", "key", key, "err", err)
		return
	}
	if deleted == 0 {
		r.log.Warn("lock expired before release", "key", key)
	}
}
