package port

import (
	"context"
	"errors"
	"time"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

type Locker interface {
	// Acquire blocks until key is held, ctx ends, or the locker gives up with
	// ErrLockNotAcquired. The returned func releases the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
