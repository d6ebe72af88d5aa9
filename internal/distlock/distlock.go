// Package distlock abstracts the distributed lock the coin manager uses to
// serialize master-coin election across replicas (spec §4.G step 3),
// grounded on original_source/src/storage/redlock.rs's lock/unlock pair over
// redsync.
package distlock

import (
	"context"
	"time"
)

// Unlock releases a previously acquired lock. It is safe to call Unlock
// exactly once; implementations may treat a double-unlock as a no-op.
type Unlock func(ctx context.Context) error

// Locker acquires a named, TTL-bounded mutual-exclusion lock.
type Locker interface {
	// Lock blocks (bounded by ctx) until it holds the lock on key or returns
	// an error. ttl bounds how long the lock is held before it auto-expires,
	// recovering from a crashed holder.
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}
