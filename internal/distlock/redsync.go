package distlock

import (
	"context"
	"fmt"
	"time"

	"github.com/RichardKnop/redsync"
	"github.com/gomodule/redigo/redis"
)

// RedsyncLocker implements Locker over RichardKnop/redsync, grounded on
// original_source/src/storage/redlock.rs's RedLock wrapper (one lock per
// resource name, TTL in the lock call itself).
type RedsyncLocker struct {
	rs *redsync.Redsync
}

// NewRedsyncLocker builds a Locker against one or more Redis hosts sharing
// password, following RedLock's quorum-of-instances design.
func NewRedsyncLocker(addrs []string, password string) *RedsyncLocker {
	pools := make([]redsync.Pool, 0, len(addrs))
	for _, addr := range addrs {
		addr := addr
		pools = append(pools, &redis.Pool{
			MaxIdle: 3,
			Dial: func() (redis.Conn, error) {
				opts := []redis.DialOption{}
				if password != "" {
					opts = append(opts, redis.DialPassword(password))
				}
				return redis.Dial("tcp", addr, opts...)
			},
		})
	}
	return &RedsyncLocker{rs: redsync.New(pools)}
}

func (l *RedsyncLocker) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	mutex := l.rs.NewMutex(key, redsync.SetExpiry(ttl))

	done := make(chan error, 1)
	go func() { done <- mutex.Lock() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("distlock: acquire %q: %w", key, err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return func(context.Context) error {
		if ok, err := mutex.Unlock(); err != nil {
			return fmt.Errorf("distlock: release %q: %w", key, err)
		} else if !ok {
			return fmt.Errorf("distlock: release %q: lock was not held", key)
		}
		return nil
	}, nil
}
