package distlock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLocker is an in-process Locker used by tests to exercise
// master-coin election contention (spec P6) without a live Redis quorum.
// A held lock does not expire: it stays held until its Unlock is called.
// ttl only bounds how long Lock waits for a busy key before giving up.
type MemoryLocker struct {
	mu      sync.Mutex
	held    map[string]struct{}
	waiters map[string]chan struct{}
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{}), waiters: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	for {
		l.mu.Lock()
		if _, busy := l.held[key]; !busy {
			l.held[key] = struct{}{}
			l.mu.Unlock()
			break
		}
		waitCh, ok := l.waiters[key]
		if !ok {
			waitCh = make(chan struct{})
			l.waiters[key] = waitCh
		}
		l.mu.Unlock()

		select {
		case <-waitCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ttl):
			return nil, fmt.Errorf("distlock: timed out waiting for %q", key)
		}
	}

	unlocked := false
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if unlocked {
			return nil
		}
		unlocked = true
		delete(l.held, key)
		if waitCh, ok := l.waiters[key]; ok {
			close(waitCh)
			delete(l.waiters, key)
		}
		return nil
	}, nil
}
