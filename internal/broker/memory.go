package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker standing in for RabbitMQ in tests. It
// reproduces the nack-then-redeliver-after-TTL behavior the DLX topology
// gives the real broker, using a simple timer instead of a wait queue.
type MemoryBroker struct {
	mu       sync.Mutex
	ready    [][]byte
	retryTTL time.Duration
}

// NewMemoryBroker returns an empty MemoryBroker. Publish must be called to
// seed messages (as the coin object producer would).
func NewMemoryBroker(retryTTL time.Duration) *MemoryBroker {
	return &MemoryBroker{retryTTL: retryTTL}
}

func (b *MemoryBroker) Publish(_ context.Context, _ string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = append(b.ready, body)
	return nil
}

func (b *MemoryBroker) Consume(_ context.Context) (Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ready) == 0 {
		return Delivery{}, ErrEmpty
	}
	body := b.ready[0]
	b.ready = b.ready[1:]

	return NewDelivery(body,
		func(context.Context) error { return nil },
		func(ctx context.Context) error {
			if b.retryTTL <= 0 {
				return b.Publish(ctx, "", body)
			}
			time.AfterFunc(b.retryTTL, func() { _ = b.Publish(context.Background(), "", body) })
			return nil
		},
	), nil
}

func (b *MemoryBroker) Close() error { return nil }

// Len reports how many messages are currently ready to dequeue, for test
// assertions.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready)
}
