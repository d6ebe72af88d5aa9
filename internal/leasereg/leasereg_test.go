package leasereg

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Apocentre/sui-sponsor/internal/broker"
	"github.com/Apocentre/sui-sponsor/internal/coinid"
)

func noopDelivery() broker.Delivery {
	return broker.NewDelivery(nil,
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
	)
}

func TestInsertRejectsDuplicate(t *testing.T) {
	r := New()
	id := coinid.ID("0x1")
	if err := r.Insert(id, noopDelivery(), time.Now()); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if err := r.Insert(id, noopDelivery(), time.Now()); err != ErrAlreadyLeased {
		t.Fatalf("second Insert: got %v, want ErrAlreadyLeased", err)
	}
}

func TestRemoveNotFound(t *testing.T) {
	r := New()
	if _, err := r.Remove(coinid.ID("0x1")); err != ErrNotFound {
		t.Fatalf("Remove: got %v, want ErrNotFound", err)
	}
}

// TestConcurrentInsertNoDuplicates is spec P1: of N concurrent attempts to
// insert the SAME coin id, exactly one succeeds.
func TestConcurrentInsertNoDuplicates(t *testing.T) {
	r := New()
	id := coinid.ID("0xdead")
	const n = 50

	successes := make(chan bool, n)
	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			successes <- r.Insert(id, noopDelivery(), time.Now()) == nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}
	close(successes)

	successCount := 0
	for ok := range successes {
		if ok {
			successCount++
		}
	}
	if successCount != 1 {
		t.Fatalf("successful inserts = %d, want 1", successCount)
	}
	if r.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", r.Len())
	}
}

func TestSnapshotSafeDuringMutation(t *testing.T) {
	r := New()
	for i := 0; i < 100; i++ {
		id := coinid.ID(string(rune('a' + i%26)))
		_ = r.Insert(id, noopDelivery(), time.Now())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			id := coinid.ID(string(rune('a' + i%26)))
			r.Remove(id)
			r.Insert(id, noopDelivery(), time.Now())
		}
	}()

	for i := 0; i < 50; i++ {
		_ = r.Snapshot()
	}
	<-done
}
