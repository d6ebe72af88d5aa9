// Package leasereg is the in-memory concurrent mapping CoinId -> (Delivery,
// leased-at) the gas pool uses to enforce invariant I1 (no two live leases
// share a CoinId). It is grounded on the TTL-keyed map + sweep idiom of
// _examples/other_examples/zhongcy-etcd's lessor and the manager-struct /
// context-threaded style of wanot-ai-teamvault's lease manager.
//
// Per spec §9 design note, this is a single-process registry: it is correct
// when one replica owns the pool. A multi-replica deployment would promote
// this to a shared structure (KV with per-coin TTL, or a client-redeemed
// lease token); that re-architecture is out of scope here.
package leasereg

import (
	"fmt"
	"sync"
	"time"

	"github.com/Apocentre/sui-sponsor/internal/broker"
	"github.com/Apocentre/sui-sponsor/internal/coinid"
)

// ErrAlreadyLeased is returned by Insert when coin id is already present —
// the detected-equivocation condition from spec I1.
var ErrAlreadyLeased = fmt.Errorf("leasereg: coin already leased")

// ErrNotFound is returned by Remove when coin id has no lease.
var ErrNotFound = fmt.Errorf("leasereg: lease not found")

// Lease is one entry of the registry: a coin's queue delivery receipt and
// the instant the lease was created.
type Lease struct {
	CoinID   coinid.ID
	Delivery broker.Delivery
	LeasedAt time.Time
}

// Registry is a concurrent CoinId -> Lease map.
type Registry struct {
	mu     sync.Mutex
	leases map[coinid.ID]Lease
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{leases: make(map[coinid.ID]Lease)}
}

// Insert records a new lease for id. It fails with ErrAlreadyLeased if id is
// already present, which is how the registry enforces I1.
func (r *Registry) Insert(id coinid.ID, d broker.Delivery, leasedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.leases[id]; exists {
		return ErrAlreadyLeased
	}
	r.leases[id] = Lease{CoinID: id, Delivery: d, LeasedAt: leasedAt}
	return nil
}

// Remove deletes and returns the lease for id.
func (r *Registry) Remove(id coinid.ID) (Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leases[id]
	if !ok {
		return Lease{}, ErrNotFound
	}
	delete(r.leases, id)
	return l, nil
}

// Snapshot returns a point-in-time copy of all live leases, safe to iterate
// while Insert/Remove continue to run concurrently (the sweeper's use case).
func (r *Registry) Snapshot() []Lease {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lease, 0, len(r.leases))
	for _, l := range r.leases {
		out = append(out, l)
	}
	return out
}

// Len reports the current number of live leases.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leases)
}
