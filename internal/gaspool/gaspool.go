// Package gaspool implements the distributed durable queue plus in-memory
// lease registry described in spec §4.C (Component C): Lease, Return,
// Retire and the stalled-lease sweep, grounded on
// original_source/src/services/gas_pool.rs.
package gaspool

import (
	"context"
	"fmt"
	"time"

	"github.com/Apocentre/sui-sponsor/internal/apierr"
	"github.com/Apocentre/sui-sponsor/internal/broker"
	"github.com/Apocentre/sui-sponsor/internal/coinid"
	"github.com/Apocentre/sui-sponsor/internal/kv"
	"github.com/Apocentre/sui-sponsor/internal/leasereg"
	"github.com/Apocentre/sui-sponsor/internal/suilog"
)

// poolMemberPrefix namespaces the KV keys tracking pool membership,
// consulted by the reconciliation pass (spec §4.C supplement) to detect
// coins the queue has lost track of. Matches spec §3/§6's documented
// persisted-state format and GAS_KEY_PREFIX in
// original_source/common/src/gas_pool/mod.rs.
const poolMemberPrefix = "gas:"

func memberKey(id coinid.ID) string { return poolMemberPrefix + id.Hex() }

// Pool is Component C: it owns the lease registry and the broker connection
// the coin object producer feeds.
type Pool struct {
	registry *leasereg.Registry
	broker   broker.Broker
	store    kv.Store
	leaseTTL time.Duration
	log      *suilog.Logger
}

// New wires a Pool from its dependencies. leaseTTL is the age at which
// SweepStalled reclaims an unreturned lease (spec §4.C, LEASE_TTL).
func New(br broker.Broker, store kv.Store, leaseTTL time.Duration, log *suilog.Logger) *Pool {
	return &Pool{
		registry: leasereg.New(),
		broker:   br,
		store:    store,
		leaseTTL: leaseTTL,
		log:      log,
	}
}

// Track records id as a pool member in the durable KV side-index (called by
// the coin manager after a split creates a new coin, spec §4.G step 7,
// before the coin is enqueued).
func (p *Pool) Track(ctx context.Context, id coinid.ID) error {
	if err := p.store.Set(ctx, memberKey(id), "1"); err != nil {
		return apierr.Infra("gaspool.Track", err)
	}
	return nil
}

// Members lists every coin the KV side-index believes belongs to the pool,
// used by the reconciliation pass to detect coins the queue lost track of.
func (p *Pool) Members(ctx context.Context) ([]coinid.ID, error) {
	keys, err := p.store.Keys(ctx, poolMemberPrefix+"*")
	if err != nil {
		return nil, apierr.Infra("gaspool.Members", err)
	}
	out := make([]coinid.ID, 0, len(keys))
	for _, k := range keys {
		id, err := coinid.ParseID(k[len(poolMemberPrefix):])
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Untrack removes id from the KV membership side-index without touching the
// lease registry or broker, used by the reconciliation pass (SPEC_FULL
// supplement 1) to drop a membership record for a coin no longer reachable
// from chain state.
func (p *Pool) Untrack(ctx context.Context, id coinid.ID) error {
	if err := p.store.Del(ctx, memberKey(id)); err != nil {
		return apierr.Infra("gaspool.Untrack", err)
	}
	return nil
}

// Lease dequeues one coin and records it as leased (spec §4.C Lease()). It
// returns apierr.PoolEmpty when the broker has nothing ready, and
// apierr.Equivocation if the registry already holds a lease for the
// dequeued coin id — which per invariant I1 should never happen and, if it
// does, the delivery is immediately nacked rather than handed out twice.
func (p *Pool) Lease(ctx context.Context) (coinid.ID, error) {
	delivery, err := p.broker.Consume(ctx)
	if err != nil {
		if err == broker.ErrEmpty {
			return "", apierr.PoolEmpty("gaspool.Lease")
		}
		return "", apierr.Infra("gaspool.Lease", err)
	}

	id, err := broker.Decode(delivery.Body)
	if err != nil {
		_ = delivery.Nack(ctx)
		return "", apierr.Decode("gaspool.Lease", err)
	}

	if err := p.registry.Insert(id, delivery, time.Now()); err != nil {
		p.log.Error("equivocation detected on lease", "coin", id.Hex())
		_ = delivery.Nack(ctx)
		return "", apierr.Equivocation("gaspool.Lease", fmt.Errorf("coin %s already leased: %w", id.Hex(), err))
	}

	return id, nil
}

// Return hands a leased coin back to the pool without retiring it, used by
// finalize when the coin's post-execution balance is still above the
// threshold, and by request_gas when it fails after leasing the coin. The
// underlying delivery is nacked so the DLX/TTL topology
// redelivers it after the configured cool-down.
func (p *Pool) Return(ctx context.Context, id coinid.ID) error {
	lease, err := p.registry.Remove(id)
	if err != nil {
		return apierr.New(apierr.KindInfra, "gaspool.Return", fmt.Errorf("coin %s: %w", id.Hex(), err))
	}
	if err := lease.Delivery.Nack(ctx); err != nil {
		return apierr.Infra("gaspool.Return", err)
	}
	return nil
}

// Retire permanently removes a coin from the pool (its balance fell below
// the policy threshold, spec §4.F finalize retire branch). The KV
// membership record is deleted before the broker ack so a crash between the
// two leaves the coin merely untracked-but-dequeued rather than
// double-counted (spec §4.C ordering note).
func (p *Pool) Retire(ctx context.Context, id coinid.ID) error {
	lease, err := p.registry.Remove(id)
	if err != nil {
		return apierr.New(apierr.KindInfra, "gaspool.Retire", fmt.Errorf("coin %s: %w", id.Hex(), err))
	}
	if err := p.store.Del(ctx, memberKey(id)); err != nil {
		return apierr.Infra("gaspool.Retire", err)
	}
	if err := lease.Delivery.Ack(ctx); err != nil {
		return apierr.Infra("gaspool.Retire", err)
	}
	return nil
}

// SweepStalled reclaims leases older than leaseTTL by nacking their
// deliveries back onto the queue (spec §4.C sweep, guards against a crashed
// holder leaking a lease forever). It returns the number of leases reclaimed.
func (p *Pool) SweepStalled(ctx context.Context) int {
	cutoff := time.Now().Add(-p.leaseTTL)
	reclaimed := 0
	for _, lease := range p.registry.Snapshot() {
		if lease.LeasedAt.After(cutoff) {
			continue
		}
		if _, err := p.registry.Remove(lease.CoinID); err != nil {
			continue // already reclaimed by a concurrent caller
		}
		if err := lease.Delivery.Nack(ctx); err != nil {
			p.log.Error("sweep: nack failed", "coin", lease.CoinID.Hex(), "err", err)
			continue
		}
		p.log.Warn("reclaimed stalled lease", "coin", lease.CoinID.Hex())
		reclaimed++
	}
	return reclaimed
}

// LeasedCount reports how many leases are currently outstanding, used by the
// "/" health endpoint (spec §6).
func (p *Pool) LeasedCount() int {
	return p.registry.Len()
}
