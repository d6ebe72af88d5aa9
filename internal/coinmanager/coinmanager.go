// Package coinmanager implements Component G (spec §4.G): the rebalance
// loop that merges the sponsor's dust coins into one master coin and splits
// it back into fresh, pool-sized coins, grounded line for line on
// original_source/src/services/coin_manager.rs.
package coinmanager

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Apocentre/sui-sponsor/internal/bcs"
	"github.com/Apocentre/sui-sponsor/internal/coinid"
	"github.com/Apocentre/sui-sponsor/internal/distlock"
	"github.com/Apocentre/sui-sponsor/internal/gasmeter"
	"github.com/Apocentre/sui-sponsor/internal/gaspool"
	"github.com/Apocentre/sui-sponsor/internal/kv"
	"github.com/Apocentre/sui-sponsor/internal/suiclient"
	"github.com/Apocentre/sui-sponsor/internal/suilog"
	"github.com/Apocentre/sui-sponsor/internal/wallet"
)

// masterCoinKey is the KV record shared by every replica to agree on which
// sponsor coin plays the role of merge target (spec §4.G step 3).
const masterCoinKey = "gas::master_coin"

// rebalanceGasBudget is a fixed, conservative budget for the rebalance
// transaction's own gas cost, matching the literal constant the original
// implementation used rather than a dry-run quote (the rebalance tx is
// cheap and predictable, unlike arbitrary client transactions).
const rebalanceGasBudget = 100_000

// Manager is Component G: it owns the master-coin election, the merge/split
// transaction build, and the periodic loop that keeps the gas pool supplied.
type Manager struct {
	chain    suiclient.Chain
	wallet   *wallet.Wallet
	meter    *gasmeter.Meter
	store    kv.Store
	lock     distlock.Locker
	pool     *gaspool.Pool
	producer CoinProducer

	sponsorAddr       string
	maxPoolCapacity   int
	minPoolCount      int
	coinBalance       uint64
	gasPaymentMinimum uint64
	masterLockTTL     time.Duration
	finality          suiclient.Finality

	masterCoin *coinid.ID // cached after the first successful election

	log *suilog.Logger
}

// CoinProducer is the narrow surface coinmanager needs from
// internal/broker's CoinObjectProducer, named here to avoid an import cycle
// concern and to make the dependency explicit at the call site.
type CoinProducer interface {
	Publish(ctx context.Context, id coinid.ID) error
}

// Config bundles Manager's policy knobs (spec §6 MAX_POOL_CAPACITY,
// MIN_POOL_COUNT, COIN_BALANCE_DEPOSIT, GAS_PAYMENT_MINIMUM,
// MASTER_LOCK_TTL, SUBMIT_FINALITY).
type Config struct {
	SponsorAddr       string
	MaxPoolCapacity   int
	MinPoolCount      int
	CoinBalance       uint64
	GasPaymentMinimum uint64
	MasterLockTTL     time.Duration
	Finality          suiclient.Finality
}

// New wires a Manager from its dependencies and Config.
func New(chain suiclient.Chain, w *wallet.Wallet, meter *gasmeter.Meter, store kv.Store, lock distlock.Locker, pool *gaspool.Pool, producer CoinProducer, cfg Config, log *suilog.Logger) *Manager {
	return &Manager{
		chain:             chain,
		wallet:            w,
		meter:             meter,
		store:             store,
		lock:              lock,
		pool:              pool,
		producer:          producer,
		sponsorAddr:       cfg.SponsorAddr,
		maxPoolCapacity:   cfg.MaxPoolCapacity,
		minPoolCount:      cfg.MinPoolCount,
		coinBalance:       cfg.CoinBalance,
		gasPaymentMinimum: cfg.GasPaymentMinimum,
		masterLockTTL:     cfg.MasterLockTTL,
		finality:          cfg.Finality,
		log:               log,
	}
}

// fetchSponsorCoins lists every coin the sponsor owns, paginating until
// exhausted, sorted by balance descending (spec §4.G step 1: "the biggest
// coin is first").
func (m *Manager) fetchSponsorCoins(ctx context.Context) ([]suiclient.Coin, error) {
	var coins []suiclient.Coin
	cursor := ""
	for {
		page, err := m.chain.GetOwnedCoins(ctx, m.sponsorAddr, cursor)
		if err != nil {
			return nil, fmt.Errorf("coinmanager: fetch sponsor coins: %w", err)
		}
		coins = append(coins, page.Data...)
		if !page.HasNextPage {
			break
		}
		cursor = page.NextCursor
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i].Balance > coins[j].Balance })
	return coins, nil
}

// setMasterCoin elects the master coin (spec §4.G step 3): if one is
// already cached in memory, it is reused; otherwise a distributed lock
// serializes the election across replicas, the KV record is consulted
// first, and only if absent is the sponsor's largest coin promoted and
// recorded. The returned slice is sponsorCoins without the master coin, so
// callers never merge the master coin into itself.
func (m *Manager) setMasterCoin(ctx context.Context, sponsorCoins []suiclient.Coin) ([]suiclient.Coin, coinid.ID, error) {
	if m.masterCoin != nil {
		return withoutCoin(sponsorCoins, *m.masterCoin), *m.masterCoin, nil
	}

	unlock, err := m.lock.Lock(ctx, masterCoinKey, m.masterLockTTL)
	if err != nil {
		return nil, "", fmt.Errorf("coinmanager: acquire master coin lock: %w", err)
	}
	defer unlock(ctx)

	existing, err := m.store.Get(ctx, masterCoinKey)
	if err == nil {
		id, err := coinid.ParseID(existing)
		if err != nil {
			return nil, "", fmt.Errorf("coinmanager: parse stored master coin: %w", err)
		}
		m.masterCoin = &id
		return withoutCoin(sponsorCoins, id), id, nil
	}
	if err != kv.ErrNotFound {
		return nil, "", fmt.Errorf("coinmanager: read master coin: %w", err)
	}

	if len(sponsorCoins) == 0 {
		return nil, "", fmt.Errorf("coinmanager: sponsor must have at least one coin to elect a master coin")
	}
	master := sponsorCoins[0].Ref.ID
	if err := m.store.Set(ctx, masterCoinKey, master.Hex()); err != nil {
		return nil, "", fmt.Errorf("coinmanager: persist master coin: %w", err)
	}
	m.masterCoin = &master

	return sponsorCoins[1:], master, nil
}

// withoutCoin returns coins minus any entry whose id is id.
func withoutCoin(coins []suiclient.Coin, id coinid.ID) []suiclient.Coin {
	out := make([]suiclient.Coin, 0, len(coins))
	for _, c := range coins {
		if c.Ref.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// selectGasPaymentCoin picks the rebalance transaction's own gas-payment
// coin by scanning coins (the sponsor's coins other than the master coin and
// pool members) ascending by balance for the first one that meets
// gasPaymentMinimum (SPEC_FULL supplement 5: "smallest that
// suffices" rather than always spending from the master coin).
func selectGasPaymentCoin(coins []suiclient.Coin, minimum uint64) (suiclient.Coin, error) {
	sorted := append([]suiclient.Coin(nil), coins...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Balance < sorted[j].Balance })
	for _, c := range sorted {
		if c.Balance >= minimum {
			return c, nil
		}
	}
	return suiclient.Coin{}, fmt.Errorf("coinmanager: no sponsor coin has balance >= %d for gas payment", minimum)
}

// rebalance builds and submits the merge-then-split programmable transaction
// (spec §4.G steps 4-7): pick the gas-payment coin from inputCoins, merge
// every other input coin into the master coin, then split the master coin
// into enough fresh coins to fill the pool back to maxPoolCapacity.
func (m *Manager) rebalance(ctx context.Context, masterID coinid.ID, inputCoins []suiclient.Coin, poolCoinCount int) ([]coinid.ID, error) {
	masterRef, err := m.chain.GetObjectRef(ctx, masterID)
	if err != nil {
		return nil, fmt.Errorf("coinmanager: refresh master coin ref: %w", err)
	}

	splitCount := m.maxPoolCapacity - poolCoinCount
	if splitCount <= 0 {
		return nil, nil
	}

	paymentCoin, err := selectGasPaymentCoin(inputCoins, m.gasPaymentMinimum)
	if err != nil {
		return nil, err
	}

	var commands []bcs.Command
	if len(inputCoins) > 1 {
		sources := make([]bcs.ObjectRef, 0, len(inputCoins)-1)
		for _, c := range inputCoins {
			if c.Ref.ID != paymentCoin.Ref.ID {
				sources = append(sources, toBCSObjectRef(c.Ref))
			}
		}
		commands = append(commands, bcs.Command{
			Kind: bcs.CommandMergeCoins,
			MergeCoins: &bcs.MergeCoinsArgs{
				Destination: toBCSObjectRef(masterRef),
				Sources:     sources,
			},
		})
	}

	amounts := make([]uint64, splitCount)
	for i := range amounts {
		amounts[i] = m.coinBalance
	}
	commands = append(commands, bcs.Command{
		Kind: bcs.CommandSplitCoins,
		SplitCoins: &bcs.SplitCoinsArgs{
			Source:  toBCSObjectRef(masterRef),
			Amounts: amounts,
		},
	})

	paymentRef, err := m.chain.GetObjectRef(ctx, paymentCoin.Ref.ID)
	if err != nil {
		return nil, fmt.Errorf("coinmanager: refresh gas payment coin ref: %w", err)
	}

	price, err := m.meter.Price(ctx)
	if err != nil {
		return nil, fmt.Errorf("coinmanager: quote gas price: %w", err)
	}

	var sender bcs.Address
	copy(sender[:], m.wallet.PublicKey())
	body := &bcs.TransactionBody{
		Sender:   sender,
		Kind:     bcs.KindProgrammable,
		Commands: commands,
		Gas: bcs.GasData{
			Payment: []bcs.ObjectRef{toBCSObjectRef(paymentRef)},
			Owner:   sender,
			Price:   price,
			Budget:  rebalanceGasBudget,
		},
	}
	txBytes := bcs.EncodeTransactionBody(body)

	dryRun, err := m.chain.DryRunTransactionBlock(ctx, txBytes)
	if err != nil {
		return nil, fmt.Errorf("coinmanager: dry run rebalance tx: %w", err)
	}
	if len(dryRun.Errors) > 0 {
		return nil, fmt.Errorf("coinmanager: rebalance tx rejected by dry run: %v", dryRun.Errors)
	}

	sig := m.wallet.Sign(txBytes)
	result, err := m.chain.ExecuteTransactionBlock(ctx, txBytes, [][]byte{sig.Bytes()}, m.finality)
	if err != nil {
		return nil, fmt.Errorf("coinmanager: execute rebalance tx: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("coinmanager: rebalance tx failed: %v", result.Errors)
	}

	m.log.Info("rebalanced sponsor coins", "merged", len(inputCoins), "created", len(result.CreatedObjectIDs))
	return result.CreatedObjectIDs, nil
}

// toBCSObjectRef converts a chain-returned coin reference into this
// package's internal object-ref encoding. ObjectID always round-trips
// through hex (spec coin ids are always hex literals); Digest is not: the
// chain's object digest is base58, not hex, and this package's BCS encoder
// has no general base58 decoder, so the digest's raw bytes are copied
// directly (truncated/padded to 32 bytes) — sufficient for this package's
// own round trip, not for chain-wire compatibility (see package doc).
func toBCSObjectRef(ref coinid.Ref) bcs.ObjectRef {
	var out bcs.ObjectRef
	if addr, err := hexToAddress(string(ref.ID)); err == nil {
		out.ObjectID = addr
	}
	out.Version = ref.Version
	copy(out.Digest[:], []byte(ref.Digest))
	return out
}

// Execute is the rebalance entry point (spec §4.G "Main execution logic"):
// fetch the sponsor's coins, exclude coins currently held by the pool, elect
// the master coin, rebalance, then track and enqueue every newly split coin.
// Per-coin tracking/publishing failures are aggregated so one bad coin
// doesn't mask errors on the rest (hashicorp/go-multierror).
func (m *Manager) Execute(ctx context.Context) error {
	coins, err := m.fetchSponsorCoins(ctx)
	if err != nil {
		return err
	}
	if len(coins) == 0 {
		return fmt.Errorf("coinmanager: sponsor must have at least one coin")
	}

	poolMembers, err := m.pool.Members(ctx)
	if err != nil {
		return err
	}
	poolSet := make(map[coinid.ID]struct{}, len(poolMembers))
	for _, id := range poolMembers {
		poolSet[id] = struct{}{}
	}

	var inputCoins []suiclient.Coin
	for _, c := range coins {
		if _, inPool := poolSet[c.Ref.ID]; !inPool {
			inputCoins = append(inputCoins, c)
		}
	}

	remaining, masterID, err := m.setMasterCoin(ctx, inputCoins)
	if err != nil {
		return err
	}

	created, err := m.rebalance(ctx, masterID, remaining, len(poolMembers))
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, id := range created {
		if err := m.pool.Track(ctx, id); err != nil {
			result = multierror.Append(result, fmt.Errorf("track %s: %w", id.Hex(), err))
			continue
		}
		if err := m.producer.Publish(ctx, id); err != nil {
			result = multierror.Append(result, fmt.Errorf("publish %s: %w", id.Hex(), err))
		}
	}
	return result.ErrorOrNil()
}

// Run loops forever (bounded by ctx), checking pool membership every
// rebalancePoll interval and triggering Execute whenever the pool is at or
// below minPoolCount (spec §4.G "run()").
func (m *Manager) Run(ctx context.Context, rebalancePoll time.Duration) error {
	ticker := time.NewTicker(rebalancePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			members, err := m.pool.Members(ctx)
			if err != nil {
				m.log.Error("coinmanager: read pool members", "err", err)
				continue
			}
			if len(members) > m.minPoolCount {
				continue
			}
			if err := m.Execute(ctx); err != nil {
				m.log.Error("coinmanager: execute rebalance", "err", err)
			}
		}
	}
}

// Reconcile is the supplemented reconciliation pass (SPEC_FULL supplement
// 1): it runs on a much longer interval than Run and removes KV membership
// records for coins whose on-chain object lookup fails. Ownership is not
// checked: a coin that still exists but has changed owner keeps its record.
func (m *Manager) Reconcile(ctx context.Context) error {
	members, err := m.pool.Members(ctx)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, id := range members {
		if _, err := m.chain.GetObjectRef(ctx, id); err != nil {
			m.log.Warn("reconcile: dropping unreachable pool coin", "coin", id.Hex(), "err", err)
			if err := m.pool.Untrack(ctx, id); err != nil {
				result = multierror.Append(result, fmt.Errorf("untrack %s: %w", id.Hex(), err))
			}
		}
	}
	return result.ErrorOrNil()
}

func hexToAddress(s string) (bcs.Address, error) {
	id, err := coinid.ParseID(s)
	if err != nil {
		return bcs.Address{}, err
	}
	raw := id.Hex()[2:]
	if len(raw)%2 != 0 {
		raw = "0" + raw
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return bcs.Address{}, err
	}
	var out bcs.Address
	copy(out[len(out)-len(decoded):], decoded)
	return out, nil
}
