package coinmanager

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/Apocentre/sui-sponsor/internal/broker"
	"github.com/Apocentre/sui-sponsor/internal/coinid"
	"github.com/Apocentre/sui-sponsor/internal/distlock"
	"github.com/Apocentre/sui-sponsor/internal/gasmeter"
	"github.com/Apocentre/sui-sponsor/internal/gaspool"
	"github.com/Apocentre/sui-sponsor/internal/kv"
	"github.com/Apocentre/sui-sponsor/internal/suiclient"
	"github.com/Apocentre/sui-sponsor/internal/suilog"
	"github.com/Apocentre/sui-sponsor/internal/wallet"
)

type fakeProducer struct {
	published []coinid.ID
}

func (p *fakeProducer) Publish(_ context.Context, id coinid.ID) error {
	p.published = append(p.published, id)
	return nil
}

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	seed := priv.Seed()
	const hextable = "0123456789abcdef"
	hexSeed := make([]byte, 0, len(seed)*2)
	for _, b := range seed {
		hexSeed = append(hexSeed, hextable[b>>4], hextable[b&0xf])
	}
	w, err := wallet.FromPrivateKeyHex(string(hexSeed))
	if err != nil {
		t.Fatalf("FromPrivateKeyHex: %v", err)
	}
	return w
}

func addrHexID(b byte) coinid.ID {
	raw := make([]byte, 32)
	raw[31] = b
	id, _ := coinid.ParseID(hexString(raw))
	return id
}

func hexString(raw []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(raw)*2)
	out[0], out[1] = '0', 'x'
	for i, b := range raw {
		out[2+i*2] = hextable[b>>4]
		out[3+i*2] = hextable[b&0xf]
	}
	return string(out)
}

func testManager(t *testing.T) (*Manager, *suiclient.FakeChain, *fakeProducer, *gaspool.Pool) {
	t.Helper()
	chain := suiclient.NewFakeChain()
	store := kv.NewMemoryStore()
	lock := distlock.NewMemoryLocker()
	br := broker.NewMemoryBroker(0)
	pool := gaspool.New(br, store, time.Minute, suilog.New())
	meter := gasmeter.New(chain)
	w := testWallet(t)
	producer := &fakeProducer{}

	cfg := Config{
		SponsorAddr:       w.Address(),
		MaxPoolCapacity:   5,
		MinPoolCount:      1,
		CoinBalance:       1_000_000,
		GasPaymentMinimum: 100,
		MasterLockTTL:     time.Second,
		Finality:          suiclient.FinalityLocalExecution,
	}
	m := New(chain, w, meter, store, lock, pool, producer, cfg, suilog.New())
	return m, chain, producer, pool
}

func TestFetchSponsorCoinsSortsDescending(t *testing.T) {
	m, chain, _, _ := testManager(t)
	chain.OwnedCoins = []suiclient.Coin{
		{Ref: coinid.Ref{ID: addrHexID(1)}, Balance: 10},
		{Ref: coinid.Ref{ID: addrHexID(2)}, Balance: 100},
		{Ref: coinid.Ref{ID: addrHexID(3)}, Balance: 50},
	}

	coins, err := m.fetchSponsorCoins(context.Background())
	if err != nil {
		t.Fatalf("fetchSponsorCoins: %v", err)
	}
	if len(coins) != 3 || coins[0].Balance != 100 || coins[2].Balance != 10 {
		t.Fatalf("coins not sorted descending: %+v", coins)
	}
}

func TestSetMasterCoinElectsLargestAndExcludesIt(t *testing.T) {
	m, _, _, _ := testManager(t)
	sorted := []suiclient.Coin{
		{Ref: coinid.Ref{ID: addrHexID(9)}, Balance: 900},
		{Ref: coinid.Ref{ID: addrHexID(1)}, Balance: 10},
	}

	remaining, master, err := m.setMasterCoin(context.Background(), sorted)
	if err != nil {
		t.Fatalf("setMasterCoin: %v", err)
	}
	if master != addrHexID(9) {
		t.Fatalf("master = %s, want %s", master, addrHexID(9))
	}
	if len(remaining) != 1 || remaining[0].Ref.ID != addrHexID(1) {
		t.Fatalf("remaining = %+v, want only the non-master coin", remaining)
	}

	stored, err := m.store.Get(context.Background(), masterCoinKey)
	if err != nil {
		t.Fatalf("store.Get(masterCoinKey): %v", err)
	}
	if stored != master.Hex() {
		t.Fatalf("stored master coin = %s, want %s", stored, master.Hex())
	}
}

func TestSetMasterCoinReusesExistingFromKV(t *testing.T) {
	m, _, _, _ := testManager(t)
	existing := addrHexID(7)
	if err := m.store.Set(context.Background(), masterCoinKey, existing.Hex()); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	sponsorCoins := []suiclient.Coin{{Ref: coinid.Ref{ID: addrHexID(1)}, Balance: 10}}
	remaining, master, err := m.setMasterCoin(context.Background(), sponsorCoins)
	if err != nil {
		t.Fatalf("setMasterCoin: %v", err)
	}
	if master != existing {
		t.Fatalf("master = %s, want existing %s", master, existing)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining should be untouched when master comes from KV, got %+v", remaining)
	}
}

func TestExecuteTracksAndPublishesCreatedCoins(t *testing.T) {
	m, chain, producer, pool := testManager(t)

	master := addrHexID(9)
	dust := addrHexID(1)
	paymentCoin := addrHexID(2)
	chain.OwnedCoins = []suiclient.Coin{
		{Ref: coinid.Ref{ID: master}, Balance: 900},
		{Ref: coinid.Ref{ID: dust}, Balance: 10},
		{Ref: coinid.Ref{ID: paymentCoin}, Balance: 500},
	}
	created := []coinid.ID{addrHexID(3), addrHexID(4)}
	chain.ExecuteRes = suiclient.ExecuteResult{Status: "success", CreatedObjectIDs: created}

	if err := m.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	members, err := pool.Members(context.Background())
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != len(created) {
		t.Fatalf("Members() = %v, want %d tracked coins", members, len(created))
	}
	if len(producer.published) != len(created) {
		t.Fatalf("published %d coins, want %d", len(producer.published), len(created))
	}
}

func TestReconcileUntracksUnreachableCoins(t *testing.T) {
	m, chain, _, pool := testManager(t)
	stale := addrHexID(5)
	if err := pool.Track(context.Background(), stale); err != nil {
		t.Fatalf("Track: %v", err)
	}
	chain.Refs = nil // force GetObjectRef's fallback path, which never errors in FakeChain

	// FakeChain.GetObjectRef never errors, so to exercise the "unreachable"
	// branch we rely on a chain that does. Use a minimal wrapper.
	rc := &erroringChain{FakeChain: chain, missing: map[coinid.ID]bool{stale: true}}
	m.chain = rc

	if err := m.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	members, err := pool.Members(context.Background())
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("Members() after Reconcile = %v, want empty", members)
	}
}

// erroringChain wraps FakeChain so GetObjectRef can be made to fail for
// specific coin ids, exercising Reconcile's unreachable-coin branch.
type erroringChain struct {
	*suiclient.FakeChain
	missing map[coinid.ID]bool
}

func (c *erroringChain) GetObjectRef(ctx context.Context, id coinid.ID) (coinid.Ref, error) {
	if c.missing[id] {
		return coinid.Ref{}, errNotFoundOnChain
	}
	return c.FakeChain.GetObjectRef(ctx, id)
}

var errNotFoundOnChain = &notFoundOnChainErr{}

type notFoundOnChainErr struct{}

func (*notFoundOnChainErr) Error() string { return "object not found on chain" }
