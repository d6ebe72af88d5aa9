package sponsor

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"testing"
	"time"

	"github.com/Apocentre/sui-sponsor/internal/apierr"
	"github.com/Apocentre/sui-sponsor/internal/bcs"
	"github.com/Apocentre/sui-sponsor/internal/broker"
	"github.com/Apocentre/sui-sponsor/internal/coinid"
	"github.com/Apocentre/sui-sponsor/internal/gasmeter"
	"github.com/Apocentre/sui-sponsor/internal/gaspool"
	"github.com/Apocentre/sui-sponsor/internal/kv"
	"github.com/Apocentre/sui-sponsor/internal/suiclient"
	"github.com/Apocentre/sui-sponsor/internal/suilog"
	"github.com/Apocentre/sui-sponsor/internal/wallet"
)

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

func seedCoin(t *testing.T, br *broker.MemoryBroker, id coinid.ID) {
	t.Helper()
	body, err := json.Marshal(broker.NewCoinObject{ID: id.Hex()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := br.Publish(context.Background(), "", body); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func testSponsor(t *testing.T) (*Sponsor, *suiclient.FakeChain, *broker.MemoryBroker) {
	t.Helper()
	chain := suiclient.NewFakeChain()
	br := broker.NewMemoryBroker(0)
	store := kv.NewMemoryStore()
	pool := gaspool.New(br, store, time.Minute, suilog.New())
	meter := gasmeter.New(chain)
	w := testWallet(t)
	s := New(chain, w, meter, pool, 1_000_000, testMaxGasBudget, AdmissionPredicates{}, suilog.New())
	return s, chain, br
}

// testMaxGasBudget is the policy constant request_gas quotes verbatim in
// these tests, distinct from any dry-run-derived value so a regression back
// to quoting the dry run would fail TestRequestGasLeasesAndQuotes.
const testMaxGasBudget = 5_000_000

func simpleTxBytes() []byte {
	body := &bcs.TransactionBody{
		Kind: bcs.KindProgrammable,
		Gas:  bcs.GasData{Price: 1, Budget: 1},
	}
	return bcs.EncodeTransactionBody(body)
}

func TestRequestGasLeasesAndQuotes(t *testing.T) {
	s, chain, br := testSponsor(t)
	coinObj, _ := coinid.ParseID("0x10")
	seedCoin(t, br, coinObj)
	chain.GasPrice = 42
	chain.DryRun.GasUsed.ComputationCost = 100
	chain.DryRun.GasUsed.StorageCost = 50

	gasData, err := s.RequestGas(context.Background(), simpleTxBytes())
	if err != nil {
		t.Fatalf("RequestGas: %v", err)
	}
	if len(gasData.Payment) != 1 || gasData.Payment[0].ID != coinObj {
		t.Fatalf("Payment = %+v, want coin %s", gasData.Payment, coinObj)
	}
	if gasData.Price != 42 {
		t.Fatalf("Price = %d, want 42", gasData.Price)
	}
	if gasData.Budget != testMaxGasBudget {
		t.Fatalf("Budget = %d, want policy constant %d (not the dry-run total)", gasData.Budget, testMaxGasBudget)
	}
	if gasData.Owner == "" {
		t.Fatalf("Owner is empty")
	}
}

func TestRequestGasPoolEmpty(t *testing.T) {
	s, _, _ := testSponsor(t)
	if _, err := s.RequestGas(context.Background(), simpleTxBytes()); !apierr.IsPoolEmpty(err) {
		t.Fatalf("RequestGas with empty pool: err = %v, want PoolEmpty", err)
	}
}

func TestRequestGasBlacklistedSenderRejected(t *testing.T) {
	chain := suiclient.NewFakeChain()
	br := broker.NewMemoryBroker(0)
	store := kv.NewMemoryStore()
	pool := gaspool.New(br, store, time.Minute, suilog.New())
	meter := gasmeter.New(chain)
	w := testWallet(t)

	var blocked bcs.Address
	blocked[0] = 0xFF
	admission := AdmissionPredicates{
		IsBlacklisted: func(addr bcs.Address) bool { return addr == blocked },
	}
	s := New(chain, w, meter, pool, 1_000_000, testMaxGasBudget, admission, suilog.New())

	body := &bcs.TransactionBody{Sender: blocked, Kind: bcs.KindProgrammable, Gas: bcs.GasData{Price: 1, Budget: 1}}
	if _, err := s.RequestGas(context.Background(), bcs.EncodeTransactionBody(body)); err == nil {
		t.Fatalf("expected rejection for blacklisted sender")
	}
}

func TestRequestGasRejectsNonProgrammableKind(t *testing.T) {
	s, _, br := testSponsor(t)
	coinObj, _ := coinid.ParseID("0x30")
	seedCoin(t, br, coinObj)

	body := &bcs.TransactionBody{Kind: bcs.KindOther}
	if _, err := s.RequestGas(context.Background(), bcs.EncodeTransactionBody(body)); !apierr.IsUnsupported(err) {
		t.Fatalf("RequestGas with non-programmable kind: err = %v, want UnsupportedTransaction", err)
	}
}

func TestRequestGasRejectsPublishCommand(t *testing.T) {
	s, _, br := testSponsor(t)
	coinObj, _ := coinid.ParseID("0x31")
	seedCoin(t, br, coinObj)

	body := &bcs.TransactionBody{
		Kind:     bcs.KindProgrammable,
		Commands: []bcs.Command{{Kind: bcs.CommandPublish}},
	}
	if _, err := s.RequestGas(context.Background(), bcs.EncodeTransactionBody(body)); !apierr.IsUnsupported(err) {
		t.Fatalf("RequestGas with Publish command: err = %v, want UnsupportedTransaction", err)
	}
}

func TestSignTxReRunsAdmissionAndRejectsSwappedTx(t *testing.T) {
	s, _, br := testSponsor(t)
	coinObj, _ := coinid.ParseID("0x32")
	seedCoin(t, br, coinObj)

	if _, err := s.RequestGas(context.Background(), simpleTxBytes()); err != nil {
		t.Fatalf("RequestGas: %v", err)
	}

	// A client that swaps in a disallowed command after request_gas must be
	// rejected at sign_tx, not blindly countersigned (spec P5).
	swapped := &bcs.TransactionBody{
		Kind:     bcs.KindProgrammable,
		Commands: []bcs.Command{{Kind: bcs.CommandUpgrade}},
	}
	if _, err := s.SignTx(context.Background(), bcs.EncodeTransactionBody(swapped)); !apierr.IsUnsupported(err) {
		t.Fatalf("SignTx with swapped Upgrade command: err = %v, want UnsupportedTransaction", err)
	}
}

func TestSignTxAcceptsAdmissibleBody(t *testing.T) {
	s, _, br := testSponsor(t)
	coinObj, _ := coinid.ParseID("0x33")
	seedCoin(t, br, coinObj)

	if _, err := s.RequestGas(context.Background(), simpleTxBytes()); err != nil {
		t.Fatalf("RequestGas: %v", err)
	}
	if _, err := s.SignTx(context.Background(), simpleTxBytes()); err != nil {
		t.Fatalf("SignTx: %v", err)
	}
}

// addrCoin builds a 32-byte address and the coinid.ID that Finalize's
// BCS round trip will reproduce from it, so the leased coin id and the
// decoded gas-payment object id agree (real object ids are always the full
// 32 bytes; abbreviated test ids like "0x20" only round-trip through
// leasereg/broker, which compare the string directly).
func addrCoin(b byte) (bcs.Address, coinid.ID) {
	var a bcs.Address
	a[31] = b
	id, _ := coinid.ParseID(a.Hex())
	return a, id
}

func TestFinalizeRetiresDepletedCoin(t *testing.T) {
	s, chain, br := testSponsor(t)
	addr, coinObj := addrCoin(0x20)
	seedCoin(t, br, coinObj)

	if _, err := s.RequestGas(context.Background(), simpleTxBytes()); err != nil {
		t.Fatalf("RequestGas: %v", err)
	}
	chain.SetBalance(coinObj, 0) // below minCoinBalance

	submitted := &bcs.TransactionBody{
		Gas: bcs.GasData{Payment: []bcs.ObjectRef{{ObjectID: addr}}, Price: 1, Budget: 1},
	}
	if err := s.Finalize(context.Background(), bcs.EncodeTransactionBody(submitted)); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if br.Len() != 0 {
		t.Fatalf("broker has %d messages after retire, want 0", br.Len())
	}
}

func TestFinalizeReturnsHealthyCoin(t *testing.T) {
	s, chain, br := testSponsor(t)
	addr, coinObj := addrCoin(0x21)
	seedCoin(t, br, coinObj)

	if _, err := s.RequestGas(context.Background(), simpleTxBytes()); err != nil {
		t.Fatalf("RequestGas: %v", err)
	}
	chain.SetBalance(coinObj, 5_000_000_000) // above minCoinBalance

	submitted := &bcs.TransactionBody{
		Gas: bcs.GasData{Payment: []bcs.ObjectRef{{ObjectID: addr}}, Price: 1, Budget: 1},
	}
	if err := s.Finalize(context.Background(), bcs.EncodeTransactionBody(submitted)); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if br.Len() != 1 {
		t.Fatalf("broker has %d messages after return, want 1 (redelivered)", br.Len())
	}
}
