package suiclient

import (
	"context"
	"sync"

	"github.com/Apocentre/sui-sponsor/internal/coinid"
)

// FakeChain is an in-memory Chain used by tests in place of a live node.
type FakeChain struct {
	mu sync.Mutex

	Balances   map[coinid.ID]uint64
	Refs       map[coinid.ID]coinid.Ref
	GasPrice   uint64
	DryRun     DryRunResult
	ExecuteErr error
	ExecuteRes ExecuteResult
	OwnedCoins []Coin
}

// NewFakeChain returns a FakeChain with empty state and a nominal gas price.
func NewFakeChain() *FakeChain {
	return &FakeChain{
		Balances: make(map[coinid.ID]uint64),
		Refs:     make(map[coinid.ID]coinid.Ref),
		GasPrice: 1000,
	}
}

func (f *FakeChain) GetObjectRef(_ context.Context, id coinid.ID) (coinid.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref, ok := f.Refs[id]; ok {
		return ref, nil
	}
	return coinid.Ref{ID: id, Version: 1, Digest: "fake-digest"}, nil
}

func (f *FakeChain) GetCoinBalance(_ context.Context, id coinid.ID) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Balances[id], nil
}

func (f *FakeChain) GetReferenceGasPrice(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.GasPrice, nil
}

func (f *FakeChain) DryRunTransactionBlock(context.Context, []byte) (DryRunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DryRun, nil
}

func (f *FakeChain) ExecuteTransactionBlock(context.Context, []byte, [][]byte, Finality) (ExecuteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ExecuteRes, f.ExecuteErr
}

func (f *FakeChain) GetOwnedCoins(_ context.Context, _ string, _ string) (CoinPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return CoinPage{Data: f.OwnedCoins, HasNextPage: false}, nil
}

// SetBalance is a test helper to seed a coin's balance.
func (f *FakeChain) SetBalance(id coinid.ID, balance uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Balances[id] = balance
}
