// Package gasmeter quotes gas price and the execution budget for a
// transaction, grounded on original_source/src/services/gas_meter.rs
// (spec §4.E).
package gasmeter

import (
	"context"
	"fmt"

	"github.com/Apocentre/sui-sponsor/internal/bcs"
	"github.com/Apocentre/sui-sponsor/internal/suiclient"
)

// Meter quotes prices and budgets off the live chain.
type Meter struct {
	chain suiclient.Chain
}

// New wraps a Chain as a Meter.
func New(chain suiclient.Chain) *Meter {
	return &Meter{chain: chain}
}

// Price returns the current reference gas price (spec §4.E Price()).
func (m *Meter) Price(ctx context.Context) (uint64, error) {
	price, err := m.chain.GetReferenceGasPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("gasmeter: reference gas price: %w", err)
	}
	return price, nil
}

// Budget dry-runs txBytes and returns the upper-bound gas budget: computation
// cost plus storage cost, deliberately NOT netting the storage rebate, so the
// sponsor never under-funds a transaction against an optimistic rebate that
// may not materialize (spec §4.E Budget()).
func (m *Meter) Budget(ctx context.Context, txBytes []byte) (uint64, error) {
	result, err := m.chain.DryRunTransactionBlock(ctx, txBytes)
	if err != nil {
		return 0, fmt.Errorf("gasmeter: dry run: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("gasmeter: dry run rejected: %v", result.Errors)
	}
	return result.GasUsed.ComputationCost + result.GasUsed.StorageCost, nil
}

// BudgetForBody is a convenience over Budget for callers that already hold a
// decoded TransactionBody rather than raw bytes. It is a client-estimation
// helper; the sponsor's request_gas path does not call it and quotes its
// policy budget instead.
func (m *Meter) BudgetForBody(ctx context.Context, tb *bcs.TransactionBody) (uint64, error) {
	return m.Budget(ctx, bcs.EncodeTransactionBody(tb))
}
