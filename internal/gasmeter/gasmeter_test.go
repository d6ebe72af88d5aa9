package gasmeter

import (
	"context"
	"testing"

	"github.com/Apocentre/sui-sponsor/internal/bcs"
	"github.com/Apocentre/sui-sponsor/internal/suiclient"
)

func TestPriceReadsReferenceGasPrice(t *testing.T) {
	chain := suiclient.NewFakeChain()
	chain.GasPrice = 777

	price, err := New(chain).Price(context.Background())
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if price != 777 {
		t.Fatalf("Price() = %d, want 777", price)
	}
}

// TestBudgetExcludesRebate asserts the budget is computation+storage only,
// never netting the rebate (spec §4.E).
func TestBudgetExcludesRebate(t *testing.T) {
	chain := suiclient.NewFakeChain()
	chain.DryRun = suiclient.DryRunResult{
		GasUsed: suiclient.GasCostSummary{
			ComputationCost: 1000,
			StorageCost:     2000,
			StorageRebate:   1500,
		},
	}

	budget, err := New(chain).Budget(context.Background(), []byte("tx"))
	if err != nil {
		t.Fatalf("Budget: %v", err)
	}
	if budget != 3000 {
		t.Fatalf("Budget() = %d, want 3000 (rebate must not be netted)", budget)
	}
}

func TestBudgetPropagatesDryRunErrors(t *testing.T) {
	chain := suiclient.NewFakeChain()
	chain.DryRun = suiclient.DryRunResult{Errors: []string{"insufficient gas"}}

	if _, err := New(chain).Budget(context.Background(), []byte("tx")); err == nil {
		t.Fatalf("expected error when dry run reports rejection")
	}
}

// TestBudgetForBodyEncodesAndDryRuns exercises the client-estimation
// convenience that takes an already-decoded TransactionBody instead of raw
// bytes (spec §9: retained for estimation, never called from request_gas).
func TestBudgetForBodyEncodesAndDryRuns(t *testing.T) {
	chain := suiclient.NewFakeChain()
	chain.DryRun = suiclient.DryRunResult{
		GasUsed: suiclient.GasCostSummary{ComputationCost: 400, StorageCost: 100},
	}

	tb := &bcs.TransactionBody{Kind: bcs.KindProgrammable}
	budget, err := New(chain).BudgetForBody(context.Background(), tb)
	if err != nil {
		t.Fatalf("BudgetForBody: %v", err)
	}
	if budget != 500 {
		t.Fatalf("BudgetForBody() = %d, want 500", budget)
	}
}
