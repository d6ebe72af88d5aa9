package suiclient

import (
	"context"

	"github.com/Apocentre/sui-sponsor/internal/coinid"
)

// GasCostSummary mirrors the chain's gas accounting fields (spec §4.E):
// computation and storage cost, plus the rebate the gas meter's upper-bound
// budget intentionally does NOT subtract.
type GasCostSummary struct {
	ComputationCost uint64 `json:"computationCost,string"`
	StorageCost     uint64 `json:"storageCost,string"`
	StorageRebate   uint64 `json:"storageRebate,string"`
}

// DryRunResult is the subset of a dry-run response the gas meter needs.
type DryRunResult struct {
	GasUsed GasCostSummary `json:"gasUsed"`
	Errors  []string       `json:"errors,omitempty"`
}

// Finality selects how ExecuteTransactionBlock waits for confirmation,
// spec §9 open question (b): configurable, default WaitForLocalExecution.
type Finality string

const (
	FinalityLocalExecution Finality = "WaitForLocalExecution"
	FinalityEffectsCert    Finality = "WaitForEffectsCert"
)

// ExecuteResult is the subset of an execution response the coin manager and
// submit endpoint need.
type ExecuteResult struct {
	Digest             string      `json:"digest"`
	Errors             []string    `json:"errors,omitempty"`
	Status             string      `json:"status"`
	CreatedObjectIDs   []coinid.ID `json:"-"`
	RawObjectChanges   []ObjectChange `json:"objectChanges,omitempty"`
}

// ObjectChange is one entry of a transaction's effects object-change list.
type ObjectChange struct {
	Type     string `json:"type"`
	ObjectID string `json:"objectId"`
}

// Coin is one entry of a paginated owned-coins listing (spec §4.G step 1).
type Coin struct {
	Ref     coinid.Ref
	Balance uint64
}

// CoinPage is one page of GetCoins results.
type CoinPage struct {
	Data        []Coin
	NextCursor  string
	HasNextPage bool
}

// Chain is the interface the gas meter, sponsor service, coin manager and
// HTTP submit handler depend on, so they can be tested against a fake instead of a live
// node — grounded on the surface original_source/src/helpers/object.rs and
// src/services/{gas_meter,coin_manager}.rs call through sui_sdk::SuiClient.
type Chain interface {
	// GetObjectRef refreshes the current (version, digest) for a coin,
	// required before every use as gas payment (spec CoinRef, §3).
	GetObjectRef(ctx context.Context, id coinid.ID) (coinid.Ref, error)
	// GetCoinBalance returns the current balance of a coin object, used by
	// finalize's retire-vs-return decision (spec §4.F).
	GetCoinBalance(ctx context.Context, id coinid.ID) (uint64, error)
	// GetReferenceGasPrice returns the live reference gas price (spec §4.E).
	GetReferenceGasPrice(ctx context.Context) (uint64, error)
	// DryRunTransactionBlock dry-runs txBytes and returns its cost summary
	// (spec §4.E budget()).
	DryRunTransactionBlock(ctx context.Context, txBytes []byte) (DryRunResult, error)
	// ExecuteTransactionBlock submits a signed transaction (client and/or
	// sponsor signatures) and waits for the given finality.
	ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signatures [][]byte, finality Finality) (ExecuteResult, error)
	// GetOwnedCoins returns one page of the address's coins of the chain's
	// native gas-coin type, sorted by the node however the node returns
	// them; callers sort as needed (spec §4.G step 1 sorts descending).
	GetOwnedCoins(ctx context.Context, owner string, cursor string) (CoinPage, error)
}

// rpcClient adapts the low-level JSON-RPC Client to the Chain interface.
type rpcClient struct {
	c *Client
}

// NewChain wraps a dialed Client as a Chain.
func NewChain(c *Client) Chain {
	return &rpcClient{c: c}
}

func (r *rpcClient) GetObjectRef(ctx context.Context, id coinid.ID) (coinid.Ref, error) {
	var out struct {
		Data struct {
			ObjectID string `json:"objectId"`
			Version  string `json:"version"`
			Digest   string `json:"digest"`
		} `json:"data"`
	}
	if err := r.c.CallContext(ctx, &out, "sui_getObject", id.Hex(), map[string]bool{"showType": true}); err != nil {
		return coinid.Ref{}, err
	}
	parsedID, err := coinid.ParseID(out.Data.ObjectID)
	if err != nil {
		return coinid.Ref{}, err
	}
	return coinid.Ref{ID: parsedID, Version: parseVersion(out.Data.Version), Digest: out.Data.Digest}, nil
}

func (r *rpcClient) GetCoinBalance(ctx context.Context, id coinid.ID) (uint64, error) {
	var out struct {
		Data struct {
			Content struct {
				Fields struct {
					Balance string `json:"balance"`
				} `json:"fields"`
			} `json:"content"`
		} `json:"data"`
	}
	if err := r.c.CallContext(ctx, &out, "sui_getObject", id.Hex(), map[string]bool{"showContent": true}); err != nil {
		return 0, err
	}
	return parseVersion(out.Data.Content.Fields.Balance), nil
}

func (r *rpcClient) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	var price string
	if err := r.c.CallContext(ctx, &price, "suix_getReferenceGasPrice"); err != nil {
		return 0, err
	}
	return parseVersion(price), nil
}

func (r *rpcClient) DryRunTransactionBlock(ctx context.Context, txBytes []byte) (DryRunResult, error) {
	var out struct {
		Effects struct {
			GasUsed GasCostSummary `json:"gasUsed"`
			Status  struct {
				Status string   `json:"status"`
				Error  string   `json:"error,omitempty"`
			} `json:"status"`
		} `json:"effects"`
	}
	if err := r.c.CallContext(ctx, &out, "sui_dryRunTransactionBlock", b64(txBytes)); err != nil {
		return DryRunResult{}, err
	}
	result := DryRunResult{GasUsed: out.Effects.GasUsed}
	if out.Effects.Status.Status != "success" && out.Effects.Status.Status != "" {
		result.Errors = append(result.Errors, out.Effects.Status.Error)
	}
	return result, nil
}

func (r *rpcClient) ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signatures [][]byte, finality Finality) (ExecuteResult, error) {
	sigs := make([]string, len(signatures))
	for i, s := range signatures {
		sigs[i] = b64(s)
	}
	var out struct {
		Digest        string `json:"digest"`
		Effects       struct {
			Status struct {
				Status string `json:"status"`
				Error  string `json:"error,omitempty"`
			} `json:"status"`
		} `json:"effects"`
		ObjectChanges []ObjectChange `json:"objectChanges"`
	}
	opts := map[string]bool{"showEffects": true, "showObjectChanges": true}
	if err := r.c.CallContext(ctx, &out, "sui_executeTransactionBlock", b64(txBytes), sigs, opts, string(finality)); err != nil {
		return ExecuteResult{}, err
	}

	result := ExecuteResult{Digest: out.Digest, Status: out.Effects.Status.Status, RawObjectChanges: out.ObjectChanges}
	if out.Effects.Status.Status != "success" {
		result.Errors = append(result.Errors, out.Effects.Status.Error)
	}
	for _, change := range out.ObjectChanges {
		if change.Type == "created" {
			if id, err := coinid.ParseID(change.ObjectID); err == nil {
				result.CreatedObjectIDs = append(result.CreatedObjectIDs, id)
			}
		}
	}
	return result, nil
}

func (r *rpcClient) GetOwnedCoins(ctx context.Context, owner string, cursor string) (CoinPage, error) {
	var out struct {
		Data []struct {
			CoinObjectID string `json:"coinObjectId"`
			Version      string `json:"version"`
			Digest       string `json:"digest"`
			Balance      string `json:"balance"`
		} `json:"data"`
		NextCursor  *string `json:"nextCursor"`
		HasNextPage bool    `json:"hasNextPage"`
	}
	var cursorParam any
	if cursor != "" {
		cursorParam = cursor
	}
	if err := r.c.CallContext(ctx, &out, "suix_getCoins", owner, "0x2::sui::SUI", cursorParam, nil); err != nil {
		return CoinPage{}, err
	}

	page := CoinPage{HasNextPage: out.HasNextPage}
	for _, d := range out.Data {
		id, err := coinid.ParseID(d.CoinObjectID)
		if err != nil {
			return CoinPage{}, err
		}
		page.Data = append(page.Data, Coin{
			Ref:     coinid.Ref{ID: id, Version: parseVersion(d.Version), Digest: d.Digest},
			Balance: parseVersion(d.Balance),
		})
	}
	if out.NextCursor != nil {
		page.NextCursor = *out.NextCursor
	}
	return page, nil
}
