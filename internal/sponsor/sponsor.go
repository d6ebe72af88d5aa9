// Package sponsor implements Component F (spec §4.F): admission checks,
// request_gas, sign_tx and finalize, grounded on
// original_source/common/src/services/sponsor.rs (create_gas_data,
// gas_object_processed) and original_source/api/src/endpoints/tx/
// {request_gas,transmit_tx}.rs for the two-step HTTP contract.
package sponsor

import (
	"context"
	"fmt"

	"github.com/Apocentre/sui-sponsor/internal/apierr"
	"github.com/Apocentre/sui-sponsor/internal/bcs"
	"github.com/Apocentre/sui-sponsor/internal/coinid"
	"github.com/Apocentre/sui-sponsor/internal/gasmeter"
	"github.com/Apocentre/sui-sponsor/internal/gaspool"
	"github.com/Apocentre/sui-sponsor/internal/suiclient"
	"github.com/Apocentre/sui-sponsor/internal/suilog"
	"github.com/Apocentre/sui-sponsor/internal/wallet"
)

// GasData is the response body of request_gas: the coin the client must
// reference as gas payment, the sponsor's address as owner, and the quoted
// price/budget (spec §3 GasData).
type GasData struct {
	Payment []coinid.Ref `json:"payment"`
	Owner   string       `json:"owner"`
	Price   uint64       `json:"price"`
	Budget  uint64       `json:"budget"`
}

// AdmissionPredicates are the injected pure functions runAdmission evaluates
// in both request_gas (before leasing a coin) and sign_tx (spec §4.F checks
// 1, 3 and 4; check 2, the kind, is checked directly). All three default-allow when
// left nil, matching spec.md's instruction that admission is an extension
// point, not a mandatory gate.
type AdmissionPredicates struct {
	// IsBlacklisted rejects by sender address.
	IsBlacklisted func(sender bcs.Address) bool
	// IsMoveCallSupported rejects by package::module::function of any
	// MoveCall command in the transaction.
	IsMoveCallSupported func(call *bcs.MoveCall) bool
	// IsGasBudgetWithinLimits rejects by the quoted upper-bound budget.
	IsGasBudgetWithinLimits func(budget uint64) bool
}

func (p AdmissionPredicates) blacklisted(addr bcs.Address) bool {
	return p.IsBlacklisted != nil && p.IsBlacklisted(addr)
}

func (p AdmissionPredicates) moveCallUnsupported(call *bcs.MoveCall) bool {
	return p.IsMoveCallSupported != nil && !p.IsMoveCallSupported(call)
}

func (p AdmissionPredicates) budgetOutOfLimits(budget uint64) bool {
	return p.IsGasBudgetWithinLimits != nil && !p.IsGasBudgetWithinLimits(budget)
}

// Sponsor wires the chain client, wallet, gas meter and gas pool into the
// request_gas / sign_tx / finalize protocol (spec §4.F).
type Sponsor struct {
	chain          suiclient.Chain
	wallet         *wallet.Wallet
	meter          *gasmeter.Meter
	pool           *gaspool.Pool
	minCoinBalance uint64
	maxGasBudget   uint64
	admission      AdmissionPredicates
	log            *suilog.Logger
}

// New wires a Sponsor. minCoinBalance is the MIN_COIN_BALANCE threshold
// finalize uses to decide retire vs return, and maxGasBudget is the
// MAX_GAS_BUDGET policy constant request_gas quotes verbatim (spec §6, §4.F).
func New(chain suiclient.Chain, w *wallet.Wallet, meter *gasmeter.Meter, pool *gaspool.Pool, minCoinBalance, maxGasBudget uint64, admission AdmissionPredicates, log *suilog.Logger) *Sponsor {
	return &Sponsor{
		chain:          chain,
		wallet:         w,
		meter:          meter,
		pool:           pool,
		minCoinBalance: minCoinBalance,
		maxGasBudget:   maxGasBudget,
		admission:      admission,
		log:            log,
	}
}

// runAdmission applies checks 1-4 of spec §4.F. It is called identically from
// request_gas and sign_tx so a client cannot get gas approved for one
// transaction and then countersign a different, disallowed one (spec P5).
func (s *Sponsor) runAdmission(op string, tb *bcs.TransactionBody) error {
	if s.admission.blacklisted(tb.Sender) {
		return apierr.Unsupported(op, fmt.Errorf("sender %s is blacklisted", tb.Sender.Hex()))
	}
	if tb.Kind != bcs.KindProgrammable {
		return apierr.Unsupported(op, fmt.Errorf("transaction kind %d is not programmable", tb.Kind))
	}
	for i := range tb.Commands {
		cmd := &tb.Commands[i]
		switch cmd.Kind {
		case bcs.CommandMoveCall:
			if s.admission.moveCallUnsupported(cmd.MoveCall) {
				return apierr.Unsupported(op, fmt.Errorf("move call %s::%s::%s is not supported", cmd.MoveCall.Package.Hex(), cmd.MoveCall.Module, cmd.MoveCall.Function))
			}
		case bcs.CommandPublish, bcs.CommandUpgrade, bcs.CommandMakeMoveVec:
			return apierr.Unsupported(op, fmt.Errorf("command %s is not supported", cmd.Kind))
		}
	}
	if s.admission.budgetOutOfLimits(s.maxGasBudget) {
		return apierr.Unsupported(op, fmt.Errorf("policy budget %d exceeds configured limit", s.maxGasBudget))
	}
	return nil
}

// RequestGas is step one of the sponsor protocol (spec §4.F): decode the
// client's transaction, run admission checks, lease one coin from the pool,
// refresh its on-chain reference, and quote price/budget (spec §3
// TransactionBody -> GasData).
func (s *Sponsor) RequestGas(ctx context.Context, txBytes []byte) (GasData, error) {
	tb, err := bcs.Decode(txBytes)
	if err != nil {
		return GasData{}, apierr.Decode("sponsor.RequestGas", err)
	}

	if err := s.runAdmission("sponsor.RequestGas", tb); err != nil {
		return GasData{}, err
	}

	coinID, err := s.pool.Lease(ctx)
	if err != nil {
		return GasData{}, err // already apierr-typed (PoolEmpty/Equivocation/Infra)
	}

	ref, err := s.chain.GetObjectRef(ctx, coinID)
	if err != nil {
		_ = s.pool.Return(ctx, coinID)
		return GasData{}, apierr.Chain("sponsor.RequestGas", err)
	}

	price, err := s.meter.Price(ctx)
	if err != nil {
		_ = s.pool.Return(ctx, coinID)
		return GasData{}, apierr.Chain("sponsor.RequestGas", err)
	}

	s.log.Info("leased gas coin", "coin", coinID.Hex(), "price", price, "budget", s.maxGasBudget)
	return GasData{
		Payment: []coinid.Ref{ref},
		Owner:   s.wallet.Address(),
		Price:   price,
		Budget:  s.maxGasBudget,
	}, nil
}

// SignTx is step two of the sponsor protocol (spec §4.F): re-run admission on
// the now-complete body (the command list and gas data the client filled in
// after request_gas), then countersign it with an intent-prefixed Ed25519
// signature. Re-running admission here, not just in RequestGas, is what
// prevents a client from getting gas approved for one transaction and then
// submitting a different one at sign_tx (spec P5).
func (s *Sponsor) SignTx(_ context.Context, txBytes []byte) (wallet.Signature, error) {
	tb, err := bcs.Decode(txBytes)
	if err != nil {
		return wallet.Signature{}, apierr.Decode("sponsor.SignTx", err)
	}
	if err := s.runAdmission("sponsor.SignTx", tb); err != nil {
		return wallet.Signature{}, err
	}
	return s.wallet.Sign(txBytes), nil
}

// Finalize is the sponsor-side cleanup step (spec §4.F): for every coin the
// submitted transaction used as gas payment, read its post-execution balance
// and retire it if it fell to or below minCoinBalance, otherwise return it
// to the pool for reuse. Mirrors gas_object_processed's read-then-decide
// exactly (SPEC_FULL supplement 2).
func (s *Sponsor) Finalize(ctx context.Context, txBytes []byte) error {
	tb, err := bcs.Decode(txBytes)
	if err != nil {
		return apierr.Decode("sponsor.Finalize", err)
	}

	var firstErr error
	for _, ref := range tb.Gas.Payment {
		id, err := coinid.ParseID(ref.ObjectID.Hex())
		if err != nil {
			if firstErr == nil {
				firstErr = apierr.Decode("sponsor.Finalize", err)
			}
			continue
		}
		if err := s.finalizeOne(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sponsor) finalizeOne(ctx context.Context, id coinid.ID) error {
	balance, err := s.chain.GetCoinBalance(ctx, id)
	if err != nil {
		return apierr.Chain("sponsor.Finalize", err)
	}

	if balance <= s.minCoinBalance {
		s.log.Info("retiring depleted gas coin", "coin", id.Hex(), "balance", balance)
		return s.pool.Retire(ctx, id)
	}
	s.log.Info("returning gas coin to pool", "coin", id.Hex(), "balance", balance)
	return s.pool.Return(ctx, id)
}
