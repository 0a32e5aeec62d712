// Package batch assembles item states into one all-or-nothing batch transaction.
package batch

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/idhash"
	"tradeslip/internal/pricing"
	"tradeslip/internal/snapshot"
)

// Drop reasons
var (
	ErrNotReady            = errors.New("item state not ready")
	ErrZeroQuantity        = errors.New("zero quantity")
	ErrInvalidLimit        = errors.New("invalid limit")
	ErrInsufficientBalance = errors.New("insufficient base balance for batch")
)

// Result is the outcome of one assembly pass.
type Result struct {
	Transaction *domain.BatchTransaction // nil when no leg survives
	Dropped     []domain.DroppedLeg
}

// Assemble converts states into slippage-bounded legs.
//
// Buys become swap-exact-amount-out legs bounded by SlippedCost, sells become
// swap-exact-amount-in legs bounded by SlippedProceeds. Cost and proceeds are taken from
// the states, which must have been resolved against snap. States that are not ready, have
// zero quantity, or whose bound is negative (or zero for a buy) are dropped with a reason.
//
// Sells are placed first. When the trader's base balance is known, buys are admitted in
// order only while their summed limits fit within that balance plus the guaranteed
// proceeds of the sells, so no two legs spend the same funds.
func Assemble(states []domain.ItemState, snap *snapshot.Snapshot, slippagePct decimal.Decimal) Result {
	var (
		sells, buys []domain.Leg
		result      Result
	)

	for _, state := range states {
		leg, err := buildLeg(state, slippagePct)
		if err != nil {
			result.Dropped = append(result.Dropped, domain.DroppedLeg{Item: state.Key(), Reason: err})
			continue
		}
		if leg.Kind == domain.LegSwapExactAmountIn {
			sells = append(sells, leg)
		} else {
			buys = append(buys, leg)
		}
	}

	sortLegs(sells)
	sortLegs(buys)

	// Funds available per base asset: balance plus guaranteed sell proceeds.
	budget := make(map[domain.AssetID]decimal.Decimal)
	unbounded := make(map[domain.AssetID]bool)
	fundsFor := func(base domain.AssetID) {
		if _, ok := budget[base]; ok || unbounded[base] {
			return
		}
		balance := snap.TraderBalance(base)
		if !balance.Available {
			unbounded[base] = true
			return
		}
		budget[base] = balance.Amount
	}

	legs := make([]domain.Leg, 0, len(sells)+len(buys))
	for _, leg := range sells {
		fundsFor(leg.AssetOut)
		if !unbounded[leg.AssetOut] {
			budget[leg.AssetOut] = budget[leg.AssetOut].Add(leg.Limit)
		}
		legs = append(legs, leg)
	}
	for _, leg := range buys {
		fundsFor(leg.AssetIn)
		if !unbounded[leg.AssetIn] {
			remaining := budget[leg.AssetIn].Sub(leg.Limit)
			if remaining.IsNegative() {
				result.Dropped = append(result.Dropped, domain.DroppedLeg{
					Item: leg.Item,
					Reason: fmt.Errorf("%w: needs %s, %s left",
						ErrInsufficientBalance, leg.Limit, budget[leg.AssetIn]),
				})
				continue
			}
			budget[leg.AssetIn] = remaining
		}
		legs = append(legs, leg)
	}

	if len(legs) == 0 {
		return result
	}

	var generation uint64
	if snap != nil {
		generation = snap.Generation
	}
	result.Transaction = &domain.BatchTransaction{
		ID:          idhash.ComputeBatchID(generation, slippagePct, legs),
		Generation:  generation,
		SlippagePct: slippagePct,
		Legs:        legs,
	}
	return result
}

func buildLeg(state domain.ItemState, slippagePct decimal.Decimal) (domain.Leg, error) {
	switch state.Status {
	case domain.StatusReady:
	case domain.StatusInvalid:
		if state.Err != nil {
			return domain.Leg{}, state.Err
		}
		return domain.Leg{}, pricing.ErrInfeasibleQuantity
	default:
		return domain.Leg{}, ErrNotReady
	}
	if state.Pool == nil {
		return domain.Leg{}, ErrNotReady
	}
	if !state.Item.Quantity.IsPositive() {
		return domain.Leg{}, ErrZeroQuantity
	}

	leg := domain.Leg{
		Item:   state.Key(),
		PoolID: state.Pool.ID,
		Amount: state.Item.Quantity,
		Quote:  state.Sum,
	}
	switch state.Item.Direction {
	case domain.DirectionBuy:
		leg.Kind = domain.LegSwapExactAmountOut
		leg.AssetIn = state.Pool.BaseAsset
		leg.AssetOut = state.Item.Asset
		leg.Limit = pricing.SlippedCost(state.Sum, slippagePct)
	case domain.DirectionSell:
		leg.Kind = domain.LegSwapExactAmountIn
		leg.AssetIn = state.Item.Asset
		leg.AssetOut = state.Pool.BaseAsset
		leg.Limit = pricing.SlippedProceeds(state.Sum, slippagePct)
	default:
		return domain.Leg{}, domain.ErrInvalidDirection
	}

	// A min-out of zero accepts any proceeds; a buy needs a positive max-in.
	if leg.Limit.IsNegative() || (leg.Kind == domain.LegSwapExactAmountOut && leg.Limit.IsZero()) {
		return domain.Leg{}, fmt.Errorf("%w: %s %s", ErrInvalidLimit, leg.Kind, leg.Limit)
	}
	return leg, nil
}

func sortLegs(legs []domain.Leg) {
	sort.SliceStable(legs, func(i, j int) bool {
		return legs[i].Item.Asset.String() < legs[j].Item.Asset.String()
	})
}

// Reason returns a short label for a drop reason, for metrics and logs.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrZeroQuantity):
		return "zero_quantity"
	case errors.Is(err, ErrInvalidLimit):
		return "invalid_limit"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, pricing.ErrInfeasibleQuantity):
		return "infeasible_quantity"
	case pricing.IsInfeasible(err):
		return "non_finite"
	default:
		return "other"
	}
}
