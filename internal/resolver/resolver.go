// Package resolver derives the state of a single trade item from a snapshot.
package resolver

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/pricing"
	"tradeslip/internal/snapshot"
)

// MaxInOutRatio caps any single trade at this fraction of the pool's balance of the asset.
var MaxInOutRatio = decimal.NewFromInt(1).DivRound(decimal.NewFromInt(3), pricing.Precision)

// ErrExceedsMaxQuantity is returned when the requested quantity is above the item's maximum.
var ErrExceedsMaxQuantity = fmt.Errorf("%w: exceeds max quantity", pricing.ErrInfeasibleQuantity)

// Resolve derives the state of item against snap.
//
// Missing pool, weights or pool balances resolve as StatusNotReady. A quantity that a
// formula cannot price, or that exceeds MaxQuantity, resolves as StatusInvalid with the
// cause in Err. Figures are never clamped. Resolve is pure.
func Resolve(item domain.TradeItem, snap *snapshot.Snapshot) domain.ItemState {
	state := domain.ItemState{Item: item, Status: domain.StatusNotReady}

	// 1. Resolve pool, weights and pool balances
	pool := snap.PoolFor(item.Asset)
	if pool == nil {
		return state
	}
	baseWeight, ok := pool.Weight(pool.BaseAsset)
	if !ok {
		return state
	}
	assetWeight, ok := pool.Weight(item.Asset)
	if !ok {
		return state
	}
	poolBase, ok := snap.PoolBalance(pool.ID, pool.BaseAsset)
	if !ok {
		return state
	}
	poolAsset, ok := snap.PoolBalance(pool.ID, item.Asset)
	if !ok {
		return state
	}

	state.Pool = pool
	state.SwapFee = pool.SwapFee

	price, err := pricing.SpotPrice(poolBase, baseWeight, poolAsset, assetWeight, pool.SwapFee)
	if err != nil {
		return invalid(state, err)
	}
	state.Asset = &domain.AssetDescriptor{
		Asset:       item.Asset,
		Weight:      assetWeight,
		PoolBalance: poolAsset,
		Price:       price,
	}

	// 2. Pool-depth cap
	tradeable := poolAsset.Mul(MaxInOutRatio).Truncate(pricing.Precision)
	state.TradeablePoolBalance = tradeable

	// 3. Max quantity; an unavailable balance leaves only the pool cap
	state.MaxQuantity = tradeable
	switch item.Direction {
	case domain.DirectionBuy:
		if base := snap.TraderBalance(pool.BaseAsset); base.Available {
			byBalance := base.Amount.DivRound(price, pricing.Precision)
			state.MaxQuantity = decimal.Min(tradeable, byBalance)
		}
	case domain.DirectionSell:
		if held := snap.TraderBalance(item.Asset); held.Available {
			state.MaxQuantity = decimal.Min(tradeable, held.Amount)
		}
	}

	// 4. Sum
	qty := item.Quantity
	if qty.IsZero() {
		state.Sum = decimal.Zero
		state.Status = domain.StatusReady
		return state
	}
	if qty.GreaterThanOrEqual(poolAsset) {
		return invalid(state, fmt.Errorf("%w: quantity %s >= pool balance %s",
			pricing.ErrInfeasibleQuantity, qty, poolAsset))
	}

	var sum decimal.Decimal
	switch item.Direction {
	case domain.DirectionBuy:
		sum, err = pricing.AmountInGivenOut(poolAsset, assetWeight, poolBase, baseWeight, qty, pool.SwapFee)
	case domain.DirectionSell:
		sum, err = pricing.AmountOutGivenIn(poolAsset, assetWeight, poolBase, baseWeight, qty, pool.SwapFee)
	default:
		err = domain.ErrInvalidDirection
	}
	if err != nil {
		return invalid(state, err)
	}
	state.Sum = sum

	// 5. Feasibility
	if qty.GreaterThan(state.MaxQuantity) {
		return invalid(state, fmt.Errorf("%w: %s > %s", ErrExceedsMaxQuantity, qty, state.MaxQuantity))
	}

	state.Status = domain.StatusReady
	return state
}

// ResolveAll derives the states of items in order.
func ResolveAll(items []domain.TradeItem, snap *snapshot.Snapshot) []domain.ItemState {
	states := make([]domain.ItemState, len(items))
	for i, item := range items {
		states[i] = Resolve(item, snap)
	}
	return states
}

func invalid(state domain.ItemState, err error) domain.ItemState {
	state.Status = domain.StatusInvalid
	if !pricing.IsInfeasible(err) {
		err = fmt.Errorf("%w: %v", pricing.ErrNonFinite, err)
	}
	state.Err = err
	return state
}
