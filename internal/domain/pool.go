package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidPool is returned when a pool configuration violates its invariants.
var ErrInvalidPool = errors.New("invalid pool")

// Pool is the configuration of a weighted liquidity pool.
// Balances are not part of the configuration; they are fetched per snapshot.
type Pool struct {
	ID        uint64                      `json:"id"`
	Account   Account                     `json:"account"`
	MarketID  uint64                      `json:"market_id"`
	BaseAsset AssetID                     `json:"base_asset"`
	Assets    []AssetID                   `json:"assets"`
	Weights   map[AssetID]decimal.Decimal `json:"weights"`
	SwapFee   decimal.Decimal             `json:"swap_fee"` // fraction, 0 <= fee < 1
}

// Weight returns the weight configured for asset.
func (p *Pool) Weight(asset AssetID) (decimal.Decimal, bool) {
	if p == nil {
		return decimal.Zero, false
	}
	w, ok := p.Weights[asset]
	return w, ok
}

// Holds reports whether the pool trades asset.
func (p *Pool) Holds(asset AssetID) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Assets {
		if a == asset {
			return true
		}
	}
	return false
}

// Validate checks weights are positive and the fee is a fraction in [0, 1).
func (p *Pool) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil pool", ErrInvalidPool)
	}
	if p.SwapFee.IsNegative() || p.SwapFee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: swap fee %s outside [0, 1)", ErrInvalidPool, p.SwapFee)
	}
	if _, ok := p.Weights[p.BaseAsset]; !ok {
		return fmt.Errorf("%w: no weight for base asset", ErrInvalidPool)
	}
	for asset, w := range p.Weights {
		if !w.IsPositive() {
			return fmt.Errorf("%w: weight of %s is %s", ErrInvalidPool, asset, w)
		}
	}
	return nil
}

// Balance is a free balance that may not be known yet.
// An unavailable balance is never the same as a zero balance.
type Balance struct {
	Amount    decimal.Decimal `json:"amount"`
	Available bool            `json:"available"`
}

// AvailableBalance returns a resolved balance.
func AvailableBalance(amount decimal.Decimal) Balance {
	return Balance{Amount: amount, Available: true}
}

// UnavailableBalance returns the unresolved balance marker.
func UnavailableBalance() Balance {
	return Balance{}
}
