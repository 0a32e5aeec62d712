package chain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PlanckDecimals is the number of decimals of on-chain amounts: 1 unit = 10^10 planck.
const PlanckDecimals = 10

// Rounding selects how a fractional planck amount becomes an integer.
type Rounding int

const (
	// RoundDown truncates towards zero. Used for exact amounts and maxAmountIn.
	RoundDown Rounding = iota
	// RoundUp rounds away from zero. Used for minAmountOut.
	RoundUp
)

// ToPlanck converts a unit amount to an integer planck amount.
func ToPlanck(amount decimal.Decimal, mode Rounding) decimal.Decimal {
	shifted := amount.Shift(PlanckDecimals)
	if mode == RoundUp {
		return shifted.Ceil()
	}
	return shifted.Floor()
}

// FromPlanck parses an integer planck string into units.
func FromPlanck(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsInteger() || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d.Shift(-PlanckDecimals), nil
}
