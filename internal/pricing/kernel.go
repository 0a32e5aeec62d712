// Package pricing implements the weighted bonding-curve formulas used to quote trades
// against a pool. All functions are pure and safe for concurrent use.
//
// Arithmetic is fixed-point (shopspring/decimal) with Precision fractional digits on every
// division and power, so results are reproducible across runs and platforms.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept by divisions and powers.
const Precision int32 = 18

var one = decimal.NewFromInt(1)

// SpotPrice returns the price of one unit of the out asset in units of the in asset,
// fee included:
//
//	(balanceIn / weightIn) / (balanceOut / weightOut) / (1 - swapFee)
func SpotPrice(balanceIn, weightIn, balanceOut, weightOut, swapFee decimal.Decimal) (decimal.Decimal, error) {
	if err := checkPool(balanceIn, weightIn, balanceOut, weightOut, swapFee); err != nil {
		return decimal.Zero, err
	}

	numer := balanceIn.DivRound(weightIn, Precision)
	denom := balanceOut.DivRound(weightOut, Precision)
	ratio := numer.DivRound(denom, Precision)
	return ratio.DivRound(one.Sub(swapFee), Precision), nil
}

// AmountOutGivenIn returns how much of the out asset a swap of amountIn yields:
//
//	balanceOut * (1 - (balanceIn / (balanceIn + amountIn * (1 - swapFee))) ^ (weightIn / weightOut))
//
// The result is truncated and always strictly below balanceOut. If precision loss would
// let it reach balanceOut the function returns ErrNonFinite instead.
func AmountOutGivenIn(balanceIn, weightIn, balanceOut, weightOut, amountIn, swapFee decimal.Decimal) (decimal.Decimal, error) {
	if err := checkPool(balanceIn, weightIn, balanceOut, weightOut, swapFee); err != nil {
		return decimal.Zero, err
	}
	if amountIn.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount in %s", ErrNegativeAmount, amountIn)
	}
	if amountIn.IsZero() {
		return decimal.Zero, nil
	}

	adjustedIn := amountIn.Mul(one.Sub(swapFee))
	y := balanceIn.DivRound(balanceIn.Add(adjustedIn), Precision)
	if !y.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount in %s dwarfs balance %s", ErrNonFinite, amountIn, balanceIn)
	}

	exponent := weightIn.DivRound(weightOut, Precision)
	pow, err := y.PowWithPrecision(exponent, Precision)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNonFinite, err)
	}

	out := balanceOut.Mul(one.Sub(pow)).Truncate(Precision)
	if out.IsNegative() {
		return decimal.Zero, nil
	}
	if out.GreaterThanOrEqual(balanceOut) {
		return decimal.Zero, fmt.Errorf("%w: output %s drains balance %s", ErrNonFinite, out, balanceOut)
	}
	return out, nil
}

// AmountInGivenOut returns how much of the in asset must be paid to receive amountOut:
//
//	balanceIn * ((balanceOut / (balanceOut - amountOut)) ^ (weightOut / weightIn) - 1) / (1 - swapFee)
//
// Defined only for 0 <= amountOut < balanceOut; ErrInfeasibleQuantity otherwise.
func AmountInGivenOut(balanceOut, weightOut, balanceIn, weightIn, amountOut, swapFee decimal.Decimal) (decimal.Decimal, error) {
	if err := checkPool(balanceIn, weightIn, balanceOut, weightOut, swapFee); err != nil {
		return decimal.Zero, err
	}
	if amountOut.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount out %s", ErrNegativeAmount, amountOut)
	}
	if amountOut.GreaterThanOrEqual(balanceOut) {
		return decimal.Zero, fmt.Errorf("%w: amount out %s >= pool balance %s", ErrInfeasibleQuantity, amountOut, balanceOut)
	}
	if amountOut.IsZero() {
		return decimal.Zero, nil
	}

	y := balanceOut.DivRound(balanceOut.Sub(amountOut), Precision)
	exponent := weightOut.DivRound(weightIn, Precision)
	pow, err := y.PowWithPrecision(exponent, Precision)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNonFinite, err)
	}

	in := balanceIn.Mul(pow.Sub(one)).DivRound(one.Sub(swapFee), Precision)
	if in.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative cost %s", ErrNonFinite, in)
	}
	return in, nil
}

func checkPool(balanceIn, weightIn, balanceOut, weightOut, swapFee decimal.Decimal) error {
	if !weightIn.IsPositive() || !weightOut.IsPositive() {
		return fmt.Errorf("%w: in=%s out=%s", ErrNonPositiveWeight, weightIn, weightOut)
	}
	if balanceIn.IsNegative() || balanceOut.IsNegative() {
		return fmt.Errorf("%w: balance in=%s out=%s", ErrNegativeAmount, balanceIn, balanceOut)
	}
	if balanceIn.IsZero() || balanceOut.IsZero() {
		return fmt.Errorf("%w: in=%s out=%s", ErrZeroBalance, balanceIn, balanceOut)
	}
	if swapFee.IsNegative() || swapFee.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: %s", ErrInvalidFee, swapFee)
	}
	return nil
}
