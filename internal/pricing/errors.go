package pricing

import "errors"

// Kernel errors
var (
	// ErrInfeasibleQuantity is returned when a requested amount is outside a formula's domain.
	ErrInfeasibleQuantity = errors.New("infeasible quantity")

	// ErrNonFinite is returned when degenerate inputs make a result diverge or lose meaning.
	ErrNonFinite = errors.New("non-finite result")

	// ErrZeroBalance is returned when a pool balance used as a divisor is zero.
	ErrZeroBalance = errors.New("zero pool balance")

	// ErrNonPositiveWeight is returned for weights <= 0.
	ErrNonPositiveWeight = errors.New("weight must be positive")

	// ErrInvalidFee is returned for swap fees outside [0, 1).
	ErrInvalidFee = errors.New("swap fee outside [0, 1)")

	// ErrNegativeAmount is returned for negative balances or trade amounts.
	ErrNegativeAmount = errors.New("negative amount")
)

// IsInfeasible reports whether err means the requested size cannot be priced.
// Non-finite results and degenerate pools are treated the same as infeasible quantities.
func IsInfeasible(err error) bool {
	return errors.Is(err, ErrInfeasibleQuantity) ||
		errors.Is(err, ErrNonFinite) ||
		errors.Is(err, ErrZeroBalance) ||
		errors.Is(err, ErrNonPositiveWeight)
}
