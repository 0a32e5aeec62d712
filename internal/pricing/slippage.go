package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// SlippedCost returns the most a buyer authorizes paying: cost * (1 + pct/100).
func SlippedCost(cost, pct decimal.Decimal) decimal.Decimal {
	return cost.Mul(one.Add(pct.DivRound(hundred, Precision)))
}

// SlippedProceeds returns the least a seller accepts: proceeds * (1 - pct/100).
func SlippedProceeds(proceeds, pct decimal.Decimal) decimal.Decimal {
	return proceeds.Mul(one.Sub(pct.DivRound(hundred, Precision)))
}
