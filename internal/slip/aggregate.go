package slip

import (
	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
)

// Aggregate is the fold of item states into a slip total with keyed lookup.
type Aggregate struct {
	States   []domain.ItemState
	Total    decimal.Decimal // sells add proceeds, buys subtract cost; ready states only
	Ready    int
	NotReady int
	Invalid  int

	byKey map[domain.ItemKey]int
}

// Fold combines resolved states. It never prices anything itself.
func Fold(states []domain.ItemState) Aggregate {
	agg := Aggregate{
		States: states,
		Total:  decimal.Zero,
		byKey:  make(map[domain.ItemKey]int, len(states)),
	}
	for i, state := range states {
		agg.byKey[state.Key()] = i
		switch state.Status {
		case domain.StatusReady:
			agg.Ready++
			agg.Total = agg.Total.Add(state.SignedSum())
		case domain.StatusInvalid:
			agg.Invalid++
		default:
			agg.NotReady++
		}
	}
	return agg
}

// StateOf returns the state of the item identified by direction and asset.
func (a Aggregate) StateOf(dir domain.Direction, asset domain.AssetID) (domain.ItemState, bool) {
	i, ok := a.byKey[domain.ItemKey{Direction: dir, Asset: asset}]
	if !ok {
		return domain.ItemState{}, false
	}
	return a.States[i], true
}

// Complete reports whether every item is ready, so Total is final.
func (a Aggregate) Complete() bool {
	return a.NotReady == 0 && a.Invalid == 0
}
