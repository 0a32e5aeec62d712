package slip

import (
	"github.com/shopspring/decimal"

	"tradeslip/internal/batch"
	"tradeslip/internal/domain"
	"tradeslip/internal/idhash"
	"tradeslip/internal/resolver"
	"tradeslip/internal/snapshot"
)

// DerivedState is everything computed from one slip and one snapshot generation.
// It is rebuilt whole on every change and never patched.
type DerivedState struct {
	Generation  uint64
	Account     domain.Account
	Items       []domain.TradeItem
	SlippagePct decimal.Decimal

	Aggregate
	Transaction *domain.BatchTransaction // nil when nothing can be submitted
	Dropped     []domain.DroppedLeg
}

// Recompute resolves every item against snap, folds the states and assembles the batch.
// All figures in the result come from the same snapshot generation.
func Recompute(items []domain.TradeItem, snap *snapshot.Snapshot, slippagePct decimal.Decimal) *DerivedState {
	states := resolver.ResolveAll(items, snap)
	assembled := batch.Assemble(states, snap, slippagePct)

	derived := &DerivedState{
		Items:       items,
		SlippagePct: slippagePct,
		Aggregate:   Fold(states),
		Transaction: assembled.Transaction,
		Dropped:     assembled.Dropped,
	}
	if snap != nil {
		derived.Generation = snap.Generation
		derived.Account = snap.Account
	}
	return derived
}

// Quotes returns one quote record per item state, for analytics.
func (s *DerivedState) Quotes(slipID string, timestampMs int64) []domain.QuoteRecord {
	records := make([]domain.QuoteRecord, 0, len(s.States))
	for _, state := range s.States {
		rec := domain.QuoteRecord{
			QuoteID:     idhash.ComputeQuoteID(slipID, s.Generation, state.Key()),
			SlipID:      slipID,
			Generation:  s.Generation,
			TimestampMs: timestampMs,
			Direction:   state.Item.Direction,
			Asset:       state.Item.Asset.String(),
			Quantity:    state.Item.Quantity,
			Status:      state.Status,
			Sum:         state.Sum,
			MaxQuantity: state.MaxQuantity,
		}
		if state.Pool != nil {
			rec.PoolID = state.Pool.ID
		}
		if state.Asset != nil {
			rec.SpotPrice = state.Asset.Price
		}
		records = append(records, rec)
	}
	return records
}
