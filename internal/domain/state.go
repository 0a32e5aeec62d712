package domain

import "github.com/shopspring/decimal"

// ItemStatus classifies a derived item state.
type ItemStatus string

const (
	// StatusReady means every figure of the state is computed and valid.
	StatusReady ItemStatus = "ready"
	// StatusNotReady means remote data for the item has not arrived yet.
	StatusNotReady ItemStatus = "not_ready"
	// StatusInvalid means the requested quantity cannot be priced; see ItemState.Err.
	StatusInvalid ItemStatus = "invalid"
)

// AssetDescriptor is the resolved view of the traded outcome asset inside its pool.
type AssetDescriptor struct {
	Asset       AssetID         `json:"asset"`
	Weight      decimal.Decimal `json:"weight"`
	PoolBalance decimal.Decimal `json:"pool_balance"`
	Price       decimal.Decimal `json:"price"` // spot price in base units, fee included
}

// ItemState is the derived state of one TradeItem against one snapshot.
// States are rebuilt on every recompute and never mutated afterwards.
type ItemState struct {
	Item   TradeItem
	Status ItemStatus
	Err    error // set when Status is StatusInvalid

	Pool  *Pool
	Asset *AssetDescriptor

	MaxQuantity          decimal.Decimal
	Sum                  decimal.Decimal // cost if buy, proceeds if sell (base units)
	SwapFee              decimal.Decimal
	TradeablePoolBalance decimal.Decimal
}

// Key returns the identity of the underlying item.
func (s ItemState) Key() ItemKey {
	return s.Item.Key()
}

// Ready reports whether the state is fully resolved and valid.
func (s ItemState) Ready() bool {
	return s.Status == StatusReady
}

// SignedSum returns the contribution to the slip total: -cost for buys, +proceeds for sells.
// Non-ready states contribute zero.
func (s ItemState) SignedSum() decimal.Decimal {
	if !s.Ready() {
		return decimal.Zero
	}
	if s.Item.Direction == DirectionBuy {
		return s.Sum.Neg()
	}
	return s.Sum
}

// SlipRecord is the persisted form of a trade slip.
type SlipRecord struct {
	SlipID      string          // PRIMARY KEY, independent of account and pool
	Items       []TradeItem     // in insertion order
	SlippagePct decimal.Decimal // tolerance in percent
	UpdatedAt   int64           // Unix timestamp in milliseconds
}

// QuoteRecord is one item quote captured at a recompute, for analytics.
type QuoteRecord struct {
	QuoteID     string // PRIMARY KEY: hash of slip, generation and item key
	SlipID      string
	Generation  uint64
	TimestampMs int64
	Direction   Direction
	Asset       string // canonical AssetID text
	Quantity    decimal.Decimal
	Status      ItemStatus
	SpotPrice   decimal.Decimal
	Sum         decimal.Decimal
	MaxQuantity decimal.Decimal
	PoolID      uint64
}
