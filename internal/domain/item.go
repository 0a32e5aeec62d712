package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Item errors
var (
	ErrInvalidDirection = errors.New("invalid direction")
	ErrNegativeQuantity = errors.New("quantity must not be negative")
)

// Direction is the side of a pending trade intent.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// ParseDirection parses "buy" or "sell" (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// ItemKey is the identity of a TradeItem within a slip.
type ItemKey struct {
	Direction Direction
	Asset     AssetID
}

// String returns "<direction>/<asset>".
func (k ItemKey) String() string {
	return k.Direction.String() + "/" + k.Asset.String()
}

// MarshalText implements encoding.TextMarshaler.
func (k ItemKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ItemKey) UnmarshalText(text []byte) error {
	dir, asset, ok := strings.Cut(string(text), "/")
	if !ok {
		return fmt.Errorf("%w: item key %q", ErrInvalidAsset, text)
	}
	d, err := ParseDirection(dir)
	if err != nil {
		return err
	}
	a, err := ParseAssetID(asset)
	if err != nil {
		return err
	}
	*k = ItemKey{Direction: d, Asset: a}
	return nil
}

// TradeItem is one pending order in a trade slip.
// Items are values: edits produce a new item via With* and replace the old one by Key.
type TradeItem struct {
	Direction Direction       `json:"direction"`
	Asset     AssetID         `json:"asset"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// NewTradeItem validates and builds a TradeItem.
func NewTradeItem(dir Direction, asset AssetID, quantity decimal.Decimal) (TradeItem, error) {
	item := TradeItem{Direction: dir, Asset: asset, Quantity: quantity}
	if err := item.Validate(); err != nil {
		return TradeItem{}, err
	}
	return item, nil
}

// Validate checks direction, asset and quantity.
func (t TradeItem) Validate() error {
	if !t.Direction.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, t.Direction)
	}
	if err := t.Asset.Validate(); err != nil {
		return err
	}
	if !t.Asset.IsOutcome() {
		return fmt.Errorf("%w: %s is not an outcome asset", ErrInvalidAsset, t.Asset)
	}
	if t.Quantity.IsNegative() {
		return ErrNegativeQuantity
	}
	return nil
}

// Key returns the identity of the item.
func (t TradeItem) Key() ItemKey {
	return ItemKey{Direction: t.Direction, Asset: t.Asset}
}

// WithQuantity returns a copy of the item with a new quantity.
func (t TradeItem) WithQuantity(q decimal.Decimal) TradeItem {
	t.Quantity = q
	return t
}

// WithDirection returns a copy of the item with a new direction.
func (t TradeItem) WithDirection(d Direction) TradeItem {
	t.Direction = d
	return t
}

// Equal reports structural equality including quantity.
func (t TradeItem) Equal(o TradeItem) bool {
	return t.Key() == o.Key() && t.Quantity.Equal(o.Quantity)
}
