// Package slip owns the trade slip: the ordered set of pending trade items and the
// slippage tolerance, and the pure recomputation of everything derived from them.
package slip

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
)

// Slip errors
var (
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidSlippage = errors.New("slippage must be within [0, 100] percent")
)

// DefaultSlippage is the tolerance of a new slip, in percent.
var DefaultSlippage = decimal.NewFromInt(1)

var maxSlippage = decimal.NewFromInt(100)

// Slip is the user's list of pending trade items plus the slippage tolerance.
// Items are unique by key and keep insertion order. A Slip is not safe for concurrent
// use; its owner serializes access.
type Slip struct {
	id       string
	items    []domain.TradeItem
	index    map[domain.ItemKey]int
	slippage decimal.Decimal
}

// New creates an empty slip with the default slippage.
func New(id string) *Slip {
	return &Slip{
		id:       id,
		index:    make(map[domain.ItemKey]int),
		slippage: DefaultSlippage,
	}
}

// FromRecord restores a slip from its persisted form.
func FromRecord(rec *domain.SlipRecord) (*Slip, error) {
	s := New(rec.SlipID)
	if err := s.SetSlippage(rec.SlippagePct); err != nil {
		return nil, err
	}
	for _, item := range rec.Items {
		if err := s.Add(item); err != nil {
			return nil, fmt.Errorf("restore item %s: %w", item.Key(), err)
		}
	}
	return s, nil
}

// Record returns the persisted form of the slip.
func (s *Slip) Record() *domain.SlipRecord {
	return &domain.SlipRecord{
		SlipID:      s.id,
		Items:       s.Items(),
		SlippagePct: s.slippage,
		UpdatedAt:   time.Now().UnixMilli(),
	}
}

// ID returns the slip identifier.
func (s *Slip) ID() string {
	return s.id
}

// Items returns a copy of the items in order.
func (s *Slip) Items() []domain.TradeItem {
	out := make([]domain.TradeItem, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of items.
func (s *Slip) Len() int {
	return len(s.items)
}

// Get returns the item with key.
func (s *Slip) Get(key domain.ItemKey) (domain.TradeItem, bool) {
	i, ok := s.index[key]
	if !ok {
		return domain.TradeItem{}, false
	}
	return s.items[i], true
}

// Add appends item, or replaces the item with the same key in place.
func (s *Slip) Add(item domain.TradeItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if i, ok := s.index[item.Key()]; ok {
		s.items[i] = item
		return nil
	}
	s.index[item.Key()] = len(s.items)
	s.items = append(s.items, item)
	return nil
}

// Replace swaps the item at old for item, keeping its position.
// If item's key already belongs to another entry, that entry is removed.
func (s *Slip) Replace(old domain.ItemKey, item domain.TradeItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	i, ok := s.index[old]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, old)
	}
	if j, ok := s.index[item.Key()]; ok && j != i {
		s.items = append(s.items[:j], s.items[j+1:]...)
		if j < i {
			i--
		}
	}
	s.items[i] = item
	s.reindex()
	return nil
}

// Remove deletes the item with key and reports whether it existed.
func (s *Slip) Remove(key domain.ItemKey) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.reindex()
	return true
}

// Clear removes every item. Slippage is kept.
func (s *Slip) Clear() {
	s.items = nil
	s.index = make(map[domain.ItemKey]int)
}

// Slippage returns the tolerance in percent.
func (s *Slip) Slippage() decimal.Decimal {
	return s.slippage
}

// SetSlippage sets the tolerance; pct must be within [0, 100].
func (s *Slip) SetSlippage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(maxSlippage) {
		return fmt.Errorf("%w: %s", ErrInvalidSlippage, pct)
	}
	s.slippage = pct
	return nil
}

// Assets returns the distinct assets referenced by the items, in order.
func (s *Slip) Assets() []domain.AssetID {
	seen := make(map[domain.AssetID]struct{}, len(s.items))
	assets := make([]domain.AssetID, 0, len(s.items))
	for _, item := range s.items {
		if _, ok := seen[item.Asset]; ok {
			continue
		}
		seen[item.Asset] = struct{}{}
		assets = append(assets, item.Asset)
	}
	return assets
}

func (s *Slip) reindex() {
	s.index = make(map[domain.ItemKey]int, len(s.items))
	for i, item := range s.items {
		s.index[item.Key()] = i
	}
}
