package memory

import (
	"context"
	"sort"
	"sync"

	"tradeslip/internal/domain"
	"tradeslip/internal/storage"
)

// QuoteStore is an in-memory implementation of storage.QuoteStore.
// With a limit it keeps only the most recently inserted quotes.
type QuoteStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.QuoteRecord // keyed by quote_id
	order []string                       // insertion order, oldest first
	limit int
}

// NewQuoteStore creates an unbounded in-memory quote store.
func NewQuoteStore() *QuoteStore {
	return NewBoundedQuoteStore(0)
}

// NewBoundedQuoteStore creates a store that evicts the oldest quotes beyond limit.
// A non-positive limit means unbounded.
func NewBoundedQuoteStore(limit int) *QuoteStore {
	return &QuoteStore{
		data:  make(map[string]*domain.QuoteRecord),
		limit: limit,
	}
}

// Len returns the number of quotes held.
func (s *QuoteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// InsertBulk adds multiple quotes atomically. Fails entire batch on any duplicate.
func (s *QuoteStore) InsertBulk(_ context.Context, quotes []*domain.QuoteRecord) error {
	if len(quotes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(quotes))

	// Reject the whole batch on any duplicate, stored or within the batch.
	for _, q := range quotes {
		if q == nil || q.QuoteID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[q.QuoteID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[q.QuoteID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[q.QuoteID] = struct{}{}
	}

	for _, q := range quotes {
		cp := *q
		s.data[q.QuoteID] = &cp
		s.order = append(s.order, q.QuoteID)
	}
	if s.limit > 0 && len(s.order) > s.limit {
		evict := len(s.order) - s.limit
		for _, id := range s.order[:evict] {
			delete(s.data, id)
		}
		s.order = append([]string(nil), s.order[evict:]...)
	}

	return nil
}

// GetBySlip retrieves quotes of a slip within [start, end] (inclusive).
func (s *QuoteStore) GetBySlip(_ context.Context, slipID string, start, end int64) ([]*domain.QuoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.QuoteRecord
	for _, q := range s.data {
		if q.SlipID == slipID && q.TimestampMs >= start && q.TimestampMs <= end {
			cp := *q
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TimestampMs != result[j].TimestampMs {
			return result[i].TimestampMs < result[j].TimestampMs
		}
		if result[i].Generation != result[j].Generation {
			return result[i].Generation < result[j].Generation
		}
		return result[i].QuoteID < result[j].QuoteID
	})

	return result, nil
}

var _ storage.QuoteStore = (*QuoteStore)(nil)
