package memory

import (
	"context"
	"sort"
	"sync"

	"tradeslip/internal/domain"
	"tradeslip/internal/storage"
)

// SlipStore is an in-memory implementation of storage.SlipStore.
type SlipStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SlipRecord // keyed by slip_id
}

// NewSlipStore creates a new in-memory slip store.
func NewSlipStore() *SlipStore {
	return &SlipStore{
		data: make(map[string]*domain.SlipRecord),
	}
}

// Save creates the slip or replaces it whole.
func (s *SlipStore) Save(_ context.Context, rec *domain.SlipRecord) error {
	if rec == nil || rec.SlipID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[rec.SlipID] = copySlip(rec)
	return nil
}

// Load retrieves a slip by ID. Returns ErrNotFound if not exists.
func (s *SlipStore) Load(_ context.Context, slipID string) (*domain.SlipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[slipID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copySlip(rec), nil
}

// Delete removes a slip. Returns ErrNotFound if not exists.
func (s *SlipStore) Delete(_ context.Context, slipID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[slipID]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, slipID)
	return nil
}

// List returns all slip IDs in ascending order.
func (s *SlipStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func copySlip(rec *domain.SlipRecord) *domain.SlipRecord {
	cp := *rec
	cp.Items = append([]domain.TradeItem(nil), rec.Items...)
	return &cp
}

var _ storage.SlipStore = (*SlipStore)(nil)
