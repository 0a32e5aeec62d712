package memory

import (
	"context"
	"sort"
	"sync"

	"tradeslip/internal/domain"
	"tradeslip/internal/storage"
)

// SubmissionStore is an in-memory implementation of storage.SubmissionStore.
type SubmissionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SubmissionEvent // keyed by submission_id
}

// NewSubmissionStore creates a new in-memory submission store.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		data: make(map[string]*domain.SubmissionEvent),
	}
}

// Insert adds a submission. Returns ErrDuplicateKey if submission_id exists.
func (s *SubmissionStore) Insert(_ context.Context, e *domain.SubmissionEvent) error {
	if e == nil || e.SubmissionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.SubmissionID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *e
	s.data[e.SubmissionID] = &cp
	return nil
}

// GetByID retrieves a submission by its ID. Returns ErrNotFound if not exists.
func (s *SubmissionStore) GetByID(_ context.Context, submissionID string) (*domain.SubmissionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[submissionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *e
	return &cp, nil
}

// GetBySlip retrieves all submissions of a slip, ordered by timestamp ASC.
func (s *SubmissionStore) GetBySlip(_ context.Context, slipID string) ([]*domain.SubmissionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SubmissionEvent
	for _, e := range s.data {
		if e.SlipID == slipID {
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.SubmissionStore = (*SubmissionStore)(nil)
