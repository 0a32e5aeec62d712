package storage

import (
	"context"

	"tradeslip/internal/domain"
)

// SlipStore provides access to persisted trade slips.
// Slips are keyed by slip_id, independent of any account or pool.
type SlipStore interface {
	// Save creates the slip or replaces it whole, items included.
	Save(ctx context.Context, rec *domain.SlipRecord) error

	// Load retrieves a slip by ID, items in insertion order. Returns ErrNotFound if not exists.
	Load(ctx context.Context, slipID string) (*domain.SlipRecord, error)

	// Delete removes a slip and its items. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, slipID string) error

	// List returns all slip IDs in ascending order.
	List(ctx context.Context) ([]string, error)
}

// QuoteStore provides access to item_quotes storage.
type QuoteStore interface {
	// InsertBulk adds multiple quotes. Fails entire batch on duplicate quote_id.
	InsertBulk(ctx context.Context, quotes []*domain.QuoteRecord) error

	// GetBySlip retrieves quotes of a slip within [start, end] (inclusive),
	// ordered by timestamp ASC then generation ASC.
	GetBySlip(ctx context.Context, slipID string, start, end int64) ([]*domain.QuoteRecord, error)
}

// SubmissionStore provides access to submissions storage.
type SubmissionStore interface {
	// Insert adds a submission. Returns ErrDuplicateKey if submission_id exists.
	Insert(ctx context.Context, e *domain.SubmissionEvent) error

	// GetByID retrieves a submission by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, submissionID string) (*domain.SubmissionEvent, error)

	// GetBySlip retrieves all submissions of a slip, ordered by timestamp ASC.
	GetBySlip(ctx context.Context, slipID string) ([]*domain.SubmissionEvent, error)
}
