package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/storage"
)

// SubmissionStore implements storage.SubmissionStore using PostgreSQL.
type SubmissionStore struct {
	pool *Pool
}

// NewSubmissionStore creates a new SubmissionStore.
func NewSubmissionStore(pool *Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SubmissionStore = (*SubmissionStore)(nil)

const submissionColumns = `
	submission_id, slip_id, account, batch_id, generation, legs,
	total::text, status, tx_hash, reason, timestamp_ms
`

// Insert adds a submission. Returns ErrDuplicateKey if submission_id exists.
func (s *SubmissionStore) Insert(ctx context.Context, e *domain.SubmissionEvent) (err error) {
	if e == nil || e.SubmissionID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_submission", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (
			submission_id, slip_id, account, batch_id, generation, legs,
			total, status, tx_hash, reason, timestamp_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11)
	`,
		e.SubmissionID, e.SlipID, e.Account.String(), e.BatchID, int64(e.Generation), e.Legs,
		e.Total.String(), e.Status, e.TxHash, e.Reason, e.TimestampMs,
	)
	return translate(err, "insert submission")
}

// GetByID retrieves a submission by its ID. Returns ErrNotFound if not exists.
func (s *SubmissionStore) GetByID(ctx context.Context, submissionID string) (*domain.SubmissionEvent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE submission_id = $1`, submissionID)
	e, err := scanSubmission(row)
	if err != nil {
		return nil, translate(err, "get submission by id")
	}
	return e, nil
}

// GetBySlip retrieves all submissions of a slip, ordered by timestamp ASC.
func (s *SubmissionStore) GetBySlip(ctx context.Context, slipID string) ([]*domain.SubmissionEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE slip_id = $1
		ORDER BY timestamp_ms ASC, submission_id ASC
	`, slipID)
	if err != nil {
		return nil, fmt.Errorf("get submissions by slip: %w", err)
	}
	defer rows.Close()

	var result []*domain.SubmissionEvent
	for rows.Next() {
		e, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return result, nil
}

func scanSubmission(row pgx.Row) (*domain.SubmissionEvent, error) {
	var (
		e       domain.SubmissionEvent
		account string
		gen     int64
		total   string
	)
	err := row.Scan(
		&e.SubmissionID, &e.SlipID, &account, &e.BatchID, &gen, &e.Legs,
		&total, &e.Status, &e.TxHash, &e.Reason, &e.TimestampMs,
	)
	if err != nil {
		return nil, err
	}
	e.Account = domain.Account(account)
	e.Generation = uint64(gen)
	if e.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	return &e, nil
}
