package clickhouse

import (
	"context"
	"fmt"
	"time"

	"tradeslip/internal/domain"
	"tradeslip/internal/observability"
	"tradeslip/internal/storage"
)

// QuoteStore implements storage.QuoteStore using ClickHouse.
type QuoteStore struct {
	conn *Conn
}

// NewQuoteStore creates a new QuoteStore.
func NewQuoteStore(conn *Conn) *QuoteStore {
	return &QuoteStore{conn: conn}
}

// Compile-time interface check.
var _ storage.QuoteStore = (*QuoteStore)(nil)

// InsertBulk adds multiple quotes. Fails entire batch on duplicate quote_id.
func (s *QuoteStore) InsertBulk(ctx context.Context, quotes []*domain.QuoteRecord) (err error) {
	if len(quotes) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_quotes", time.Since(start).Seconds(), err)
	}()

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(quotes))
	for _, q := range quotes {
		if q == nil || q.QuoteID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[q.QuoteID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[q.QuoteID] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, q := range quotes {
		exists, err := s.exists(ctx, q.QuoteID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO item_quotes (
			quote_id, slip_id, generation, timestamp_ms, direction, asset,
			quantity, status, spot_price, sum, max_quantity, pool_id
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, q := range quotes {
		err = batch.Append(
			q.QuoteID, q.SlipID, q.Generation, q.TimestampMs, string(q.Direction), q.Asset,
			q.Quantity, string(q.Status), q.SpotPrice, q.Sum, q.MaxQuantity, q.PoolID,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySlip retrieves quotes of a slip within [start, end] (inclusive).
func (s *QuoteStore) GetBySlip(ctx context.Context, slipID string, start, end int64) ([]*domain.QuoteRecord, error) {
	query := `
		SELECT
			quote_id, slip_id, generation, timestamp_ms, direction, asset,
			quantity, status, spot_price, sum, max_quantity, pool_id
		FROM item_quotes FINAL
		WHERE slip_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, generation ASC, quote_id ASC
	`

	rows, err := s.conn.Query(ctx, query, slipID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query quotes by slip: %w", err)
	}
	defer rows.Close()

	return scanQuotes(rows)
}

// exists checks if a quote with the given ID exists.
func (s *QuoteStore) exists(ctx context.Context, quoteID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM item_quotes WHERE quote_id = ?`, quoteID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanQuotes(rows chRows) ([]*domain.QuoteRecord, error) {
	var quotes []*domain.QuoteRecord

	for rows.Next() {
		var (
			q         domain.QuoteRecord
			direction string
			status    string
		)
		err := rows.Scan(
			&q.QuoteID, &q.SlipID, &q.Generation, &q.TimestampMs, &direction, &q.Asset,
			&q.Quantity, &status, &q.SpotPrice, &q.Sum, &q.MaxQuantity, &q.PoolID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan quote row: %w", err)
		}
		q.Direction = domain.Direction(direction)
		q.Status = domain.ItemStatus(status)
		quotes = append(quotes, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote rows: %w", err)
	}

	return quotes, nil
}
