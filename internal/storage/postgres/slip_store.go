package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/observability"
	"tradeslip/internal/storage"
)

// SlipStore implements storage.SlipStore using PostgreSQL.
type SlipStore struct {
	pool *Pool
}

// NewSlipStore creates a new SlipStore.
func NewSlipStore(pool *Pool) *SlipStore {
	return &SlipStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SlipStore = (*SlipStore)(nil)

// Save upserts the slip header and rewrites its items in one transaction.
func (s *SlipStore) Save(ctx context.Context, rec *domain.SlipRecord) (err error) {
	if rec == nil || rec.SlipID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("save_slip", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO slips (slip_id, slippage_pct, updated_at)
		VALUES ($1, $2::numeric, $3)
		ON CONFLICT (slip_id) DO UPDATE
		SET slippage_pct = EXCLUDED.slippage_pct, updated_at = EXCLUDED.updated_at
	`, rec.SlipID, rec.SlippagePct.String(), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert slip: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM slip_items WHERE slip_id = $1`, rec.SlipID); err != nil {
		return fmt.Errorf("clear slip items: %w", err)
	}

	batch := &pgx.Batch{}
	for i, item := range rec.Items {
		batch.Queue(`
			INSERT INTO slip_items (slip_id, position, direction, asset, quantity)
			VALUES ($1, $2, $3, $4, $5::numeric)
		`, rec.SlipID, i, string(item.Direction), item.Asset.String(), item.Quantity.String())
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return translate(err, "insert slip items")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Load retrieves a slip by ID. Returns ErrNotFound if not exists.
func (s *SlipStore) Load(ctx context.Context, slipID string) (_ *domain.SlipRecord, err error) {
	defer observe("load_slip", time.Now(), &err)

	var (
		slippage string
		rec      = &domain.SlipRecord{SlipID: slipID}
	)
	err = s.pool.QueryRow(ctx, `
		SELECT slippage_pct::text, updated_at FROM slips WHERE slip_id = $1
	`, slipID).Scan(&slippage, &rec.UpdatedAt)
	if err != nil {
		return nil, translate(err, "get slip")
	}
	if rec.SlippagePct, err = decimal.NewFromString(slippage); err != nil {
		return nil, fmt.Errorf("parse slippage: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT direction, asset, quantity::text
		FROM slip_items
		WHERE slip_id = $1
		ORDER BY position ASC
	`, slipID)
	if err != nil {
		return nil, fmt.Errorf("get slip items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dir, asset, qty string
		if err := rows.Scan(&dir, &asset, &qty); err != nil {
			return nil, fmt.Errorf("scan slip item: %w", err)
		}
		item, err := parseItem(dir, asset, qty)
		if err != nil {
			return nil, err
		}
		rec.Items = append(rec.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slip items: %w", err)
	}

	return rec, nil
}

// Delete removes a slip and its items. Returns ErrNotFound if not exists.
func (s *SlipStore) Delete(ctx context.Context, slipID string) (err error) {
	defer observe("delete_slip", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM slips WHERE slip_id = $1`, slipID)
	if err != nil {
		return fmt.Errorf("delete slip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all slip IDs in ascending order.
func (s *SlipStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT slip_id FROM slips ORDER BY slip_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list slips: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan slip id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func parseItem(dir, asset, qty string) (domain.TradeItem, error) {
	d, err := domain.ParseDirection(dir)
	if err != nil {
		return domain.TradeItem{}, fmt.Errorf("parse slip item: %w", err)
	}
	a, err := domain.ParseAssetID(asset)
	if err != nil {
		return domain.TradeItem{}, fmt.Errorf("parse slip item: %w", err)
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return domain.TradeItem{}, fmt.Errorf("parse slip item quantity: %w", err)
	}
	return domain.TradeItem{Direction: d, Asset: a, Quantity: q}, nil
}

// observe records query latency and errors. Not-found is not an error here.
func observe(operation string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}
