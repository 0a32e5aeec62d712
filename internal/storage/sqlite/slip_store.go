package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/observability"
	"tradeslip/internal/storage"
)

// SlipStore implements storage.SlipStore on a local SQLite file.
type SlipStore struct {
	db *DB
}

// NewSlipStore creates a new SlipStore.
func NewSlipStore(db *DB) *SlipStore {
	return &SlipStore{db: db}
}

// Compile-time interface check.
var _ storage.SlipStore = (*SlipStore)(nil)

// Save upserts the slip header and rewrites its items in one transaction.
func (s *SlipStore) Save(ctx context.Context, rec *domain.SlipRecord) (err error) {
	if rec == nil || rec.SlipID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("save_slip", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO slips (slip_id, slippage_pct, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (slip_id) DO UPDATE
		SET slippage_pct = excluded.slippage_pct, updated_at = excluded.updated_at
	`, rec.SlipID, rec.SlippagePct.String(), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert slip: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM slip_items WHERE slip_id = ?`, rec.SlipID); err != nil {
		return fmt.Errorf("clear slip items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO slip_items (slip_id, position, direction, asset, quantity)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare slip item insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range rec.Items {
		if _, err := stmt.ExecContext(ctx, rec.SlipID, i, string(item.Direction), item.Asset.String(), item.Quantity.String()); err != nil {
			return fmt.Errorf("insert slip item %s: %w", item.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
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
	err = s.db.QueryRowContext(ctx, `
		SELECT slippage_pct, updated_at FROM slips WHERE slip_id = ?
	`, slipID).Scan(&slippage, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get slip: %w", err)
	}
	if rec.SlippagePct, err = decimal.NewFromString(slippage); err != nil {
		return nil, fmt.Errorf("parse slippage: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT direction, asset, quantity
		FROM slip_items
		WHERE slip_id = ?
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
		d, err := domain.ParseDirection(dir)
		if err != nil {
			return nil, fmt.Errorf("parse slip item: %w", err)
		}
		a, err := domain.ParseAssetID(asset)
		if err != nil {
			return nil, fmt.Errorf("parse slip item: %w", err)
		}
		q, err := decimal.NewFromString(qty)
		if err != nil {
			return nil, fmt.Errorf("parse slip item quantity: %w", err)
		}
		rec.Items = append(rec.Items, domain.TradeItem{Direction: d, Asset: a, Quantity: q})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slip items: %w", err)
	}

	return rec, nil
}

// Delete removes a slip and its items. Returns ErrNotFound if not exists.
func (s *SlipStore) Delete(ctx context.Context, slipID string) (err error) {
	defer observe("delete_slip", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, `DELETE FROM slips WHERE slip_id = ?`, slipID)
	if err != nil {
		return fmt.Errorf("delete slip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete slip: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all slip IDs in ascending order.
func (s *SlipStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slip_id FROM slips ORDER BY slip_id ASC`)
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

func observe(operation string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	observability.RecordDBQuery("sqlite", operation, time.Since(start).Seconds(), err)
}
