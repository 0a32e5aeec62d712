// Package stores opens the slip, quote and submission stores for a storage backend.
package stores

import (
	"context"
	"fmt"
	"log/slog"

	"tradeslip/internal/config"
	"tradeslip/internal/storage"
	chstore "tradeslip/internal/storage/clickhouse"
	"tradeslip/internal/storage/memory"
	"tradeslip/internal/storage/migrations"
	pgstore "tradeslip/internal/storage/postgres"
	"tradeslip/internal/storage/sqlite"
)

// memoryQuoteLimit bounds quote history kept in memory when ClickHouse is not configured.
const memoryQuoteLimit = 10_000

// Set holds the stores used by the engine.
type Set struct {
	Slips       storage.SlipStore
	Quotes      storage.QuoteStore
	Submissions storage.SubmissionStore

	closers []func()
}

// Close releases every connection opened for the set, in reverse order.
func (s *Set) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Open creates stores for cfg.Backend and applies migrations.
// sqlite keeps slips on disk and submissions in memory; postgres keeps both.
// Quote history goes to ClickHouse when ClickhouseDSN is set, otherwise the most recent
// quotes are kept in memory.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	set := &Set{}

	switch cfg.Backend {
	case config.BackendMemory, "":
		set.Slips = memory.NewSlipStore()
		set.Submissions = memory.NewSubmissionStore()

	case config.BackendSqlite:
		db, err := sqlite.Open(cfg.SqlitePath)
		if err != nil {
			return nil, err
		}
		set.closers = append(set.closers, func() { _ = db.Close() })
		if err := migrations.RunSqliteMigrations(ctx, db.DB); err != nil {
			set.Close()
			return nil, fmt.Errorf("sqlite migrations: %w", err)
		}
		set.Slips = sqlite.NewSlipStore(db)
		set.Submissions = memory.NewSubmissionStore()
		logger.Info("sqlite slip store ready", "path", db.Path())

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.WithMaxConns(4))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		set.closers = append(set.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			set.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		set.Slips = pgstore.NewSlipStore(pool)
		set.Submissions = pgstore.NewSubmissionStore(pool)
		logger.Info("postgres stores ready")

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Backend)
	}

	if cfg.ClickhouseDSN == "" {
		set.Quotes = memory.NewBoundedQuoteStore(memoryQuoteLimit)
		return set, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		set.Close()
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	set.closers = append(set.closers, func() { _ = conn.Close() })
	set.Quotes = chstore.NewQuoteStore(conn)
	logger.Info("clickhouse quote history enabled")

	return set, nil
}
