package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeslip/internal/domain"
	"tradeslip/internal/observability"
)

// DefaultConcurrency is the default number of concurrent source queries per fetch.
const DefaultConcurrency = 8

// Fetcher builds snapshots from a Source.
type Fetcher struct {
	source      Source
	logger      *slog.Logger
	concurrency int
	generation  atomic.Uint64
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Source      Source
	Logger      *slog.Logger
	Concurrency int // 0 = DefaultConcurrency
}

// NewFetcher creates a new snapshot fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Fetcher{
		source:      opts.Source,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Fetch queries pools and balances for assets and returns a new snapshot generation.
//
// Per-query failures are logged and leave the entry absent, so the affected items resolve
// as not ready; failed trader balance queries become unavailable balances. Only context
// cancellation aborts the fetch. Generations are assigned on completion, so a snapshot
// that finishes later always carries a higher generation.
func (f *Fetcher) Fetch(ctx context.Context, account domain.Account, assets []domain.AssetID) (*Snapshot, error) {
	start := time.Now()
	wanted := outcomeAssets(assets)
	snap := New(0, account)

	// 1. Resolve pools
	pools := make([]*domain.Pool, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, asset := range wanted {
		g.Go(func() error {
			pool, err := f.source.Pool(gctx, asset)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				f.logger.Warn("pool lookup failed", "asset", asset.String(), "error", err)
				observability.RecordSourceError("pool")
				return nil
			}
			if pool == nil {
				return nil
			}
			if err := pool.Validate(); err != nil {
				f.logger.Warn("ignoring invalid pool", "asset", asset.String(), "pool", pool.ID, "error", err)
				observability.RecordSourceError("pool")
				return nil
			}
			pools[i] = pool
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch pools: %w", err)
	}

	// 2. Collect balance queries
	queries := make(map[poolAsset]*domain.Pool)
	traderAssets := make(map[domain.AssetID]struct{})
	for i, pool := range pools {
		if pool == nil {
			continue
		}
		snap.SetPool(wanted[i], pool)
		queries[poolAsset{poolID: pool.ID, asset: pool.BaseAsset}] = pool
		queries[poolAsset{poolID: pool.ID, asset: wanted[i]}] = pool
		traderAssets[pool.BaseAsset] = struct{}{}
		traderAssets[wanted[i]] = struct{}{}
	}

	// 3. Fetch balances
	var mu sync.Mutex
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for key, pool := range queries {
		g.Go(func() error {
			amount, err := f.source.PoolBalance(gctx, pool.Account, key.asset)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				f.logger.Warn("pool balance lookup failed",
					"pool", pool.ID, "asset", key.asset.String(), "error", err)
				observability.RecordSourceError("pool_balance")
				return nil
			}
			if amount == nil || amount.IsNegative() {
				return nil
			}
			mu.Lock()
			snap.SetPoolBalance(key.poolID, key.asset, *amount)
			mu.Unlock()
			return nil
		})
	}
	if account != "" {
		for asset := range traderAssets {
			g.Go(func() error {
				balance, err := f.source.TraderBalance(gctx, account, asset)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					f.logger.Warn("trader balance lookup failed", "asset", asset.String(), "error", err)
					observability.RecordSourceError("trader_balance")
					balance = domain.UnavailableBalance()
				}
				mu.Lock()
				snap.SetTraderBalance(asset, balance)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}

	snap.Generation = f.generation.Add(1)
	snap.FetchedAt = time.Now()
	observability.RecordSnapshotFetch(time.Since(start).Seconds(), snap.Generation)
	f.logger.Debug("snapshot fetched",
		"generation", snap.Generation,
		"pools", len(snap.pools),
		"balances", len(snap.poolBalances),
		"duration", time.Since(start))
	return snap, nil
}

func outcomeAssets(assets []domain.AssetID) []domain.AssetID {
	seen := make(map[domain.AssetID]struct{}, len(assets))
	out := make([]domain.AssetID, 0, len(assets))
	for _, asset := range assets {
		if !asset.IsOutcome() {
			continue
		}
		if _, ok := seen[asset]; ok {
			continue
		}
		seen[asset] = struct{}{}
		out = append(out, asset)
	}
	return out
}
