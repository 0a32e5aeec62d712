// Package snapshot holds one consistent revision of the remote pool and balance data
// that item states are derived from, and the fetcher that produces it.
package snapshot

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
)

// Source provides remote pool configuration and balances.
// Implementations must be safe for concurrent use.
type Source interface {
	// Pool returns the pool trading asset, or nil if none exists.
	Pool(ctx context.Context, asset domain.AssetID) (*domain.Pool, error)

	// TraderBalance returns the free balance of account in asset.
	// An unresolved balance is returned as domain.UnavailableBalance(), never as zero.
	TraderBalance(ctx context.Context, account domain.Account, asset domain.AssetID) (domain.Balance, error)

	// PoolBalance returns the free balance held by poolAccount in asset, or nil if absent.
	PoolBalance(ctx context.Context, poolAccount domain.Account, asset domain.AssetID) (*decimal.Decimal, error)
}

type poolAsset struct {
	poolID uint64
	asset  domain.AssetID
}

// Snapshot is one revision of remote data. A Snapshot is populated once by its producer
// and read-only afterwards; all accessors are safe on a nil Snapshot and report absence.
type Snapshot struct {
	Generation uint64
	Account    domain.Account
	FetchedAt  time.Time

	pools        map[domain.AssetID]*domain.Pool
	poolBalances map[poolAsset]decimal.Decimal
	trader       map[domain.AssetID]domain.Balance
}

// New creates an empty snapshot for account.
func New(generation uint64, account domain.Account) *Snapshot {
	return &Snapshot{
		Generation:   generation,
		Account:      account,
		FetchedAt:    time.Now(),
		pools:        make(map[domain.AssetID]*domain.Pool),
		poolBalances: make(map[poolAsset]decimal.Decimal),
		trader:       make(map[domain.AssetID]domain.Balance),
	}
}

// AddPool registers pool as the pool for every outcome asset it holds, plus the pool balances given.
func (s *Snapshot) AddPool(pool *domain.Pool, balances map[domain.AssetID]decimal.Decimal) {
	for _, asset := range pool.Assets {
		if asset.IsOutcome() {
			s.pools[asset] = pool
		}
	}
	for asset, amount := range balances {
		s.SetPoolBalance(pool.ID, asset, amount)
	}
}

// SetPool registers pool for a single outcome asset.
func (s *Snapshot) SetPool(asset domain.AssetID, pool *domain.Pool) {
	s.pools[asset] = pool
}

// SetPoolBalance records the balance pool holds in asset.
func (s *Snapshot) SetPoolBalance(poolID uint64, asset domain.AssetID, amount decimal.Decimal) {
	s.poolBalances[poolAsset{poolID: poolID, asset: asset}] = amount
}

// SetTraderBalance records the trader's balance in asset.
func (s *Snapshot) SetTraderBalance(asset domain.AssetID, balance domain.Balance) {
	s.trader[asset] = balance
}

// PoolFor returns the pool trading asset, or nil.
func (s *Snapshot) PoolFor(asset domain.AssetID) *domain.Pool {
	if s == nil {
		return nil
	}
	return s.pools[asset]
}

// PoolBalance returns the balance pool holds in asset.
func (s *Snapshot) PoolBalance(poolID uint64, asset domain.AssetID) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	amount, ok := s.poolBalances[poolAsset{poolID: poolID, asset: asset}]
	return amount, ok
}

// TraderBalance returns the trader's balance in asset; unavailable if unknown.
func (s *Snapshot) TraderBalance(asset domain.AssetID) domain.Balance {
	if s == nil {
		return domain.UnavailableBalance()
	}
	balance, ok := s.trader[asset]
	if !ok {
		return domain.UnavailableBalance()
	}
	return balance
}

// Assets returns the outcome assets that have a pool, sorted by canonical text.
func (s *Snapshot) Assets() []domain.AssetID {
	if s == nil {
		return nil
	}
	assets := make([]domain.AssetID, 0, len(s.pools))
	for asset := range s.pools {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool {
		return assets[i].String() < assets[j].String()
	})
	return assets
}
