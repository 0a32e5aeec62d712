package snapshot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeslip/internal/chain/stub"
	"tradeslip/internal/domain"
	"tradeslip/internal/snapshot"
)

var (
	yes   = domain.CategoricalOutcome(7, 0)
	no    = domain.CategoricalOutcome(7, 1)
	other = domain.CategoricalOutcome(9, 0)

	trader      = domain.EncodeAccount(42, [32]byte{0xaa})
	poolAccount = domain.EncodeAccount(42, [32]byte{0x01})
)

func testPool() *domain.Pool {
	return &domain.Pool{
		ID:        1,
		Account:   poolAccount,
		MarketID:  7,
		BaseAsset: domain.BaseAsset(),
		Assets:    []domain.AssetID{domain.BaseAsset(), yes, no},
		Weights: map[domain.AssetID]decimal.Decimal{
			domain.BaseAsset(): decimal.NewFromInt(2),
			yes:                decimal.NewFromInt(1),
			no:                 decimal.NewFromInt(1),
		},
		SwapFee: decimal.RequireFromString("0.01"),
	}
}

func newSource() *stub.Client {
	src := stub.NewClient()
	src.AddPool(testPool(), map[domain.AssetID]decimal.Decimal{
		domain.BaseAsset(): decimal.NewFromInt(1000),
		yes:                decimal.NewFromInt(300),
		no:                 decimal.NewFromInt(600),
	})
	src.SetTraderBalance(trader, domain.BaseAsset(), decimal.NewFromInt(50))
	src.SetTraderBalance(trader, yes, decimal.NewFromInt(5))
	return src
}

func TestFetcher_Fetch(t *testing.T) {
	f := snapshot.NewFetcher(snapshot.FetcherOptions{Source: newSource()})

	snap, err := f.Fetch(context.Background(), trader, []domain.AssetID{yes, yes, other, domain.BaseAsset()})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, trader, snap.Account)

	pool := snap.PoolFor(yes)
	require.NotNil(t, pool)
	assert.Equal(t, uint64(1), pool.ID)
	assert.Nil(t, snap.PoolFor(other))
	assert.Equal(t, []domain.AssetID{yes}, snap.Assets())

	base, ok := snap.PoolBalance(1, domain.BaseAsset())
	require.True(t, ok)
	assert.True(t, base.Equal(decimal.NewFromInt(1000)))
	y, ok := snap.PoolBalance(1, yes)
	require.True(t, ok)
	assert.True(t, y.Equal(decimal.NewFromInt(300)))
	_, ok = snap.PoolBalance(1, no)
	assert.False(t, ok, "balances are fetched only for requested assets")

	tb := snap.TraderBalance(domain.BaseAsset())
	assert.True(t, tb.Available)
	assert.True(t, tb.Amount.Equal(decimal.NewFromInt(50)))
	assert.True(t, snap.TraderBalance(yes).Amount.Equal(decimal.NewFromInt(5)))
}

func TestFetcher_GenerationsIncrease(t *testing.T) {
	f := snapshot.NewFetcher(snapshot.FetcherOptions{Source: newSource()})

	first, err := f.Fetch(context.Background(), trader, []domain.AssetID{yes})
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), trader, []domain.AssetID{yes})
	require.NoError(t, err)

	assert.Greater(t, second.Generation, first.Generation)
}

func TestFetcher_NoAccountLeavesBalancesUnavailable(t *testing.T) {
	f := snapshot.NewFetcher(snapshot.FetcherOptions{Source: newSource()})

	snap, err := f.Fetch(context.Background(), "", []domain.AssetID{yes})
	require.NoError(t, err)

	assert.False(t, snap.TraderBalance(domain.BaseAsset()).Available)
	assert.False(t, snap.TraderBalance(yes).Available)
	assert.NotNil(t, snap.PoolFor(yes))
}

func TestFetcher_SourceErrorsDegrade(t *testing.T) {
	src := newSource()
	src.Fail("TraderBalance", errors.New("node unavailable"))
	f := snapshot.NewFetcher(snapshot.FetcherOptions{Source: src})

	snap, err := f.Fetch(context.Background(), trader, []domain.AssetID{yes})
	require.NoError(t, err)
	assert.False(t, snap.TraderBalance(domain.BaseAsset()).Available)
	assert.NotNil(t, snap.PoolFor(yes))

	src.Fail("TraderBalance", nil)
	src.Fail("Pool", errors.New("node unavailable"))
	snap, err = f.Fetch(context.Background(), trader, []domain.AssetID{yes})
	require.NoError(t, err)
	assert.Nil(t, snap.PoolFor(yes))
}

func TestFetcher_Cancellation(t *testing.T) {
	src := newSource()
	src.SetLatency(time.Second)
	f := snapshot.NewFetcher(snapshot.FetcherOptions{Source: src})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, trader, []domain.AssetID{yes})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSnapshot_NilIsAbsent(t *testing.T) {
	var snap *snapshot.Snapshot
	assert.Nil(t, snap.PoolFor(yes))
	_, ok := snap.PoolBalance(1, yes)
	assert.False(t, ok)
	assert.False(t, snap.TraderBalance(yes).Available)
	assert.Empty(t, snap.Assets())
}
