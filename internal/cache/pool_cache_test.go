package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"tradeslip/internal/chain/stub"
	"tradeslip/internal/domain"
)

var (
	yes = domain.CategoricalOutcome(7, 0)
	no  = domain.CategoricalOutcome(7, 1)

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
	})
	src.SetTraderBalance(trader, domain.BaseAsset(), decimal.NewFromInt(50))
	return src
}

// setupRedis starts a Redis container and returns a client for it.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPoolCache_HitAfterMiss(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	src := newSource()
	c := NewPoolCache(src, client, PoolCacheOptions{Prefix: "test"})

	pool, err := c.Pool(ctx, yes)
	require.NoError(t, err)
	require.NotNil(t, pool)
	queries := src.QueryCount()

	// Sibling outcome is cached by the first load.
	cached, err := c.Pool(ctx, no)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, queries, src.QueryCount(), "expected a cache hit")

	assert.Equal(t, pool.ID, cached.ID)
	assert.Equal(t, pool.Account, cached.Account)
	assert.Equal(t, pool.Assets, cached.Assets)
	assert.True(t, pool.SwapFee.Equal(cached.SwapFee))
	w, ok := cached.Weight(domain.BaseAsset())
	require.True(t, ok)
	assert.True(t, w.Equal(decimal.NewFromInt(2)))
}

func TestPoolCache_AbsentPoolNotCached(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	c := NewPoolCache(newSource(), client, PoolCacheOptions{Prefix: "test"})

	pool, err := c.Pool(ctx, domain.CategoricalOutcome(99, 0))
	require.NoError(t, err)
	assert.Nil(t, pool)

	n, err := client.Exists(ctx, "test:pool:cat:99:0").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPoolCache_Invalidate(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	src := newSource()
	c := NewPoolCache(src, client, PoolCacheOptions{Prefix: "test"})

	_, err := c.Pool(ctx, yes)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, yes))

	queries := src.QueryCount()
	_, err = c.Pool(ctx, yes)
	require.NoError(t, err)
	assert.Equal(t, queries+1, src.QueryCount(), "expected a source query after invalidate")
}

func TestPoolCache_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()

	client, err := NewRedisClient("127.0.0.1:1", "", 0)
	require.NoError(t, err)
	defer client.Close()

	c := NewPoolCache(newSource(), client, PoolCacheOptions{})
	pool, err := c.Pool(ctx, yes)
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.Equal(t, uint64(1), pool.ID)
}

func TestPoolCache_BalancesPassThrough(t *testing.T) {
	ctx := context.Background()
	c := NewPoolCache(newSource(), nil, PoolCacheOptions{})

	balance, err := c.TraderBalance(ctx, trader, domain.BaseAsset())
	require.NoError(t, err)
	assert.True(t, balance.Available)
	assert.True(t, balance.Amount.Equal(decimal.NewFromInt(50)))

	amount, err := c.PoolBalance(ctx, poolAccount, yes)
	require.NoError(t, err)
	require.NotNil(t, amount)
	assert.True(t, amount.Equal(decimal.NewFromInt(300)))

	amount, err = c.PoolBalance(ctx, poolAccount, no)
	require.NoError(t, err)
	assert.Nil(t, amount)
}

func TestNewRedisClient_RequiresAddr(t *testing.T) {
	_, err := NewRedisClient("", "", 0)
	assert.ErrorIs(t, err, ErrMissingAddr)
}
