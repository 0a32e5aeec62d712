package clickhouse_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeslip/internal/domain"
	"tradeslip/internal/storage"
	"tradeslip/internal/storage/clickhouse"
)

func createTestQuote(id, slipID string, gen uint64, ts int64) *domain.QuoteRecord {
	return &domain.QuoteRecord{
		QuoteID:     id,
		SlipID:      slipID,
		Generation:  gen,
		TimestampMs: ts,
		Direction:   domain.DirectionSell,
		Asset:       "scalar:5:long",
		Quantity:    decimal.RequireFromString("3.25"),
		Status:      domain.StatusReady,
		SpotPrice:   decimal.RequireFromString("0.612345678901234567"),
		Sum:         decimal.RequireFromString("1.98"),
		MaxQuantity: decimal.NewFromInt(200),
		PoolID:      11,
	}
}

func TestQuoteStore_InsertBulkAndGet(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := clickhouse.NewQuoteStore(conn)

	quotes := []*domain.QuoteRecord{
		createTestQuote("q2", "slip-1", 2, 2000),
		createTestQuote("q1", "slip-1", 1, 1000),
		createTestQuote("q3", "slip-2", 1, 1500),
	}
	require.NoError(t, store.InsertBulk(ctx, quotes))

	got, err := store.GetBySlip(ctx, "slip-1", 0, 10_000)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "q1", got[0].QuoteID)
	assert.Equal(t, "q2", got[1].QuoteID)
	assert.Equal(t, domain.DirectionSell, got[0].Direction)
	assert.Equal(t, domain.StatusReady, got[0].Status)
	assert.Equal(t, uint64(11), got[0].PoolID)
	assert.True(t, quotes[1].SpotPrice.Equal(got[0].SpotPrice), "spot price: %s", got[0].SpotPrice)
	assert.True(t, quotes[1].Quantity.Equal(got[0].Quantity))
}

func TestQuoteStore_TimeRange(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := clickhouse.NewQuoteStore(conn)

	require.NoError(t, store.InsertBulk(ctx, []*domain.QuoteRecord{
		createTestQuote("a", "slip-1", 1, 1000),
		createTestQuote("b", "slip-1", 2, 2000),
		createTestQuote("c", "slip-1", 3, 3000),
	}))

	got, err := store.GetBySlip(ctx, "slip-1", 2000, 3000)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestQuoteStore_DuplicateKey(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := clickhouse.NewQuoteStore(conn)

	q := createTestQuote("dup", "slip-1", 1, 1000)
	require.NoError(t, store.InsertBulk(ctx, []*domain.QuoteRecord{q}))

	err := store.InsertBulk(ctx, []*domain.QuoteRecord{q})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, []*domain.QuoteRecord{
		createTestQuote("x", "slip-1", 2, 2000),
		createTestQuote("x", "slip-1", 2, 2000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
