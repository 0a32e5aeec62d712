package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeslip/internal/domain"
	"tradeslip/internal/storage"
	"tradeslip/internal/storage/migrations"
	"tradeslip/internal/storage/sqlite"
)

func setupStore(t *testing.T) *sqlite.SlipStore {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "slips.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.RunSqliteMigrations(context.Background(), db.DB))
	return sqlite.NewSlipStore(db)
}

func testSlip(id string) *domain.SlipRecord {
	return &domain.SlipRecord{
		SlipID: id,
		Items: []domain.TradeItem{
			{Direction: domain.DirectionBuy, Asset: domain.CategoricalOutcome(9, 2), Quantity: decimal.RequireFromString("1.5")},
			{Direction: domain.DirectionSell, Asset: domain.CategoricalOutcome(9, 2), Quantity: decimal.NewFromInt(3)},
		},
		SlippagePct: decimal.NewFromInt(1),
		UpdatedAt:   42,
	}
}

func TestSlipStore_SaveAndLoad(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	rec := testSlip("local")
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UpdatedAt)
	assert.True(t, rec.SlippagePct.Equal(got.SlippagePct))
	require.Len(t, got.Items, 2)
	assert.True(t, rec.Items[0].Equal(got.Items[0]))
	assert.True(t, rec.Items[1].Equal(got.Items[1]))
}

func TestSlipStore_SaveReplaces(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	rec := testSlip("local")
	require.NoError(t, store.Save(ctx, rec))

	rec.Items = nil
	rec.SlippagePct = decimal.RequireFromString("2.5")
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx, "local")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.True(t, decimal.RequireFromString("2.5").Equal(got.SlippagePct))
}

func TestSlipStore_DeleteCascades(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSlip("a")))
	require.NoError(t, store.Save(ctx, testSlip("b")))
	require.NoError(t, store.Delete(ctx, "a"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	// Re-creating the slip must not see stale items.
	require.NoError(t, store.Save(ctx, &domain.SlipRecord{SlipID: "a", SlippagePct: decimal.NewFromInt(1)}))
	got, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestSlipStore_Errors(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), storage.ErrNotFound)
	assert.ErrorIs(t, store.Save(ctx, nil), storage.ErrInvalidInput)
}

func TestMigrationsIdempotent(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "twice.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, migrations.RunSqliteMigrations(ctx, db.DB))
	require.NoError(t, migrations.RunSqliteMigrations(ctx, db.DB))
}
