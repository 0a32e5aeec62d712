package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/storage"
)

func testSlip(id string) *domain.SlipRecord {
	return &domain.SlipRecord{
		SlipID: id,
		Items: []domain.TradeItem{
			{Direction: domain.DirectionBuy, Asset: domain.CategoricalOutcome(1, 0), Quantity: decimal.NewFromInt(10)},
			{Direction: domain.DirectionSell, Asset: domain.ScalarOutcome(2, domain.ScalarLong), Quantity: decimal.RequireFromString("2.5")},
		},
		SlippagePct: decimal.NewFromInt(1),
		UpdatedAt:   1704067200000,
	}
}

func TestSlipStore_SaveAndLoad(t *testing.T) {
	store := NewSlipStore()
	ctx := context.Background()

	rec := testSlip("s1")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(got.Items))
	}
	for i := range rec.Items {
		if !got.Items[i].Equal(rec.Items[i]) {
			t.Errorf("Item %d mismatch: got %+v, want %+v", i, got.Items[i], rec.Items[i])
		}
	}
	if !got.SlippagePct.Equal(rec.SlippagePct) {
		t.Errorf("SlippagePct mismatch: got %s, want %s", got.SlippagePct, rec.SlippagePct)
	}
}

func TestSlipStore_SaveReplaces(t *testing.T) {
	store := NewSlipStore()
	ctx := context.Background()

	rec := testSlip("s1")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec.Items = rec.Items[:1]
	rec.SlippagePct = decimal.NewFromInt(3)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Items) != 1 {
		t.Errorf("Expected 1 item after replace, got %d", len(got.Items))
	}
	if !got.SlippagePct.Equal(decimal.NewFromInt(3)) {
		t.Errorf("SlippagePct not replaced: %s", got.SlippagePct)
	}
}

func TestSlipStore_LoadReturnsCopy(t *testing.T) {
	store := NewSlipStore()
	ctx := context.Background()

	if err := store.Save(ctx, testSlip("s1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, _ := store.Load(ctx, "s1")
	got.Items[0].Quantity = decimal.NewFromInt(999)

	again, _ := store.Load(ctx, "s1")
	if again.Items[0].Quantity.Equal(decimal.NewFromInt(999)) {
		t.Error("Mutating a loaded record should not affect the store")
	}
}

func TestSlipStore_NotFound(t *testing.T) {
	store := NewSlipStore()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Load, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Delete, got %v", err)
	}
}

func TestSlipStore_InvalidInput(t *testing.T) {
	store := NewSlipStore()
	if err := store.Save(context.Background(), &domain.SlipRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSlipStore_DeleteAndList(t *testing.T) {
	store := NewSlipStore()
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if err := store.Save(ctx, testSlip(id)); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("Expected [a c], got %v", ids)
	}
}
