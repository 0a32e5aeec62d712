package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/storage"
)

func TestSubmissionStore_InsertAndGet(t *testing.T) {
	store := NewSubmissionStore()
	ctx := context.Background()

	e := &domain.SubmissionEvent{
		SubmissionID: "sub1",
		SlipID:       "s1",
		BatchID:      "batch1",
		Generation:   4,
		Legs:         2,
		Total:        decimal.RequireFromString("-6"),
		Status:       domain.SubmissionStatusSuccess,
		TxHash:       "0xabc",
		TimestampMs:  1000,
	}
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "sub1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.BatchID != "batch1" || got.Generation != 4 {
		t.Errorf("Unexpected record: %+v", got)
	}
	if !got.Total.Equal(decimal.NewFromInt(-6)) {
		t.Errorf("Total mismatch: %s", got.Total)
	}
}

func TestSubmissionStore_DuplicateKey(t *testing.T) {
	store := NewSubmissionStore()
	ctx := context.Background()

	e := &domain.SubmissionEvent{SubmissionID: "sub1", SlipID: "s1"}
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, e); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestSubmissionStore_NotFound(t *testing.T) {
	store := NewSubmissionStore()
	if _, err := store.GetByID(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSubmissionStore_GetBySlipOrdered(t *testing.T) {
	store := NewSubmissionStore()
	ctx := context.Background()

	_ = store.Insert(ctx, &domain.SubmissionEvent{SubmissionID: "b", SlipID: "s1", TimestampMs: 2000})
	_ = store.Insert(ctx, &domain.SubmissionEvent{SubmissionID: "a", SlipID: "s1", TimestampMs: 1000})
	_ = store.Insert(ctx, &domain.SubmissionEvent{SubmissionID: "c", SlipID: "s2", TimestampMs: 500})

	got, err := store.GetBySlip(ctx, "s1")
	if err != nil {
		t.Fatalf("GetBySlip failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 submissions, got %d", len(got))
	}
	if got[0].SubmissionID != "a" || got[1].SubmissionID != "b" {
		t.Errorf("Expected ascending timestamp order, got %s, %s", got[0].SubmissionID, got[1].SubmissionID)
	}
}
