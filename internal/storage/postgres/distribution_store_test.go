package postgres

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

func TestDistributionStore_ApplyAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	snapshots := NewSnapshotStore(pool)
	holders := NewHolderStore(pool)
	store := NewDistributionStore(pool)
	ctx := context.Background()

	_ = snapshots.Insert(ctx, &domain.Snapshot{
		ID: 1, Amount: big.NewInt(50_000), TakenAt: testTime, Status: domain.SnapshotPending,
	})

	ds := []*domain.Distribution{
		{SnapshotID: 1, RecipientAddress: "0xA1", HolderSource: "0x01", Amount: big.NewInt(25_000), CreatedAt: testTime},
		{SnapshotID: 1, RecipientAddress: "0xA2", HolderSource: "0x01", Amount: big.NewInt(25_000), CreatedAt: testTime},
	}
	inserted, err := store.Apply(ctx, ds)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("Expected 2 rows applied, got %d", inserted)
	}

	got, err := store.GetBySnapshot(ctx, 1)
	if err != nil {
		t.Fatalf("GetBySnapshot failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(got))
	}
	if got[0].RecipientAddress != "0xa1" {
		t.Errorf("Recipient should be lower-cased, got %s", got[0].RecipientAddress)
	}
	if got[0].Amount.Cmp(big.NewInt(25_000)) != 0 {
		t.Errorf("Amount mismatch: %s", got[0].Amount)
	}

	// Each applied row credits its recipient's virtual ledger.
	h, err := holders.GetByAddress(ctx, "0xa1")
	if err != nil {
		t.Fatalf("Recipient missing from ledger: %v", err)
	}
	if h.VirtualReflectionBalance.Cmp(big.NewInt(25_000)) != 0 {
		t.Errorf("Recipient credit should be 25000, got %s", h.VirtualReflectionBalance)
	}
}

func TestDistributionStore_ApplyIsReplaySafe(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	snapshots := NewSnapshotStore(pool)
	holders := NewHolderStore(pool)
	store := NewDistributionStore(pool)
	ctx := context.Background()

	_ = snapshots.Insert(ctx, &domain.Snapshot{
		ID: 1, Amount: big.NewInt(50_000), TakenAt: testTime, Status: domain.SnapshotPending,
	})

	ds := []*domain.Distribution{
		{SnapshotID: 1, RecipientAddress: "0xA1", HolderSource: "0x01", Amount: big.NewInt(25_000), CreatedAt: testTime},
	}
	if _, err := store.Apply(ctx, ds); err != nil {
		t.Fatalf("First Apply failed: %v", err)
	}

	inserted, err := store.Apply(ctx, ds)
	if err != nil {
		t.Fatalf("Replayed Apply failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("Replay must skip existing rows, applied %d", inserted)
	}

	got, _ := store.GetBySnapshot(ctx, 1)
	if len(got) != 1 {
		t.Errorf("Replay must not duplicate rows, got %d", len(got))
	}

	h, err := holders.GetByAddress(ctx, "0xa1")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if h.VirtualReflectionBalance.Cmp(big.NewInt(25_000)) != 0 {
		t.Errorf("Replay must not double-credit: got %s, want 25000", h.VirtualReflectionBalance)
	}
}

func TestDistributionStore_ApplyIsAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	holders := NewHolderStore(pool)
	store := NewDistributionStore(pool)
	ctx := context.Background()

	// The row references a missing snapshot; the whole round rolls back,
	// including the recipient credit.
	ds := []*domain.Distribution{
		{SnapshotID: 1, RecipientAddress: "0xA1", HolderSource: "0x01", Amount: big.NewInt(1), CreatedAt: testTime},
	}
	if _, err := store.Apply(ctx, ds); err == nil {
		t.Fatal("Apply against missing snapshot should fail")
	}

	got, err := store.GetBySnapshot(ctx, 1)
	if err != nil {
		t.Fatalf("GetBySnapshot failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Failed round must leave no rows, got %d", len(got))
	}
	if _, err := holders.GetByAddress(ctx, "0xa1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Failed round must leave no credit, got %v", err)
	}
}
