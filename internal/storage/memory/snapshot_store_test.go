package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

func TestSnapshotStore_NextID(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	id, err := store.NextID(ctx)
	if err != nil {
		t.Fatalf("NextID failed: %v", err)
	}
	if id != 1 {
		t.Errorf("Empty store NextID should be 1, got %d", id)
	}

	_ = store.Insert(ctx, &domain.Snapshot{
		ID:     7,
		Amount: big.NewInt(500_000),
		Status: domain.SnapshotPending,
	})

	id, _ = store.NextID(ctx)
	if id != 8 {
		t.Errorf("NextID should be max+1=8, got %d", id)
	}
}

func TestSnapshotStore_MarkDistributedOnce(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	taken := time.Unix(1_700_000_000, 0).UTC()
	_ = store.Insert(ctx, &domain.Snapshot{
		ID:      1,
		Amount:  big.NewInt(500_000),
		TakenAt: taken,
		Status:  domain.SnapshotPending,
	})

	t1 := taken.Add(time.Minute)
	if err := store.MarkDistributed(ctx, 1, 12, t1); err != nil {
		t.Fatalf("MarkDistributed failed: %v", err)
	}

	// Second transition is a no-op; amount and holder count stay frozen.
	t2 := taken.Add(time.Hour)
	if err := store.MarkDistributed(ctx, 1, 99, t2); err != nil {
		t.Fatalf("MarkDistributed (2) failed: %v", err)
	}

	snap, err := store.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if snap.Status != domain.SnapshotDistributed {
		t.Errorf("Expected status distributed, got %s", snap.Status)
	}
	if snap.HolderCount != 12 {
		t.Errorf("HolderCount should stay 12, got %d", snap.HolderCount)
	}
	if snap.DistributedAt == nil || !snap.DistributedAt.Equal(t1) {
		t.Errorf("DistributedAt should stay %v, got %v", t1, snap.DistributedAt)
	}
}

func TestSnapshotStore_DuplicateID(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	snap := &domain.Snapshot{ID: 1, Amount: big.NewInt(1), Status: domain.SnapshotPending}
	if err := store.Insert(ctx, snap); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, snap); err != storage.ErrDuplicateKey {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}
