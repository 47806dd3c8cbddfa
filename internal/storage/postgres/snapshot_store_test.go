package postgres

import (
	"context"
	"math/big"
	"testing"
	"time"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

func TestSnapshotStore_NextIDAndInsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	id, err := store.NextID(ctx)
	if err != nil {
		t.Fatalf("NextID failed: %v", err)
	}
	if id != 1 {
		t.Errorf("Empty table NextID should be 1, got %d", id)
	}

	snap := &domain.Snapshot{
		ID:      id,
		Amount:  big.NewInt(500_000),
		TakenAt: testTime,
		Status:  domain.SnapshotPending,
	}
	if err := store.Insert(ctx, snap); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, snap); err != storage.ErrDuplicateKey {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	id, _ = store.NextID(ctx)
	if id != 2 {
		t.Errorf("NextID should be 2 after first snapshot, got %d", id)
	}
}

func TestSnapshotStore_MarkDistributedOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	_ = store.Insert(ctx, &domain.Snapshot{
		ID: 1, Amount: big.NewInt(500_000), TakenAt: testTime, Status: domain.SnapshotPending,
	})

	t1 := testTime.Add(time.Minute)
	if err := store.MarkDistributed(ctx, 1, 12, t1); err != nil {
		t.Fatalf("MarkDistributed failed: %v", err)
	}
	// Replay is a no-op; holder count and timestamp stay frozen.
	if err := store.MarkDistributed(ctx, 1, 99, testTime.Add(time.Hour)); err != nil {
		t.Fatalf("Replayed MarkDistributed failed: %v", err)
	}

	snap, err := store.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if snap.Status != domain.SnapshotDistributed {
		t.Errorf("Expected distributed status, got %s", snap.Status)
	}
	if snap.HolderCount != 12 {
		t.Errorf("HolderCount should stay 12, got %d", snap.HolderCount)
	}
	if snap.DistributedAt == nil || !snap.DistributedAt.Equal(t1) {
		t.Errorf("DistributedAt should stay %v, got %v", t1, snap.DistributedAt)
	}
}

func TestSnapshotStore_MarkDistributedUnknown(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	if err := store.MarkDistributed(context.Background(), 42, 1, testTime); err != storage.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
