package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

func TestInfectionStore_DuplicateTxHash(t *testing.T) {
	store := NewInfectionStore()
	ctx := context.Background()

	inf := &domain.Infection{
		InfectorAddress: "0xfrom",
		InfectedAddress: "0xto",
		Amount:          big.NewInt(1000),
		Type:            domain.InfectionTypeTransfer,
		TransactionHash: "0xDEADBEEF",
		BlockNumber:     42,
		CreatedAt:       time.Unix(1_700_000_000, 0).UTC(),
	}

	if err := store.Insert(ctx, inf); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Same hash, different casing: still a duplicate.
	dup := *inf
	dup.TransactionHash = "0xdeadbeef"
	if err := store.Insert(ctx, &dup); err != storage.ErrDuplicateKey {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	exists, err := store.ExistsByTxHash(ctx, "0xDeadBeef")
	if err != nil {
		t.Fatalf("ExistsByTxHash failed: %v", err)
	}
	if !exists {
		t.Error("Expected tx hash to exist")
	}

	exists, _ = store.ExistsByTxHash(ctx, "0xother")
	if exists {
		t.Error("Unknown tx hash should not exist")
	}
}
