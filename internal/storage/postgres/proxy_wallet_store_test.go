package postgres

import (
	"context"
	"testing"
	"time"

	"contagion-monitor/internal/domain"
)

func TestProxyWalletStore_UpsertIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewProxyWalletStore(pool)
	ctx := context.Background()

	p := &domain.ProxyWallet{
		HolderAddress:   "0x01",
		ProxyAddress:    "0xA1",
		Type:            domain.ProxyPrePurchase,
		TransactionHash: "0xabc1",
		DetectedAt:      testTime,
	}
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	// Re-detection with a different type keeps the original row.
	again := *p
	again.Type = domain.ProxyPostPurchase
	again.DetectedAt = testTime.Add(time.Hour)
	if err := store.Upsert(ctx, &again); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := store.GetByHolder(ctx, "0x01")
	if err != nil {
		t.Fatalf("GetByHolder failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 proxy, got %d", len(got))
	}
	if got[0].Type != domain.ProxyPrePurchase {
		t.Errorf("Original detection should win, got %s", got[0].Type)
	}
}

func TestProxyWalletStore_GetByHolderOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewProxyWalletStore(pool)
	ctx := context.Background()

	for i, addr := range []string{"0xA2", "0xA1"} {
		err := store.Upsert(ctx, &domain.ProxyWallet{
			HolderAddress:   "0x01",
			ProxyAddress:    addr,
			Type:            domain.ProxyPostPurchase,
			TransactionHash: "0xabc",
			DetectedAt:      testTime.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	got, err := store.GetByHolder(ctx, "0x01")
	if err != nil {
		t.Fatalf("GetByHolder failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 proxies, got %d", len(got))
	}
	if got[0].ProxyAddress != "0xa2" || got[1].ProxyAddress != "0xa1" {
		t.Errorf("Proxies should come back in detection order, got %s, %s",
			got[0].ProxyAddress, got[1].ProxyAddress)
	}
}
