package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// DistributionStore is an in-memory implementation of storage.DistributionStore.
type DistributionStore struct {
	mu      sync.RWMutex
	holders *HolderStore
	data    []*domain.Distribution
	keys    map[string]bool
}

// NewDistributionStore creates a new in-memory distribution store. Credits
// for applied rows land on the given holder store's virtual ledger.
func NewDistributionStore(holders *HolderStore) *DistributionStore {
	return &DistributionStore{holders: holders, keys: make(map[string]bool)}
}

var _ storage.DistributionStore = (*DistributionStore)(nil)

// Apply adds the distribution rows of one snapshot round and credits each
// new row's recipient. Rows already present under their natural key are
// skipped without crediting.
func (s *DistributionStore) Apply(ctx context.Context, ds []*domain.Distribution) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range ds {
		if d == nil || d.SnapshotID <= 0 || d.RecipientAddress == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	inserted := 0
	for _, d := range ds {
		key := rowKey(d)
		if s.keys[key] {
			continue
		}

		row := *d
		row.RecipientAddress = strings.ToLower(d.RecipientAddress)
		row.HolderSource = strings.ToLower(d.HolderSource)
		row.Amount = copyAmount(d.Amount)
		s.data = append(s.data, &row)
		s.keys[key] = true

		if err := s.holders.CreditVirtualReflection(ctx, row.RecipientAddress, row.Amount, row.CreatedAt); err != nil {
			return 0, err
		}
		inserted++
	}
	return inserted, nil
}

// GetBySnapshot retrieves all rows for a snapshot in insertion order.
func (s *DistributionStore) GetBySnapshot(_ context.Context, snapshotID int64) ([]*domain.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Distribution
	for _, d := range s.data {
		if d.SnapshotID == snapshotID {
			row := *d
			row.Amount = copyAmount(d.Amount)
			result = append(result, &row)
		}
	}
	return result, nil
}

func rowKey(d *domain.Distribution) string {
	return fmt.Sprintf("%d|%s|%s", d.SnapshotID, strings.ToLower(d.RecipientAddress), strings.ToLower(d.HolderSource))
}
