package memory

import (
	"context"
	"sync"
	"time"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.Snapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[int64]*domain.Snapshot)}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// NextID returns max(snapshot_id)+1, or 1 if no snapshots exist.
func (s *SnapshotStore) NextID(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max int64
	for id := range s.data {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

// Insert adds a new snapshot. Returns ErrDuplicateKey if the id exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.ID <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[snap.ID]; exists {
		return storage.ErrDuplicateKey
	}

	row := *snap
	row.Amount = copyAmount(snap.Amount)
	s.data[snap.ID] = &row
	return nil
}

// GetByID retrieves a snapshot. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(_ context.Context, id int64) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	row := *snap
	row.Amount = copyAmount(snap.Amount)
	if snap.DistributedAt != nil {
		t := *snap.DistributedAt
		row.DistributedAt = &t
	}
	return &row, nil
}

// MarkDistributed transitions a snapshot pending -> distributed once.
func (s *SnapshotStore) MarkDistributed(_ context.Context, id int64, holderCount int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if snap.Status == domain.SnapshotDistributed {
		return nil
	}

	snap.Status = domain.SnapshotDistributed
	snap.HolderCount = holderCount
	t := at
	snap.DistributedAt = &t
	return nil
}
