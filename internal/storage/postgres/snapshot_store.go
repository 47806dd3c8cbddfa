package postgres

import (
	"context"
	"fmt"
	"time"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// NextID returns max(snapshot_id) + 1, starting at 1.
func (s *SnapshotStore) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(snapshot_id), 0) + 1 FROM snapshots`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next snapshot id: %w", err)
	}
	return id, nil
}

// Insert adds a snapshot. Returns ErrDuplicateKey if the ID exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.ID <= 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO snapshots (snapshot_id, amount, taken_at, distributed_at, status, holder_count)
		VALUES ($1, $2::numeric, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		snap.ID,
		domain.FormatAmount(snap.Amount),
		snap.TakenAt,
		snap.DistributedAt,
		string(snap.Status),
		snap.HolderCount,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetByID retrieves a snapshot. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(ctx context.Context, id int64) (*domain.Snapshot, error) {
	query := `
		SELECT snapshot_id, amount::text, taken_at, distributed_at, status, holder_count
		FROM snapshots
		WHERE snapshot_id = $1
	`

	var snap domain.Snapshot
	var amount, status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&snap.ID,
		&amount,
		&snap.TakenAt,
		&snap.DistributedAt,
		&status,
		&snap.HolderCount,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by id: %w", err)
	}

	snap.Status = domain.SnapshotStatus(status)
	if snap.Amount, err = domain.ParseAmount(amount); err != nil {
		return nil, fmt.Errorf("parse snapshot amount: %w", err)
	}
	return &snap, nil
}

// MarkDistributed transitions a pending snapshot to distributed. The
// transition happens once; replays against an already-distributed
// snapshot are a no-op.
func (s *SnapshotStore) MarkDistributed(ctx context.Context, id int64, holderCount int, at time.Time) error {
	query := `
		UPDATE snapshots
		SET status = $2, holder_count = $3, distributed_at = $4
		WHERE snapshot_id = $1 AND status = $5
	`

	tag, err := s.pool.Exec(ctx, query, id,
		string(domain.SnapshotDistributed), holderCount, at, string(domain.SnapshotPending))
	if err != nil {
		return fmt.Errorf("mark snapshot distributed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the snapshot is unknown or the transition already happened.
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
