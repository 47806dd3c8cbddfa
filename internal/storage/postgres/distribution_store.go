package postgres

import (
	"context"
	"fmt"
	"strings"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// DistributionStore implements storage.DistributionStore using PostgreSQL.
type DistributionStore struct {
	pool *Pool
}

// NewDistributionStore creates a new DistributionStore.
func NewDistributionStore(pool *Pool) *DistributionStore {
	return &DistributionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DistributionStore = (*DistributionStore)(nil)

// Apply writes one distribution run and its recipient credits in a single
// transaction, so a crashed run never leaves a partial payout behind. Rows
// already present under (snapshot_id, recipient_address, holder_source)
// are skipped and their recipients are not credited again.
func (s *DistributionStore) Apply(ctx context.Context, ds []*domain.Distribution) (int, error) {
	if len(ds) == 0 {
		return 0, nil
	}

	insertQuery := `
		INSERT INTO distributions (snapshot_id, recipient_address, holder_source, amount, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (snapshot_id, recipient_address, holder_source) DO NOTHING
	`
	creditQuery := `
		INSERT INTO holders (address, virtual_reflection_balance, first_seen_time, updated_at)
		VALUES ($1, $2::numeric, $3, $3)
		ON CONFLICT (address) DO UPDATE SET
			virtual_reflection_balance = holders.virtual_reflection_balance + EXCLUDED.virtual_reflection_balance,
			updated_at = EXCLUDED.updated_at
	`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin distribution apply: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, d := range ds {
		if d == nil || d.RecipientAddress == "" {
			return 0, storage.ErrInvalidInput
		}
		recipient := strings.ToLower(d.RecipientAddress)
		amount := domain.FormatAmount(d.Amount)

		tag, err := tx.Exec(ctx, insertQuery,
			d.SnapshotID, recipient, strings.ToLower(d.HolderSource), amount, d.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("insert distribution: %w", err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}

		if _, err := tx.Exec(ctx, creditQuery, recipient, amount, d.CreatedAt); err != nil {
			return 0, fmt.Errorf("credit recipient %s: %w", recipient, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit distribution apply: %w", err)
	}
	return inserted, nil
}

// GetBySnapshot retrieves all rows of one snapshot's payout.
func (s *DistributionStore) GetBySnapshot(ctx context.Context, snapshotID int64) ([]*domain.Distribution, error) {
	query := `
		SELECT snapshot_id, recipient_address, holder_source, amount::text, created_at
		FROM distributions
		WHERE snapshot_id = $1
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("get distributions by snapshot: %w", err)
	}
	defer rows.Close()

	var dists []*domain.Distribution
	for rows.Next() {
		var d domain.Distribution
		var amount string

		err := rows.Scan(&d.SnapshotID, &d.RecipientAddress, &d.HolderSource, &amount, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan distribution row: %w", err)
		}
		if d.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("parse distribution amount: %w", err)
		}
		dists = append(dists, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distribution rows: %w", err)
	}

	return dists, nil
}
