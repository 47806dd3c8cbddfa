package postgres

import (
	"context"
	"fmt"
	"strings"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// InfectionStore implements storage.InfectionStore using PostgreSQL.
type InfectionStore struct {
	pool *Pool
}

// NewInfectionStore creates a new InfectionStore.
func NewInfectionStore(pool *Pool) *InfectionStore {
	return &InfectionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.InfectionStore = (*InfectionStore)(nil)

// Insert adds an infection. Returns ErrDuplicateKey if the transaction
// hash was already recorded.
func (s *InfectionStore) Insert(ctx context.Context, inf *domain.Infection) error {
	if inf == nil || inf.TransactionHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO infections (
			infector_address, infected_address, amount, infection_type,
			transaction_hash, block_number, created_at
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(inf.InfectorAddress),
		strings.ToLower(inf.InfectedAddress),
		domain.FormatAmount(inf.Amount),
		inf.Type,
		strings.ToLower(inf.TransactionHash),
		int64(inf.BlockNumber),
		inf.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert infection: %w", err)
	}
	return nil
}

// ExistsByTxHash reports whether a transfer was already ingested.
func (s *InfectionStore) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM infections WHERE transaction_hash = $1)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, strings.ToLower(txHash)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check infection exists: %w", err)
	}
	return exists, nil
}
