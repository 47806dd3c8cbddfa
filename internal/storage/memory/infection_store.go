package memory

import (
	"context"
	"strings"
	"sync"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// InfectionStore is an in-memory implementation of storage.InfectionStore.
type InfectionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Infection // keyed by transaction hash
}

// NewInfectionStore creates a new in-memory infection store.
func NewInfectionStore() *InfectionStore {
	return &InfectionStore{data: make(map[string]*domain.Infection)}
}

var _ storage.InfectionStore = (*InfectionStore)(nil)

// Insert adds a transfer record. Returns ErrDuplicateKey if the transaction
// hash was already ingested.
func (s *InfectionStore) Insert(_ context.Context, inf *domain.Infection) error {
	if inf == nil || inf.TransactionHash == "" {
		return storage.ErrInvalidInput
	}

	hash := strings.ToLower(inf.TransactionHash)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[hash]; exists {
		return storage.ErrDuplicateKey
	}

	row := *inf
	row.TransactionHash = hash
	row.Amount = copyAmount(inf.Amount)
	s.data[hash] = &row
	return nil
}

// ExistsByTxHash reports whether a transfer was already ingested.
func (s *InfectionStore) ExistsByTxHash(_ context.Context, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[strings.ToLower(txHash)]
	return exists, nil
}
