// Package memory provides in-memory implementations of the storage
// interfaces, used by tests and by --use-memory mode.
package memory

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// HolderStore is an in-memory implementation of storage.HolderStore.
type HolderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Holder // keyed by lower-cased address
}

// NewHolderStore creates a new in-memory holder store.
func NewHolderStore() *HolderStore {
	return &HolderStore{data: make(map[string]*domain.Holder)}
}

var _ storage.HolderStore = (*HolderStore)(nil)

// Upsert inserts a holder or refreshes the balances of an existing one.
// first_seen_block/time are immutable once set.
func (s *HolderStore) Upsert(_ context.Context, h *domain.Holder) error {
	if h == nil || h.Address == "" {
		return storage.ErrInvalidInput
	}

	addr := strings.ToLower(h.Address)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[addr]
	if !ok {
		c := copyHolder(h)
		c.Address = addr
		s.data[addr] = c
		return nil
	}

	existing.Balance = copyAmount(h.Balance)
	existing.BaseBalance = copyAmount(h.BaseBalance)
	existing.ReflectionBalance = copyAmount(h.ReflectionBalance)
	existing.UpdatedAt = h.UpdatedAt
	return nil
}

// GetByAddress retrieves a holder. Returns ErrNotFound if not exists.
func (s *HolderStore) GetByAddress(_ context.Context, address string) (*domain.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[strings.ToLower(address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyHolder(h), nil
}

// GetUnlocked retrieves unlocked holders at or above minBalance.
func (s *HolderStore) GetUnlocked(_ context.Context, minBalance *big.Int) ([]*domain.Holder, error) {
	return s.filter(func(h *domain.Holder) bool {
		return !h.Locked && cmpAmount(h.Balance, minBalance) >= 0
	}), nil
}

// GetLocked retrieves locked holders at or above minBalance.
func (s *HolderStore) GetLocked(_ context.Context, minBalance *big.Int) ([]*domain.Holder, error) {
	return s.filter(func(h *domain.Holder) bool {
		return h.Locked && cmpAmount(h.Balance, minBalance) >= 0
	}), nil
}

// SetScanResult records a scan outcome. Locked is monotonic.
func (s *HolderStore) SetScanResult(_ context.Context, address string, proxyCount int, locked bool, scannedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.data[strings.ToLower(address)]
	if !ok {
		return storage.ErrNotFound
	}

	h.ProxyCount = proxyCount
	h.Locked = h.Locked || locked
	t := scannedAt
	h.LastScanned = &t
	return nil
}

// CreditVirtualReflection adds amount to the holder's virtual ledger,
// creating the row if the recipient is not yet known.
func (s *HolderStore) CreditVirtualReflection(_ context.Context, address string, amount *big.Int, at time.Time) error {
	if amount == nil || amount.Sign() < 0 {
		return storage.ErrInvalidInput
	}

	addr := strings.ToLower(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.data[addr]
	if !ok {
		h = &domain.Holder{
			Address:                  addr,
			Balance:                  new(big.Int),
			BaseBalance:              new(big.Int),
			ReflectionBalance:        new(big.Int),
			VirtualReflectionBalance: new(big.Int),
			FirstSeenTime:            at,
			UpdatedAt:                at,
		}
		s.data[addr] = h
	}
	if h.VirtualReflectionBalance == nil {
		h.VirtualReflectionBalance = new(big.Int)
	}
	h.VirtualReflectionBalance = new(big.Int).Add(h.VirtualReflectionBalance, amount)
	h.UpdatedAt = at
	return nil
}

func (s *HolderStore) filter(keep func(*domain.Holder) bool) []*domain.Holder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Holder
	for _, h := range s.data {
		if keep(h) {
			result = append(result, copyHolder(h))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].FirstSeenTime.Equal(result[j].FirstSeenTime) {
			return result[i].FirstSeenTime.Before(result[j].FirstSeenTime)
		}
		return result[i].Address < result[j].Address
	})
	return result
}

func copyHolder(h *domain.Holder) *domain.Holder {
	c := *h
	c.Balance = copyAmount(h.Balance)
	c.BaseBalance = copyAmount(h.BaseBalance)
	c.ReflectionBalance = copyAmount(h.ReflectionBalance)
	c.VirtualReflectionBalance = copyAmount(h.VirtualReflectionBalance)
	if h.LastScanned != nil {
		t := *h.LastScanned
		c.LastScanned = &t
	}
	return &c
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func cmpAmount(v, min *big.Int) int {
	if v == nil {
		v = new(big.Int)
	}
	if min == nil {
		min = new(big.Int)
	}
	return v.Cmp(min)
}
