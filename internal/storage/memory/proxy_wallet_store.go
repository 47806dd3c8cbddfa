package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// ProxyWalletStore is an in-memory implementation of storage.ProxyWalletStore.
type ProxyWalletStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.ProxyWallet // holder -> proxy -> row
}

// NewProxyWalletStore creates a new in-memory proxy wallet store.
func NewProxyWalletStore() *ProxyWalletStore {
	return &ProxyWalletStore{data: make(map[string]map[string]*domain.ProxyWallet)}
}

var _ storage.ProxyWalletStore = (*ProxyWalletStore)(nil)

// Upsert records a discovered proxy; re-detection is a no-op.
func (s *ProxyWalletStore) Upsert(_ context.Context, p *domain.ProxyWallet) error {
	if p == nil || p.HolderAddress == "" || p.ProxyAddress == "" {
		return storage.ErrInvalidInput
	}

	holder := strings.ToLower(p.HolderAddress)
	proxy := strings.ToLower(p.ProxyAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	byProxy, ok := s.data[holder]
	if !ok {
		byProxy = make(map[string]*domain.ProxyWallet)
		s.data[holder] = byProxy
	}
	if _, exists := byProxy[proxy]; exists {
		return nil
	}

	row := *p
	row.HolderAddress = holder
	row.ProxyAddress = proxy
	byProxy[proxy] = &row
	return nil
}

// GetByHolder retrieves all proxies for a holder, ordered by detection time.
func (s *ProxyWalletStore) GetByHolder(_ context.Context, holderAddress string) ([]*domain.ProxyWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ProxyWallet
	for _, p := range s.data[strings.ToLower(holderAddress)] {
		row := *p
		result = append(result, &row)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].DetectedAt.Equal(result[j].DetectedAt) {
			return result[i].DetectedAt.Before(result[j].DetectedAt)
		}
		return result[i].ProxyAddress < result[j].ProxyAddress
	})
	return result, nil
}
