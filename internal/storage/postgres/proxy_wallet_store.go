package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// ProxyWalletStore implements storage.ProxyWalletStore using PostgreSQL.
type ProxyWalletStore struct {
	pool *Pool
}

// NewProxyWalletStore creates a new ProxyWalletStore.
func NewProxyWalletStore(pool *Pool) *ProxyWalletStore {
	return &ProxyWalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProxyWalletStore = (*ProxyWalletStore)(nil)

// Upsert records a holder/proxy pair. Re-detecting a known pair is a no-op.
func (s *ProxyWalletStore) Upsert(ctx context.Context, p *domain.ProxyWallet) error {
	if p == nil || p.HolderAddress == "" || p.ProxyAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO proxy_wallets (
			holder_address, proxy_address, proxy_type, transaction_hash, detected_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (holder_address, proxy_address) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(p.HolderAddress),
		strings.ToLower(p.ProxyAddress),
		string(p.Type),
		strings.ToLower(p.TransactionHash),
		p.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert proxy wallet: %w", err)
	}
	return nil
}

// GetByHolder retrieves a holder's proxies in detection order.
func (s *ProxyWalletStore) GetByHolder(ctx context.Context, holderAddress string) ([]*domain.ProxyWallet, error) {
	query := `
		SELECT holder_address, proxy_address, proxy_type, transaction_hash, detected_at
		FROM proxy_wallets
		WHERE holder_address = $1
		ORDER BY detected_at ASC, proxy_address ASC
	`

	rows, err := s.pool.Query(ctx, query, strings.ToLower(holderAddress))
	if err != nil {
		return nil, fmt.Errorf("get proxies by holder: %w", err)
	}
	defer rows.Close()

	return scanProxyWallets(rows)
}

func scanProxyWallets(rows pgx.Rows) ([]*domain.ProxyWallet, error) {
	var proxies []*domain.ProxyWallet

	for rows.Next() {
		var p domain.ProxyWallet
		var proxyType string

		err := rows.Scan(
			&p.HolderAddress,
			&p.ProxyAddress,
			&proxyType,
			&p.TransactionHash,
			&p.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan proxy wallet row: %w", err)
		}

		p.Type = domain.ProxyType(proxyType)
		proxies = append(proxies, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proxy wallet rows: %w", err)
	}

	return proxies, nil
}
