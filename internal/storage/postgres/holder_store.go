package postgres

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// HolderStore implements storage.HolderStore using PostgreSQL.
// Token amounts travel as decimal strings and live in NUMERIC(78,0)
// columns, so full uint256 values round-trip without loss.
type HolderStore struct {
	pool *Pool
}

// NewHolderStore creates a new HolderStore.
func NewHolderStore(pool *Pool) *HolderStore {
	return &HolderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HolderStore = (*HolderStore)(nil)

// Upsert inserts a holder or refreshes the balances of an existing one.
// first_seen_block/time and the lock state are immutable here.
func (s *HolderStore) Upsert(ctx context.Context, h *domain.Holder) error {
	if h == nil || h.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO holders (
			address, balance, base_balance, reflection_balance,
			virtual_reflection_balance, first_seen_block, first_seen_time, updated_at
		) VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)
		ON CONFLICT (address) DO UPDATE SET
			balance = EXCLUDED.balance,
			base_balance = EXCLUDED.base_balance,
			reflection_balance = EXCLUDED.reflection_balance,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(h.Address),
		domain.FormatAmount(h.Balance),
		domain.FormatAmount(h.BaseBalance),
		domain.FormatAmount(h.ReflectionBalance),
		domain.FormatAmount(h.VirtualReflectionBalance),
		int64(h.FirstSeenBlock),
		h.FirstSeenTime,
		h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert holder: %w", err)
	}
	return nil
}

const holderColumns = `
	address, balance::text, base_balance::text, reflection_balance::text,
	virtual_reflection_balance::text, first_seen_block, first_seen_time,
	proxy_count, locked, last_scanned, updated_at
`

// GetByAddress retrieves a holder. Returns ErrNotFound if not exists.
func (s *HolderStore) GetByAddress(ctx context.Context, address string) (*domain.Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE address = $1`

	row := s.pool.QueryRow(ctx, query, strings.ToLower(address))
	h, err := scanHolder(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holder by address: %w", err)
	}
	return h, nil
}

// GetUnlocked retrieves unlocked holders at or above minBalance.
func (s *HolderStore) GetUnlocked(ctx context.Context, minBalance *big.Int) ([]*domain.Holder, error) {
	return s.list(ctx, false, minBalance)
}

// GetLocked retrieves locked holders at or above minBalance.
func (s *HolderStore) GetLocked(ctx context.Context, minBalance *big.Int) ([]*domain.Holder, error) {
	return s.list(ctx, true, minBalance)
}

func (s *HolderStore) list(ctx context.Context, locked bool, minBalance *big.Int) ([]*domain.Holder, error) {
	query := `
		SELECT ` + holderColumns + `
		FROM holders
		WHERE locked = $1 AND balance >= $2::numeric
		ORDER BY first_seen_time ASC, address ASC
	`

	rows, err := s.pool.Query(ctx, query, locked, domain.FormatAmount(minBalance))
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	return scanHolders(rows)
}

// SetScanResult records a scan outcome. Locked is monotonic: once a
// holder locks, no later scan unlocks it.
func (s *HolderStore) SetScanResult(ctx context.Context, address string, proxyCount int, locked bool, scannedAt time.Time) error {
	query := `
		UPDATE holders
		SET proxy_count = $2, locked = locked OR $3, last_scanned = $4
		WHERE address = $1
	`

	tag, err := s.pool.Exec(ctx, query, strings.ToLower(address), proxyCount, locked, scannedAt)
	if err != nil {
		return fmt.Errorf("set scan result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreditVirtualReflection adds amount to the holder's virtual ledger,
// creating the row if the recipient is not yet known.
func (s *HolderStore) CreditVirtualReflection(ctx context.Context, address string, amount *big.Int, at time.Time) error {
	if amount == nil || amount.Sign() < 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO holders (address, virtual_reflection_balance, first_seen_time, updated_at)
		VALUES ($1, $2::numeric, $3, $3)
		ON CONFLICT (address) DO UPDATE SET
			virtual_reflection_balance = holders.virtual_reflection_balance + EXCLUDED.virtual_reflection_balance,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, strings.ToLower(address), domain.FormatAmount(amount), at)
	if err != nil {
		return fmt.Errorf("credit virtual reflection: %w", err)
	}
	return nil
}

func scanHolder(row pgx.Row) (*domain.Holder, error) {
	var h domain.Holder
	var balance, base, reflection, virtual string
	var firstSeenBlock int64

	err := row.Scan(
		&h.Address,
		&balance,
		&base,
		&reflection,
		&virtual,
		&firstSeenBlock,
		&h.FirstSeenTime,
		&h.ProxyCount,
		&h.Locked,
		&h.LastScanned,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.FirstSeenBlock = uint64(firstSeenBlock)
	if h.Balance, err = domain.ParseAmount(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if h.BaseBalance, err = domain.ParseAmount(base); err != nil {
		return nil, fmt.Errorf("parse base balance: %w", err)
	}
	if h.ReflectionBalance, err = domain.ParseAmount(reflection); err != nil {
		return nil, fmt.Errorf("parse reflection balance: %w", err)
	}
	if h.VirtualReflectionBalance, err = domain.ParseAmount(virtual); err != nil {
		return nil, fmt.Errorf("parse virtual reflection balance: %w", err)
	}
	return &h, nil
}

func scanHolders(rows pgx.Rows) ([]*domain.Holder, error) {
	var holders []*domain.Holder

	for rows.Next() {
		h, err := scanHolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holder row: %w", err)
		}
		holders = append(holders, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holder rows: %w", err)
	}

	return holders, nil
}
