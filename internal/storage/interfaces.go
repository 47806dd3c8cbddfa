package storage

import (
	"context"
	"math/big"
	"time"

	"contagion-monitor/internal/domain"
)

// HolderStore provides access to holders storage. The monitor is the sole
// writer; the web front end only reads these rows.
type HolderStore interface {
	// Upsert inserts a holder or refreshes the balances of an existing one.
	// first_seen_block and first_seen_time are immutable once set.
	Upsert(ctx context.Context, h *domain.Holder) error

	// GetByAddress retrieves a holder. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Holder, error)

	// GetUnlocked retrieves all holders with locked=false and
	// balance >= minBalance, ordered by first_seen_time ASC.
	GetUnlocked(ctx context.Context, minBalance *big.Int) ([]*domain.Holder, error)

	// GetLocked retrieves all holders with locked=true and
	// balance >= minBalance, ordered by first_seen_time ASC.
	GetLocked(ctx context.Context, minBalance *big.Int) ([]*domain.Holder, error)

	// SetScanResult records the outcome of a scan pass. The locked flag is
	// monotonic: once a holder is locked the store never unlocks it.
	SetScanResult(ctx context.Context, address string, proxyCount int, locked bool, scannedAt time.Time) error

	// CreditVirtualReflection adds amount to the holder's virtual reflection
	// balance, creating the holder row if the recipient is not yet known.
	CreditVirtualReflection(ctx context.Context, address string, amount *big.Int, at time.Time) error
}

// ProxyWalletStore provides access to proxy_wallets storage.
type ProxyWalletStore interface {
	// Upsert records a discovered proxy. Re-detecting the same
	// (holder, proxy) pair is a no-op.
	Upsert(ctx context.Context, p *domain.ProxyWallet) error

	// GetByHolder retrieves all proxies for a holder, ordered by detection
	// time ASC.
	GetByHolder(ctx context.Context, holderAddress string) ([]*domain.ProxyWallet, error)
}

// InfectionStore provides access to infections storage.
type InfectionStore interface {
	// Insert adds a transfer record. Returns ErrDuplicateKey if the
	// transaction hash was already ingested.
	Insert(ctx context.Context, inf *domain.Infection) error

	// ExistsByTxHash reports whether a transfer was already ingested.
	ExistsByTxHash(ctx context.Context, txHash string) (bool, error)
}

// SnapshotStore provides access to snapshots storage.
type SnapshotStore interface {
	// NextID returns one greater than the highest snapshot id, or 1 if no
	// snapshots exist.
	NextID(ctx context.Context) (int64, error)

	// Insert adds a new snapshot. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, s *domain.Snapshot) error

	// GetByID retrieves a snapshot. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Snapshot, error)

	// MarkDistributed transitions a snapshot pending -> distributed and
	// freezes its holder count. The transition happens at most once.
	MarkDistributed(ctx context.Context, id int64, holderCount int, at time.Time) error
}

// DistributionStore provides access to distributions storage.
type DistributionStore interface {
	// Apply writes the distribution rows of one snapshot round and credits
	// each newly written row's recipient on the virtual reflection ledger,
	// atomically. Rows already present under their natural key (snapshot,
	// recipient, holder source) are skipped without crediting, so replaying
	// a crashed round never pays twice. Returns the number of rows written.
	Apply(ctx context.Context, ds []*domain.Distribution) (int, error)

	// GetBySnapshot retrieves all rows for a snapshot.
	GetBySnapshot(ctx context.Context, snapshotID int64) ([]*domain.Distribution, error)
}

// ScriptLogStore provides access to the script_logs observability table.
type ScriptLogStore interface {
	// Insert appends an operational log entry.
	Insert(ctx context.Context, e *domain.ScriptLog) error
}
