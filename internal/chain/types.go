// Package chain wraps the token contract's JSON-RPC surface: balance and
// pool reads, Transfer event queries, transaction history lookups and the
// setProxyWallets write path.
package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransferEvent is one decoded Transfer log.
type TransferEvent struct {
	From        common.Address
	To          common.Address
	Amount      *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}

// Transaction is one entry of an address's transaction history, normalized
// across the explorer and log-scan providers. Addresses are lower-cased hex;
// To is empty for contract creations.
type Transaction struct {
	Hash  string
	From  string
	To    string
	Value *big.Int
	Time  time.Time
}

// Reader is the read-only contract surface consumed by the monitor.
type Reader interface {
	// BlockNumber returns the current chain head.
	BlockNumber(ctx context.Context) (uint64, error)

	// BalanceOf returns the full token balance of an address.
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)

	// BaseBalanceOf returns the balance excluding accrued reflections.
	BaseBalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)

	// ReflectionBalanceOf returns the accrued reflection balance.
	ReflectionBalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)

	// ReflectionPool returns the address holding the reward pool.
	ReflectionPool(ctx context.Context) (common.Address, error)

	// TotalSupply returns the fixed total supply.
	TotalSupply(ctx context.Context) (*big.Int, error)

	// TransferEvents returns decoded Transfer logs in [fromBlock, toBlock],
	// ordered by block then log index. An empty range yields an empty slice.
	TransferEvents(ctx context.Context, fromBlock, toBlock uint64) ([]TransferEvent, error)

	// IsContract reports whether the address has deployed code.
	IsContract(ctx context.Context, addr common.Address) (bool, error)
}

// Writer is the authorized-signer contract surface.
type Writer interface {
	// SetProxyWallets pushes a holder's proxies on-chain, padded to four
	// entries with the zero address, and waits for the receipt.
	SetProxyWallets(ctx context.Context, holder common.Address, proxies [4]common.Address) error
}

// HistorySource yields an address's transaction history, oldest first.
// Absence of history is an empty slice, not an error.
type HistorySource interface {
	TransactionHistory(ctx context.Context, addr common.Address, limit int) ([]Transaction, error)
}

// LowerHex renders an address the way the stores key it.
func LowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
