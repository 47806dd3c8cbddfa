// Package stub provides an in-memory chain backend for tests and local
// runs without an RPC endpoint.
package stub

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"contagion-monitor/internal/chain"
)

// SetProxyCall records one SetProxyWallets invocation.
type SetProxyCall struct {
	Holder  common.Address
	Proxies [4]common.Address
}

// Chain is a scriptable in-memory implementation of the chain interfaces.
// All mutators are safe for concurrent use.
type Chain struct {
	mu sync.Mutex

	head        uint64
	totalSupply *big.Int
	pool        common.Address

	balances           map[common.Address]*big.Int
	baseBalances       map[common.Address]*big.Int
	reflectionBalances map[common.Address]*big.Int
	contracts          map[common.Address]bool
	events             []chain.TransferEvent
	histories          map[string][]chain.Transaction

	proxyCalls []SetProxyCall

	// Injectable failures, consumed once set until cleared.
	ReadErr    error
	HistoryErr error
	WriteErr   error
}

var (
	_ chain.Reader        = (*Chain)(nil)
	_ chain.Writer        = (*Chain)(nil)
	_ chain.HistorySource = (*Chain)(nil)
)

// New creates an empty stub chain at block 0.
func New() *Chain {
	return &Chain{
		totalSupply:        new(big.Int),
		balances:           make(map[common.Address]*big.Int),
		baseBalances:       make(map[common.Address]*big.Int),
		reflectionBalances: make(map[common.Address]*big.Int),
		contracts:          make(map[common.Address]bool),
		histories:          make(map[string][]chain.Transaction),
	}
}

// SetHead moves the chain head.
func (c *Chain) SetHead(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = n
}

// SetTotalSupply fixes the reported total supply.
func (c *Chain) SetTotalSupply(v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalSupply = new(big.Int).Set(v)
}

// SetPool sets the reflection pool address.
func (c *Chain) SetPool(addr common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool = addr
}

// SetBalance sets the full balance of an address.
func (c *Chain) SetBalance(addr common.Address, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = new(big.Int).Set(v)
}

// SetBaseBalance sets the reflection-excluded balance of an address.
func (c *Chain) SetBaseBalance(addr common.Address, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseBalances[addr] = new(big.Int).Set(v)
}

// SetReflectionBalance sets the accrued reflection balance of an address.
func (c *Chain) SetReflectionBalance(addr common.Address, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reflectionBalances[addr] = new(big.Int).Set(v)
}

// SetContract marks an address as holding deployed code.
func (c *Chain) SetContract(addr common.Address, isContract bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[addr] = isContract
}

// AddEvent appends a Transfer event and advances the head to its block
// if the head is behind.
func (c *Chain) AddEvent(ev chain.TransferEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	if ev.BlockNumber > c.head {
		c.head = ev.BlockNumber
	}
}

// SetHistory replaces the recorded transaction history for an address.
func (c *Chain) SetHistory(addr common.Address, txs []chain.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histories[chain.LowerHex(addr)] = append([]chain.Transaction(nil), txs...)
}

// ProxyCalls returns all recorded SetProxyWallets invocations.
func (c *Chain) ProxyCalls() []SetProxyCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SetProxyCall(nil), c.proxyCalls...)
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return 0, c.ReadErr
	}
	return c.head, nil
}

func (c *Chain) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.lookup(c.balances, addr)
}

func (c *Chain) BaseBalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.lookup(c.baseBalances, addr)
}

func (c *Chain) ReflectionBalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.lookup(c.reflectionBalances, addr)
}

func (c *Chain) ReflectionPool(ctx context.Context) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return common.Address{}, c.ReadErr
	}
	return c.pool, nil
}

func (c *Chain) TotalSupply(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	return new(big.Int).Set(c.totalSupply), nil
}

func (c *Chain) TransferEvents(ctx context.Context, fromBlock, toBlock uint64) ([]chain.TransferEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}

	var out []chain.TransferEvent
	for _, ev := range c.events {
		if ev.BlockNumber >= fromBlock && ev.BlockNumber <= toBlock {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BlockNumber < out[j].BlockNumber
	})
	return out, nil
}

func (c *Chain) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return false, c.ReadErr
	}
	return c.contracts[addr], nil
}

func (c *Chain) TransactionHistory(ctx context.Context, addr common.Address, limit int) ([]chain.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.HistoryErr != nil {
		return nil, c.HistoryErr
	}
	txs := c.histories[chain.LowerHex(addr)]
	if limit > 0 && len(txs) > limit {
		txs = txs[len(txs)-limit:]
	}
	return append([]chain.Transaction(nil), txs...), nil
}

func (c *Chain) SetProxyWallets(ctx context.Context, holder common.Address, proxies [4]common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.proxyCalls = append(c.proxyCalls, SetProxyCall{Holder: holder, Proxies: proxies})
	return nil
}

func (c *Chain) lookup(m map[common.Address]*big.Int, addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	if v, ok := m[addr]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// String is a debug aid for test failures.
func (c *Chain) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("stub.Chain{head=%d events=%d holders=%d}", c.head, len(c.events), len(c.balances))
}
