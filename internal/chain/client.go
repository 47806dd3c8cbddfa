package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// contractABI is the minimal surface the monitor consumes.
const contractABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"baseBalanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"reflectionBalanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"reflectionPool","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"TOTAL_SUPPLY","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"setProxyWallets","stateMutability":"nonpayable","inputs":[{"name":"holder","type":"address"},{"name":"proxies","type":"address[4]"}],"outputs":[]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

// Client implements Reader and Writer over a single JSON-RPC endpoint.
type Client struct {
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI
	bound    *bind.BoundContract
	signer   *bind.TransactOpts
	log      logrus.FieldLogger
}

var (
	_ Reader = (*Client)(nil)
	_ Writer = (*Client)(nil)
)

// Dial connects to the RPC endpoint and binds the token contract.
// privateKeyHex may be empty for a read-only client; SetProxyWallets then
// fails with an explicit error instead of signing.
func Dial(ctx context.Context, rpcURL string, contract common.Address, privateKeyHex string, log logrus.FieldLogger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	c := &Client{
		eth:      eth,
		contract: contract,
		abi:      parsed,
		bound:    bind.NewBoundContract(contract, parsed, eth, eth, eth),
		log:      log,
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signer key: %w", err)
		}
		chainID, err := eth.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch chain id: %w", err)
		}
		c.signer, err = bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return nil, fmt.Errorf("build transactor: %w", err)
		}
	}

	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Backend exposes the raw ethclient for the history providers.
func (c *Client) Backend() *ethclient.Client {
	return c.eth
}

// Contract returns the bound token contract address.
func (c *Client) Contract() common.Address {
	return c.contract
}

// BlockNumber returns the current chain head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, &ReadError{Op: "blockNumber", Err: err}
	}
	return n, nil
}

// BalanceOf returns the full token balance of an address.
func (c *Client) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.callUint256(ctx, "balanceOf", addr)
}

// BaseBalanceOf returns the balance excluding accrued reflections.
func (c *Client) BaseBalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.callUint256(ctx, "baseBalanceOf", addr)
}

// ReflectionBalanceOf returns the accrued reflection balance.
func (c *Client) ReflectionBalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.callUint256(ctx, "reflectionBalanceOf", addr)
}

// TotalSupply returns the fixed total supply.
func (c *Client) TotalSupply(ctx context.Context) (*big.Int, error) {
	return c.callUint256(ctx, "TOTAL_SUPPLY")
}

// ReflectionPool returns the address holding the reward pool.
func (c *Client) ReflectionPool(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "reflectionPool"); err != nil {
		return common.Address{}, &ReadError{Op: "reflectionPool", Err: err}
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// TransferEvents returns decoded Transfer logs in [fromBlock, toBlock].
func (c *Client) TransferEvents(ctx context.Context, fromBlock, toBlock uint64) ([]TransferEvent, error) {
	if toBlock < fromBlock {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{c.abi.Events["Transfer"].ID}},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, &ReadError{Op: "transferEvents", Err: err}
	}

	events := make([]TransferEvent, 0, len(logs))
	for _, l := range logs {
		ev, err := decodeTransfer(c.abi, l)
		if err != nil {
			// Malformed log entries are skipped, not fatal for the batch.
			c.log.WithError(err).WithField("tx", l.TxHash.Hex()).Warn("skipping malformed transfer log")
			continue
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].BlockNumber < events[j].BlockNumber
	})
	return events, nil
}

// IsContract reports whether the address has deployed code at head.
func (c *Client) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, &ReadError{Op: "codeAt", Err: err}
	}
	return len(code) > 0, nil
}

// SetProxyWallets pushes a holder's proxies on-chain and waits for the
// transaction to be mined.
func (c *Client) SetProxyWallets(ctx context.Context, holder common.Address, proxies [4]common.Address) error {
	if c.signer == nil {
		return fmt.Errorf("setProxyWallets: no signer configured")
	}

	opts := *c.signer
	opts.Context = ctx

	tx, err := c.bound.Transact(&opts, "setProxyWallets", holder, proxies)
	if err != nil {
		return fmt.Errorf("setProxyWallets send: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return fmt.Errorf("setProxyWallets wait: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("setProxyWallets reverted: tx %s", tx.Hash().Hex())
	}

	c.log.WithFields(logrus.Fields{
		"holder": LowerHex(holder),
		"tx":     tx.Hash().Hex(),
	}).Info("proxy wallets set on-chain")
	return nil
}

func (c *Client) callUint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, &ReadError{Op: method, Err: err}
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// decodeTransfer unpacks one Transfer log into a TransferEvent.
func decodeTransfer(parsed abi.ABI, l types.Log) (TransferEvent, error) {
	if len(l.Topics) < 3 {
		return TransferEvent{}, fmt.Errorf("transfer log with %d topics", len(l.Topics))
	}

	values, err := parsed.Unpack("Transfer", l.Data)
	if err != nil {
		return TransferEvent{}, fmt.Errorf("unpack transfer data: %w", err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return TransferEvent{}, fmt.Errorf("transfer value is %T, want *big.Int", values[0])
	}

	return TransferEvent{
		From:        common.BytesToAddress(l.Topics[1].Bytes()),
		To:          common.BytesToAddress(l.Topics[2].Bytes()),
		Amount:      amount,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
	}, nil
}
