package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// DefaultHistoryLimit matches the original monitor's per-address lookup cap.
const DefaultHistoryLimit = 100

// historyBlockWindow bounds the log-scan fallback to recent history.
const historyBlockWindow = 100_000

// ExplorerHistorySource fetches full account history from an etherscan-style
// explorer API (module=account&action=txlist). This is the primary path; the
// log-scan source covers chains without an explorer.
type ExplorerHistorySource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewExplorerHistorySource creates an explorer-backed history source.
func NewExplorerHistorySource(baseURL, apiKey string) *ExplorerHistorySource {
	return &ExplorerHistorySource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

var _ HistorySource = (*ExplorerHistorySource)(nil)

type explorerTx struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	TimeStamp string `json:"timeStamp"`
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// TransactionHistory returns the address's transactions, oldest first.
// "No transactions found" is an empty slice, not an error.
func (s *ExplorerHistorySource) TransactionHistory(ctx context.Context, addr common.Address, limit int) ([]Transaction, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("explorer history: no endpoint configured")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "txlist")
	params.Set("address", addr.Hex())
	params.Set("startblock", "0")
	params.Set("endblock", "99999999")
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(limit))
	params.Set("sort", "desc")
	if s.apiKey != "" {
		params.Set("apikey", s.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("explorer history: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer history: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("explorer history: read body: %w", err)
	}

	var parsed explorerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("explorer history: decode: %w", err)
	}

	// status "0" covers both hard errors and the empty-history case.
	if parsed.Status != "1" {
		if strings.Contains(strings.ToLower(parsed.Message), "no transactions") {
			return nil, nil
		}
		return nil, fmt.Errorf("explorer history: %s", parsed.Message)
	}

	var raw []explorerTx
	if err := json.Unmarshal(parsed.Result, &raw); err != nil {
		return nil, fmt.Errorf("explorer history: decode result: %w", err)
	}

	txs := make([]Transaction, 0, len(raw))
	for _, t := range raw {
		value, err := domainAmount(t.Value)
		if err != nil {
			continue
		}
		secs, err := strconv.ParseInt(t.TimeStamp, 10, 64)
		if err != nil {
			continue
		}
		txs = append(txs, Transaction{
			Hash:  strings.ToLower(t.Hash),
			From:  strings.ToLower(t.From),
			To:    strings.ToLower(t.To),
			Value: value,
			Time:  time.Unix(secs, 0).UTC(),
		})
	}

	sortByTime(txs)
	return txs, nil
}

// LogHistorySource reconstructs outgoing history by scanning the token
// contract's Transfer logs with the address as sender over a bounded
// recent-block window and resolving each matching log to its transaction.
type LogHistorySource struct {
	eth      *ethclient.Client
	contract common.Address
	topic    common.Hash
	window   uint64
	log      logrus.FieldLogger
}

// NewLogHistorySource creates the log-scan fallback source.
func NewLogHistorySource(eth *ethclient.Client, contract common.Address, log logrus.FieldLogger) *LogHistorySource {
	return &LogHistorySource{
		eth:      eth,
		contract: contract,
		topic:    common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
		window:   historyBlockWindow,
		log:      log,
	}
}

var _ HistorySource = (*LogHistorySource)(nil)

// TransactionHistory scans recent Transfer logs sent by addr.
func (s *LogHistorySource) TransactionHistory(ctx context.Context, addr common.Address, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	latest, err := s.eth.BlockNumber(ctx)
	if err != nil {
		return nil, &ReadError{Op: "blockNumber", Err: err}
	}

	fromBlock := uint64(0)
	if latest > s.window {
		fromBlock = latest - s.window
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{s.contract},
		Topics: [][]common.Hash{
			{s.topic},
			{common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))},
		},
	}

	logs, err := s.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, &ReadError{Op: "filterLogs", Err: err}
	}

	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}

	headerTimes := make(map[uint64]time.Time)
	txs := make([]Transaction, 0, len(logs))
	for _, l := range logs {
		when, ok := headerTimes[l.BlockNumber]
		if !ok {
			header, err := s.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(l.BlockNumber))
			if err != nil {
				s.log.WithError(err).WithField("block", l.BlockNumber).Warn("skipping log: header lookup failed")
				continue
			}
			when = time.Unix(int64(header.Time), 0).UTC()
			headerTimes[l.BlockNumber] = when
		}

		tx, _, err := s.eth.TransactionByHash(ctx, l.TxHash)
		if err != nil {
			// One unresolvable transaction never fails the whole lookup.
			s.log.WithError(err).WithField("tx", l.TxHash.Hex()).Warn("skipping log: tx lookup failed")
			continue
		}

		to := ""
		if tx.To() != nil {
			to = strings.ToLower(tx.To().Hex())
		}
		txs = append(txs, Transaction{
			Hash:  strings.ToLower(l.TxHash.Hex()),
			From:  LowerHex(addr),
			To:    to,
			Value: tx.Value(),
			Time:  when,
		})
	}

	sortByTime(txs)
	return txs, nil
}

// FallbackHistorySource tries each source in order, returning the first
// successful result. All sources failing is an error; the proxy detector
// degrades that to an empty proxy list for the holder.
type FallbackHistorySource struct {
	sources []HistorySource
	log     logrus.FieldLogger
}

// NewFallbackHistorySource chains history sources in priority order.
func NewFallbackHistorySource(log logrus.FieldLogger, sources ...HistorySource) *FallbackHistorySource {
	return &FallbackHistorySource{sources: sources, log: log}
}

var _ HistorySource = (*FallbackHistorySource)(nil)

// TransactionHistory tries each source in order.
func (s *FallbackHistorySource) TransactionHistory(ctx context.Context, addr common.Address, limit int) ([]Transaction, error) {
	var lastErr error
	for i, src := range s.sources {
		txs, err := src.TransactionHistory(ctx, addr, limit)
		if err == nil {
			return txs, nil
		}
		lastErr = err
		if i < len(s.sources)-1 {
			s.log.WithError(err).WithField("address", LowerHex(addr)).Debug("history source failed, trying fallback")
		}
	}
	if lastErr == nil {
		return nil, nil
	}
	return nil, fmt.Errorf("all history sources failed: %w", lastErr)
}

func sortByTime(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Time.Before(txs[j].Time)
	})
}

func domainAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
