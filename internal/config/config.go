// Package config loads the monitor's configuration from the environment.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Defaults for the optional settings.
const (
	DefaultSnapshotThresholdPercent = 1
	DefaultMinHolderBalance         = "100000000000" // 100 tokens at 9 decimals
	DefaultPollInterval             = 3000 * time.Millisecond
	DefaultScanInterval             = 30000 * time.Millisecond
	DefaultMetricsAddr              = ":9090"
)

// Config is the full runtime configuration.
type Config struct {
	RPCURL          string
	ContractAddress common.Address
	PrivateKey      string

	DatabaseURL   string
	ClickHouseURL string

	ExplorerAPIURL string
	ExplorerAPIKey string

	SnapshotThresholdPercent int64
	MinHolderBalance         *big.Int
	PollInterval             time.Duration
	ScanInterval             time.Duration
	MetricsAddr              string

	// ExtraExchangeAddresses extends the built-in exchange allow-list.
	ExtraExchangeAddresses []string
}

// Load reads configuration from the environment. RPC_URL, CONTRACT_ADDRESS
// and PRIVATE_KEY are required; DATABASE_URL is validated by the caller
// because memory mode runs without it.
func Load() (*Config, error) {
	cfg := &Config{
		RPCURL:         os.Getenv("RPC_URL"),
		PrivateKey:     os.Getenv("PRIVATE_KEY"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ClickHouseURL:  os.Getenv("CLICKHOUSE_URL"),
		ExplorerAPIURL: os.Getenv("EXPLORER_API_URL"),
		ExplorerAPIKey: os.Getenv("EXPLORER_API_KEY"),
		MetricsAddr:    DefaultMetricsAddr,
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC_URL is required")
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("PRIVATE_KEY is required")
	}

	rawContract := os.Getenv("CONTRACT_ADDRESS")
	if rawContract == "" {
		return nil, fmt.Errorf("CONTRACT_ADDRESS is required")
	}
	if !common.IsHexAddress(rawContract) {
		return nil, fmt.Errorf("CONTRACT_ADDRESS %q is not a valid address", rawContract)
	}
	cfg.ContractAddress = common.HexToAddress(rawContract)

	var err error
	cfg.SnapshotThresholdPercent, err = intEnv("SNAPSHOT_THRESHOLD", DefaultSnapshotThresholdPercent)
	if err != nil {
		return nil, err
	}
	if cfg.SnapshotThresholdPercent < 1 || cfg.SnapshotThresholdPercent > 100 {
		return nil, fmt.Errorf("SNAPSHOT_THRESHOLD must be in [1,100], got %d", cfg.SnapshotThresholdPercent)
	}

	cfg.MinHolderBalance, err = bigEnv("MIN_HOLDER_BALANCE", DefaultMinHolderBalance)
	if err != nil {
		return nil, err
	}

	cfg.PollInterval, err = millisEnv("POLL_INTERVAL", DefaultPollInterval)
	if err != nil {
		return nil, err
	}
	cfg.ScanInterval, err = millisEnv("SCAN_INTERVAL", DefaultScanInterval)
	if err != nil {
		return nil, err
	}

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	if raw := os.Getenv("CEX_ADDRESSES"); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("CEX_ADDRESSES entry %q is not a valid address", a)
			}
			cfg.ExtraExchangeAddresses = append(cfg.ExtraExchangeAddresses, strings.ToLower(a))
		}
	}

	return cfg, nil
}

func intEnv(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func millisEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%s must be positive milliseconds, got %d", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func bigEnv(key, def string) (*big.Int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		raw = def
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s %q is not a valid non-negative integer", key, raw)
	}
	return v, nil
}
