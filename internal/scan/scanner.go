// Package scan walks unlocked holders, runs proxy detection on each and
// locks holders whose proxy set is complete or whose monitoring window
// has elapsed.
package scan

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"contagion-monitor/internal/chain"
	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/observability"
	"contagion-monitor/internal/storage"
)

const (
	defaultBatchSize  = 10
	defaultBatchPause = time.Second
)

// ProxyDetector finds a holder's proxy wallets.
type ProxyDetector interface {
	FindProxies(ctx context.Context, holderAddr string, purchaseTime time.Time) []*domain.ProxyWallet
}

// Scanner batches over unlocked holders. Batches run sequentially with a
// pause between them to keep RPC pressure bounded.
type Scanner struct {
	holders    storage.HolderStore
	proxies    storage.ProxyWalletStore
	detector   ProxyDetector
	writer     chain.Writer
	minBalance *big.Int
	batchSize  int
	batchPause time.Duration
	clock      clockwork.Clock
	log        logrus.FieldLogger
}

// New creates a Scanner. writer may be nil for read-only deployments;
// locked proxy sets are then kept off-chain only.
func New(holders storage.HolderStore, proxies storage.ProxyWalletStore, detector ProxyDetector, writer chain.Writer, minBalance *big.Int, clock clockwork.Clock, log logrus.FieldLogger) *Scanner {
	return &Scanner{
		holders:    holders,
		proxies:    proxies,
		detector:   detector,
		writer:     writer,
		minBalance: minBalance,
		batchSize:  defaultBatchSize,
		batchPause: defaultBatchPause,
		clock:      clock,
		log:        log.WithField("component", "scan"),
	}
}

// ScanAll processes every unlocked holder at or above the minimum balance.
// A failing holder is logged and skipped; only store-level and context
// failures abort the scan.
func (s *Scanner) ScanAll(ctx context.Context) error {
	start := time.Now()

	holders, err := s.holders.GetUnlocked(ctx, s.minBalance)
	if err != nil {
		return fmt.Errorf("list unlocked holders: %w", err)
	}
	if len(holders) == 0 {
		return nil
	}

	log := s.log.WithField("run_id", uuid.NewString())
	log.WithField("holders", len(holders)).Info("holder scan started")

	for i := 0; i < len(holders); i += s.batchSize {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(s.batchPause):
			}
		}

		end := i + s.batchSize
		if end > len(holders) {
			end = len(holders)
		}
		for _, h := range holders[i:end] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.scanHolder(ctx, h); err != nil {
				log.WithError(err).WithField("holder", h.Address).Error("holder scan failed")
			}
		}
	}

	observability.DefaultMetrics.ScanDuration.Observe(time.Since(start).Seconds())
	observability.DefaultMetrics.LastSuccessfulScan.Set(float64(s.clock.Now().Unix()))
	return nil
}

func (s *Scanner) scanHolder(ctx context.Context, h *domain.Holder) error {
	known, err := s.proxies.GetByHolder(ctx, h.Address)
	if err != nil {
		return fmt.Errorf("list proxies: %w", err)
	}

	// Detector candidate sets drift between passes (history sources see
	// different windows), so the stored set fills up across scans; once it
	// holds four proxies no further candidates are accepted.
	if len(known) < domain.MaxProxiesPerHolder {
		seen := make(map[string]bool, len(known))
		for _, p := range known {
			seen[strings.ToLower(p.ProxyAddress)] = true
		}
		for _, p := range s.detector.FindProxies(ctx, h.Address, h.FirstSeenTime) {
			if len(known) >= domain.MaxProxiesPerHolder {
				break
			}
			if seen[strings.ToLower(p.ProxyAddress)] {
				continue
			}
			if err := s.proxies.Upsert(ctx, p); err != nil {
				return fmt.Errorf("store proxy %s: %w", p.ProxyAddress, err)
			}
			seen[strings.ToLower(p.ProxyAddress)] = true
			known = append(known, p)
		}
	}

	count := len(known)
	if count > domain.MaxProxiesPerHolder {
		count = domain.MaxProxiesPerHolder
	}

	now := s.clock.Now().UTC()
	locked := count >= domain.MaxProxiesPerHolder || h.MonitoringEnded(now)

	if err := s.holders.SetScanResult(ctx, h.Address, count, locked, now); err != nil {
		return fmt.Errorf("record scan result: %w", err)
	}
	observability.RecordHolderScanned(locked)

	if locked {
		s.log.WithFields(logrus.Fields{
			"holder":  h.Address,
			"proxies": count,
		}).Info("holder locked")
		if count > 0 {
			s.pushProxies(ctx, h.Address, known)
		}
	}
	return nil
}

// pushProxies mirrors a locked holder's proxy set on-chain. Write failures
// are logged but never unwind the lock; the ledger stays authoritative.
func (s *Scanner) pushProxies(ctx context.Context, holderAddr string, known []*domain.ProxyWallet) {
	if s.writer == nil {
		return
	}

	var padded [4]common.Address
	for i, p := range known {
		if i >= domain.MaxProxiesPerHolder {
			break
		}
		padded[i] = common.HexToAddress(p.ProxyAddress)
	}

	if err := s.writer.SetProxyWallets(ctx, common.HexToAddress(holderAddr), padded); err != nil {
		observability.RecordProxyWrite("error")
		s.log.WithError(err).WithField("holder", holderAddr).Error("on-chain proxy write failed")
		return
	}
	observability.RecordProxyWrite("ok")
}
