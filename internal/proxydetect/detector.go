// Package proxydetect infers a holder's proxy wallets from transaction
// timing around the purchase: wallets the holder paid shortly before or
// after acquiring the token are assumed to be under common control.
package proxydetect

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"contagion-monitor/internal/chain"
	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/observability"
)

// perWindowLimit caps detected proxies per timing window.
const perWindowLimit = 2

// depositLookback is how many of a candidate's most recent outgoing
// transactions are checked for exchange deposits.
const depositLookback = 10

// ContractChecker reports whether an address holds deployed code.
type ContractChecker interface {
	IsContract(ctx context.Context, addr common.Address) (bool, error)
}

// Detector finds proxy wallets for a holder.
type Detector struct {
	history      chain.HistorySource
	checker      ContractChecker
	exchanges    *ExchangeSet
	clock        clockwork.Clock
	historyLimit int
	log          logrus.FieldLogger
}

// New creates a Detector with the default history depth.
func New(history chain.HistorySource, checker ContractChecker, exchanges *ExchangeSet, clock clockwork.Clock, log logrus.FieldLogger) *Detector {
	return &Detector{
		history:      history,
		checker:      checker,
		exchanges:    exchanges,
		clock:        clock,
		historyLimit: chain.DefaultHistoryLimit,
		log:          log.WithField("component", "proxydetect"),
	}
}

// FindProxies returns the holder's proxy wallets: the last two qualifying
// outgoing transfers in the 30 days before the purchase and the first two
// in the 7 days after, capped at the monitoring window end. A failed
// history lookup yields an empty list rather than an error so one opaque
// holder never stalls a scan.
func (d *Detector) FindProxies(ctx context.Context, holderAddr string, purchaseTime time.Time) []*domain.ProxyWallet {
	holder := common.HexToAddress(holderAddr)
	lower := chain.LowerHex(holder)

	txs, err := d.history.TransactionHistory(ctx, holder, d.historyLimit)
	if err != nil {
		observability.RecordDetectionError()
		d.log.WithError(err).WithField("holder", lower).Warn("history lookup failed, skipping proxy detection")
		return nil
	}

	outgoing := make([]chain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.From != lower || tx.To == "" || tx.To == lower {
			continue
		}
		outgoing = append(outgoing, tx)
	}

	preStart := purchaseTime.Add(-domain.PrePurchaseLookback)
	postEnd := purchaseTime.Add(domain.MonitorWindow)
	if now := d.clock.Now().UTC(); now.Before(postEnd) {
		postEnd = now
	}

	var pre, post []chain.Transaction
	for _, tx := range outgoing {
		switch {
		case !tx.Time.Before(preStart) && !tx.Time.After(purchaseTime):
			pre = append(pre, tx)
		case tx.Time.After(purchaseTime) && !tx.Time.After(postEnd):
			post = append(post, tx)
		}
	}

	// The purchases closest to the buy matter most: last two before,
	// first two after.
	if len(pre) > perWindowLimit {
		pre = pre[len(pre)-perWindowLimit:]
	}
	if len(post) > perWindowLimit {
		post = post[:perWindowLimit]
	}

	seen := make(map[string]struct{}, perWindowLimit*2)
	proxies := make([]*domain.ProxyWallet, 0, perWindowLimit*2)
	detectedAt := d.clock.Now().UTC()

	appendQualifying := func(txs []chain.Transaction, proxyType domain.ProxyType) {
		for _, tx := range txs {
			if len(proxies) >= domain.MaxProxiesPerHolder {
				return
			}
			if _, dup := seen[tx.To]; dup {
				continue
			}
			if !d.qualifies(ctx, lower, tx.To) {
				continue
			}
			seen[tx.To] = struct{}{}
			proxies = append(proxies, &domain.ProxyWallet{
				HolderAddress:   lower,
				ProxyAddress:    tx.To,
				Type:            proxyType,
				TransactionHash: tx.Hash,
				DetectedAt:      detectedAt,
			})
			observability.RecordProxyDetected(string(proxyType))
		}
	}

	appendQualifying(pre, domain.ProxyPrePurchase)
	appendQualifying(post, domain.ProxyPostPurchase)
	return proxies
}

// qualifies applies the exclusion filters to a candidate. Per-check RPC
// failures err toward inclusion: a flaky node must not silently shrink a
// holder's proxy set.
func (d *Detector) qualifies(ctx context.Context, holder, candidate string) bool {
	if d.exchanges.Contains(candidate) {
		return false
	}

	isContract, err := d.checker.IsContract(ctx, common.HexToAddress(candidate))
	if err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"holder":    holder,
			"candidate": candidate,
		}).Warn("contract check failed, keeping candidate")
	} else if isContract {
		return false
	}

	if d.depositsToExchange(ctx, candidate) {
		return false
	}
	return true
}

// depositsToExchange checks the candidate's recent outgoing transfers for
// a known exchange destination. One hop is enough to mark the wallet as a
// deposit address rather than a proxy.
func (d *Detector) depositsToExchange(ctx context.Context, candidate string) bool {
	txs, err := d.history.TransactionHistory(ctx, common.HexToAddress(candidate), d.historyLimit)
	if err != nil {
		d.log.WithError(err).WithField("candidate", candidate).Warn("deposit check failed, keeping candidate")
		return false
	}

	outgoing := make([]chain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.From == candidate && tx.To != "" {
			outgoing = append(outgoing, tx)
		}
	}
	if len(outgoing) > depositLookback {
		outgoing = outgoing[len(outgoing)-depositLookback:]
	}

	for _, tx := range outgoing {
		if d.exchanges.Contains(tx.To) {
			return true
		}
	}
	return false
}
