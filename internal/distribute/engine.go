// Package distribute snapshots the reflection reward pool and splits it
// pro-rata across locked holders' proxy wallets as virtual ledger credits.
package distribute

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/observability"
	"contagion-monitor/internal/storage"
)

// PoolReader is the contract surface the engine needs.
type PoolReader interface {
	ReflectionPool(ctx context.Context) (common.Address, error)
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

// HolderScanner refreshes proxy detection before a distribution runs, so
// payouts always use the latest locked set.
type HolderScanner interface {
	ScanAll(ctx context.Context) error
}

// Engine owns the pool threshold check and the distribution math.
type Engine struct {
	reader           PoolReader
	holders          storage.HolderStore
	proxies          storage.ProxyWalletStore
	snapshots        storage.SnapshotStore
	dists            storage.DistributionStore
	scanner          HolderScanner
	thresholdPercent int64
	minBalance       *big.Int
	clock            clockwork.Clock
	log              logrus.FieldLogger
}

// New creates an Engine.
func New(reader PoolReader, holders storage.HolderStore, proxies storage.ProxyWalletStore, snapshots storage.SnapshotStore, dists storage.DistributionStore, scanner HolderScanner, thresholdPercent int64, minBalance *big.Int, clock clockwork.Clock, log logrus.FieldLogger) *Engine {
	return &Engine{
		reader:           reader,
		holders:          holders,
		proxies:          proxies,
		snapshots:        snapshots,
		dists:            dists,
		scanner:          scanner,
		thresholdPercent: thresholdPercent,
		minBalance:       minBalance,
		clock:            clock,
		log:              log.WithField("component", "distribute"),
	}
}

// CheckPool compares the reward pool balance against the supply threshold
// and, once reached, snapshots the pool and distributes it.
func (e *Engine) CheckPool(ctx context.Context) error {
	pool, err := e.reader.ReflectionPool(ctx)
	if err != nil {
		return fmt.Errorf("read pool address: %w", err)
	}
	balance, err := e.reader.BalanceOf(ctx, pool)
	if err != nil {
		return fmt.Errorf("read pool balance: %w", err)
	}
	total, err := e.reader.TotalSupply(ctx)
	if err != nil {
		return fmt.Errorf("read total supply: %w", err)
	}

	bf, _ := new(big.Float).SetInt(balance).Float64()
	observability.UpdatePoolBalance(bf)

	// threshold = totalSupply * percent / 100, floored. The pool reaching
	// the threshold exactly triggers a snapshot.
	threshold := new(big.Int).Mul(total, big.NewInt(e.thresholdPercent))
	threshold.Div(threshold, big.NewInt(100))
	if balance.Cmp(threshold) < 0 {
		return nil
	}

	id, err := e.snapshots.NextID(ctx)
	if err != nil {
		return fmt.Errorf("allocate snapshot id: %w", err)
	}

	now := e.clock.Now().UTC()
	snap := &domain.Snapshot{
		ID:      id,
		Amount:  new(big.Int).Set(balance),
		TakenAt: now,
		Status:  domain.SnapshotPending,
	}
	if err := e.snapshots.Insert(ctx, snap); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	observability.RecordSnapshotCreated()

	e.log.WithFields(logrus.Fields{
		"snapshot": id,
		"amount":   domain.FormatAmount(balance),
	}).Info("reward pool snapshot created")

	return e.Distribute(ctx, id)
}

// Distribute pays out one pending snapshot. Already-distributed snapshots
// are a no-op, so a crashed run can be replayed safely.
func (e *Engine) Distribute(ctx context.Context, snapshotID int64) error {
	runID := uuid.NewString()
	log := e.log.WithFields(logrus.Fields{"snapshot": snapshotID, "run": runID})

	snap, err := e.snapshots.GetByID(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("load snapshot %d: %w", snapshotID, err)
	}
	if snap.Status == domain.SnapshotDistributed {
		log.Info("snapshot already distributed")
		return nil
	}

	// A pending snapshot that already has rows is a round that crashed
	// after its payouts committed but before the bookkeeping. Recomputing
	// could pay out a drifted holder set on top of the committed one, so
	// only the bookkeeping is finished here.
	existing, err := e.dists.GetBySnapshot(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("load existing distributions: %w", err)
	}
	if len(existing) > 0 {
		holderCount := countHolderSources(existing)
		if err := e.snapshots.MarkDistributed(ctx, snapshotID, holderCount, e.clock.Now().UTC()); err != nil {
			return fmt.Errorf("mark snapshot distributed: %w", err)
		}
		observability.RecordSnapshotDistributed(len(existing))
		log.WithFields(logrus.Fields{
			"holders":       holderCount,
			"distributions": len(existing),
		}).Info("crashed distribution round resumed")
		return nil
	}

	// Refresh the locked set first so late-locking holders are included.
	if err := e.scanner.ScanAll(ctx); err != nil {
		return fmt.Errorf("pre-distribution scan: %w", err)
	}

	locked, err := e.holders.GetLocked(ctx, e.minBalance)
	if err != nil {
		return fmt.Errorf("list locked holders: %w", err)
	}

	eligible := make([]eligibleHolder, 0, len(locked))
	for _, h := range locked {
		proxies, err := e.proxies.GetByHolder(ctx, h.Address)
		if err != nil {
			return fmt.Errorf("list proxies for %s: %w", h.Address, err)
		}
		// Holders without proxies earn nothing and dilute nobody.
		if len(proxies) == 0 {
			continue
		}
		eligible = append(eligible, eligibleHolder{holder: h, proxies: proxies})
	}

	now := e.clock.Now().UTC()
	dists, holderCount := computeDistributions(snapshotID, snap.Amount, eligible, now)

	if len(dists) > 0 {
		if _, err := e.dists.Apply(ctx, dists); err != nil {
			return fmt.Errorf("apply distributions: %w", err)
		}
	}

	if err := e.snapshots.MarkDistributed(ctx, snapshotID, holderCount, now); err != nil {
		return fmt.Errorf("mark snapshot distributed: %w", err)
	}
	observability.RecordSnapshotDistributed(len(dists))

	log.WithFields(logrus.Fields{
		"holders":       holderCount,
		"distributions": len(dists),
	}).Info("snapshot distributed")
	return nil
}

type eligibleHolder struct {
	holder  *domain.Holder
	proxies []*domain.ProxyWallet
}

func countHolderSources(ds []*domain.Distribution) int {
	seen := make(map[string]bool, len(ds))
	for _, d := range ds {
		seen[d.HolderSource] = true
	}
	return len(seen)
}

// computeDistributions splits snapshotAmount pro-rata by holder balance,
// then evenly across each holder's proxies. All division floors, so the
// sum of payouts never exceeds the snapshot amount. Holders whose share
// or per-proxy amount floors to zero get no rows but still count toward
// the snapshot's holder count.
func computeDistributions(snapshotID int64, snapshotAmount *big.Int, eligible []eligibleHolder, at time.Time) ([]*domain.Distribution, int) {
	totalEligible := new(big.Int)
	for _, e := range eligible {
		totalEligible.Add(totalEligible, e.holder.Balance)
	}
	if totalEligible.Sign() == 0 {
		return nil, 0
	}

	var dists []*domain.Distribution
	holderCount := len(eligible)
	for _, e := range eligible {
		share := new(big.Int).Mul(e.holder.Balance, snapshotAmount)
		share.Div(share, totalEligible)
		if share.Sign() == 0 {
			continue
		}

		perProxy := new(big.Int).Div(share, big.NewInt(int64(len(e.proxies))))
		if perProxy.Sign() == 0 {
			continue
		}

		for _, p := range e.proxies {
			dists = append(dists, &domain.Distribution{
				SnapshotID:       snapshotID,
				RecipientAddress: p.ProxyAddress,
				HolderSource:     e.holder.Address,
				Amount:           new(big.Int).Set(perProxy),
				CreatedAt:        at,
			})
		}
	}
	return dists, holderCount
}
