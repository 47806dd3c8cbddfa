// Package ingest polls the token contract for Transfer events and turns
// them into infection records and holder rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"contagion-monitor/internal/chain"
	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/observability"
	"contagion-monitor/internal/storage"
)

var zeroAddress = common.Address{}

// Ingestor advances a block cursor over Transfer events. The cursor starts
// one block behind the head at first tick, so history before process start
// is never backfilled, and it only advances after a whole batch lands.
type Ingestor struct {
	reader     chain.Reader
	infections storage.InfectionStore
	holders    storage.HolderStore
	clock      clockwork.Clock
	log        logrus.FieldLogger

	mu            sync.Mutex
	lastProcessed uint64
	initialized   bool
}

// New creates an Ingestor. The cursor initializes lazily on the first tick.
func New(reader chain.Reader, infections storage.InfectionStore, holders storage.HolderStore, clock clockwork.Clock, log logrus.FieldLogger) *Ingestor {
	return &Ingestor{
		reader:     reader,
		infections: infections,
		holders:    holders,
		clock:      clock,
		log:        log.WithField("component", "ingest"),
	}
}

// LastProcessed returns the current cursor position.
func (in *Ingestor) LastProcessed() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastProcessed
}

// Tick processes all Transfer events between the cursor and the current
// head. Any failure abandons the tick without moving the cursor; the next
// tick retries the same range.
func (in *Ingestor) Tick(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	head, err := in.reader.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch head: %w", err)
	}

	if !in.initialized {
		if head > 0 {
			in.lastProcessed = head - 1
		}
		in.initialized = true
		in.log.WithField("block", in.lastProcessed).Info("ingest cursor initialized")
	}

	if head <= in.lastProcessed {
		return nil
	}

	events, err := in.reader.TransferEvents(ctx, in.lastProcessed+1, head)
	if err != nil {
		return fmt.Errorf("fetch transfer events: %w", err)
	}

	for _, ev := range events {
		if err := in.processEvent(ctx, ev); err != nil {
			return fmt.Errorf("process transfer %s: %w", ev.TxHash.Hex(), err)
		}
	}

	in.lastProcessed = head
	observability.UpdateLastProcessedBlock(head)

	if len(events) > 0 {
		in.log.WithFields(logrus.Fields{
			"events": len(events),
			"block":  head,
		}).Info("transfer batch ingested")
	}
	return nil
}

func (in *Ingestor) processEvent(ctx context.Context, ev chain.TransferEvent) error {
	// Mints and burns involve the zero address and carry no infection.
	if ev.From == zeroAddress || ev.To == zeroAddress {
		observability.RecordTransferSkipped("zero_address")
		return nil
	}

	infection := &domain.Infection{
		InfectorAddress: chain.LowerHex(ev.From),
		InfectedAddress: chain.LowerHex(ev.To),
		Amount:          ev.Amount,
		Type:            domain.InfectionTypeTransfer,
		TransactionHash: strings.ToLower(ev.TxHash.Hex()),
		BlockNumber:     ev.BlockNumber,
		CreatedAt:       in.clock.Now().UTC(),
	}

	if err := in.infections.Insert(ctx, infection); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			observability.RecordTransferSkipped("duplicate")
			return nil
		}
		return fmt.Errorf("insert infection: %w", err)
	}
	observability.RecordInfection()

	if err := in.upsertRecipient(ctx, ev); err != nil {
		return err
	}

	observability.RecordTransferProcessed()
	return nil
}

// upsertRecipient records the transfer recipient as a holder with fresh
// balances. First-seen fields are immutable in the store, so repeated
// transfers keep the original purchase time.
func (in *Ingestor) upsertRecipient(ctx context.Context, ev chain.TransferEvent) error {
	balance, err := in.reader.BalanceOf(ctx, ev.To)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	base, err := in.reader.BaseBalanceOf(ctx, ev.To)
	if err != nil {
		return fmt.Errorf("read base balance: %w", err)
	}
	reflection, err := in.reader.ReflectionBalanceOf(ctx, ev.To)
	if err != nil {
		return fmt.Errorf("read reflection balance: %w", err)
	}

	now := in.clock.Now().UTC()
	holder := &domain.Holder{
		Address:           chain.LowerHex(ev.To),
		Balance:           balance,
		BaseBalance:       base,
		ReflectionBalance: reflection,
		FirstSeenBlock:    ev.BlockNumber,
		FirstSeenTime:     now,
		UpdatedAt:         now,
	}
	if holder.VirtualReflectionBalance == nil {
		holder.VirtualReflectionBalance = new(big.Int)
	}

	if err := in.holders.Upsert(ctx, holder); err != nil {
		return fmt.Errorf("upsert holder: %w", err)
	}
	observability.RecordHolderUpsert()
	return nil
}
