// Package monitor runs the two long-lived loops of the process: the
// Transfer ingest loop and the reward pool check loop.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"contagion-monitor/internal/observability"
)

const (
	// maxConsecutiveFailures bounds retries before the loop gives up and
	// takes the process down with it.
	maxConsecutiveFailures = 10

	backoffBase = 5 * time.Second
	backoffCap  = 5 * time.Minute
)

// Ticker is one ingest step.
type Ticker interface {
	Tick(ctx context.Context) error
}

// PoolChecker is one reward pool threshold check.
type PoolChecker interface {
	CheckPool(ctx context.Context) error
}

// Supervisor drives the ingest and pool loops with independent intervals
// and exponential-backoff recovery. A loop that fails too many times in a
// row returns a terminal error, which cancels the sibling loop and ends
// Run.
type Supervisor struct {
	ingestor     Ticker
	pool         PoolChecker
	pollInterval time.Duration
	scanInterval time.Duration
	clock        clockwork.Clock
	log          logrus.FieldLogger
}

// New creates a Supervisor.
func New(ingestor Ticker, pool PoolChecker, pollInterval, scanInterval time.Duration, clock clockwork.Clock, log logrus.FieldLogger) *Supervisor {
	return &Supervisor{
		ingestor:     ingestor,
		pool:         pool,
		pollInterval: pollInterval,
		scanInterval: scanInterval,
		clock:        clock,
		log:          log.WithField("component", "monitor"),
	}
}

// Run blocks until the context is cancelled or a loop fails terminally.
// Context cancellation is a clean shutdown: in-flight ticks finish and
// Run returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.loop(ctx, "ingest", s.pollInterval, s.ingestor.Tick, func() {
			observability.DefaultMetrics.LastSuccessfulIngest.Set(float64(s.clock.Now().Unix()))
		})
	})
	g.Go(func() error {
		return s.loop(ctx, "pool", s.scanInterval, s.pool.CheckPool, nil)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop runs fn once immediately and then again interval after each
// completion. Failures retry after an exponential backoff instead of the
// normal interval; a success resets the failure count.
func (s *Supervisor) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error, onSuccess func()) error {
	failures := 0
	for {
		wait := interval

		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			failures++
			observability.RecordTickError(name)
			observability.DefaultMetrics.ReconnectAttempts.Inc()

			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("%s loop failed %d times in a row: %w", name, failures, err)
			}

			wait = backoffDelay(failures)
			s.log.WithError(err).WithFields(logrus.Fields{
				"loop":    name,
				"attempt": failures,
				"backoff": wait,
			}).Warn("loop tick failed, backing off")
		} else {
			failures = 0
			if onSuccess != nil {
				onSuccess()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}
	}
}

// backoffDelay returns base * 2^(attempt-1), capped.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
