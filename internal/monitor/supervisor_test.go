package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// countingTicker fails the first failN calls, then succeeds.
type countingTicker struct {
	calls atomic.Int64
	failN int64
}

func (c *countingTicker) Tick(context.Context) error {
	n := c.calls.Add(1)
	if n <= c.failN {
		return errors.New("rpc unreachable")
	}
	return nil
}

type countingPool struct {
	calls atomic.Int64
}

func (c *countingPool) CheckPool(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestSupervisor_RunsBothLoopsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ing := &countingTicker{}
	pool := &countingPool{}
	s := New(ing, pool, 3*time.Second, 30*time.Second, clock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Both loops fire once at startup, then sleep until their intervals.
	clock.BlockUntil(2)
	if got := ing.calls.Load(); got != 1 {
		t.Errorf("Ingest should tick once at startup, got %d", got)
	}
	if got := pool.calls.Load(); got != 1 {
		t.Errorf("Pool should check once at startup, got %d", got)
	}

	// One poll interval: only the ingest loop fires again.
	clock.Advance(3 * time.Second)
	clock.BlockUntil(2)
	if got := ing.calls.Load(); got != 2 {
		t.Errorf("Ingest should tick again after poll interval, got %d", got)
	}
	if got := pool.calls.Load(); got != 1 {
		t.Errorf("Pool interval has not elapsed, got %d checks", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Cancelled run should return nil, got %v", err)
	}
}

func TestSupervisor_BackoffAndRecovery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ing := &countingTicker{failN: 2}
	pool := &countingPool{}
	s := New(ing, pool, 3*time.Second, time.Hour, clock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// First tick fails; the loop waits 5s instead of the poll interval.
	clock.BlockUntil(2)
	clock.Advance(5 * time.Second)

	// Second failure: 10s backoff.
	clock.BlockUntil(2)
	clock.Advance(10 * time.Second)

	// Third attempt succeeds and the loop returns to the normal cadence.
	clock.BlockUntil(2)
	if got := ing.calls.Load(); got != 3 {
		t.Errorf("Expected 3 ingest attempts, got %d", got)
	}

	clock.Advance(3 * time.Second)
	clock.BlockUntil(2)
	if got := ing.calls.Load(); got != 4 {
		t.Errorf("Recovered loop should resume interval ticking, got %d", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Cancelled run should return nil, got %v", err)
	}
}

func TestSupervisor_TerminalAfterMaxFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ing := &countingTicker{failN: 1 << 30}
	pool := &countingPool{}
	s := New(ing, pool, 3*time.Second, time.Hour, clock, testLogger())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	// Nine backoffs precede the tenth and final failure.
	for i := 0; i < maxConsecutiveFailures-1; i++ {
		clock.BlockUntil(2)
		clock.Advance(backoffCap)
	}

	err := <-done
	if err == nil {
		t.Fatal("Run should return a terminal error after max failures")
	}
	if got := ing.calls.Load(); got != maxConsecutiveFailures {
		t.Errorf("Expected exactly %d attempts, got %d", maxConsecutiveFailures, got)
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{6, 160 * time.Second},
		{7, backoffCap},
		{50, backoffCap},
	}
	for _, c := range cases {
		if got := backoffDelay(c.attempt); got != c.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
