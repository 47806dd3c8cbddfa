package proxydetect

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"contagion-monitor/internal/chain"
	"contagion-monitor/internal/chain/stub"
	"contagion-monitor/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

func outTx(from, to common.Address, at time.Time, hash string) chain.Transaction {
	return chain.Transaction{
		Hash:  hash,
		From:  chain.LowerHex(from),
		To:    chain.LowerHex(to),
		Value: big.NewInt(1),
		Time:  at,
	}
}

func newDetector(backend *stub.Chain, now time.Time) *Detector {
	return New(backend, backend, NewExchangeSet(), clockwork.NewFakeClockAt(now), testLogger())
}

func TestDetector_WindowsAndCap(t *testing.T) {
	backend := stub.New()
	holder := addr(1)

	// Three pre-purchase sends: only the two closest to the purchase count.
	backend.SetHistory(holder, []chain.Transaction{
		outTx(holder, addr(10), t0.Add(-20*24*time.Hour), "0xa1"),
		outTx(holder, addr(11), t0.Add(-10*24*time.Hour), "0xa2"),
		outTx(holder, addr(12), t0.Add(-1*24*time.Hour), "0xa3"),
		// Three post-purchase sends: only the first two count.
		outTx(holder, addr(13), t0.Add(1*24*time.Hour), "0xa4"),
		outTx(holder, addr(14), t0.Add(2*24*time.Hour), "0xa5"),
		outTx(holder, addr(15), t0.Add(3*24*time.Hour), "0xa6"),
	})

	d := newDetector(backend, t0.Add(domain.MonitorWindow))
	proxies := d.FindProxies(context.Background(), chain.LowerHex(holder), t0)

	if len(proxies) != 4 {
		t.Fatalf("Expected 4 proxies, got %d", len(proxies))
	}
	want := map[string]domain.ProxyType{
		chain.LowerHex(addr(11)): domain.ProxyPrePurchase,
		chain.LowerHex(addr(12)): domain.ProxyPrePurchase,
		chain.LowerHex(addr(13)): domain.ProxyPostPurchase,
		chain.LowerHex(addr(14)): domain.ProxyPostPurchase,
	}
	for _, p := range proxies {
		typ, ok := want[p.ProxyAddress]
		if !ok {
			t.Errorf("Unexpected proxy %s", p.ProxyAddress)
			continue
		}
		if p.Type != typ {
			t.Errorf("Proxy %s: expected type %s, got %s", p.ProxyAddress, typ, p.Type)
		}
		delete(want, p.ProxyAddress)
	}
	for a := range want {
		t.Errorf("Missing expected proxy %s", a)
	}
}

func TestDetector_OutsideWindowsIgnored(t *testing.T) {
	backend := stub.New()
	holder := addr(1)

	backend.SetHistory(holder, []chain.Transaction{
		// Too old: beyond the 30-day lookback.
		outTx(holder, addr(10), t0.Add(-31*24*time.Hour), "0xb1"),
		// Too late: after the monitoring window closed.
		outTx(holder, addr(11), t0.Add(8*24*time.Hour), "0xb2"),
	})

	d := newDetector(backend, t0.Add(30*24*time.Hour))
	if proxies := d.FindProxies(context.Background(), chain.LowerHex(holder), t0); len(proxies) != 0 {
		t.Errorf("Expected no proxies outside the windows, got %d", len(proxies))
	}
}

func TestDetector_PostWindowCappedAtNow(t *testing.T) {
	backend := stub.New()
	holder := addr(1)

	backend.SetHistory(holder, []chain.Transaction{
		outTx(holder, addr(10), t0.Add(1*time.Hour), "0xc1"),
		outTx(holder, addr(11), t0.Add(3*24*time.Hour), "0xc2"),
	})

	// Only one day has elapsed: the later send is still in the future of
	// the observable window.
	d := newDetector(backend, t0.Add(24*time.Hour))
	proxies := d.FindProxies(context.Background(), chain.LowerHex(holder), t0)

	if len(proxies) != 1 {
		t.Fatalf("Expected 1 proxy, got %d", len(proxies))
	}
	if proxies[0].ProxyAddress != chain.LowerHex(addr(10)) {
		t.Errorf("Expected proxy %s, got %s", chain.LowerHex(addr(10)), proxies[0].ProxyAddress)
	}
}

func TestDetector_ExcludesContractsAndExchanges(t *testing.T) {
	backend := stub.New()
	holder := addr(1)
	contract := addr(20)
	exchange := common.HexToAddress(DefaultExchangeAddresses[0])

	backend.SetContract(contract, true)
	backend.SetHistory(holder, []chain.Transaction{
		outTx(holder, contract, t0.Add(time.Hour), "0xd1"),
		outTx(holder, exchange, t0.Add(2*time.Hour), "0xd2"),
		outTx(holder, addr(21), t0.Add(3*time.Hour), "0xd3"),
	})

	d := newDetector(backend, t0.Add(domain.MonitorWindow))
	proxies := d.FindProxies(context.Background(), chain.LowerHex(holder), t0)

	if len(proxies) != 1 {
		t.Fatalf("Expected 1 proxy, got %d", len(proxies))
	}
	if proxies[0].ProxyAddress != chain.LowerHex(addr(21)) {
		t.Errorf("Expected the plain wallet to survive, got %s", proxies[0].ProxyAddress)
	}
}

func TestDetector_ExcludesExchangeDepositAddress(t *testing.T) {
	backend := stub.New()
	holder := addr(1)
	deposit := addr(30)
	exchange := common.HexToAddress(DefaultExchangeAddresses[1])

	backend.SetHistory(holder, []chain.Transaction{
		outTx(holder, deposit, t0.Add(time.Hour), "0xe1"),
		outTx(holder, addr(31), t0.Add(2*time.Hour), "0xe2"),
	})
	// The candidate forwards funds to a known exchange, one hop away.
	backend.SetHistory(deposit, []chain.Transaction{
		outTx(deposit, exchange, t0.Add(90*time.Minute), "0xe3"),
	})

	d := newDetector(backend, t0.Add(domain.MonitorWindow))
	proxies := d.FindProxies(context.Background(), chain.LowerHex(holder), t0)

	if len(proxies) != 1 {
		t.Fatalf("Expected 1 proxy, got %d", len(proxies))
	}
	if proxies[0].ProxyAddress != chain.LowerHex(addr(31)) {
		t.Errorf("Deposit address should be excluded, got %s", proxies[0].ProxyAddress)
	}
}

func TestDetector_HistoryFailureYieldsEmpty(t *testing.T) {
	backend := stub.New()
	backend.HistoryErr = errors.New("explorer down")

	d := newDetector(backend, t0.Add(domain.MonitorWindow))
	if proxies := d.FindProxies(context.Background(), chain.LowerHex(addr(1)), t0); len(proxies) != 0 {
		t.Errorf("Expected empty result on history failure, got %d", len(proxies))
	}
}

func TestDetector_DeduplicatesAcrossWindows(t *testing.T) {
	backend := stub.New()
	holder := addr(1)

	backend.SetHistory(holder, []chain.Transaction{
		outTx(holder, addr(40), t0.Add(-time.Hour), "0xf1"),
		outTx(holder, addr(40), t0.Add(time.Hour), "0xf2"),
	})

	d := newDetector(backend, t0.Add(domain.MonitorWindow))
	proxies := d.FindProxies(context.Background(), chain.LowerHex(holder), t0)

	if len(proxies) != 1 {
		t.Fatalf("Same wallet on both sides should count once, got %d", len(proxies))
	}
	if proxies[0].Type != domain.ProxyPrePurchase {
		t.Errorf("First occurrence wins: expected pre_purchase, got %s", proxies[0].Type)
	}
}
