// Package domain defines the core entities of the reflection monitor:
// holders, proxy wallets, infections (transfers), snapshots and distributions.
// All token amounts are smallest-unit big integers; floating point is never
// used for balances or shares.
package domain

import (
	"math/big"
	"time"
)

// MaxProxiesPerHolder caps proxy discovery: 2 pre-purchase + 2 post-purchase.
const MaxProxiesPerHolder = 4

// MonitorWindow is how long a holder stays unlocked after first purchase
// while post-purchase proxies are still being discovered.
const MonitorWindow = 7 * 24 * time.Hour

// PrePurchaseLookback bounds how far before the purchase the detector
// inspects outgoing transactions.
const PrePurchaseLookback = 30 * 24 * time.Hour

// Holder is one wallet address that has ever received a transfer.
// Address is the primary key and is always stored lower-cased.
type Holder struct {
	Address                  string
	Balance                  *big.Int
	BaseBalance              *big.Int
	ReflectionBalance        *big.Int
	FirstSeenBlock           uint64
	FirstSeenTime            time.Time
	ProxyCount               int
	Locked                   bool
	LastScanned              *time.Time
	VirtualReflectionBalance *big.Int
	UpdatedAt                time.Time
}

// MonitoringEnded reports whether the post-purchase monitoring window has
// elapsed at the given time.
func (h *Holder) MonitoringEnded(now time.Time) bool {
	return !now.Before(h.FirstSeenTime.Add(MonitorWindow))
}
