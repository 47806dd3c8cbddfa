package domain

import "time"

// ProxyType tags on which side of the purchase a proxy was discovered.
type ProxyType string

const (
	ProxyPrePurchase  ProxyType = "pre_purchase"
	ProxyPostPurchase ProxyType = "post_purchase"
)

// ProxyWallet is an address inferred to be under common control with a
// holder, linked to the outgoing transaction that revealed it.
// Rows are created once and never updated; the stores upsert defensively
// in case the detector reprocesses the same holder.
type ProxyWallet struct {
	HolderAddress   string
	ProxyAddress    string
	Type            ProxyType
	TransactionHash string
	DetectedAt      time.Time
}
