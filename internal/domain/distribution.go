package domain

import (
	"math/big"
	"time"
)

// Distribution is one share of a snapshot credited to a proxy wallet on
// behalf of the holder whose balance generated it. The sum of all amounts
// for a snapshot never exceeds the snapshot amount; integer truncation may
// leave a small remainder undistributed.
type Distribution struct {
	SnapshotID       int64
	RecipientAddress string
	HolderSource     string
	Amount           *big.Int
	CreatedAt        time.Time
}
