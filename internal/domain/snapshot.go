package domain

import (
	"math/big"
	"time"
)

// SnapshotStatus is the lifecycle state of a snapshot.
type SnapshotStatus string

const (
	SnapshotPending     SnapshotStatus = "pending"
	SnapshotDistributed SnapshotStatus = "distributed"
)

// Snapshot is a point-in-time capture of the reward pool balance eligible
// for one distribution round. It transitions pending -> distributed exactly
// once; amount and holder count are frozen afterwards.
type Snapshot struct {
	ID            int64
	Amount        *big.Int
	TakenAt       time.Time
	DistributedAt *time.Time
	Status        SnapshotStatus
	HolderCount   int
}
