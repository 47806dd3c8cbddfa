package domain

import (
	"math/big"
	"time"
)

// InfectionTypeTransfer is the only infection type produced by the monitor;
// the tag exists so the web side can introduce other spread mechanics later.
const InfectionTypeTransfer = "transfer"

// Infection is one on-chain token transfer: the "infector" passes the token
// to the "infected" recipient. TransactionHash is unique; re-ingesting the
// same transfer is a no-op.
type Infection struct {
	InfectorAddress string
	InfectedAddress string
	Amount          *big.Int
	Type            string
	TransactionHash string
	BlockNumber     uint64
	CreatedAt       time.Time
}
