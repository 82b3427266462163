package solana

import (
	"time"
)

// ConfirmationStatus is the chain's view of a submitted transaction.
type ConfirmationStatus string

const (
	StatusUnknown   ConfirmationStatus = "unknown"
	StatusProcessed ConfirmationStatus = "processed"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFinalized ConfirmationStatus = "finalized"
)

// Terminal reports whether the status is durable enough to act on.
func (s ConfirmationStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFinalized
}

// TxStatus is the result of a confirmation poll.
type TxStatus struct {
	Status ConfirmationStatus
	// Err carries the on-chain error payload if the transaction landed but failed.
	Err *string
}

// HistoryEntry is one signature from the wallet's transaction history.
// This is our domain model, independent of the RPC response format.
type HistoryEntry struct {
	Signature string
	Slot      uint64
	BlockTime time.Time
	Err       *string // nil if transaction succeeded
}

// BalanceDelta is the wallet-owned balance movement extracted from a
// confirmed transaction: how much of a token the wallet gained and how
// much native SOL it gave up.
type BalanceDelta struct {
	Signature    string
	BlockTime    time.Time
	TokenMint    string  // mint of the token whose balance increased
	TokensGained float64 // UI amount (decimals applied)
	SOLSpent     float64 // native balance decrease, fees included
}
