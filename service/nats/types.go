package nats

import (
	"time"
)

// TradeEvent is published after a trade attempt reaches a terminal state.
// Subject: "trades.{wallet_address}".
type TradeEvent struct {
	WalletAddress string `json:"wallet_address"`

	Kind        string `json:"kind"` // "buy" or "liquidation"
	TokenSymbol string `json:"token_symbol"`
	TokenMint   string `json:"token_mint"`

	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	SOLSpent       float64 `json:"sol_spent"`
	TokensReceived float64 `json:"tokens_received"`
	PricePerToken  float64 `json:"price_per_token"`

	ExecutedAt  time.Time `json:"executed_at"`
	PublishedAt time.Time `json:"published_at"`
}

// AcquisitionEvent is published when reconciliation merges a previously
// unseen acquisition into the ledger.
// Subject: "acquisitions.{wallet_address}".
type AcquisitionEvent struct {
	WalletAddress string `json:"wallet_address"`

	Signature      string  `json:"signature"`
	TokenMint      string  `json:"token_mint"`
	SOLSpent       float64 `json:"sol_spent"`
	TokensReceived float64 `json:"tokens_received"`
	Source         string  `json:"source"`

	BlockTime   time.Time `json:"block_time"`
	PublishedAt time.Time `json:"published_at"`
}
