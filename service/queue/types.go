package queue

import (
	"time"
)

// CommandKind is the kind of trade command. Only buys are produced today;
// the emergency liquidation path goes through the executor directly.
type CommandKind string

const (
	CommandBuy CommandKind = "BUY"
)

// TradeCommand is one pending trade written by the signal producer.
// The producer appends with processed=false; this consumer is the only
// writer of the processed flag and the result.
type TradeCommand struct {
	Command      CommandKind    `json:"command"`
	Timestamp    time.Time      `json:"timestamp"`
	TokenSymbol  string         `json:"token_symbol"`
	TokenAddress string         `json:"token_address"`
	SOLAmount    float64        `json:"sol_amount"`
	CurrentPrice float64        `json:"current_price,omitempty"`
	TriggerData  map[string]any `json:"trigger_data,omitempty"`
	Processed    bool           `json:"processed"`
	Result       *TradeResult   `json:"result,omitempty"`
}

// TradeResult is the immutable outcome of executing one command.
type TradeResult struct {
	Success        bool      `json:"success"`
	Signature      string    `json:"signature,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	SOLSpent       float64   `json:"sol_spent"`
	TokensReceived float64   `json:"tokens_received,omitempty"`
	PricePerToken  float64   `json:"price_per_token,omitempty"`
}
