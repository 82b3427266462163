package executor

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of machine-readable failure categories
// attached to trade results and published events.
type ErrorKind string

const (
	KindTradeInProgress     ErrorKind = "trade_in_progress"
	KindCooldownActive      ErrorKind = "cooldown_active"
	KindInvalidAmount       ErrorKind = "invalid_amount"
	KindQuoteFailed         ErrorKind = "quote_failed"
	KindSwapBuildFailed     ErrorKind = "swap_build_failed"
	KindTransactionFailed   ErrorKind = "transaction_failed"
	KindConfirmationTimeout ErrorKind = "confirmation_timeout"
	KindRateLimited         ErrorKind = "rate_limited"
)

// TradeError carries a failure category through the execution pipeline so
// the outcome recorded in the queue and trade log states what went wrong,
// not just that something did.
type TradeError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

func newTradeError(kind ErrorKind, msg string) *TradeError {
	return &TradeError{Kind: kind, Msg: msg}
}

func wrapTradeError(kind ErrorKind, msg string, err error) *TradeError {
	return &TradeError{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the failure category from an error chain. Errors that
// did not originate in the executor map to KindTransactionFailed.
func KindOf(err error) ErrorKind {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindTransactionFailed
}
