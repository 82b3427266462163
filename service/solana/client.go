package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"jupexec/service/metrics"
)

// LamportsPerSOL converts between lamports and whole SOL.
const LamportsPerSOL = 1_000_000_000

// ErrConfirmationTimeout is returned by AwaitConfirmation when no terminal
// status was observed before the deadline. The transaction may still land;
// the caller must keep the signature for later reconciliation.
var ErrConfirmationTimeout = errors.New("confirmation timed out")

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		transactionSignatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)

	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)

	SendTransactionWithOpts(
		ctx context.Context,
		transaction *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)
}

// Client wraps the RPC client with the domain operations the executor and
// reconciler need: broadcast, confirmation polling, history and balances.
type Client struct {
	rpc     RPCClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new Solana client.
// If m is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:     rpcClient,
		logger:  logger,
		metrics: m,
	}
}

// IsRateLimited reports whether an RPC error is a 429 Too Many Requests.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "429") ||
		strings.Contains(err.Error(), "Too Many Requests")
}

// FetchHistory returns the newest transactions for the wallet, newest first,
// bounded by limit. The length of the returned slice is the reconciler's
// observed transaction count.
func (c *Client) FetchHistory(ctx context.Context, wallet solana.PublicKey, limit int) ([]*HistoryEntry, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	}

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, wallet, opts)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetSignaturesForAddress", status, duration)
	}
	if err != nil {
		if IsRateLimited(err) && c.metrics != nil {
			c.metrics.RecordRateLimitHit("GetSignaturesForAddress")
		}
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}

	entries := make([]*HistoryEntry, 0, len(signatures))
	for _, sig := range signatures {
		entries = append(entries, signatureToDomain(sig))
	}

	c.logger.DebugContext(ctx, "fetched transaction history",
		"wallet", wallet.String(),
		"count", len(entries),
		"limit", limit,
	)

	return entries, nil
}

// GetTransactionDetail fetches full transaction details for a signature,
// retrying with backoff on transient failures. Rate limits get a longer
// backoff than other errors.
func (c *Client) GetTransactionDetail(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error) {
	var result *rpc.GetTransactionResult
	var err error

	const maxAttempts = 3
	maxVersion := uint64(0)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		opts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &maxVersion,
		}
		start := time.Now()
		result, err = c.rpc.GetTransaction(ctx, signature, opts)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall("GetTransaction", status, duration)
		}

		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if IsRateLimited(err) {
			// Rate limits get an extended backoff rather than a fatal error.
			backoff := time.Duration(15<<uint(attempt)) * time.Second // 15s, 30s, 60s
			c.logger.WarnContext(ctx, "rate limited, sleeping before retry",
				"signature", signature.String(),
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit("GetTransaction")
				c.metrics.RecordRPCRetry("GetTransaction", "rate_limit")
			}
			sleepCtx(ctx, backoff)
			continue
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
		c.logger.WarnContext(ctx, "failed to get transaction, retrying",
			"signature", signature.String(),
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction", "timeout_or_error")
		}
		sleepCtx(ctx, backoff)
	}

	return nil, fmt.Errorf("failed to get transaction %s after retries: %w", signature.String(), err)
}

// SignAndBroadcast decodes a base64-encoded unsigned transaction, signs it
// with the wallet's key, and submits it to the network. It returns as soon
// as the signature is known; confirmation is a separate step.
func (c *Client) SignAndBroadcast(ctx context.Context, wallet *Wallet, txBase64 string) (solana.Signature, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to decode transaction: %w", err)
	}

	// Handles both legacy and versioned transactions (the aggregator uses versioned).
	tx, err := solana.TransactionFromBytes(txBytes)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to parse transaction: %w", err)
	}

	if _, err := tx.Sign(wallet.signerFor); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("SendTransaction", status, duration)
	}
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.InfoContext(ctx, "broadcast transaction",
		"signature", sig.String(),
		"wallet", wallet.Address(),
	)

	return sig, nil
}

// AwaitConfirmation polls the signature status at the given interval until a
// terminal status is observed or the timeout elapses. On timeout it returns
// ErrConfirmationTimeout: the transaction may still land, so the caller must
// not treat this as proof of non-execution.
func (c *Client) AwaitConfirmation(ctx context.Context, signature solana.Signature, interval, timeout time.Duration) (*TxStatus, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.pollStatus(ctx, signature)
		if err != nil {
			if IsRateLimited(err) {
				// Back off hard but keep polling; the timeout still bounds us.
				c.logger.WarnContext(ctx, "rate limited while polling confirmation",
					"signature", signature.String(),
				)
				if c.metrics != nil {
					c.metrics.RecordRateLimitHit("GetSignatureStatuses")
				}
				sleepCtx(ctx, 20*time.Second)
			} else {
				c.logger.WarnContext(ctx, "confirmation poll failed",
					"signature", signature.String(),
					"error", err,
				)
			}
		} else if status.Err != nil || status.Status.Terminal() {
			return status, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no terminal status for %s within %v: %w",
				signature.String(), timeout, ErrConfirmationTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollStatus performs a single signature status query.
func (c *Client) pollStatus(ctx context.Context, signature solana.Signature) (*TxStatus, error) {
	start := time.Now()
	// Search full history so a status is found even after the recent-status
	// cache rolls over during a long confirmation wait.
	out, err := c.rpc.GetSignatureStatuses(ctx, true, signature)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetSignatureStatuses", status, duration)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}

	if len(out.Value) == 0 || out.Value[0] == nil {
		return &TxStatus{Status: StatusUnknown}, nil
	}

	st := out.Value[0]
	result := &TxStatus{Status: StatusUnknown}

	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusProcessed:
		result.Status = StatusProcessed
	case rpc.ConfirmationStatusConfirmed:
		result.Status = StatusConfirmed
	case rpc.ConfirmationStatusFinalized:
		result.Status = StatusFinalized
	}

	if st.Err != nil {
		errMsg := fmt.Sprintf("%v", st.Err)
		result.Err = &errMsg
	}

	return result, nil
}

// GetSOLBalance returns the wallet's native balance in SOL.
func (c *Client) GetSOLBalance(ctx context.Context, owner solana.PublicKey) (float64, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetBalance", status, duration)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	return float64(out.Value) / LamportsPerSOL, nil
}

// GetTokenBalance returns the wallet's balance for an SPL token as a UI
// amount, summed over all token accounts for the mint.
func (c *Client) GetTokenBalance(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (float64, error) {
	_, ui, err := c.fetchTokenBalance(ctx, owner, mint)
	return ui, err
}

// GetTokenBalanceRaw returns the wallet's balance for an SPL token in base
// units alongside the UI amount. The raw figure is what swap quotes expect.
func (c *Client) GetTokenBalanceRaw(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (uint64, float64, error) {
	return c.fetchTokenBalance(ctx, owner, mint)
}

func (c *Client) fetchTokenBalance(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (uint64, float64, error) {
	start := time.Now()
	out, err := c.rpc.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{Mint: &mint},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingJSONParsed},
	)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetTokenAccountsByOwner", status, duration)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get token accounts: %w", err)
	}

	var rawTotal uint64
	uiTotal := 0.0
	for _, account := range out.Value {
		raw := account.Account.Data.GetRawJSON()
		if raw == nil {
			continue
		}
		var parsed struct {
			Parsed struct {
				Info struct {
					TokenAmount struct {
						Amount   string  `json:"amount"`
						UIAmount float64 `json:"uiAmount"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			continue
		}
		uiTotal += parsed.Parsed.Info.TokenAmount.UIAmount
		if n, err := strconv.ParseUint(parsed.Parsed.Info.TokenAmount.Amount, 10, 64); err == nil {
			rawTotal += n
		}
	}

	return rawTotal, uiTotal, nil
}

// signatureToDomain converts an RPC TransactionSignature to our domain HistoryEntry.
func signatureToDomain(sig *rpc.TransactionSignature) *HistoryEntry {
	entry := &HistoryEntry{
		Signature: sig.Signature.String(),
		Slot:      sig.Slot,
	}

	if sig.BlockTime != nil {
		entry.BlockTime = sig.BlockTime.Time()
	}

	if sig.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", sig.Err)
		entry.Err = &errMsg
	}

	return entry
}

// sleepCtx sleeps for d or until the context is cancelled, whichever is first.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
