package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"jupexec/service/jupiter"
	"jupexec/service/ledger"
	"jupexec/service/metrics"
	"jupexec/service/nats"
	"jupexec/service/queue"
	"jupexec/service/solana"
)

// State is the executor's position in the trade lifecycle. The executor
// handles one trade at a time; any state other than idle rejects new work.
type State string

const (
	StateIdle       State = "IDLE"
	StateQuoting    State = "QUOTING"
	StateSwapBuilt  State = "SWAP_BUILT"
	StateSubmitted  State = "SUBMITTED"
	StateConfirming State = "CONFIRMING"
)

// Trade kinds reported in results, metrics and events.
const (
	KindBuy         = "buy"
	KindLiquidation = "liquidation"
)

// QuoteService is the aggregator surface the executor needs.
type QuoteService interface {
	GetQuote(ctx context.Context, params jupiter.QuoteParams) (*jupiter.Quote, error)
	BuildSwap(ctx context.Context, params jupiter.BuildSwapParams) (*jupiter.SwapTransaction, error)
}

// ChainService is the chain surface the executor needs.
type ChainService interface {
	SignAndBroadcast(ctx context.Context, wallet *solana.Wallet, txBase64 string) (solanago.Signature, error)
	AwaitConfirmation(ctx context.Context, signature solanago.Signature, interval, timeout time.Duration) (*solana.TxStatus, error)
	GetTransactionDetail(ctx context.Context, signature solanago.Signature) (*rpc.GetTransactionResult, error)
	GetTokenBalanceRaw(ctx context.Context, owner solanago.PublicKey, mint solanago.PublicKey) (uint64, float64, error)
}

// Recorder receives confirmed acquisitions for ledger merge and stats
// recomputation. The scheduler implements this with the ledger mutex held.
type Recorder interface {
	RecordAcquisition(ctx context.Context, record *ledger.AcquisitionRecord) error
}

// Options are the trade execution parameters.
type Options struct {
	SlippageBps            int
	PriorityFeeFloor       uint64 // lamports
	Cooldown               time.Duration
	ConfirmInterval        time.Duration
	ConfirmTimeout         time.Duration
	LiquidationSlippageBps int
	LiquidationTimeout     time.Duration
}

func (o *Options) withDefaults() {
	if o.ConfirmInterval == 0 {
		o.ConfirmInterval = 3 * time.Second
	}
	if o.ConfirmTimeout == 0 {
		o.ConfirmTimeout = 120 * time.Second
	}
	if o.LiquidationSlippageBps == 0 {
		o.LiquidationSlippageBps = 1000
	}
	if o.LiquidationTimeout == 0 {
		o.LiquidationTimeout = 180 * time.Second
	}
}

// Executor drives a single trade through quote, swap build, broadcast and
// confirmation. It is safe for concurrent callers; all but one are rejected
// with a trade-in-progress error before any network traffic happens.
type Executor struct {
	mu          sync.Mutex
	state       State
	inFlight    bool
	lastTradeAt time.Time

	wallet    *solana.Wallet
	chain     ChainService
	quotes    QuoteService
	recorder  Recorder
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      Options
}

func New(wallet *solana.Wallet, chain ChainService, quotes QuoteService, recorder Recorder, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger, opts Options) *Executor {
	opts.withDefaults()
	return &Executor{
		state:     StateIdle,
		wallet:    wallet,
		chain:     chain,
		quotes:    quotes,
		recorder:  recorder,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		opts:      opts,
	}
}

// State returns the current lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// InFlight reports whether a broadcast transaction is awaiting confirmation.
func (e *Executor) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// CooldownRemaining returns how long until the next buy is allowed.
func (e *Executor) CooldownRemaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooldownRemainingLocked()
}

func (e *Executor) cooldownRemainingLocked() time.Duration {
	if e.lastTradeAt.IsZero() || e.opts.Cooldown == 0 {
		return 0
	}
	remaining := e.opts.Cooldown - time.Since(e.lastTradeAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// begin claims the executor for one trade. Liquidations bypass the cooldown;
// nothing bypasses the single-trade guard.
func (e *Executor) begin(kind string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return newTradeError(KindTradeInProgress, fmt.Sprintf("trade already in progress (state %s)", e.state))
	}
	if kind == KindBuy {
		if remaining := e.cooldownRemainingLocked(); remaining > 0 {
			return newTradeError(KindCooldownActive, fmt.Sprintf("cooldown active, %dms remaining", remaining.Milliseconds()))
		}
	}
	e.state = StateQuoting
	return nil
}

func (e *Executor) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Executor) markInFlight(v bool) {
	e.mu.Lock()
	e.inFlight = v
	e.mu.Unlock()
}

// finish releases the executor. Runs on every exit path so a failed trade
// never leaves the in-flight marker set.
func (e *Executor) finish() {
	e.mu.Lock()
	e.state = StateIdle
	e.inFlight = false
	e.mu.Unlock()
}

// ExecuteBuy runs one buy command to a terminal outcome. The returned
// result is always non-nil and describes what happened; the error carries
// the failure category when the trade did not confirm.
func (e *Executor) ExecuteBuy(ctx context.Context, cmd *queue.TradeCommand) (*queue.TradeResult, error) {
	start := time.Now()
	result := &queue.TradeResult{Timestamp: start.UTC()}

	if err := e.begin(KindBuy); err != nil {
		return e.fail(ctx, result, KindBuy, cmd.TokenSymbol, cmd.TokenAddress, start, err)
	}
	defer e.finish()

	if cmd.SOLAmount <= 0 {
		err := newTradeError(KindInvalidAmount, fmt.Sprintf("sol_amount must be positive, got %v", cmd.SOLAmount))
		return e.fail(ctx, result, KindBuy, cmd.TokenSymbol, cmd.TokenAddress, start, err)
	}

	mint, err := solanago.PublicKeyFromBase58(cmd.TokenAddress)
	if err != nil {
		werr := wrapTradeError(KindInvalidAmount, fmt.Sprintf("invalid token address %q", cmd.TokenAddress), err)
		return e.fail(ctx, result, KindBuy, cmd.TokenSymbol, cmd.TokenAddress, start, werr)
	}

	e.logger.InfoContext(ctx, "executing buy",
		"token", cmd.TokenSymbol,
		"mint", cmd.TokenAddress,
		"sol_amount", cmd.SOLAmount,
	)

	lamports := uint64(cmd.SOLAmount * solana.LamportsPerSOL)
	quote, err := e.quotes.GetQuote(ctx, jupiter.QuoteParams{
		InputMint:   jupiter.WSOLMint,
		OutputMint:  cmd.TokenAddress,
		Amount:      lamports,
		SlippageBps: e.opts.SlippageBps,
	})
	if err != nil {
		return e.fail(ctx, result, KindBuy, cmd.TokenSymbol, cmd.TokenAddress, start, classify(KindQuoteFailed, "quote request failed", err))
	}

	e.setState(StateSwapBuilt)
	swap, err := e.quotes.BuildSwap(ctx, jupiter.BuildSwapParams{
		Quote:            quote,
		UserPublicKey:    e.wallet.Address(),
		PriorityFeeFloor: e.opts.PriorityFeeFloor,
	})
	if err != nil {
		return e.fail(ctx, result, KindBuy, cmd.TokenSymbol, cmd.TokenAddress, start, classify(KindSwapBuildFailed, "swap build failed", err))
	}

	// Balance snapshot taken before broadcast so the post-confirmation
	// diff has a fallback if transaction detail cannot be fetched.
	_, preTokenBalance, preBalanceErr := e.chain.GetTokenBalanceRaw(ctx, e.wallet.PublicKey(), mint)

	e.setState(StateSubmitted)
	sig, err := e.chain.SignAndBroadcast(ctx, e.wallet, swap.SwapTransaction)
	if err != nil {
		return e.fail(ctx, result, KindBuy, cmd.TokenSymbol, cmd.TokenAddress, start, classify(KindTransactionFailed, "broadcast failed", err))
	}
	e.markInFlight(true)
	result.Signature = sig.String()

	e.setState(StateConfirming)
	status, err := e.chain.AwaitConfirmation(ctx, sig, e.opts.ConfirmInterval, e.opts.ConfirmTimeout)
	if err != nil {
		werr := wrapTradeError(KindConfirmationTimeout, fmt.Sprintf("transaction %s not confirmed", sig), err)
		return e.fail(ctx, result, KindBuy, cmd.TokenSymbol, cmd.TokenAddress, start, werr)
	}
	if status.Err != nil {
		werr := newTradeError(KindTransactionFailed, fmt.Sprintf("transaction %s failed on chain: %s", sig, *status.Err))
		return e.fail(ctx, result, KindBuy, cmd.TokenSymbol, cmd.TokenAddress, start, werr)
	}

	solSpent, tokensReceived := e.settleBuy(ctx, sig, mint, cmd.SOLAmount, preTokenBalance, preBalanceErr == nil)

	result.Success = true
	result.SOLSpent = solSpent
	result.TokensReceived = tokensReceived
	if tokensReceived > 0 {
		result.PricePerToken = solSpent / tokensReceived
	}

	e.mu.Lock()
	e.lastTradeAt = time.Now()
	e.mu.Unlock()

	if e.recorder != nil {
		record := &ledger.AcquisitionRecord{
			Timestamp:            time.Now().UTC(),
			TransactionSignature: result.Signature,
			SOLSpent:             solSpent,
			TokensReceived:       tokensReceived,
			PricePerToken:        result.PricePerToken,
			Source:               ledger.SourceLive,
		}
		if err := e.recorder.RecordAcquisition(ctx, record); err != nil {
			e.logger.ErrorContext(ctx, "failed to record acquisition", "signature", result.Signature, "error", err)
		}
	}

	duration := time.Since(start).Seconds()
	if e.metrics != nil {
		e.metrics.RecordTradeExecuted(KindBuy, "confirmed", duration)
		e.metrics.RecordTradeSOLSpent(cmd.TokenSymbol, solSpent)
	}
	e.publishOutcome(ctx, KindBuy, cmd.TokenSymbol, cmd.TokenAddress, result, start)

	e.logger.InfoContext(ctx, "buy confirmed",
		"signature", result.Signature,
		"sol_spent", solSpent,
		"tokens_received", tokensReceived,
	)

	return result, nil
}

// ExecuteSell liquidates the wallet's entire balance of a token back to
// native SOL. It bypasses the cooldown and uses a wider slippage tolerance
// and a longer confirmation window than a buy.
func (e *Executor) ExecuteSell(ctx context.Context, tokenSymbol, tokenAddress string) (*queue.TradeResult, error) {
	start := time.Now()
	result := &queue.TradeResult{Timestamp: start.UTC()}

	if err := e.begin(KindLiquidation); err != nil {
		return e.fail(ctx, result, KindLiquidation, tokenSymbol, tokenAddress, start, err)
	}
	defer e.finish()

	mint, err := solanago.PublicKeyFromBase58(tokenAddress)
	if err != nil {
		werr := wrapTradeError(KindInvalidAmount, fmt.Sprintf("invalid token address %q", tokenAddress), err)
		return e.fail(ctx, result, KindLiquidation, tokenSymbol, tokenAddress, start, werr)
	}

	rawBalance, uiBalance, err := e.chain.GetTokenBalanceRaw(ctx, e.wallet.PublicKey(), mint)
	if err != nil {
		return e.fail(ctx, result, KindLiquidation, tokenSymbol, tokenAddress, start, classify(KindQuoteFailed, "token balance lookup failed", err))
	}
	if rawBalance == 0 {
		werr := newTradeError(KindInvalidAmount, "no token balance to liquidate")
		return e.fail(ctx, result, KindLiquidation, tokenSymbol, tokenAddress, start, werr)
	}

	e.logger.InfoContext(ctx, "executing liquidation",
		"token", tokenSymbol,
		"mint", tokenAddress,
		"token_balance", uiBalance,
	)

	quote, err := e.quotes.GetQuote(ctx, jupiter.QuoteParams{
		InputMint:   tokenAddress,
		OutputMint:  jupiter.WSOLMint,
		Amount:      rawBalance,
		SlippageBps: e.opts.LiquidationSlippageBps,
	})
	if err != nil {
		return e.fail(ctx, result, KindLiquidation, tokenSymbol, tokenAddress, start, classify(KindQuoteFailed, "quote request failed", err))
	}

	e.setState(StateSwapBuilt)
	swap, err := e.quotes.BuildSwap(ctx, jupiter.BuildSwapParams{
		Quote:            quote,
		UserPublicKey:    e.wallet.Address(),
		PriorityFeeFloor: e.opts.PriorityFeeFloor,
	})
	if err != nil {
		return e.fail(ctx, result, KindLiquidation, tokenSymbol, tokenAddress, start, classify(KindSwapBuildFailed, "swap build failed", err))
	}

	e.setState(StateSubmitted)
	sig, err := e.chain.SignAndBroadcast(ctx, e.wallet, swap.SwapTransaction)
	if err != nil {
		return e.fail(ctx, result, KindLiquidation, tokenSymbol, tokenAddress, start, classify(KindTransactionFailed, "broadcast failed", err))
	}
	e.markInFlight(true)
	result.Signature = sig.String()

	e.setState(StateConfirming)
	status, err := e.chain.AwaitConfirmation(ctx, sig, e.opts.ConfirmInterval, e.opts.LiquidationTimeout)
	if err != nil {
		werr := wrapTradeError(KindConfirmationTimeout, fmt.Sprintf("transaction %s not confirmed", sig), err)
		return e.fail(ctx, result, KindLiquidation, tokenSymbol, tokenAddress, start, werr)
	}
	if status.Err != nil {
		werr := newTradeError(KindTransactionFailed, fmt.Sprintf("transaction %s failed on chain: %s", sig, *status.Err))
		return e.fail(ctx, result, KindLiquidation, tokenSymbol, tokenAddress, start, werr)
	}

	// Negative spend records the SOL that came back from the sale.
	solReceived := e.settleSell(ctx, sig)
	result.Success = true
	result.SOLSpent = -solReceived
	result.TokensReceived = -uiBalance

	duration := time.Since(start).Seconds()
	if e.metrics != nil {
		e.metrics.RecordTradeExecuted(KindLiquidation, "confirmed", duration)
	}
	e.publishOutcome(ctx, KindLiquidation, tokenSymbol, tokenAddress, result, start)

	e.logger.InfoContext(ctx, "liquidation confirmed",
		"signature", result.Signature,
		"sol_received", solReceived,
		"tokens_sold", uiBalance,
	)

	return result, nil
}

// settleBuy determines what the trade actually moved. Transaction metadata
// is authoritative; the pre/post wallet balance diff covers the case where
// the detail fetch keeps failing after confirmation.
func (e *Executor) settleBuy(ctx context.Context, sig solanago.Signature, mint solanago.PublicKey, requestedSOL, preTokenBalance float64, havePreBalance bool) (solSpent, tokensReceived float64) {
	solSpent = requestedSOL

	detail, err := e.chain.GetTransactionDetail(ctx, sig)
	if err == nil {
		if tokens, terr := solana.TokensReceived(detail, e.wallet.PublicKey(), mint); terr == nil {
			tokensReceived = tokens
		}
		if delta, derr := solana.ExtractBalanceDelta(sig.String(), detail, e.wallet.PublicKey()); derr == nil && delta.SOLSpent > 0 {
			solSpent = delta.SOLSpent
		}
		return solSpent, tokensReceived
	}

	e.logger.WarnContext(ctx, "transaction detail unavailable after confirmation, using balance diff",
		"signature", sig.String(),
		"error", err,
	)
	if havePreBalance {
		if _, post, berr := e.chain.GetTokenBalanceRaw(ctx, e.wallet.PublicKey(), mint); berr == nil && post > preTokenBalance {
			tokensReceived = post - preTokenBalance
		}
	}
	return solSpent, tokensReceived
}

// settleSell extracts the SOL gained by the wallet from the confirmed sale.
func (e *Executor) settleSell(ctx context.Context, sig solanago.Signature) float64 {
	detail, err := e.chain.GetTransactionDetail(ctx, sig)
	if err != nil {
		e.logger.WarnContext(ctx, "transaction detail unavailable after liquidation", "signature", sig.String(), "error", err)
		return 0
	}
	delta, err := solana.ExtractBalanceDelta(sig.String(), detail, e.wallet.PublicKey())
	if err != nil || delta.SOLSpent >= 0 {
		return 0
	}
	return -delta.SOLSpent
}

// fail finalizes a result for a terminal failure. The in-flight marker is
// cleared by the deferred finish on every path through here.
func (e *Executor) fail(ctx context.Context, result *queue.TradeResult, kind, tokenSymbol, tokenAddress string, start time.Time, err error) (*queue.TradeResult, error) {
	result.Success = false
	result.Error = err.Error()
	result.ErrorKind = string(KindOf(err))

	// Busy and cooling-down rejections recur every scheduler tick while the
	// condition holds. Nothing was attempted on chain, so they are not trade
	// outcomes: no event, no executed-trade counter.
	switch KindOf(err) {
	case KindTradeInProgress, KindCooldownActive:
		e.logger.DebugContext(ctx, "trade rejected",
			"kind", kind,
			"token", tokenSymbol,
			"error_kind", result.ErrorKind,
		)
		return result, err
	}

	if e.metrics != nil {
		e.metrics.RecordTradeExecuted(kind, result.ErrorKind, time.Since(start).Seconds())
	}
	e.publishOutcome(ctx, kind, tokenSymbol, tokenAddress, result, start)

	e.logger.WarnContext(ctx, "trade failed",
		"kind", kind,
		"token", tokenSymbol,
		"error_kind", result.ErrorKind,
		"error", err,
	)
	return result, err
}

// publishOutcome emits the terminal trade event. Publishing is best effort;
// a broker outage never changes a trade outcome.
func (e *Executor) publishOutcome(ctx context.Context, kind, tokenSymbol, tokenAddress string, result *queue.TradeResult, start time.Time) {
	if e.publisher == nil {
		return
	}
	event := &nats.TradeEvent{
		WalletAddress:  e.wallet.Address(),
		Kind:           kind,
		TokenSymbol:    tokenSymbol,
		TokenMint:      tokenAddress,
		Success:        result.Success,
		Signature:      result.Signature,
		ErrorKind:      result.ErrorKind,
		Error:          result.Error,
		SOLSpent:       result.SOLSpent,
		TokensReceived: result.TokensReceived,
		PricePerToken:  result.PricePerToken,
		ExecutedAt:     start.UTC(),
		PublishedAt:    time.Now().UTC(),
	}
	if err := e.publisher.PublishTrade(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish trade event", "signature", result.Signature, "error", err)
	}
}

// classify wraps a pipeline error, promoting rate-limit responses to their
// own category so callers can back off instead of retrying immediately.
func classify(kind ErrorKind, msg string, err error) *TradeError {
	if solana.IsRateLimited(err) {
		return wrapTradeError(KindRateLimited, msg, err)
	}
	return wrapTradeError(kind, msg, err)
}
