package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"jupexec/service/ledger"
	"jupexec/service/metrics"
	"jupexec/service/nats"
	"jupexec/service/solana"
)

// Run modes reported in logs and metrics.
const (
	ModeNoop        = "noop"
	ModeIncremental = "incremental"
	ModeFullScan    = "full_scan"
	ModeRescan      = "rescan_after_shrink"
)

// ChainService is the chain surface the reconciler needs.
type ChainService interface {
	FetchHistory(ctx context.Context, wallet solanago.PublicKey, limit int) ([]*solana.HistoryEntry, error)
	GetTransactionDetail(ctx context.Context, signature solanago.Signature) (*rpc.GetTransactionResult, error)
	GetSOLBalance(ctx context.Context, owner solanago.PublicKey) (float64, error)
}

// Options tune a reconciliation pass.
type Options struct {
	HistoryPageSize int
	// DustThresholdSOL and DustThresholdTokens filter out balance noise
	// that is not a real acquisition (rent, airdrops, fee refunds).
	DustThresholdSOL    float64
	DustThresholdTokens float64
	// ItemDelay paces transaction detail fetches to stay under public RPC
	// rate limits. Zero disables pacing.
	ItemDelay time.Duration
	// CheckpointEvery persists the ledger after this many merged records
	// so an interrupted pass loses little work.
	CheckpointEvery int
}

func (o *Options) withDefaults() {
	if o.HistoryPageSize == 0 {
		o.HistoryPageSize = 100
	}
	if o.ItemDelay == 0 {
		o.ItemDelay = 2 * time.Second
	}
	if o.CheckpointEvery == 0 {
		o.CheckpointEvery = 5
	}
}

// Reconciler compares the wallet's observed transaction history against the
// ledger and folds in whatever is missing. Derived records are additive and
// keyed by signature; reconciliation never rewrites what a previous pass or
// a live trade already recorded.
type Reconciler struct {
	wallet    solanago.PublicKey
	chain     ChainService
	store     *ledger.Store
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      Options
}

func New(wallet solanago.PublicKey, chain ChainService, store *ledger.Store, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger, opts Options) *Reconciler {
	opts.withDefaults()
	return &Reconciler{
		wallet:    wallet,
		chain:     chain,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		opts:      opts,
	}
}

// Run executes one reconciliation pass against the given ledger. The caller
// is responsible for serializing access to the ledger.
func (r *Reconciler) Run(ctx context.Context, l *ledger.WalletLedger) error {
	start := time.Now()

	observed, err := r.chain.FetchHistory(ctx, r.wallet, r.opts.HistoryPageSize)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordReconcileRun("unknown", "error", time.Since(start).Seconds())
		}
		return fmt.Errorf("fetch wallet history: %w", err)
	}
	count := len(observed)

	mode, toProcess := r.plan(l, observed)
	r.logger.InfoContext(ctx, "reconciliation pass",
		"mode", mode,
		"observed", count,
		"last_seen", l.LastSeenTxCount,
		"to_process", len(toProcess),
	)

	if mode == ModeNoop {
		// Steady state: nothing new on chain and the ledger is complete.
		// The pass must not touch the ledger, in memory or on disk.
		if r.metrics != nil {
			r.metrics.RecordReconcileRun(mode, "success", time.Since(start).Seconds())
		}
		return nil
	}

	complete := r.process(ctx, l, toProcess)

	l.LastSeenTxCount = count
	l.LastAnalysisAt = time.Now().UTC()
	l.AnalysisComplete = complete
	l.RecomputeStats()

	if complete && l.InitialSOLBalance == 0 {
		r.estimateInitialBalance(ctx, l)
	}

	if err := r.store.Save(l); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordReconcileRun(mode, "success", time.Since(start).Seconds())
	}
	return nil
}

// plan decides how much of the observed history needs analysis by comparing
// the observed transaction count against the last reconciled count.
func (r *Reconciler) plan(l *ledger.WalletLedger, observed []*solana.HistoryEntry) (string, []*solana.HistoryEntry) {
	count := len(observed)
	switch {
	case count < l.LastSeenTxCount:
		// History shrank. Signatures do not disappear from a chain, so
		// a previous count was wrong or the RPC node returned a partial
		// view. Incremental assumptions no longer hold; start over.
		r.logger.Warn("wallet history shrank, discarding derived records",
			"observed", count,
			"last_seen", l.LastSeenTxCount,
		)
		l.DiscardAcquisitions()
		return ModeRescan, observed
	case !l.AnalysisComplete:
		return ModeFullScan, observed
	case count == l.LastSeenTxCount:
		return ModeNoop, nil
	default:
		// History is newest first; the delta sits at the head.
		return ModeIncremental, observed[:count-l.LastSeenTxCount]
	}
}

// process analyzes entries one by one, merging acquisitions into the ledger.
// Returns false if any entry could not be analyzed, which forces the next
// pass to run a full scan.
func (r *Reconciler) process(ctx context.Context, l *ledger.WalletLedger, entries []*solana.HistoryEntry) bool {
	complete := true
	merged := 0
	var skippedDup, skippedFailed, skippedDust int

	for i, entry := range entries {
		if ctx.Err() != nil {
			return false
		}

		if entry.Err != nil {
			skippedFailed++
			continue
		}
		if l.Has(entry.Signature) {
			skippedDup++
			continue
		}

		record, mint, ok := r.analyze(ctx, entry)
		if !ok {
			complete = false
			continue
		}
		if record == nil {
			skippedDust++
			continue
		}

		if l.Merge(record) {
			merged++
			r.publishAcquisition(ctx, l.WalletAddress, mint, record)
			if merged%r.opts.CheckpointEvery == 0 {
				l.RecomputeStats()
				if err := r.store.Save(l); err != nil {
					r.logger.ErrorContext(ctx, "checkpoint save failed", "error", err)
				}
			}
		}

		if r.opts.ItemDelay > 0 && i < len(entries)-1 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(r.opts.ItemDelay):
			}
		}
	}

	if r.metrics != nil {
		r.metrics.RecordAcquisitionsMerged(ledger.SourceHistorical, merged)
		r.metrics.RecordAcquisitionsSkipped("duplicate", skippedDup)
		r.metrics.RecordAcquisitionsSkipped("failed_tx", skippedFailed)
		r.metrics.RecordAcquisitionsSkipped("dust", skippedDust)
	}
	r.logger.InfoContext(ctx, "history analysis finished",
		"merged", merged,
		"duplicates", skippedDup,
		"failed", skippedFailed,
		"dust", skippedDust,
		"complete", complete,
	)
	return complete
}

// analyze fetches one transaction and extracts the acquisition it contains,
// if any. Returns a nil record with ok=true for transactions that are not
// acquisitions and ok=false when the transaction could not be fetched.
func (r *Reconciler) analyze(ctx context.Context, entry *solana.HistoryEntry) (record *ledger.AcquisitionRecord, mint string, ok bool) {
	sig, err := solanago.SignatureFromBase58(entry.Signature)
	if err != nil {
		r.logger.Warn("unparseable signature in history", "signature", entry.Signature)
		return nil, "", true
	}

	detail, err := r.chain.GetTransactionDetail(ctx, sig)
	if err != nil {
		r.logger.WarnContext(ctx, "transaction detail fetch failed", "signature", entry.Signature, "error", err)
		return nil, "", false
	}

	delta, err := solana.ExtractBalanceDelta(entry.Signature, detail, r.wallet)
	if err != nil {
		r.logger.WarnContext(ctx, "balance extraction failed", "signature", entry.Signature, "error", err)
		return nil, "", true
	}

	if delta.TokensGained <= r.opts.DustThresholdTokens {
		return nil, "", true
	}
	// An acquisition is tokens in exchange for SOL. A token increase with
	// no SOL decrease is an airdrop or inbound transfer and would record a
	// zero entry price.
	if delta.SOLSpent <= 0 || delta.SOLSpent <= r.opts.DustThresholdSOL {
		return nil, "", true
	}

	ts := entry.BlockTime
	if ts.IsZero() {
		ts = delta.BlockTime
	}
	record = &ledger.AcquisitionRecord{
		Timestamp:            ts.UTC(),
		TransactionSignature: entry.Signature,
		SOLSpent:             delta.SOLSpent,
		TokensReceived:       delta.TokensGained,
		Source:               ledger.SourceHistorical,
	}
	if record.TokensReceived > 0 {
		record.PricePerToken = record.SOLSpent / record.TokensReceived
	}
	if !ts.IsZero() {
		record.BlockTime = ts.Unix()
	}
	return record, delta.TokenMint, true
}

// estimateInitialBalance reconstructs what the wallet held before trading
// began: the current balance plus everything historically spent. Swap fees
// and unrelated transfers are not accounted for; the figure is fixed once
// computed and never revised.
func (r *Reconciler) estimateInitialBalance(ctx context.Context, l *ledger.WalletLedger) {
	current, err := r.chain.GetSOLBalance(ctx, r.wallet)
	if err != nil {
		r.logger.WarnContext(ctx, "initial balance estimate skipped", "error", err)
		return
	}
	l.InitialSOLBalance = current + l.Performance.TotalSOLSpent
	r.logger.InfoContext(ctx, "estimated initial balance",
		"current_sol", current,
		"historical_spend", l.Performance.TotalSOLSpent,
		"initial_sol", l.InitialSOLBalance,
	)
}

func (r *Reconciler) publishAcquisition(ctx context.Context, walletAddress, mint string, record *ledger.AcquisitionRecord) {
	if r.publisher == nil {
		return
	}
	event := &nats.AcquisitionEvent{
		WalletAddress:  walletAddress,
		Signature:      record.TransactionSignature,
		TokenMint:      mint,
		SOLSpent:       record.SOLSpent,
		TokensReceived: record.TokensReceived,
		Source:         record.Source,
		BlockTime:      record.Timestamp,
		PublishedAt:    time.Now().UTC(),
	}
	if err := r.publisher.PublishAcquisition(ctx, event); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish acquisition event", "signature", record.TransactionSignature, "error", err)
	}
}
