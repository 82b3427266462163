package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"jupexec/service/executor"
	"jupexec/service/ledger"
	"jupexec/service/metrics"
	"jupexec/service/queue"
)

// TradeExecutor runs one queued buy to a terminal outcome.
type TradeExecutor interface {
	ExecuteBuy(ctx context.Context, cmd *queue.TradeCommand) (*queue.TradeResult, error)
}

// ReconcileRunner folds the wallet's observed history into the ledger.
type ReconcileRunner interface {
	Run(ctx context.Context, l *ledger.WalletLedger) error
}

// BalanceService reads current wallet balances for the position snapshot.
type BalanceService interface {
	GetSOLBalance(ctx context.Context, owner solanago.PublicKey) (float64, error)
	GetTokenBalance(ctx context.Context, owner solanago.PublicKey, mint solanago.PublicKey) (float64, error)
}

// Options tune the scheduler loops.
type Options struct {
	TradingEnabled         bool
	TickInterval           time.Duration
	BalanceRefreshInterval time.Duration
	QueueRetention         time.Duration
	PruneInterval          time.Duration
	// PrimaryTokenSymbol and PrimaryTokenMint identify the token tracked
	// in the ledger's position snapshot. Optional.
	PrimaryTokenSymbol string
	PrimaryTokenMint   string
}

func (o *Options) withDefaults() {
	if o.TickInterval == 0 {
		o.TickInterval = 5 * time.Second
	}
	if o.BalanceRefreshInterval == 0 {
		o.BalanceRefreshInterval = 60 * time.Second
	}
	if o.QueueRetention == 0 {
		o.QueueRetention = time.Hour
	}
	if o.PruneInterval == 0 {
		o.PruneInterval = time.Hour
	}
}

// Scheduler owns the trade loop. It drains the command queue oldest first,
// keeps the ledger position fresh, reconciles on startup, and prunes
// processed queue entries past retention. All ledger access goes through a
// single mutex; the executor and reconciler never touch it concurrently.
type Scheduler struct {
	wallet solanago.PublicKey

	queue    *queue.Store
	tradeLog *queue.TradeLog

	ledgerMu    sync.Mutex
	ledger      *ledger.WalletLedger
	ledgerStore *ledger.Store

	exec       TradeExecutor
	reconciler ReconcileRunner
	chain      BalanceService

	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options
}

func New(wallet solanago.PublicKey, q *queue.Store, tradeLog *queue.TradeLog, ledgerStore *ledger.Store, exec TradeExecutor, reconciler ReconcileRunner, chain BalanceService, m *metrics.Metrics, logger *slog.Logger, opts Options) *Scheduler {
	opts.withDefaults()
	return &Scheduler{
		wallet:      wallet,
		queue:       q,
		tradeLog:    tradeLog,
		ledgerStore: ledgerStore,
		exec:        exec,
		reconciler:  reconciler,
		chain:       chain,
		metrics:     m,
		logger:      logger,
		opts:        opts,
	}
}

// SetExecutor installs the trade executor. The executor records confirmed
// acquisitions through the scheduler, so the two are wired after both exist.
// Must be called before Run.
func (s *Scheduler) SetExecutor(exec TradeExecutor) {
	s.exec = exec
}

// Init loads the persisted ledger, creating a fresh one on first start.
func (s *Scheduler) Init(ctx context.Context) error {
	l, err := s.ledgerStore.Load()
	if err != nil {
		return err
	}
	if l == nil {
		s.logger.InfoContext(ctx, "no ledger on disk, starting fresh", "wallet", s.wallet.String())
		l = ledger.NewWalletLedger(s.wallet.String())
	}
	s.ledgerMu.Lock()
	s.ledger = l
	s.ledgerMu.Unlock()
	return nil
}

// Run blocks until the context is cancelled. It reconciles once at startup
// and then drives the queue, balance refresh and prune loops.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.ledger == nil {
		if err := s.Init(ctx); err != nil {
			return err
		}
	}

	s.reconcile(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.opts.TickInterval, s.processQueueTick)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.opts.BalanceRefreshInterval, s.refreshBalances)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.opts.PruneInterval, s.pruneQueue)
	}()
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// processQueueTick drains at most one command per tick, oldest first. A
// command is only marked processed once it reaches a terminal outcome;
// transient rejections leave it pending for the next tick.
func (s *Scheduler) processQueueTick(ctx context.Context) {
	s.updateQueueDepth()

	cmd, err := s.queue.NextUnprocessed()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read trade queue", "error", err)
		return
	}
	if cmd == nil {
		return
	}

	if !s.opts.TradingEnabled {
		s.logger.DebugContext(ctx, "trading disabled, leaving command pending",
			"token", cmd.TokenSymbol,
			"queued_at", cmd.Timestamp,
		)
		return
	}

	s.logger.InfoContext(ctx, "processing trade command",
		"token", cmd.TokenSymbol,
		"sol_amount", cmd.SOLAmount,
		"queued_at", cmd.Timestamp,
	)

	result, execErr := s.exec.ExecuteBuy(ctx, cmd)
	if execErr != nil && isTransient(execErr) {
		s.logger.InfoContext(ctx, "trade deferred", "token", cmd.TokenSymbol, "reason", execErr)
		return
	}

	if err := s.queue.MarkProcessed(cmd, result); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark command processed", "token", cmd.TokenSymbol, "error", err)
	}
	if s.tradeLog != nil {
		if _, err := s.tradeLog.Append(cmd, result); err != nil {
			s.logger.ErrorContext(ctx, "failed to append trade log", "error", err)
		}
	}
	s.updateQueueDepth()
}

// isTransient reports whether the failure should leave the command queued.
// Busy, cooling down and rate limited all resolve on their own; everything
// else is a terminal outcome for this command.
func isTransient(err error) bool {
	var te *executor.TradeError
	if !errors.As(err, &te) {
		return false
	}
	switch te.Kind {
	case executor.KindTradeInProgress, executor.KindCooldownActive, executor.KindRateLimited:
		return true
	}
	return false
}

func (s *Scheduler) updateQueueDepth() {
	if s.metrics == nil {
		return
	}
	if depth, err := s.queue.CountUnprocessed(); err == nil {
		s.metrics.SetQueueDepth(depth)
	}
}

// Reconcile runs one reconciliation pass with the ledger mutex held. Called
// at startup and on demand from the admin API.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	return s.reconciler.Run(ctx, s.ledger)
}

func (s *Scheduler) reconcile(ctx context.Context) {
	if err := s.Reconcile(ctx); err != nil {
		s.logger.ErrorContext(ctx, "reconciliation failed", "error", err)
	}
}

// refreshBalances updates the ledger's position snapshot.
func (s *Scheduler) refreshBalances(ctx context.Context) {
	sol, err := s.chain.GetSOLBalance(ctx, s.wallet)
	if err != nil {
		s.logger.WarnContext(ctx, "balance refresh failed", "error", err)
		return
	}

	var tokenBalance float64
	if s.opts.PrimaryTokenMint != "" {
		mint, err := solanago.PublicKeyFromBase58(s.opts.PrimaryTokenMint)
		if err == nil {
			if balance, berr := s.chain.GetTokenBalance(ctx, s.wallet, mint); berr == nil {
				tokenBalance = balance
			} else {
				s.logger.WarnContext(ctx, "token balance refresh failed", "mint", s.opts.PrimaryTokenMint, "error", berr)
			}
		}
	}

	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	s.ledger.CurrentPosition = ledger.Position{
		SOLBalance:   sol,
		TokenBalance: tokenBalance,
		TokenSymbol:  s.opts.PrimaryTokenSymbol,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.ledgerStore.Save(s.ledger); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist ledger after balance refresh", "error", err)
	}
}

// pruneQueue drops processed commands older than retention. Pending
// commands are never pruned regardless of age.
func (s *Scheduler) pruneQueue(ctx context.Context) {
	removed, err := s.queue.Prune(s.opts.QueueRetention)
	if err != nil {
		s.logger.ErrorContext(ctx, "queue prune failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "pruned processed commands", "removed", removed)
	}
	s.updateQueueDepth()
}

// RecordAcquisition merges a live trade into the ledger, recomputes stats
// and persists. Implements the executor's recorder.
func (s *Scheduler) RecordAcquisition(ctx context.Context, record *ledger.AcquisitionRecord) error {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	if !s.ledger.Merge(record) {
		s.logger.DebugContext(ctx, "acquisition already recorded", "signature", record.TransactionSignature)
		return nil
	}
	s.ledger.RecomputeStats()
	if s.metrics != nil {
		s.metrics.RecordAcquisitionsMerged(record.Source, 1)
	}
	return s.ledgerStore.Save(s.ledger)
}

// SnapshotJSON serializes the current ledger state for read-only callers.
// Marshaling happens under the ledger mutex so the view is consistent.
func (s *Scheduler) SnapshotJSON() ([]byte, error) {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	return json.Marshal(s.ledger)
}
