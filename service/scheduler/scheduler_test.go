package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jupexec/service/executor"
	"jupexec/service/ledger"
	"jupexec/service/queue"
)

var testWallet = solanago.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

type mockExecutor struct {
	result    *queue.TradeResult
	err       error
	calls     []*queue.TradeCommand
	onExecute func()
}

func (m *mockExecutor) ExecuteBuy(ctx context.Context, cmd *queue.TradeCommand) (*queue.TradeResult, error) {
	m.calls = append(m.calls, cmd)
	if m.onExecute != nil {
		m.onExecute()
	}
	return m.result, m.err
}

type mockReconciler struct {
	calls int
	err   error
}

func (m *mockReconciler) Run(ctx context.Context, l *ledger.WalletLedger) error {
	m.calls++
	return m.err
}

type mockBalances struct {
	sol      float64
	solErr   error
	token    float64
	tokenErr error
}

func (m *mockBalances) GetSOLBalance(ctx context.Context, owner solanago.PublicKey) (float64, error) {
	return m.sol, m.solErr
}

func (m *mockBalances) GetTokenBalance(ctx context.Context, owner solanago.PublicKey, mint solanago.PublicKey) (float64, error) {
	return m.token, m.tokenErr
}

type fixture struct {
	sched       *Scheduler
	queue       *queue.Store
	tradeLog    *queue.TradeLog
	ledgerStore *ledger.Store
	exec        *mockExecutor
	reconciler  *mockReconciler
	balances    *mockBalances
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		queue:       queue.NewStore(filepath.Join(dir, "pending_trades.json"), logger),
		tradeLog:    queue.NewTradeLog(filepath.Join(dir, "trade_log.json")),
		ledgerStore: ledger.NewStore(filepath.Join(dir, "wallet_stats.json"), logger),
		exec:        &mockExecutor{},
		reconciler:  &mockReconciler{},
		balances:    &mockBalances{},
	}
	f.sched = New(testWallet, f.queue, f.tradeLog, f.ledgerStore, f.exec, f.reconciler, f.balances, nil, logger, opts)
	require.NoError(t, f.sched.Init(context.Background()))
	return f
}

func pendingCommand(symbol string, queuedAt time.Time) *queue.TradeCommand {
	return &queue.TradeCommand{
		Command:      queue.CommandBuy,
		Timestamp:    queuedAt,
		TokenSymbol:  symbol,
		TokenAddress: testWallet.String(),
		SOLAmount:    0.1,
	}
}

func TestProcessQueueTick_ExecutesOldestFirst(t *testing.T) {
	f := newFixture(t, Options{TradingEnabled: true})
	now := time.Now().UTC()
	require.NoError(t, f.queue.Append(pendingCommand("FIRST", now.Add(-2*time.Minute))))
	require.NoError(t, f.queue.Append(pendingCommand("SECOND", now.Add(-time.Minute))))
	f.exec.result = &queue.TradeResult{Success: true, Signature: "sig1", Timestamp: now}

	f.sched.processQueueTick(context.Background())

	require.Len(t, f.exec.calls, 1)
	assert.Equal(t, "FIRST", f.exec.calls[0].TokenSymbol)

	commands, err := f.queue.Load()
	require.NoError(t, err)
	assert.True(t, commands[0].Processed)
	require.NotNil(t, commands[0].Result)
	assert.True(t, commands[0].Result.Success)
	assert.False(t, commands[1].Processed)

	entries, err := f.tradeLog.Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "FIRST", entries[0].Command.TokenSymbol)
}

func TestProcessQueueTick_PruneDuringExecutionMarksExecutedCommand(t *testing.T) {
	f := newFixture(t, Options{TradingEnabled: true, QueueRetention: time.Hour})
	now := time.Now().UTC()

	done := pendingCommand("OLD_DONE", now.Add(-2*time.Hour))
	done.Processed = true
	done.Result = &queue.TradeResult{Success: true, Timestamp: now.Add(-2 * time.Hour)}
	require.NoError(t, f.queue.Append(done))
	require.NoError(t, f.queue.Append(pendingCommand("TARGET", now.Add(-time.Minute))))
	require.NoError(t, f.queue.Append(pendingCommand("NEXT", now)))

	// A trade can be in flight for minutes; the prune loop keeps running
	// against the same file and drops OLD_DONE, shifting positions.
	f.exec.onExecute = func() { f.sched.pruneQueue(context.Background()) }
	f.exec.result = &queue.TradeResult{Success: true, Signature: "sig-target", Timestamp: now}

	f.sched.processQueueTick(context.Background())

	require.Len(t, f.exec.calls, 1)
	assert.Equal(t, "TARGET", f.exec.calls[0].TokenSymbol)

	commands, err := f.queue.Load()
	require.NoError(t, err)
	require.Len(t, commands, 2)
	assert.Equal(t, "TARGET", commands[0].TokenSymbol)
	assert.True(t, commands[0].Processed)
	require.NotNil(t, commands[0].Result)
	assert.Equal(t, "sig-target", commands[0].Result.Signature)
	assert.Equal(t, "NEXT", commands[1].TokenSymbol)
	assert.False(t, commands[1].Processed)

	// The next tick must not re-execute TARGET.
	f.exec.onExecute = nil
	f.sched.processQueueTick(context.Background())
	require.Len(t, f.exec.calls, 2)
	assert.Equal(t, "NEXT", f.exec.calls[1].TokenSymbol)
}

func TestProcessQueueTick_TransientErrorLeavesPending(t *testing.T) {
	f := newFixture(t, Options{TradingEnabled: true})
	require.NoError(t, f.queue.Append(pendingCommand("ANON", time.Now().UTC())))
	f.exec.result = &queue.TradeResult{Success: false, ErrorKind: string(executor.KindCooldownActive)}
	f.exec.err = &executor.TradeError{Kind: executor.KindCooldownActive, Msg: "cooldown active, 120000ms remaining"}

	f.sched.processQueueTick(context.Background())

	commands, err := f.queue.Load()
	require.NoError(t, err)
	assert.False(t, commands[0].Processed)

	entries, err := f.tradeLog.Read()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessQueueTick_TerminalFailureMarksProcessed(t *testing.T) {
	f := newFixture(t, Options{TradingEnabled: true})
	require.NoError(t, f.queue.Append(pendingCommand("ANON", time.Now().UTC())))
	f.exec.result = &queue.TradeResult{Success: false, ErrorKind: string(executor.KindQuoteFailed), Error: "no route"}
	f.exec.err = &executor.TradeError{Kind: executor.KindQuoteFailed, Msg: "no route"}

	f.sched.processQueueTick(context.Background())

	commands, err := f.queue.Load()
	require.NoError(t, err)
	assert.True(t, commands[0].Processed)
	require.NotNil(t, commands[0].Result)
	assert.False(t, commands[0].Result.Success)
	assert.Equal(t, string(executor.KindQuoteFailed), commands[0].Result.ErrorKind)
}

func TestProcessQueueTick_TradingDisabled(t *testing.T) {
	f := newFixture(t, Options{TradingEnabled: false})
	require.NoError(t, f.queue.Append(pendingCommand("ANON", time.Now().UTC())))

	f.sched.processQueueTick(context.Background())

	assert.Empty(t, f.exec.calls)
	commands, err := f.queue.Load()
	require.NoError(t, err)
	assert.False(t, commands[0].Processed)
}

func TestRecordAcquisition_MergesAndPersists(t *testing.T) {
	f := newFixture(t, Options{})
	record := &ledger.AcquisitionRecord{
		Timestamp:            time.Now().UTC(),
		TransactionSignature: "sig1",
		SOLSpent:             0.1,
		TokensReceived:       1000,
		Source:               ledger.SourceLive,
	}

	require.NoError(t, f.sched.RecordAcquisition(context.Background(), record))

	loaded, err := f.ledgerStore.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Has("sig1"))
	assert.InDelta(t, 0.1, loaded.Performance.TotalSOLSpent, 1e-12)

	// Recording the same signature again is a quiet no-op.
	require.NoError(t, f.sched.RecordAcquisition(context.Background(), record))
	loaded, err = f.ledgerStore.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.AcquisitionCount())
}

func TestRefreshBalances_UpdatesPosition(t *testing.T) {
	f := newFixture(t, Options{
		PrimaryTokenSymbol: "ANON",
		PrimaryTokenMint:   testWallet.String(),
	})
	f.balances.sol = 2.5
	f.balances.token = 1_000_000

	f.sched.refreshBalances(context.Background())

	loaded, err := f.ledgerStore.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, 2.5, loaded.CurrentPosition.SOLBalance, 1e-9)
	assert.InDelta(t, 1_000_000.0, loaded.CurrentPosition.TokenBalance, 1e-9)
	assert.Equal(t, "ANON", loaded.CurrentPosition.TokenSymbol)
	assert.False(t, loaded.CurrentPosition.UpdatedAt.IsZero())
}

func TestRefreshBalances_SOLErrorKeepsOldPosition(t *testing.T) {
	f := newFixture(t, Options{})
	f.balances.sol = 3.0
	f.sched.refreshBalances(context.Background())

	f.balances.solErr = errors.New("rpc down")
	f.balances.sol = 99
	f.sched.refreshBalances(context.Background())

	loaded, err := f.ledgerStore.Load()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, loaded.CurrentPosition.SOLBalance, 1e-9)
}

func TestPruneQueue_RemovesOldProcessedOnly(t *testing.T) {
	f := newFixture(t, Options{QueueRetention: time.Hour})
	old := time.Now().UTC().Add(-2 * time.Hour)
	processed := pendingCommand("OLD", old)
	processed.Processed = true
	processed.Result = &queue.TradeResult{Success: true, Timestamp: old}
	require.NoError(t, f.queue.Append(processed))
	require.NoError(t, f.queue.Append(pendingCommand("PENDING", old)))

	f.sched.pruneQueue(context.Background())

	commands, err := f.queue.Load()
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "PENDING", commands[0].TokenSymbol)
}

func TestRun_ReconcilesOnStartupAndStopsOnCancel(t *testing.T) {
	f := newFixture(t, Options{
		TickInterval:           time.Hour,
		BalanceRefreshInterval: time.Hour,
		PruneInterval:          time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.sched.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.reconciler.calls)
}

func TestSnapshotJSON(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.sched.RecordAcquisition(context.Background(), &ledger.AcquisitionRecord{
		Timestamp:            time.Now().UTC(),
		TransactionSignature: "sig1",
		SOLSpent:             0.1,
		TokensReceived:       10,
		Source:               ledger.SourceLive,
	}))

	data, err := f.sched.SnapshotJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "token_acquisitions")
	assert.Contains(t, string(data), "sig1")
}
