package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jupexec/service/jupiter"
	"jupexec/service/ledger"
	"jupexec/service/nats"
	"jupexec/service/queue"
	"jupexec/service/solana"
)

var (
	testMint = solanago.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	testSig  = solanago.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
)

type mockQuotes struct {
	quote      *jupiter.Quote
	quoteErr   error
	swap       *jupiter.SwapTransaction
	swapErr    error
	quoteCalls int
	lastQuote  jupiter.QuoteParams
	lastSwap   jupiter.BuildSwapParams
}

func (m *mockQuotes) GetQuote(ctx context.Context, params jupiter.QuoteParams) (*jupiter.Quote, error) {
	m.quoteCalls++
	m.lastQuote = params
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	return m.quote, nil
}

func (m *mockQuotes) BuildSwap(ctx context.Context, params jupiter.BuildSwapParams) (*jupiter.SwapTransaction, error) {
	m.lastSwap = params
	if m.swapErr != nil {
		return nil, m.swapErr
	}
	return m.swap, nil
}

type mockChain struct {
	broadcastErr   error
	broadcastCalls int
	status         *solana.TxStatus
	confirmErr     error
	detail         *rpc.GetTransactionResult
	detailErr      error
	rawBalance     uint64
	uiBalance      float64
	balanceErr     error
	balanceCalls   int
	postUIBalance  float64
}

func (m *mockChain) SignAndBroadcast(ctx context.Context, wallet *solana.Wallet, txBase64 string) (solanago.Signature, error) {
	m.broadcastCalls++
	if m.broadcastErr != nil {
		return solanago.Signature{}, m.broadcastErr
	}
	return testSig, nil
}

func (m *mockChain) AwaitConfirmation(ctx context.Context, signature solanago.Signature, interval, timeout time.Duration) (*solana.TxStatus, error) {
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	return m.status, nil
}

func (m *mockChain) GetTransactionDetail(ctx context.Context, signature solanago.Signature) (*rpc.GetTransactionResult, error) {
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	return m.detail, nil
}

func (m *mockChain) GetTokenBalanceRaw(ctx context.Context, owner solanago.PublicKey, mint solanago.PublicKey) (uint64, float64, error) {
	m.balanceCalls++
	if m.balanceErr != nil {
		return 0, 0, m.balanceErr
	}
	// Calls after the first return the post-trade balance.
	if m.balanceCalls > 1 && m.postUIBalance > 0 {
		return m.rawBalance, m.postUIBalance, nil
	}
	return m.rawBalance, m.uiBalance, nil
}

type mockRecorder struct {
	records []*ledger.AcquisitionRecord
	err     error
}

func (m *mockRecorder) RecordAcquisition(ctx context.Context, record *ledger.AcquisitionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func testWallet(t *testing.T) *solana.Wallet {
	t.Helper()
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	wallet, err := solana.WalletFromBase58(key.String())
	require.NoError(t, err)
	return wallet
}

func confirmedDetail(owner solanago.PublicKey, tokensGained float64) *rpc.GetTransactionResult {
	gained := tokensGained
	return &rpc.GetTransactionResult{
		Meta: &rpc.TransactionMeta{
			PreTokenBalances: []rpc.TokenBalance{},
			PostTokenBalances: []rpc.TokenBalance{
				{
					Mint:  testMint,
					Owner: &owner,
					UiTokenAmount: &rpc.UiTokenAmount{
						UiAmount: &gained,
					},
				},
			},
		},
	}
}

func newTestExecutor(t *testing.T, chain *mockChain, quotes *mockQuotes, opts Options) (*Executor, *mockRecorder, *nats.MockPublisher) {
	t.Helper()
	recorder := &mockRecorder{}
	publisher := nats.NewMockPublisher()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := New(testWallet(t), chain, quotes, recorder, publisher, nil, logger, opts)
	return exec, recorder, publisher
}

func workingQuotes() *mockQuotes {
	return &mockQuotes{
		quote: &jupiter.Quote{
			InputMint:  jupiter.WSOLMint,
			OutputMint: testMint.String(),
			OutAmount:  "1000000",
		},
		swap: &jupiter.SwapTransaction{SwapTransaction: "dGVzdA=="},
	}
}

func buyCommand(solAmount float64) *queue.TradeCommand {
	return &queue.TradeCommand{
		Command:      queue.CommandBuy,
		Timestamp:    time.Now().UTC(),
		TokenSymbol:  "ANON",
		TokenAddress: testMint.String(),
		SOLAmount:    solAmount,
	}
}

func TestExecuteBuy_Success(t *testing.T) {
	quotes := workingQuotes()
	chain := &mockChain{status: &solana.TxStatus{Status: solana.StatusConfirmed}}
	exec, recorder, publisher := newTestExecutor(t, chain, quotes, Options{SlippageBps: 50})
	chain.detail = confirmedDetail(exec.wallet.PublicKey(), 1_000_000)

	result, err := exec.ExecuteBuy(context.Background(), buyCommand(0.1))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, testSig.String(), result.Signature)
	assert.InDelta(t, 1_000_000.0, result.TokensReceived, 1e-9)
	assert.InDelta(t, 0.1, result.SOLSpent, 1e-9)
	assert.Greater(t, result.PricePerToken, 0.0)

	// Quote request is WSOL in, target token out, sized in lamports.
	assert.Equal(t, jupiter.WSOLMint, quotes.lastQuote.InputMint)
	assert.Equal(t, testMint.String(), quotes.lastQuote.OutputMint)
	assert.Equal(t, uint64(100_000_000), quotes.lastQuote.Amount)
	assert.Equal(t, 50, quotes.lastQuote.SlippageBps)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, ledger.SourceLive, recorder.records[0].Source)
	assert.Equal(t, testSig.String(), recorder.records[0].TransactionSignature)

	events := publisher.GetTradeEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
	assert.Equal(t, KindBuy, events[0].Kind)

	assert.Equal(t, StateIdle, exec.State())
	assert.False(t, exec.InFlight())
	assert.Greater(t, exec.CooldownRemaining(), time.Duration(0))
}

func TestExecuteBuy_RejectsNonPositiveAmount(t *testing.T) {
	quotes := workingQuotes()
	chain := &mockChain{}
	exec, _, _ := newTestExecutor(t, chain, quotes, Options{Cooldown: 5 * time.Minute})

	result, err := exec.ExecuteBuy(context.Background(), buyCommand(0))
	require.Error(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, string(KindInvalidAmount), result.ErrorKind)
	// Rejected before any network traffic.
	assert.Zero(t, quotes.quoteCalls)
	assert.Zero(t, chain.broadcastCalls)
}

func TestExecuteBuy_CooldownActive(t *testing.T) {
	quotes := workingQuotes()
	exec, _, publisher := newTestExecutor(t, &mockChain{}, quotes, Options{Cooldown: 5 * time.Minute})
	exec.lastTradeAt = time.Now()

	result, err := exec.ExecuteBuy(context.Background(), buyCommand(0.1))
	require.Error(t, err)

	assert.Equal(t, string(KindCooldownActive), result.ErrorKind)
	assert.Contains(t, result.Error, "ms remaining")
	assert.Zero(t, quotes.quoteCalls)
	// The scheduler retries every tick while the cooldown holds; guard
	// bounces must not emit a trade event each time.
	assert.Empty(t, publisher.GetTradeEvents())
}

func TestExecuteBuy_TradeInProgress(t *testing.T) {
	quotes := workingQuotes()
	exec, _, publisher := newTestExecutor(t, &mockChain{}, quotes, Options{})
	exec.state = StateConfirming

	result, err := exec.ExecuteBuy(context.Background(), buyCommand(0.1))
	require.Error(t, err)

	assert.Equal(t, string(KindTradeInProgress), result.ErrorKind)
	assert.Zero(t, quotes.quoteCalls)
	// The guard rejection must not reset the in-progress state.
	assert.Equal(t, StateConfirming, exec.State())
	assert.Empty(t, publisher.GetTradeEvents())
}

func TestExecuteBuy_OnChainError(t *testing.T) {
	quotes := workingQuotes()
	txErr := "InstructionError: slippage exceeded"
	chain := &mockChain{status: &solana.TxStatus{Status: solana.StatusConfirmed, Err: &txErr}}
	exec, recorder, publisher := newTestExecutor(t, chain, quotes, Options{})

	result, err := exec.ExecuteBuy(context.Background(), buyCommand(0.1))
	require.Error(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, string(KindTransactionFailed), result.ErrorKind)
	assert.Equal(t, testSig.String(), result.Signature)
	assert.Empty(t, recorder.records)

	events := publisher.GetTradeEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)

	assert.False(t, exec.InFlight())
	assert.Equal(t, StateIdle, exec.State())
}

func TestExecuteBuy_ConfirmationTimeout(t *testing.T) {
	quotes := workingQuotes()
	chain := &mockChain{confirmErr: solana.ErrConfirmationTimeout}
	exec, recorder, _ := newTestExecutor(t, chain, quotes, Options{})

	result, err := exec.ExecuteBuy(context.Background(), buyCommand(0.1))
	require.Error(t, err)

	assert.Equal(t, string(KindConfirmationTimeout), result.ErrorKind)
	assert.False(t, result.Success)
	assert.Empty(t, recorder.records)
	assert.False(t, exec.InFlight())
	assert.Equal(t, StateIdle, exec.State())
}

func TestExecuteBuy_QuoteFailed(t *testing.T) {
	quotes := workingQuotes()
	quotes.quoteErr = errors.New("no route found")
	exec, _, _ := newTestExecutor(t, &mockChain{}, quotes, Options{})

	result, err := exec.ExecuteBuy(context.Background(), buyCommand(0.1))
	require.Error(t, err)
	assert.Equal(t, string(KindQuoteFailed), result.ErrorKind)
}

func TestExecuteBuy_RateLimited(t *testing.T) {
	quotes := workingQuotes()
	quotes.quoteErr = errors.New("server responded with 429 Too Many Requests")
	exec, _, _ := newTestExecutor(t, &mockChain{}, quotes, Options{})

	result, err := exec.ExecuteBuy(context.Background(), buyCommand(0.1))
	require.Error(t, err)
	assert.Equal(t, string(KindRateLimited), result.ErrorKind)
}

func TestExecuteBuy_DetailUnavailableFallsBackToBalanceDiff(t *testing.T) {
	quotes := workingQuotes()
	chain := &mockChain{
		status:        &solana.TxStatus{Status: solana.StatusConfirmed},
		detailErr:     errors.New("not found"),
		uiBalance:     100,
		postUIBalance: 1100,
	}
	exec, recorder, _ := newTestExecutor(t, chain, quotes, Options{})

	result, err := exec.ExecuteBuy(context.Background(), buyCommand(0.1))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.InDelta(t, 1000.0, result.TokensReceived, 1e-9)
	assert.InDelta(t, 0.1, result.SOLSpent, 1e-9)
	require.Len(t, recorder.records, 1)
}

func TestExecuteSell_Success(t *testing.T) {
	quotes := workingQuotes()
	chain := &mockChain{
		status:     &solana.TxStatus{Status: solana.StatusConfirmed},
		detailErr:  errors.New("not found"),
		rawBalance: 5_000_000,
		uiBalance:  5000,
	}
	exec, _, publisher := newTestExecutor(t, chain, quotes, Options{})

	result, err := exec.ExecuteSell(context.Background(), "ANON", testMint.String())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.InDelta(t, -5000.0, result.TokensReceived, 1e-9)

	// The whole raw balance goes into the quote, token in, WSOL out.
	assert.Equal(t, testMint.String(), quotes.lastQuote.InputMint)
	assert.Equal(t, jupiter.WSOLMint, quotes.lastQuote.OutputMint)
	assert.Equal(t, uint64(5_000_000), quotes.lastQuote.Amount)
	assert.Equal(t, 1000, quotes.lastQuote.SlippageBps)

	events := publisher.GetTradeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, KindLiquidation, events[0].Kind)
}

func TestExecuteSell_NoBalance(t *testing.T) {
	quotes := workingQuotes()
	chain := &mockChain{rawBalance: 0}
	exec, _, _ := newTestExecutor(t, chain, quotes, Options{})

	result, err := exec.ExecuteSell(context.Background(), "ANON", testMint.String())
	require.Error(t, err)
	assert.Equal(t, string(KindInvalidAmount), result.ErrorKind)
	assert.Zero(t, quotes.quoteCalls)
}

func TestExecuteSell_BypassesCooldown(t *testing.T) {
	quotes := workingQuotes()
	chain := &mockChain{
		status:     &solana.TxStatus{Status: solana.StatusConfirmed},
		detailErr:  errors.New("not found"),
		rawBalance: 1000,
		uiBalance:  1,
	}
	exec, _, _ := newTestExecutor(t, chain, quotes, Options{Cooldown: time.Hour})
	exec.lastTradeAt = time.Now()

	result, err := exec.ExecuteSell(context.Background(), "ANON", testMint.String())
	require.NoError(t, err)
	assert.True(t, result.Success)
}
