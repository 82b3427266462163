package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jupexec/service/executor"
	"jupexec/service/queue"
)

const testMintAddress = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

type mockLedgerSource struct {
	data         []byte
	err          error
	reconciled   chan struct{}
	reconcileErr error
}

func (m *mockLedgerSource) SnapshotJSON() ([]byte, error) {
	return m.data, m.err
}

func (m *mockLedgerSource) Reconcile(ctx context.Context) error {
	if m.reconciled != nil {
		close(m.reconciled)
	}
	return m.reconcileErr
}

type mockTrader struct {
	state    executor.State
	inFlight bool
	cooldown time.Duration
	result   *queue.TradeResult
	err      error
	calls    int
}

func (m *mockTrader) ExecuteSell(ctx context.Context, tokenSymbol, tokenAddress string) (*queue.TradeResult, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockTrader) State() executor.State            { return m.state }
func (m *mockTrader) InFlight() bool                   { return m.inFlight }
func (m *mockTrader) CooldownRemaining() time.Duration { return m.cooldown }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleGetLedger(t *testing.T) {
	source := &mockLedgerSource{data: []byte(`{"wallet_address":"abc","token_acquisitions":[]}`)}
	handler := handleGetLedger(source, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "token_acquisitions")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHandleListQueue_PendingFilter(t *testing.T) {
	logger := testLogger()
	store := queue.NewStore(filepath.Join(t.TempDir(), "pending_trades.json"), logger)

	done := &queue.TradeCommand{Command: queue.CommandBuy, TokenSymbol: "DONE", Timestamp: time.Now().UTC(), Processed: true}
	require.NoError(t, store.Append(done))
	require.NoError(t, store.Append(&queue.TradeCommand{Command: queue.CommandBuy, TokenSymbol: "WAIT", Timestamp: time.Now().UTC()}))

	handler := handleListQueue(store, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue?pending=true", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var commands []*queue.TradeCommand
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commands))
	require.Len(t, commands, 1)
	assert.Equal(t, "WAIT", commands[0].TokenSymbol)
}

func TestHandleGetStatus(t *testing.T) {
	trader := &mockTrader{state: executor.StateConfirming, inFlight: true, cooldown: 90 * time.Second}
	handler := handleGetStatus(trader, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "CONFIRMING", status.State)
	assert.True(t, status.InFlight)
	assert.Equal(t, "1m30s", status.CooldownRemaining)
}

func TestHandleReconcile_StartsInBackground(t *testing.T) {
	source := &mockLedgerSource{reconciled: make(chan struct{})}
	handler := handleReconcile(source, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "reconcile started")

	select {
	case <-source.reconciled:
	case <-time.After(time.Second):
		t.Fatal("reconcile was never invoked")
	}
}

func TestHandleLiquidate(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		trader         *mockTrader
		expectedStatus int
		expectedCalls  int
	}{
		{
			name:           "success",
			body:           `{"token_symbol":"ANON","token_address":"` + testMintAddress + `"}`,
			trader:         &mockTrader{result: &queue.TradeResult{Success: true, Signature: "sig1"}},
			expectedStatus: http.StatusOK,
			expectedCalls:  1,
		},
		{
			name:           "invalid address",
			body:           `{"token_symbol":"ANON","token_address":"not-base58-0OIl"}`,
			trader:         &mockTrader{},
			expectedStatus: http.StatusBadRequest,
			expectedCalls:  0,
		},
		{
			name:           "malformed body",
			body:           `{`,
			trader:         &mockTrader{},
			expectedStatus: http.StatusBadRequest,
			expectedCalls:  0,
		},
		{
			name: "busy executor",
			body: `{"token_symbol":"ANON","token_address":"` + testMintAddress + `"}`,
			trader: &mockTrader{
				result: &queue.TradeResult{Success: false, ErrorKind: string(executor.KindTradeInProgress)},
				err:    &executor.TradeError{Kind: executor.KindTradeInProgress, Msg: "busy"},
			},
			expectedStatus: http.StatusConflict,
			expectedCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handleLiquidate(tt.trader, testLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/v1/liquidate", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedCalls, tt.trader.calls)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ledger", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
