package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"jupexec/service/executor"
	"jupexec/service/queue"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Valid Solana address characters: base58 (no 0, O, I, l)
var validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// LedgerSource provides a consistent view of the ledger and an on-demand
// reconciliation trigger.
type LedgerSource interface {
	SnapshotJSON() ([]byte, error)
	Reconcile(ctx context.Context) error
}

// Trader exposes the executor surface the admin API needs.
type Trader interface {
	ExecuteSell(ctx context.Context, tokenSymbol, tokenAddress string) (*queue.TradeResult, error)
	State() executor.State
	InFlight() bool
	CooldownRemaining() time.Duration
}

// handleGetLedger returns the full ledger state.
// GET /api/v1/ledger
func handleGetLedger(ledgers LedgerSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := ledgers.SnapshotJSON()
		if err != nil {
			logger.Error("failed to snapshot ledger", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	})
}

// handleListQueue returns all commands currently in the queue file.
// GET /api/v1/queue?pending=true
func handleListQueue(store *queue.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		commands, err := store.Load()
		if err != nil {
			logger.Error("failed to load queue", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if r.URL.Query().Get("pending") == "true" {
			pending := make([]*queue.TradeCommand, 0, len(commands))
			for _, cmd := range commands {
				if !cmd.Processed {
					pending = append(pending, cmd)
				}
			}
			commands = pending
		}

		writeJSON(w, commands, http.StatusOK)
	})
}

// handleListTrades returns the append-only trade log.
// GET /api/v1/trades
func handleListTrades(tradeLog *queue.TradeLog, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := tradeLog.Read()
		if err != nil {
			logger.Error("failed to read trade log", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries, http.StatusOK)
	})
}

// statusResponse is the executor status view.
type statusResponse struct {
	State             string `json:"state"`
	InFlight          bool   `json:"in_flight"`
	CooldownRemaining string `json:"cooldown_remaining"`
}

// handleGetStatus returns the executor's lifecycle state.
// GET /api/v1/status
func handleGetStatus(trades Trader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statusResponse{
			State:             string(trades.State()),
			InFlight:          trades.InFlight(),
			CooldownRemaining: trades.CooldownRemaining().String(),
		}, http.StatusOK)
	})
}

// handleReconcile starts a reconciliation pass in the background. The pass
// can take minutes on a cold ledger, so the response only acknowledges the
// start; progress is visible in the ledger view and metrics.
// POST /api/v1/reconcile
func handleReconcile(ledgers LedgerSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("manual reconciliation requested")
		go func() {
			if err := ledgers.Reconcile(context.Background()); err != nil {
				logger.Error("reconciliation failed", "error", err)
			}
		}()
		writeJSON(w, map[string]string{"status": "reconcile started"}, http.StatusAccepted)
	})
}

// liquidateRequest asks for the wallet's entire balance of a token to be
// sold back to SOL.
type liquidateRequest struct {
	TokenSymbol  string `json:"token_symbol"`
	TokenAddress string `json:"token_address"`
}

// handleLiquidate triggers a manual liquidation.
// POST /api/v1/liquidate
func handleLiquidate(trades Trader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req liquidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if !validAddressRegex.MatchString(req.TokenAddress) {
			writeError(w, "invalid token address", http.StatusBadRequest)
			return
		}

		logger.Info("manual liquidation requested", "token", req.TokenSymbol, "mint", req.TokenAddress)

		result, err := trades.ExecuteSell(r.Context(), req.TokenSymbol, req.TokenAddress)
		if err != nil {
			status := http.StatusBadGateway
			switch executor.KindOf(err) {
			case executor.KindTradeInProgress, executor.KindCooldownActive:
				status = http.StatusConflict
			case executor.KindInvalidAmount:
				status = http.StatusBadRequest
			}
			logger.Error("liquidation failed", "token", req.TokenSymbol, "error", err)
			writeJSON(w, result, status)
			return
		}

		writeJSON(w, result, http.StatusOK)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
