package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jupexec/service/metrics"
	"jupexec/service/queue"
)

// Server is the admin HTTP surface: health, metrics, and read-only views
// over the queue, ledger and trade log, plus the manual liquidation hook.
type Server struct {
	addr       string
	ledgers    LedgerSource
	trades     Trader
	queueStore *queue.Store
	tradeLog   *queue.TradeLog
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, ledgers LedgerSource, trades Trader, queueStore *queue.Store, tradeLog *queue.TradeLog, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		ledgers:    ledgers,
		trades:     trades,
		queueStore: queueStore,
		tradeLog:   tradeLog,
		metrics:    m,
		logger:     logger,
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/ledger", handleGetLedger(s.ledgers, s.logger))
	mux.Handle("GET /api/v1/queue", handleListQueue(s.queueStore, s.logger))
	mux.Handle("GET /api/v1/trades", handleListTrades(s.tradeLog, s.logger))
	mux.Handle("GET /api/v1/status", handleGetStatus(s.trades, s.logger))
	mux.Handle("POST /api/v1/liquidate", handleLiquidate(s.trades, s.logger))
	mux.Handle("POST /api/v1/reconcile", handleReconcile(s.ledgers, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = metrics.HTTPMetricsMiddleware(s.metrics, "api")(handler)
	}
	handler = corsMiddleware(handler)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
