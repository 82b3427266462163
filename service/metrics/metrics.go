package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Jupiter Metrics
	jupiterRequestsTotal   *prometheus.CounterVec
	jupiterRequestDuration *prometheus.HistogramVec

	// Trade Execution Metrics
	tradesExecutedTotal   *prometheus.CounterVec
	tradeExecutionSeconds *prometheus.HistogramVec
	tradeSOLSpentTotal    *prometheus.CounterVec
	queueDepth            prometheus.Gauge

	// Reconciliation Metrics
	reconcileRunsTotal       *prometheus.CounterVec
	reconcileDuration        *prometheus.HistogramVec
	acquisitionsMergedTotal  *prometheus.CounterVec
	acquisitionsSkippedTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"method"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		// Jupiter Metrics
		jupiterRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jupiter_requests_total",
				Help: "Total number of Jupiter API requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		jupiterRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jupiter_request_duration_seconds",
				Help:    "Duration of Jupiter API requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),

		// Trade Execution Metrics
		tradesExecutedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trades_executed_total",
				Help: "Total number of trade commands executed by outcome",
			},
			[]string{"kind", "outcome"},
		),
		tradeExecutionSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trade_execution_duration_seconds",
				Help:    "End-to-end duration of trade execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 180},
			},
			[]string{"kind"},
		),
		tradeSOLSpentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_sol_spent_total",
				Help: "Total SOL committed by confirmed trades",
			},
			[]string{"token"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "trade_queue_depth",
				Help: "Number of unprocessed commands in the trade queue",
			},
		),

		// Reconciliation Metrics
		reconcileRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_runs_total",
				Help: "Total number of reconciliation runs by mode and status",
			},
			[]string{"mode", "status"},
		),
		reconcileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_duration_seconds",
				Help:    "Duration of reconciliation runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"mode"},
		),
		acquisitionsMergedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acquisitions_merged_total",
				Help: "Total number of acquisition records merged into the ledger",
			},
			[]string{"provenance"},
		),
		acquisitionsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acquisitions_skipped_total",
				Help: "Total number of candidate records skipped during merge",
			},
			[]string{"reason"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(method string) {
	m.solanaRPCRateLimitHits.WithLabelValues(method).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Jupiter metric helpers

// RecordJupiterRequest records a Jupiter API request with duration.
func (m *Metrics) RecordJupiterRequest(operation, status string, duration float64) {
	m.jupiterRequestsTotal.WithLabelValues(operation, status).Inc()
	m.jupiterRequestDuration.WithLabelValues(operation).Observe(duration)
}

// Trade execution metric helpers

// RecordTradeExecuted records a completed trade command by outcome.
func (m *Metrics) RecordTradeExecuted(kind, outcome string, duration float64) {
	m.tradesExecutedTotal.WithLabelValues(kind, outcome).Inc()
	m.tradeExecutionSeconds.WithLabelValues(kind).Observe(duration)
}

// RecordTradeSOLSpent records SOL committed by a confirmed trade.
func (m *Metrics) RecordTradeSOLSpent(token string, sol float64) {
	m.tradeSOLSpentTotal.WithLabelValues(token).Add(sol)
}

// SetQueueDepth records the current number of unprocessed commands.
func (m *Metrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// Reconciliation metric helpers

// RecordReconcileRun records a reconciliation run by mode and status.
func (m *Metrics) RecordReconcileRun(mode, status string, duration float64) {
	m.reconcileRunsTotal.WithLabelValues(mode, status).Inc()
	m.reconcileDuration.WithLabelValues(mode).Observe(duration)
}

// RecordAcquisitionsMerged records acquisition records merged into the ledger.
func (m *Metrics) RecordAcquisitionsMerged(provenance string, count int) {
	m.acquisitionsMergedTotal.WithLabelValues(provenance).Add(float64(count))
}

// RecordAcquisitionsSkipped records candidate records skipped during merge.
func (m *Metrics) RecordAcquisitionsSkipped(reason string, count int) {
	m.acquisitionsSkippedTotal.WithLabelValues(reason).Add(float64(count))
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
