package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"jupexec/service/config"
	"jupexec/service/executor"
	"jupexec/service/jupiter"
	"jupexec/service/ledger"
	"jupexec/service/metrics"
	"jupexec/service/nats"
	"jupexec/service/queue"
	"jupexec/service/reconcile"
	"jupexec/service/scheduler"
	"jupexec/service/server"
	"jupexec/service/solana"
)

func main() {
	// Load and validate configuration from environment.
	// This fails fast if any required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting trade executor",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"trading_enabled", cfg.TradingEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wallet, err := solana.LoadWallet(cfg.KeyfilePath)
	if err != nil {
		logger.Error("failed to load wallet keyfile", "path", cfg.KeyfilePath, "error", err)
		os.Exit(1)
	}
	logger.Info("wallet loaded", "address", wallet.Address())

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	chain := solana.NewClient(solanaRPC, m, logger)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	jupiterClient := jupiter.NewClient(cfg.JupiterBaseURL, m, logger)

	// NATS is optional; the executor runs without event publishing if the
	// broker is unreachable at startup.
	var publisher nats.Publisher
	if cfg.NATSURL != "" {
		p, err := nats.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Warn("NATS unavailable, events disabled", "url", cfg.NATSURL, "error", err)
		} else {
			publisher = p
			defer p.Close()
		}
	}

	queueStore := queue.NewStore(cfg.QueuePath, logger)
	tradeLog := queue.NewTradeLog(cfg.TradeLogPath)
	ledgerStore := ledger.NewStore(cfg.LedgerPath, logger)

	reconciler := reconcile.New(wallet.PublicKey(), chain, ledgerStore, publisher, m, logger, reconcile.Options{
		HistoryPageSize:     cfg.HistoryPageSize,
		DustThresholdSOL:    cfg.DustThresholdSOL,
		DustThresholdTokens: cfg.DustThresholdTokens,
	})

	primarySymbol := cfg.PrimaryToken
	primaryMint := cfg.Tokens[primarySymbol]

	sched := scheduler.New(wallet.PublicKey(), queueStore, tradeLog, ledgerStore, nil, reconciler, chain, m, logger, scheduler.Options{
		TradingEnabled:         cfg.TradingEnabled,
		TickInterval:           cfg.TickInterval,
		BalanceRefreshInterval: cfg.BalanceRefreshInterval,
		QueueRetention:         cfg.QueueRetention,
		PrimaryTokenSymbol:     primarySymbol,
		PrimaryTokenMint:       primaryMint,
	})

	exec := executor.New(wallet, chain, jupiterClient, sched, publisher, m, logger, executor.Options{
		SlippageBps:      cfg.SlippageBps,
		PriorityFeeFloor: cfg.PriorityFeeFloor,
		Cooldown:         cfg.Cooldown,
	})
	sched.SetExecutor(exec)

	if err := sched.Init(ctx); err != nil {
		logger.Error("failed to load ledger", "error", err)
		os.Exit(1)
	}

	httpServer := server.New(cfg.ServerAddr, sched, exec, queueStore, tradeLog, m, logger)

	schedErrors := make(chan error, 1)
	go func() {
		schedErrors <- sched.Run(ctx)
	}()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}
		<-schedErrors

		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
