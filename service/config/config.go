package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Solana configuration
	SolanaRPCURL string
	KeyfilePath  string

	// Jupiter aggregator configuration
	JupiterBaseURL string

	// NATS configuration
	NATSURL string

	// Trading configuration
	TradingEnabled   bool
	TradeSizeSOL     float64
	SlippageBps      int
	PriorityFeeFloor uint64 // lamports
	Cooldown         time.Duration
	TokenMapPath     string
	Tokens           map[string]string // symbol -> mint address
	PrimaryToken     string            // symbol whose position is tracked in the ledger

	// Scheduler configuration
	TickInterval           time.Duration
	BalanceRefreshInterval time.Duration
	QueueRetention         time.Duration

	// Reconciliation configuration
	HistoryPageSize     int
	DustThresholdSOL    float64
	DustThresholdTokens float64

	// File paths for the durable stores
	QueuePath    string
	LedgerPath   string
	TradeLogPath string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.KeyfilePath = os.Getenv("KEYFILE_PATH")
	if cfg.KeyfilePath == "" {
		errs = append(errs, fmt.Errorf("KEYFILE_PATH is required"))
	}

	// Jupiter configuration
	cfg.JupiterBaseURL = getEnvOrDefault("JUPITER_BASE_URL", "https://quote-api.jup.ag/v6")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Trading configuration
	cfg.TradingEnabled = getEnvOrDefault("TRADING_ENABLED", "false") == "true"

	tradeSize, err := parseFloat("TRADE_SIZE_SOL", "0.1")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TradeSizeSOL = tradeSize
	}

	slippage, err := parseInt("SLIPPAGE_BPS", 100)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SlippageBps = slippage
	}

	feeFloor, err := parseInt("PRIORITY_FEE_FLOOR_LAMPORTS", 10000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriorityFeeFloor = uint64(feeFloor)
	}

	cooldown, err := parseDuration("TRADE_COOLDOWN", "5m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Cooldown = cooldown
	}

	// Scheduler configuration
	tick, err := parseDuration("TICK_INTERVAL", "5s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TickInterval = tick
	}

	refresh, err := parseDuration("BALANCE_REFRESH_INTERVAL", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BalanceRefreshInterval = refresh
	}

	retention, err := parseDuration("QUEUE_RETENTION", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.QueueRetention = retention
	}

	// Reconciliation configuration
	pageSize, err := parseInt("HISTORY_PAGE_SIZE", 100)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryPageSize = pageSize
	}

	dustSOL, err := parseFloat("DUST_THRESHOLD_SOL", "0.001")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DustThresholdSOL = dustSOL
	}

	dustTokens, err := parseFloat("DUST_THRESHOLD_TOKENS", "1")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DustThresholdTokens = dustTokens
	}

	// File paths
	cfg.QueuePath = getEnvOrDefault("QUEUE_PATH", "pending_trades.json")
	cfg.LedgerPath = getEnvOrDefault("LEDGER_PATH", "wallet_stats.json")
	cfg.TradeLogPath = getEnvOrDefault("TRADE_LOG_PATH", "trade_log.json")

	// Token map: JSON file of symbol -> mint address.
	// The file format matches the "tokens" section of the producer's bot config.
	cfg.TokenMapPath = os.Getenv("TOKEN_MAP_PATH")
	if cfg.TokenMapPath != "" {
		tokens, err := loadTokenMap(cfg.TokenMapPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("TOKEN_MAP_PATH: %w", err))
		} else {
			cfg.Tokens = tokens
		}
	}

	cfg.PrimaryToken = os.Getenv("PRIMARY_TOKEN")
	if cfg.PrimaryToken != "" && cfg.Tokens[cfg.PrimaryToken] == "" {
		errs = append(errs, fmt.Errorf("PRIMARY_TOKEN %q is not in the token map", cfg.PrimaryToken))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for daemon initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.KeyfilePath == "" {
		errs = append(errs, fmt.Errorf("KeyfilePath is required"))
	}

	if c.TradeSizeSOL <= 0 {
		errs = append(errs, fmt.Errorf("TradeSizeSOL must be positive"))
	}

	if c.SlippageBps <= 0 || c.SlippageBps > 10000 {
		errs = append(errs, fmt.Errorf("SlippageBps must be in (0, 10000]"))
	}

	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("Cooldown cannot be negative"))
	}

	if c.TickInterval < time.Second {
		errs = append(errs, fmt.Errorf("TickInterval must be at least 1 second"))
	}

	if c.QueueRetention < c.TickInterval {
		errs = append(errs, fmt.Errorf("QueueRetention (%v) cannot be shorter than TickInterval (%v)",
			c.QueueRetention, c.TickInterval))
	}

	if c.HistoryPageSize <= 0 {
		errs = append(errs, fmt.Errorf("HistoryPageSize must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// loadTokenMap reads a symbol -> mint address map from a JSON file.
func loadTokenMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token map: %w", err)
	}
	tokens := make(map[string]string)
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token map: %w", err)
	}
	return tokens, nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key, defaultValue string) (float64, error) {
	value := getEnvOrDefault(key, defaultValue)
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
