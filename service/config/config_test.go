package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("KEYFILE_PATH", "/tmp/wallet.json")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.SolanaRPCURL)
	assert.Equal(t, "/tmp/wallet.json", cfg.KeyfilePath)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, "https://quote-api.jup.ag/v6", cfg.JupiterBaseURL)
	assert.False(t, cfg.TradingEnabled)
	assert.Equal(t, 0.1, cfg.TradeSizeSOL)
	assert.Equal(t, 100, cfg.SlippageBps)
	assert.Equal(t, 5*time.Minute, cfg.Cooldown)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, time.Hour, cfg.QueueRetention)
	assert.Equal(t, "pending_trades.json", cfg.QueuePath)
	assert.Equal(t, "wallet_stats.json", cfg.LedgerPath)
}

func TestLoad_MissingSolanaRPCURL(t *testing.T) {
	os.Setenv("KEYFILE_PATH", "/tmp/wallet.json")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL is required")
}

func TestLoad_MissingKeyfilePath(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "KEYFILE_PATH is required")
}

func TestLoad_InvalidCooldown(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("KEYFILE_PATH", "/tmp/wallet.json")
	os.Setenv("TRADE_COOLDOWN", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_TokenMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ANON":"9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump"}`), 0o644))

	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("KEYFILE_PATH", "/tmp/wallet.json")
	os.Setenv("TOKEN_MAP_PATH", path)
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump", cfg.Tokens["ANON"])
}

func TestLoad_TokenMapMissingFile(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("KEYFILE_PATH", "/tmp/wallet.json")
	os.Setenv("TOKEN_MAP_PATH", "/nonexistent/tokens.json")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "TOKEN_MAP_PATH")
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("KEYFILE_PATH", "/tmp/wallet.json")
	os.Setenv("TRADING_ENABLED", "true")
	os.Setenv("TRADE_SIZE_SOL", "0.25")
	os.Setenv("SLIPPAGE_BPS", "250")
	os.Setenv("TRADE_COOLDOWN", "10m")
	os.Setenv("TICK_INTERVAL", "3s")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.TradingEnabled)
	assert.Equal(t, 0.25, cfg.TradeSizeSOL)
	assert.Equal(t, 250, cfg.SlippageBps)
	assert.Equal(t, 10*time.Minute, cfg.Cooldown)
	assert.Equal(t, 3*time.Second, cfg.TickInterval)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		SolanaRPCURL:    "https://api.mainnet-beta.solana.com",
		KeyfilePath:     "/tmp/wallet.json",
		TradeSizeSOL:    0.1,
		SlippageBps:     100,
		Cooldown:        5 * time.Minute,
		TickInterval:    5 * time.Second,
		QueueRetention:  time.Hour,
		HistoryPageSize: 100,
	}
	require.NoError(t, cfg.Validate())

	cfg.TradeSizeSOL = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TradeSizeSOL must be positive")
}

func cleanupEnv() {
	vars := []string{
		"SERVER_ADDR", "LOG_LEVEL",
		"SOLANA_RPC_URL", "KEYFILE_PATH", "JUPITER_BASE_URL", "NATS_URL",
		"TRADING_ENABLED", "TRADE_SIZE_SOL", "SLIPPAGE_BPS",
		"PRIORITY_FEE_FLOOR_LAMPORTS", "TRADE_COOLDOWN", "TOKEN_MAP_PATH",
		"TICK_INTERVAL", "BALANCE_REFRESH_INTERVAL", "QUEUE_RETENTION",
		"HISTORY_PAGE_SIZE", "DUST_THRESHOLD_SOL", "DUST_THRESHOLD_TOKENS",
		"QUEUE_PATH", "LEDGER_PATH", "TRADE_LOG_PATH",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
