package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-worker")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "wager_placed", cfg.TopicWagerPlaced)
	assert.Equal(t, "9097", cfg.MetricsPort)
	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, 1200*time.Millisecond, cfg.Ledger.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Ledger.PollWindow)
	assert.Equal(t, 15*time.Second, cfg.Ledger.RateLimitBackoff)
	assert.Equal(t, "ErfuhJxxpHNKviT5LCnupGhSUbXpjfRThxikEgb94aDt", cfg.Ledger.ProgramID)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "wager-service")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("SETTLE_CONCURRENCY", "3")
	t.Setenv("AUTO_RECLAIM", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, 2*time.Second, cfg.Ledger.PollInterval)
	assert.Equal(t, 3, cfg.Ledger.SettleConcurrency)
	assert.True(t, cfg.Ledger.AutoReclaim)
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("POLL_WINDOW", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_WINDOW")
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roulette.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  rpc_url: http://localhost:8899
  stake_mint: 4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU
  poll_window: 45s
  settle_concurrency: 2
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SOLANA_RPC_URL", "https://api.devnet.solana.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8899", cfg.Ledger.RPCURL)
	assert.Equal(t, "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", cfg.Ledger.StakeMint)
	assert.Equal(t, 45*time.Second, cfg.Ledger.PollWindow)
	assert.Equal(t, 2, cfg.Ledger.SettleConcurrency)
	// campos ausentes no arquivo mantêm o valor do ambiente
	assert.Equal(t, 1200*time.Millisecond, cfg.Ledger.PollInterval)
}

func TestLoadFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}
