package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"BasketLedger/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.GRPC.Addr)
	assert.Equal(t, 100, cfg.Persist.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Persist.FlushTimeout)
	assert.Equal(t, "ETH", cfg.Currency.Symbol)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, int64(10_000), cfg.Checkpoint.Interval)
	assert.True(t, cfg.Projection.Enabled)
	assert.Equal(t, time.Second, cfg.Projection.Interval)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basketd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
grpc:
  addr: ":7000"
escrow:
  transaction_fee_bps: 25
persist:
  batch_size: 7
`), 0o600))

	t.Setenv("BASKET_PERSIST_BATCH_SIZE", "42")
	t.Setenv("BASKET_NATS_ENABLED", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.GRPC.Addr)
	assert.Equal(t, uint64(25), cfg.Escrow.TransactionFeeBps)
	assert.Equal(t, 42, cfg.Persist.BatchSize, "env overrides file")
	assert.True(t, cfg.NATS.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("BASKET_ESCROW_TRANSACTION_FEE_BPS", "10001")
	t.Setenv("BASKET_FACTORY_ADMIN", "not-an-address")
	t.Setenv("BASKET_PROJECTION_BATCH_SIZE", "0")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escrow.transaction_fee_bps")
	assert.Contains(t, err.Error(), "factory.admin")
	assert.Contains(t, err.Error(), "projection")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
