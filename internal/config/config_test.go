package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5.0, cfg.Trading.OrderSize)
	assert.True(t, cfg.Trading.PaperTrading)
	assert.True(t, cfg.Trading.ShadowMode)
	assert.Equal(t, 1500*time.Millisecond, cfg.Trading.StaleBook.Duration)
	assert.Equal(t, 1.4, cfg.Adaptive.Multiplier)
	assert.Equal(t, 40, cfg.Tuner.Window)
	assert.Equal(t, 20, cfg.Risk.MaxOrdersPerMinute)
	assert.False(t, cfg.Live())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polyarb.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[markets]
ids = ["m1", "m2"]
complement_pairs = "a:b"

[trading]
order_size = 10
stale_book = "3s"

[redis]
addr = "localhost:6379"
`), 0o600))

	t.Setenv("POLYARB_TRADING_FEE_BPS", "42")
	t.Setenv("COMPLEMENT_PAIRS", "x:y")
	t.Setenv("POLYARB_MARKETS_COMPLEMENT_PAIRS", "c:d")
	t.Setenv("POLYARB_SPREAD_COOLDOWN", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"m1", "m2"}, cfg.Markets.IDs)
	assert.Equal(t, 10.0, cfg.Trading.OrderSize)
	assert.Equal(t, 3*time.Second, cfg.Trading.StaleBook.Duration)
	assert.Equal(t, 42.0, cfg.Trading.FeeBps)
	assert.Equal(t, "c:d", cfg.Markets.ComplementPairs, "prefixed variable wins over the alias")
	assert.Equal(t, 250*time.Millisecond, cfg.Spread.Cooldown.Duration)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "polyarb:events", cfg.Redis.Stream, "defaults survive a partial section")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobURL)
}

func TestValidateAggregates(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Trading.OrderSize = 0
	cfg.Polymarket.AuthHeaders = "{not json"
	cfg.Polymarket.SubscribePayload = "[1,"
	cfg.Tuner.MinMultiplier = 3

	err := cfg.Validate()
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	msg := err.Error()
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "order_size")
	assert.Contains(t, msg, "auth_headers")
	assert.Contains(t, msg, "subscribe_payload")
	assert.Contains(t, msg, "min_multiplier")
}

func TestAuthHeaderMap(t *testing.T) {
	cfg := Defaults()

	headers, err := cfg.AuthHeaderMap()
	require.NoError(t, err)
	assert.Nil(t, headers)

	cfg.Polymarket.AuthHeaders = `{"Authorization":"Bearer t","X-Retry":3}`
	headers, err = cfg.AuthHeaderMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer t", "X-Retry": "3"}, headers)

	cfg.Polymarket.AuthHeaders = `["a"]`
	_, err = cfg.AuthHeaderMap()
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Polymarket.APISecret = "s3cret"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Markets.IDs = []string{"m1"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Polymarket.APISecret)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Equal(t, "", out.Polymarket.APIKey, "empty values stay empty")
	assert.Equal(t, "s3cret", cfg.Polymarket.APISecret)

	out.Markets.IDs[0] = "changed"
	assert.Equal(t, "m1", cfg.Markets.IDs[0])
}
