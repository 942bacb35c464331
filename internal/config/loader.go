package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). The unprefixed names used by earlier deployments are read first so
// the prefixed form wins when both are present.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobURL, "POLYARB_POLYMARKET_CLOB_URL")
	setStr(&cfg.Polymarket.WSURL, "POLYARB_POLYMARKET_WS_URL")
	setStr(&cfg.Polymarket.GammaURL, "POLYARB_POLYMARKET_GAMMA_URL")
	setStr(&cfg.Polymarket.DataURL, "POLYARB_POLYMARKET_DATA_URL")
	setStr(&cfg.Polymarket.APIKey, "CLOB_API_KEY") // compatibility alias
	setStr(&cfg.Polymarket.APIKey, "POLYARB_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "CLOB_API_SECRET") // compatibility alias
	setStr(&cfg.Polymarket.APISecret, "POLYARB_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "CLOB_API_PASSPHRASE") // compatibility alias
	setStr(&cfg.Polymarket.APIPassphrase, "POLYARB_POLYMARKET_API_PASSPHRASE")
	setStr(&cfg.Polymarket.Address, "POLYARB_POLYMARKET_ADDRESS")
	setStr(&cfg.Polymarket.AuthHeaders, "CLOB_AUTH_HEADERS") // compatibility alias
	setStr(&cfg.Polymarket.AuthHeaders, "POLYARB_POLYMARKET_AUTH_HEADERS")
	setStr(&cfg.Polymarket.SubscribePayload, "CLOB_WS_SUBSCRIBE_PAYLOAD") // compatibility alias
	setStr(&cfg.Polymarket.SubscribePayload, "POLYARB_POLYMARKET_SUBSCRIBE_PAYLOAD")
	setStr(&cfg.Polymarket.CredentialsFile, "POLYARB_POLYMARKET_CREDENTIALS_FILE")
	setStr(&cfg.Polymarket.CredentialsPassword, "POLYARB_POLYMARKET_CREDENTIALS_PASSWORD")

	// ── Markets ──
	setStringSlice(&cfg.Markets.IDs, "MARKET_IDS") // compatibility alias
	setStringSlice(&cfg.Markets.IDs, "POLYARB_MARKETS_IDS")
	setStr(&cfg.Markets.ComplementPairs, "COMPLEMENT_PAIRS") // compatibility alias
	setStr(&cfg.Markets.ComplementPairs, "POLYARB_MARKETS_COMPLEMENT_PAIRS")
	setBool(&cfg.Markets.AutoDiscoverPairs, "POLYARB_MARKETS_AUTO_DISCOVER_PAIRS")
	setBool(&cfg.Markets.CrossMarket, "POLYARB_MARKETS_CROSS_MARKET")

	// ── Trading ──
	setFloat64(&cfg.Trading.OrderSize, "POLYARB_TRADING_ORDER_SIZE")
	setBool(&cfg.Trading.PaperTrading, "POLYARB_TRADING_PAPER_TRADING")
	setBool(&cfg.Trading.ShadowMode, "POLYARB_TRADING_SHADOW_MODE")
	setFloat64(&cfg.Trading.FeeBps, "POLYARB_TRADING_FEE_BPS")
	setFloat64(&cfg.Trading.SlippageBps, "POLYARB_TRADING_SLIPPAGE_BPS")
	setFloat64(&cfg.Trading.LatencyBps, "POLYARB_TRADING_LATENCY_BPS")
	setDuration(&cfg.Trading.StaleBook, "POLYARB_TRADING_STALE_BOOK")
	setInt(&cfg.Trading.MaxConsecutiveErrors, "POLYARB_TRADING_MAX_CONSECUTIVE_ERRORS")
	setStr(&cfg.Trading.TimeInForce, "POLYARB_TRADING_TIME_IN_FORCE")
	setStr(&cfg.Trading.OrderType, "POLYARB_TRADING_ORDER_TYPE")

	// ── Adaptive / Tuner ──
	setBool(&cfg.Adaptive.Enabled, "POLYARB_ADAPTIVE_ENABLED")
	setFloat64(&cfg.Adaptive.Alpha, "POLYARB_ADAPTIVE_ALPHA")
	setFloat64(&cfg.Adaptive.Multiplier, "POLYARB_ADAPTIVE_MULTIPLIER")
	setBool(&cfg.Tuner.Enabled, "POLYARB_TUNER_ENABLED")
	setInt(&cfg.Tuner.Window, "POLYARB_TUNER_WINDOW")
	setFloat64(&cfg.Tuner.Step, "POLYARB_TUNER_STEP")
	setFloat64(&cfg.Tuner.MinMultiplier, "POLYARB_TUNER_MIN_MULTIPLIER")
	setFloat64(&cfg.Tuner.MaxMultiplier, "POLYARB_TUNER_MAX_MULTIPLIER")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxNotionalPerMarket, "POLYARB_RISK_MAX_NOTIONAL_PER_MARKET")
	setFloat64(&cfg.Risk.MaxTotalExposure, "POLYARB_RISK_MAX_TOTAL_EXPOSURE")
	setFloat64(&cfg.Risk.DailyLossLimit, "POLYARB_RISK_DAILY_LOSS_LIMIT")
	setInt(&cfg.Risk.MaxOrdersPerMinute, "POLYARB_RISK_MAX_ORDERS_PER_MINUTE")

	// ── Spread ──
	setBool(&cfg.Spread.Enabled, "POLYARB_SPREAD_ENABLED")
	setFloat64(&cfg.Spread.SpreadMinBps, "POLYARB_SPREAD_SPREAD_MIN_BPS")
	setFloat64(&cfg.Spread.MinEdgeBps, "POLYARB_SPREAD_MIN_EDGE_BPS")
	setDuration(&cfg.Spread.Cooldown, "POLYARB_SPREAD_COOLDOWN")

	// ── Control / Positions / Telemetry ──
	setDuration(&cfg.Control.PollInterval, "POLYARB_CONTROL_POLL_INTERVAL")
	setStr(&cfg.Positions.User, "DATA_API_USER") // compatibility alias
	setStr(&cfg.Positions.User, "POLYARB_POSITIONS_USER")
	setInt(&cfg.Positions.Limit, "POLYARB_POSITIONS_LIMIT")
	setDuration(&cfg.Positions.PollInterval, "POLYARB_POSITIONS_POLL_INTERVAL")
	setFloat64(&cfg.Positions.MinBalanceUSDC, "POLYARB_POSITIONS_MIN_BALANCE_USDC")
	setInt(&cfg.Telemetry.BufferSize, "POLYARB_TELEMETRY_BUFFER_SIZE")
	setDuration(&cfg.Telemetry.Heartbeat, "POLYARB_TELEMETRY_HEARTBEAT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POLYARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "POLYARB_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "POLYARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.MaxConns, "POLYARB_POSTGRES_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "POLYARB_REDIS_URL")
	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYARB_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "POLYARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Stream, "POLYARB_REDIS_STREAM")
	setStr(&cfg.Redis.Channel, "POLYARB_REDIS_CHANNEL")
	setDuration(&cfg.Redis.LockTTL, "POLYARB_REDIS_LOCK_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYARB_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "POLYARB_S3_PREFIX")
	setInt(&cfg.S3.BatchSize, "POLYARB_S3_BATCH_SIZE")
	setDuration(&cfg.S3.FlushInterval, "POLYARB_S3_FLUSH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYARB_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "POLYARB_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "POLYARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POLYARB_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYARB_NOTIFY_EVENTS")
	setInt(&cfg.Notify.MaxPerWindow, "POLYARB_NOTIFY_MAX_PER_WINDOW")
	setDuration(&cfg.Notify.Window, "POLYARB_NOTIFY_WINDOW")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
