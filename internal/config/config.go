// Package config defines the top-level configuration for the arbitrage
// trader and provides validation helpers.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYARB_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Markets    MarketsConfig    `toml:"markets"`
	Trading    TradingConfig    `toml:"trading"`
	Adaptive   AdaptiveConfig   `toml:"adaptive"`
	Tuner      TunerConfig      `toml:"tuner"`
	Risk       RiskConfig       `toml:"risk"`
	Spread     SpreadConfig     `toml:"spread"`
	Control    ControlConfig    `toml:"control"`
	Positions  PositionsConfig  `toml:"positions"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds endpoints and API credentials.
type PolymarketConfig struct {
	ClobURL  string `toml:"clob_url"`
	WSURL    string `toml:"ws_url"`
	GammaURL string `toml:"gamma_url"`
	DataURL  string `toml:"data_url"`

	APIKey        string `toml:"api_key"`
	APISecret     string `toml:"api_secret"`
	APIPassphrase string `toml:"api_passphrase"`
	Address       string `toml:"address"`

	// AuthHeaders is a JSON object of headers sent verbatim instead of the
	// API key triple.
	AuthHeaders string `toml:"auth_headers"`
	// SubscribePayload is a JSON document replacing the default book
	// subscription.
	SubscribePayload string `toml:"subscribe_payload"`

	CredentialsFile     string `toml:"credentials_file"`
	CredentialsPassword string `toml:"credentials_password"`
}

// MarketsConfig selects the traded universe.
type MarketsConfig struct {
	IDs []string `toml:"ids"`
	// ComplementPairs is "a:b,c:d".
	ComplementPairs   string `toml:"complement_pairs"`
	AutoDiscoverPairs bool   `toml:"auto_discover_pairs"`
	CrossMarket       bool   `toml:"cross_market"`
}

// TradingConfig holds the cost model and execution mode.
type TradingConfig struct {
	OrderSize            float64  `toml:"order_size"`
	PaperTrading         bool     `toml:"paper_trading"`
	ShadowMode           bool     `toml:"shadow_mode"`
	FeeBps               float64  `toml:"fee_bps"`
	SlippageBps          float64  `toml:"slippage_bps"`
	LatencyBps           float64  `toml:"latency_bps"`
	StaleBook            duration `toml:"stale_book"`
	MaxConsecutiveErrors int      `toml:"max_consecutive_errors"`
	TimeInForce          string   `toml:"time_in_force"`
	OrderType            string   `toml:"order_type"`
}

// AdaptiveConfig controls the volatility-scaled spread buffer.
type AdaptiveConfig struct {
	Enabled    bool    `toml:"enabled"`
	Alpha      float64 `toml:"alpha"`
	Multiplier float64 `toml:"multiplier"`
}

// TunerConfig controls the adaptive multiplier auto-tuner.
type TunerConfig struct {
	Enabled       bool    `toml:"enabled"`
	Window        int     `toml:"window"`
	Step          float64 `toml:"step"`
	MinMultiplier float64 `toml:"min_multiplier"`
	MaxMultiplier float64 `toml:"max_multiplier"`
}

// RiskConfig holds the admission limits.
type RiskConfig struct {
	MaxNotionalPerMarket float64 `toml:"max_notional_per_market"`
	MaxTotalExposure     float64 `toml:"max_total_exposure"`
	DailyLossLimit       float64 `toml:"daily_loss_limit"`
	MaxOrdersPerMinute   int     `toml:"max_orders_per_minute"`
}

// SpreadConfig holds the single-market spread capture strategy.
type SpreadConfig struct {
	Enabled      bool     `toml:"enabled"`
	SpreadMinBps float64  `toml:"spread_min_bps"`
	MinEdgeBps   float64  `toml:"min_edge_bps"`
	Cooldown     duration `toml:"cooldown"`
}

// ControlConfig holds the operator control poll interval.
type ControlConfig struct {
	PollInterval duration `toml:"poll_interval"`
}

// PositionsConfig holds the data-api positions poller.
type PositionsConfig struct {
	User           string   `toml:"user"`
	Limit          int      `toml:"limit"`
	PollInterval   duration `toml:"poll_interval"`
	MinBalanceUSDC float64  `toml:"min_balance_usdc"`
}

// TelemetryConfig sizes the event buffer and the heartbeat.
type TelemetryConfig struct {
	BufferSize int      `toml:"buffer_size"`
	Heartbeat  duration `toml:"heartbeat"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty DSN and
// host disables the event and control stores.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	MaxConns      int    `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether a database is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || p.Host != ""
}

// RedisConfig holds Redis connection parameters. URL wins over Addr.
type RedisConfig struct {
	URL        string   `toml:"url"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	TLSEnabled bool     `toml:"tls_enabled"`
	Stream     string   `toml:"stream"`
	Channel    string   `toml:"channel"`
	LockTTL    duration `toml:"lock_ttl"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Addr != ""
}

// S3Config holds S3-compatible object storage parameters for the event
// archive. An empty bucket disables archiving.
type S3Config struct {
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Prefix         string   `toml:"prefix"`
	BatchSize      int      `toml:"batch_size"`
	FlushInterval  duration `toml:"flush_interval"`
}

// ServerConfig holds the ops HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	APIKey  string `toml:"api_key"`
	// RateLimit is requests per minute per client; 0 disables it.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MaxPerWindow caps alerts per event type per Window; 0 disables it.
	MaxPerWindow int      `toml:"max_per_window"`
	Window       duration `toml:"window"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobURL:  "https://clob.polymarket.com",
			WSURL:    "wss://ws-subscriptions-clob.polymarket.com",
			GammaURL: "https://gamma-api.polymarket.com",
			DataURL:  "https://data-api.polymarket.com",
		},
		Markets: MarketsConfig{
			AutoDiscoverPairs: true,
			CrossMarket:       true,
		},
		Trading: TradingConfig{
			OrderSize:            5,
			PaperTrading:         true,
			ShadowMode:           true,
			FeeBps:               100,
			SlippageBps:          5,
			LatencyBps:           5,
			StaleBook:            duration{1500 * time.Millisecond},
			MaxConsecutiveErrors: 5,
		},
		Adaptive: AdaptiveConfig{
			Enabled:    true,
			Alpha:      0.2,
			Multiplier: 1.4,
		},
		Tuner: TunerConfig{
			Enabled:       true,
			Window:        40,
			Step:          0.05,
			MinMultiplier: 1.1,
			MaxMultiplier: 2.5,
		},
		Risk: RiskConfig{
			MaxNotionalPerMarket: 250,
			MaxTotalExposure:     1000,
			DailyLossLimit:       200,
			MaxOrdersPerMinute:   20,
		},
		Spread: SpreadConfig{
			Enabled:      false,
			SpreadMinBps: 20,
			MinEdgeBps:   5,
			Cooldown:     duration{1500 * time.Millisecond},
		},
		Control: ControlConfig{
			PollInterval: duration{5 * time.Second},
		},
		Positions: PositionsConfig{
			Limit:          200,
			PollInterval:   duration{15 * time.Second},
			MinBalanceUSDC: 25,
		},
		Telemetry: TelemetryConfig{
			BufferSize: 1024,
			Heartbeat:  duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			MaxConns:      10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize: 20,
			Stream:   "polyarb:events",
			Channel:  "polyarb:events:live",
			LockTTL:  duration{30 * time.Second},
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
			Prefix:         "polyarb",
			BatchSize:      500,
			FlushInterval:  duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:   true,
			Addr:      ":8080",
			RateLimit: 120,
		},
		Notify: NotifyConfig{
			Events:       []string{"kill_switch", "funds_insufficient", "execution_error"},
			MaxPerWindow: 5,
			Window:       duration{time.Minute},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Live reports whether the configuration allows real orders.
func (c *Config) Live() bool {
	return !c.Trading.PaperTrading && !c.Trading.ShadowMode
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket
	if c.Polymarket.ClobURL == "" {
		errs = append(errs, "polymarket: clob_url must not be empty")
	}
	if c.Polymarket.WSURL == "" {
		errs = append(errs, "polymarket: ws_url must not be empty")
	}
	if c.Polymarket.AuthHeaders != "" {
		if _, err := c.AuthHeaderMap(); err != nil {
			errs = append(errs, "polymarket: auth_headers: "+err.Error())
		}
	}
	if c.Polymarket.SubscribePayload != "" && !json.Valid([]byte(c.Polymarket.SubscribePayload)) {
		errs = append(errs, "polymarket: subscribe_payload is not valid JSON")
	}
	if c.Polymarket.CredentialsFile != "" && c.Polymarket.CredentialsPassword == "" {
		errs = append(errs, "polymarket: credentials_password is required when credentials_file is set")
	}

	// Trading
	if c.Trading.OrderSize <= 0 {
		errs = append(errs, "trading: order_size must be > 0")
	}
	if c.Trading.FeeBps < 0 || c.Trading.SlippageBps < 0 || c.Trading.LatencyBps < 0 {
		errs = append(errs, "trading: fee_bps, slippage_bps and latency_bps must be >= 0")
	}
	if c.Trading.StaleBook.Duration <= 0 {
		errs = append(errs, "trading: stale_book must be > 0")
	}
	if c.Trading.MaxConsecutiveErrors < 1 {
		errs = append(errs, "trading: max_consecutive_errors must be >= 1")
	}

	// Adaptive
	if c.Adaptive.Alpha <= 0 || c.Adaptive.Alpha > 1 {
		errs = append(errs, fmt.Sprintf("adaptive: alpha must be in (0, 1], got %g", c.Adaptive.Alpha))
	}
	if c.Adaptive.Multiplier < 0 {
		errs = append(errs, "adaptive: multiplier must be >= 0")
	}

	// Tuner
	if c.Tuner.Enabled {
		if c.Tuner.Window < 1 {
			errs = append(errs, "tuner: window must be >= 1")
		}
		if c.Tuner.Step <= 0 {
			errs = append(errs, "tuner: step must be > 0")
		}
		if c.Tuner.MinMultiplier > c.Tuner.MaxMultiplier {
			errs = append(errs, "tuner: min_multiplier must not exceed max_multiplier")
		}
	}

	// Risk
	if c.Risk.MaxNotionalPerMarket <= 0 {
		errs = append(errs, "risk: max_notional_per_market must be > 0")
	}
	if c.Risk.MaxTotalExposure <= 0 {
		errs = append(errs, "risk: max_total_exposure must be > 0")
	}
	if c.Risk.DailyLossLimit <= 0 {
		errs = append(errs, "risk: daily_loss_limit must be > 0")
	}
	if c.Risk.MaxOrdersPerMinute < 1 {
		errs = append(errs, "risk: max_orders_per_minute must be >= 1")
	}

	// Polling
	if c.Control.PollInterval.Duration <= 0 {
		errs = append(errs, "control: poll_interval must be > 0")
	}
	if c.Positions.User != "" {
		if c.Positions.PollInterval.Duration <= 0 {
			errs = append(errs, "positions: poll_interval must be > 0")
		}
		if c.Positions.Limit < 1 {
			errs = append(errs, "positions: limit must be >= 1")
		}
	}
	if c.Telemetry.BufferSize < 1 {
		errs = append(errs, "telemetry: buffer_size must be >= 1")
	}
	if c.Telemetry.Heartbeat.Duration <= 0 {
		errs = append(errs, "telemetry: heartbeat must be > 0")
	}

	// Postgres
	if c.Postgres.Enabled() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.MaxConns < 1 {
			errs = append(errs, "postgres: max_conns must be >= 1")
		}
	}

	// Redis
	if c.Redis.Enabled() {
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.Stream == "" {
			errs = append(errs, "redis: stream must not be empty")
		}
		if c.Redis.LockTTL.Duration < time.Second {
			errs = append(errs, "redis: lock_ttl must be >= 1s")
		}
	}

	// S3
	if c.S3.Bucket != "" {
		if c.S3.BatchSize < 1 {
			errs = append(errs, "s3: batch_size must be >= 1")
		}
		if c.S3.FlushInterval.Duration <= 0 {
			errs = append(errs, "s3: flush_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty when enabled")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.MaxPerWindow > 0 && c.Notify.Window.Duration <= 0 {
		errs = append(errs, "notify: window must be > 0 when max_per_window is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: config validation failed:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// AuthHeaderMap decodes Polymarket.AuthHeaders. Non-string values are
// rendered with fmt. An empty setting yields a nil map.
func (c *Config) AuthHeaderMap() (map[string]string, error) {
	if strings.TrimSpace(c.Polymarket.AuthHeaders) == "" {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(c.Polymarket.AuthHeaders), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}
