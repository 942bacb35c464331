package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/polyarb/internal/blob/s3"
	"github.com/alanyoungcy/polyarb/internal/cache/redis"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
	"github.com/alanyoungcy/polyarb/internal/notify"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/store/postgres"
)

// Dependencies bundles the external clients and backends the trader needs.
// Postgres, Redis and S3 are optional: their fields stay nil when the
// corresponding section is not configured.
type Dependencies struct {
	// Exchange
	Clob  *polymarket.ClobClient
	Gamma *polymarket.GammaClient
	Data  *polymarket.DataClient

	// Stores
	EventStore   *postgres.EventStore
	ControlStore *postgres.ControlStore

	// Caches
	SignalBus   *redis.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Blob storage
	Archiver *s3blob.EventArchiver

	// Notifications and metrics
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Health lists the backends reported by /api/health.
	Health map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Health:  make(map[string]handler.Pinger),
	}

	// --- Exchange clients ---
	clobOpts, err := clobAuth(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobURL, clobOpts...)
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaURL)
	deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataURL)

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.EventStore = pgClient.EventStore()
		deps.ControlStore = pgClient.ControlStore()
		deps.Health["postgres"] = pgClient
	} else {
		logger.WarnContext(ctx, "postgres not configured; events are not persisted and control stays disconnected")
	}

	// --- Redis ---
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.Stream, cfg.Redis.Channel)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Health["redis"] = redisClient
	}

	// --- S3 event archive ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewEventArchiver(s3blob.ArchiverConfig{
			Prefix:        cfg.S3.Prefix,
			BatchSize:     cfg.S3.BatchSize,
			FlushInterval: cfg.S3.FlushInterval.Duration,
		}, s3blob.NewWriter(s3Client), logger)
		deps.Health["s3"] = s3Health{s3Client}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	events := make([]domain.EventType, 0, len(cfg.Notify.Events))
	for _, e := range cfg.Notify.Events {
		events = append(events, domain.EventType(e))
	}
	var notifyOpts []notify.Option
	if deps.RateLimiter != nil && cfg.Notify.MaxPerWindow > 0 {
		notifyOpts = append(notifyOpts, notify.WithThrottle(deps.RateLimiter, cfg.Notify.MaxPerWindow, cfg.Notify.Window.Duration))
	}
	deps.Notifier = notify.NewNotifier(senders, events, logger, notifyOpts...)

	return deps, cleanup, nil
}

// s3Health adapts the S3 bucket check to handler.Pinger.
type s3Health struct {
	c *s3blob.Client
}

func (h s3Health) Ping(ctx context.Context) error { return h.c.Health(ctx) }
