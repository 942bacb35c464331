// Command polyarb runs the Polymarket arbitrage trader. It loads
// configuration, validates it, wires dependencies, sets up signal handling, and
// runs the trader until SIGINT or SIGTERM.
//
// "polyarb encrypt-credentials" seals the API key triple into an encrypted
// credentials file instead of running the trader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/polyarb/internal/app"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-credentials" {
		if err := encryptCredentials(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-credentials: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "", "path to an optional TOML configuration file")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("polyarb starting",
		slog.String("config", *configPath),
		slog.Bool("paper_trading", cfg.Trading.PaperTrading),
		slog.Bool("shadow_mode", cfg.Trading.ShadowMode),
	)
	logger.Debug("active configuration", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("trader exited with error", slog.String("error", err.Error()))
		application.Close()
		os.Exit(1)
	}

	logger.Info("polyarb stopped")
}

// encryptCredentials writes an encrypted credentials file from the
// POLYARB_POLYMARKET_API_* variables. The password comes from
// POLYARB_POLYMARKET_CREDENTIALS_PASSWORD.
func encryptCredentials(args []string) error {
	fs := flag.NewFlagSet("encrypt-credentials", flag.ContinueOnError)
	out := fs.String("out", "credentials.enc.json", "output path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	creds := crypto.Credentials{
		Key:        os.Getenv("POLYARB_POLYMARKET_API_KEY"),
		Secret:     os.Getenv("POLYARB_POLYMARKET_API_SECRET"),
		Passphrase: os.Getenv("POLYARB_POLYMARKET_API_PASSPHRASE"),
	}
	if creds.Empty() {
		return errors.New("POLYARB_POLYMARKET_API_KEY is not set")
	}

	blob, err := crypto.EncryptCredentials(creds, os.Getenv("POLYARB_POLYMARKET_CREDENTIALS_PASSWORD"))
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}
