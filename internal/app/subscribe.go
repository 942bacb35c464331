package app

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
)

// subscribePayload returns the configured subscribe document, or the default
// book subscription for marketIDs.
func subscribePayload(cfg *config.Config, marketIDs []string) (any, error) {
	if raw := cfg.Polymarket.SubscribePayload; raw != "" {
		var payload any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("app: invalid subscribe payload: %w", err)
		}
		return payload, nil
	}

	if marketIDs == nil {
		marketIDs = []string{}
	}
	return map[string]any{
		"type": "subscribe",
		"channels": []map[string]any{
			{"name": "book", "marketIds": marketIDs},
		},
	}, nil
}

// clobAuth resolves how CLOB requests are authenticated. Explicit headers
// win. Otherwise the API key triple is used, signed with HMAC when a
// passphrase is present and sent as static headers when not.
func clobAuth(cfg *config.Config) ([]polymarket.ClobOption, error) {
	headers, err := cfg.AuthHeaderMap()
	if err != nil {
		return nil, fmt.Errorf("app: invalid auth headers: %w", err)
	}
	if headers != nil {
		return []polymarket.ClobOption{polymarket.WithStaticHeaders(headers)}, nil
	}

	creds, err := crypto.LoadCredentials(crypto.Source{
		Key:           cfg.Polymarket.APIKey,
		Secret:        cfg.Polymarket.APISecret,
		Passphrase:    cfg.Polymarket.APIPassphrase,
		EncryptedPath: cfg.Polymarket.CredentialsFile,
		Password:      cfg.Polymarket.CredentialsPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: load credentials: %w", err)
	}
	if creds.Empty() {
		return nil, nil
	}

	if creds.Passphrase != "" {
		return []polymarket.ClobOption{polymarket.WithHMAC(&crypto.HMACAuth{
			Address: cfg.Polymarket.Address,
			Creds:   creds,
		})}, nil
	}
	return []polymarket.ClobOption{polymarket.WithStaticHeaders(map[string]string{
		"X-API-KEY":        creds.Key,
		"X-API-SECRET":     creds.Secret,
		"X-API-PASSPHRASE": creds.Passphrase,
	})}, nil
}
