package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	jwtSecretBytes     = 48
	webhookSecretBytes = 32
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := generateHexKey(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if cfg.Channels.Webhook.Enabled && strings.TrimSpace(cfg.Channels.Webhook.Secret) == "" {
		secret, err := generateHexKey(webhookSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate webhook secret: %w", err)
		}
		cfg.Channels.Webhook.Secret = secret
		generated["channels.webhook.secret"] = true
	}

	return generated, nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
