package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/salesalert/internal/alerting"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)
	require.True(t, cfg.Server.RateLimit.Enabled)
	require.Equal(t, 120, cfg.Server.RateLimit.Requests)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Host)
	require.Equal(t, "alerts", cfg.Database.DatabaseSettings().User)

	require.Equal(t, "redis", cfg.Cache.Backend)
	require.Equal(t, "crm-alerts:", cfg.Cache.RedisClientConfig().Prefix)
	require.Equal(t, 5*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, 30*time.Minute, cfg.Auth.JWTServiceConfig().AccessTokenTTL)
	require.Equal(t, []string{"crm-hook"}, cfg.Auth.ServiceTokens)

	dispatch := cfg.Delivery.DispatcherConfig()
	require.Equal(t, 3, dispatch.MaxRetries)
	require.Equal(t, 2*time.Minute, dispatch.Backoff)
	require.Equal(t, 8, dispatch.Workers)
	require.Equal(t, 15*time.Minute, dispatch.StaleAfter)

	channels := cfg.Channels.ChannelConfig()
	require.True(t, channels.EmailEnabled)
	require.Equal(t, "sendgrid", channels.Email.Provider)
	require.Equal(t, "sg-key", channels.Email.SendGridAPIKey)
	require.Equal(t, "crm.example.com", channels.Email.RecipientDomain)
	require.True(t, channels.SMSEnabled)
	require.Equal(t, "US", channels.Twilio.DefaultRegion)
	require.Equal(t, "hook-secret", channels.HTTP.Secret)
	require.Equal(t, 1.0, channels.Throttle[alerting.ChannelSMS].PerSecond)
	require.Equal(t, 5, channels.Throttle[alerting.ChannelSMS].Burst)

	require.True(t, cfg.Kafka.Enabled)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "crm.alerts", cfg.Kafka.EventsConfig().TriggerTopic)
	require.Equal(t, "alerts.lifecycle", cfg.Kafka.LifecycleTopic)

	require.Equal(t, "./rules.yaml", cfg.Rules.PackPath)
	require.Equal(t, "@every 30s", cfg.Maintenance.RetrySchedule)
	require.Equal(t, "@every 1h", cfg.Maintenance.CleanupSchedule)
	require.Equal(t, 240*time.Hour, cfg.Maintenance.ExecutionRetention)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, alerting.DefaultMaxRetries, cfg.Delivery.MaxRetries)
	require.Equal(t, alerting.DefaultBackoff, cfg.Delivery.Backoff)
	require.False(t, cfg.Kafka.Enabled)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("SALESALERT_SERVER_PORT", "7070")
	t.Setenv("SALESALERT_DELIVERY_MAX_RETRIES", "2")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 2, cfg.Delivery.MaxRetries)
}

func TestDeliveryZeroRetriesDisablesRetry(t *testing.T) {
	t.Setenv("SALESALERT_DELIVERY_MAX_RETRIES", "0")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Zero(t, cfg.Delivery.MaxRetries)
	require.Equal(t, alerting.NoRetries, cfg.Delivery.DispatcherConfig().MaxRetries)
}

func TestLoadConfigRejectsStaleWindowShorterThanSend(t *testing.T) {
	t.Setenv("SALESALERT_DELIVERY_STALE_AFTER", "10s")
	t.Setenv("SALESALERT_DELIVERY_SEND_TIMEOUT", "30s")

	_, err := LoadConfig(t.TempDir())
	require.ErrorContains(t, err, "stale_after")
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("SALESALERT_CACHE_BACKEND", "memcached")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
}

func TestValidateCrossSectionRules(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = nil
	require.ErrorContains(t, cfg.Validate(), "kafka.brokers")

	cfg.Kafka.Enabled = false
	cfg.Channels.Push.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "gateway_url")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SALESALERT_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("SALESALERT_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("SALESALERT_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	require.Equal(t, "loaded", os.Getenv("SALESALERT_TEST_DOTENV"))
}
