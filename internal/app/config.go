package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/charlesng35/salesalert/pkg/validator"
)

// Config represents the runtime configuration for the alerting service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Delivery    DeliveryConfig    `mapstructure:"delivery"`
	Channels    ChannelsConfig    `mapstructure:"channels"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Rules       RulesConfig       `mapstructure:"rules"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"oneof=json console"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RateLimit       APIRateLimit  `mapstructure:"rate_limit"`
}

// APIRateLimit throttles API callers per identity.
type APIRateLimit struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=sqlite sqlite3 postgres postgresql mysql mariadb"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig selects where rate limit windows and idempotency keys live.
type CacheConfig struct {
	Backend string           `mapstructure:"backend" validate:"oneof=memory redis database"`
	Redis   RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Address  string        `mapstructure:"address"`
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// AuthConfig captures API authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
	// ServiceTokens authorise machine callers of the trigger endpoint.
	ServiceTokens []string `mapstructure:"service_tokens"`
}

// JWTSettings configures JWT access token validation.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// DeliveryConfig tunes the dispatcher.
type DeliveryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=20"`
	Backoff     time.Duration `mapstructure:"backoff"`
	Workers     int           `mapstructure:"workers" validate:"min=0"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// ChannelsConfig configures each delivery transport.
type ChannelsConfig struct {
	HTTPTimeout time.Duration               `mapstructure:"http_timeout"`
	Email       EmailChannelConfig          `mapstructure:"email"`
	Twilio      TwilioConfig                `mapstructure:"twilio"`
	SMS         ToggleConfig                `mapstructure:"sms"`
	Voice       ToggleConfig                `mapstructure:"voice"`
	Push        PushChannelConfig           `mapstructure:"push"`
	Chat        ToggleConfig                `mapstructure:"chat"`
	Webhook     WebhookChannelConfig        `mapstructure:"webhook"`
	Throttle    map[string]ThrottleSettings `mapstructure:"throttle"`
}

// ToggleConfig enables a channel without extra settings.
type ToggleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// EmailChannelConfig selects the email provider.
type EmailChannelConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider" validate:"omitempty,oneof=smtp sendgrid postmark"`
	From     string `mapstructure:"from" validate:"omitempty,email"`
	FromName string `mapstructure:"from_name"`
	// RecipientDomain addresses users that have no contacts.email.
	RecipientDomain string         `mapstructure:"recipient_domain" validate:"omitempty,fqdn"`
	SMTP            SMTPConfig     `mapstructure:"smtp"`
	SendGrid        SendGridConfig `mapstructure:"sendgrid"`
	Postmark        PostmarkConfig `mapstructure:"postmark"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SendGridConfig holds SendGrid API credentials.
type SendGridConfig struct {
	APIKey string `mapstructure:"api_key"`
	URL    string `mapstructure:"url"`
}

// PostmarkConfig holds Postmark API credentials.
type PostmarkConfig struct {
	ServerToken  string `mapstructure:"server_token"`
	AccountToken string `mapstructure:"account_token"`
	URL          string `mapstructure:"url"`
}

// TwilioConfig holds credentials shared by SMS and voice.
type TwilioConfig struct {
	AccountSID    string `mapstructure:"account_sid"`
	AuthToken     string `mapstructure:"auth_token"`
	FromNumber    string `mapstructure:"from_number"`
	DefaultRegion string `mapstructure:"default_region"`
}

// PushChannelConfig points at the push gateway.
type PushChannelConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	GatewayURL string `mapstructure:"gateway_url" validate:"omitempty,url"`
	APIKey     string `mapstructure:"api_key"`
}

// WebhookChannelConfig configures outbound user webhooks.
type WebhookChannelConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
}

// ThrottleSettings is a per channel send rate.
type ThrottleSettings struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// KafkaConfig wires the event stream.
type KafkaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Brokers        []string      `mapstructure:"brokers"`
	GroupID        string        `mapstructure:"group_id"`
	TriggerTopic   string        `mapstructure:"trigger_topic"`
	LifecycleTopic string        `mapstructure:"lifecycle_topic"`
	TLS            bool          `mapstructure:"tls"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// RulesConfig points at a YAML rule pack synced on start.
type RulesConfig struct {
	PackPath string `mapstructure:"pack_path"`
}

// MaintenanceConfig schedules background jobs using cron expressions.
type MaintenanceConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	RetrySchedule      string        `mapstructure:"retry_schedule"`
	CleanupSchedule    string        `mapstructure:"cleanup_schedule"`
	ExecutionRetention time.Duration `mapstructure:"execution_retention"`
	RateRetention      time.Duration `mapstructure:"rate_retention"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadDotEnv loads environment files when present. Missing files are ignored
// and variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: stat %s: %w", file, err)
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
// Environment variables use the SALESALERT_ prefix with dots replaced by underscores.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("SALESALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks field constraints and cross-section requirements.
func (c *Config) Validate() error {
	if err := validator.ValidateStruct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("config: kafka.brokers is required when kafka is enabled")
	}
	if c.Cache.Backend == "redis" && strings.TrimSpace(c.Cache.Redis.Address) == "" && strings.TrimSpace(c.Cache.Redis.URL) == "" {
		return errors.New("config: cache.redis.address or cache.redis.url is required for the redis backend")
	}
	if c.Delivery.StaleAfter > 0 && c.Delivery.SendTimeout > 0 && c.Delivery.StaleAfter <= c.Delivery.SendTimeout {
		return errors.New("config: delivery.stale_after must be longer than delivery.send_timeout")
	}
	if c.Channels.Push.Enabled && strings.TrimSpace(c.Channels.Push.GatewayURL) == "" {
		return errors.New("config: channels.push.gateway_url is required when push is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests", 300)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/salesalert.sqlite")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.prefix", "salesalert:")

	v.SetDefault("auth.jwt.issuer", "salesalert")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("delivery.max_retries", 5)
	v.SetDefault("delivery.backoff", "5m")
	v.SetDefault("delivery.workers", 16)
	v.SetDefault("delivery.stale_after", "15m")
	v.SetDefault("delivery.send_timeout", "30s")

	v.SetDefault("channels.http_timeout", "10s")
	v.SetDefault("channels.email.enabled", false)
	v.SetDefault("channels.email.provider", "smtp")
	v.SetDefault("channels.email.smtp.port", 587)
	v.SetDefault("channels.email.smtp.use_tls", true)
	v.SetDefault("channels.email.smtp.timeout", "10s")
	v.SetDefault("channels.twilio.default_region", "US")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.group_id", "salesalert")
	v.SetDefault("kafka.trigger_topic", "alerts.triggers")
	v.SetDefault("kafka.lifecycle_topic", "alerts.lifecycle")
	v.SetDefault("kafka.dial_timeout", "10s")
	v.SetDefault("kafka.idempotency_ttl", "24h")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.retry_schedule", "@every 1m")
	v.SetDefault("maintenance.cleanup_schedule", "@every 1h")
	v.SetDefault("maintenance.execution_retention", "720h")
	v.SetDefault("maintenance.rate_retention", "48h")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
