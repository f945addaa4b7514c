package app

import (
	"strings"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/auth"
	"github.com/charlesng35/salesalert/internal/cache"
	"github.com/charlesng35/salesalert/internal/channels"
	"github.com/charlesng35/salesalert/internal/database"
	"github.com/charlesng35/salesalert/internal/events"
	"github.com/charlesng35/salesalert/pkg/mail"
)

// DatabaseSettings converts the database section into the database package representation.
func (c DatabaseConfig) DatabaseSettings() database.Config {
	return database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.Username,
		Password:        c.Password,
		Name:            c.Name,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		URL:      strings.TrimSpace(c.Redis.URL),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
		Prefix:   c.Redis.Prefix,
	}
}

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// DispatcherConfig converts the delivery section. Zero durations and worker
// counts fall back to dispatcher defaults; max_retries of 0 disables retries.
func (c DeliveryConfig) DispatcherConfig() alerting.DispatcherConfig {
	maxRetries := c.MaxRetries
	if maxRetries == 0 {
		maxRetries = alerting.NoRetries
	}
	return alerting.DispatcherConfig{
		MaxRetries:  maxRetries,
		Backoff:     c.Backoff,
		Workers:     c.Workers,
		StaleAfter:  c.StaleAfter,
		SendTimeout: c.SendTimeout,
	}
}

// ChannelConfig converts the channels section into sender settings.
func (c ChannelsConfig) ChannelConfig() channels.Config {
	httpCfg := channels.HTTPConfig{Timeout: c.HTTPTimeout}

	webhookHTTP := httpCfg
	webhookHTTP.Secret = c.Webhook.Secret

	throttle := make(map[alerting.Channel]channels.ThrottleConfig, len(c.Throttle))
	for name, settings := range c.Throttle {
		throttle[alerting.Channel(strings.ToLower(strings.TrimSpace(name)))] = channels.ThrottleConfig{
			PerSecond: settings.PerSecond,
			Burst:     settings.Burst,
		}
	}

	twilio := channels.TwilioConfig{
		AccountSID:    c.Twilio.AccountSID,
		AuthToken:     c.Twilio.AuthToken,
		FromNumber:    c.Twilio.FromNumber,
		DefaultRegion: c.Twilio.DefaultRegion,
	}

	return channels.Config{
		EmailEnabled: c.Email.Enabled,
		Email: channels.EmailConfig{
			Provider:        c.Email.Provider,
			From:            c.Email.From,
			FromName:        c.Email.FromName,
			RecipientDomain: c.Email.RecipientDomain,
			SMTP: mail.SMTPSettings{
				Enabled:  c.Email.Enabled,
				Host:     c.Email.SMTP.Host,
				Port:     c.Email.SMTP.Port,
				Username: c.Email.SMTP.Username,
				Password: c.Email.SMTP.Password,
				From:     c.Email.From,
				UseTLS:   c.Email.SMTP.UseTLS,
				Timeout:  c.Email.SMTP.Timeout,
			},
			SendGridAPIKey:       c.Email.SendGrid.APIKey,
			SendGridURL:          c.Email.SendGrid.URL,
			PostmarkServerToken:  c.Email.Postmark.ServerToken,
			PostmarkAccountToken: c.Email.Postmark.AccountToken,
			PostmarkURL:          c.Email.Postmark.URL,
			Timeout:              c.HTTPTimeout,
		},
		SMSEnabled:   c.SMS.Enabled,
		VoiceEnabled: c.Voice.Enabled,
		Twilio:       twilio,
		PushEnabled:  c.Push.Enabled,
		Push: channels.PushConfig{
			HTTPConfig: httpCfg,
			GatewayURL: c.Push.GatewayURL,
			APIKey:     c.Push.APIKey,
		},
		ChatEnabled:    c.Chat.Enabled,
		WebhookEnabled: c.Webhook.Enabled,
		HTTP:           webhookHTTP,
		Throttle:       throttle,
	}
}

// EventsConfig converts the kafka section.
func (c KafkaConfig) EventsConfig() events.Config {
	return events.Config{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		TriggerTopic:   c.TriggerTopic,
		LifecycleTopic: c.LifecycleTopic,
		TLS:            c.TLS,
		DialTimeout:    c.DialTimeout,
	}
}
