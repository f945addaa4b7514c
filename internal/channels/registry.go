package channels

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/charlesng35/salesalert/internal/alerting"
)

// ThrottleConfig is a per channel token bucket. Zero disables throttling.
type ThrottleConfig struct {
	PerSecond float64
	Burst     int
}

// Config enables and configures each channel. In-app delivery is always enabled.
type Config struct {
	EmailEnabled   bool
	Email          EmailConfig
	SMSEnabled     bool
	VoiceEnabled   bool
	Twilio         TwilioConfig
	PushEnabled    bool
	Push           PushConfig
	ChatEnabled    bool
	WebhookEnabled bool
	HTTP           HTTPConfig
	Throttle       map[alerting.Channel]ThrottleConfig
}

// Deps are collaborators injected into senders.
type Deps struct {
	Hub    Broadcaster
	Twilio TwilioAPI
}

// Build constructs every enabled sender. Configuration errors for individual
// channels are combined so all of them are reported at once.
func Build(cfg Config, deps Deps) ([]alerting.Sender, error) {
	senders := []alerting.Sender{NewInApp(deps.Hub)}
	var errs error

	if cfg.EmailEnabled {
		email, err := NewEmail(cfg.Email)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			senders = append(senders, email)
		}
	}

	if cfg.SMSEnabled || cfg.VoiceEnabled {
		client := deps.Twilio
		if client == nil {
			var err error
			client, err = NewTwilioAPI(cfg.Twilio)
			if err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		if client != nil {
			if cfg.SMSEnabled {
				sms, err := NewSMS(client, cfg.Twilio)
				errs = multierr.Append(errs, err)
				if err == nil {
					senders = append(senders, sms)
				}
			}
			if cfg.VoiceEnabled {
				voice, err := NewVoice(client, cfg.Twilio)
				errs = multierr.Append(errs, err)
				if err == nil {
					senders = append(senders, voice)
				}
			}
		}
	}

	if cfg.PushEnabled {
		pushCfg := cfg.Push
		if pushCfg.Client == nil {
			pushCfg.Client = cfg.HTTP.Client
		}
		push, err := NewPush(pushCfg)
		errs = multierr.Append(errs, err)
		if err == nil {
			senders = append(senders, push)
		}
	}
	if cfg.ChatEnabled {
		senders = append(senders, NewChat(cfg.HTTP))
	}
	if cfg.WebhookEnabled {
		senders = append(senders, NewWebhook(cfg.HTTP))
	}

	if errs != nil {
		return nil, fmt.Errorf("channels: %w", errs)
	}

	for i, sender := range senders {
		if throttle, ok := cfg.Throttle[sender.Channel()]; ok {
			senders[i] = Throttle(sender, throttle.PerSecond, throttle.Burst)
		}
	}
	return senders, nil
}
