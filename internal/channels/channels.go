// Package channels implements the delivery transports used by the alerting
// dispatcher: in-app realtime, email, SMS, voice, push, chat and webhooks.
package channels

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/monitoring/checks"
)

const defaultHTTPTimeout = 10 * time.Second

// Prober is implemented by senders that can report whether their provider is reachable
// or at least configured.
type Prober interface {
	Probe(ctx context.Context) error
}

// Probes converts senders into readiness probes.
func Probes(senders []alerting.Sender) []checks.ChannelProbe {
	probes := make([]checks.ChannelProbe, 0, len(senders))
	for _, sender := range senders {
		probe := checks.ChannelProbe{Channel: string(sender.Channel())}
		if prober, ok := sender.(Prober); ok {
			probe.Check = prober.Probe
		}
		probes = append(probes, probe)
	}
	return probes
}

// Throttled caps the send rate of a sender across all users. Waiting respects
// the send context so a cancelled delivery fails and is retried later.
type Throttled struct {
	alerting.Sender
	limiter *rate.Limiter
}

// Throttle wraps sender with a token bucket of perSecond sends and the given burst.
// A non-positive rate returns the sender unchanged.
func Throttle(sender alerting.Sender, perSecond float64, burst int) alerting.Sender {
	if perSecond <= 0 {
		return sender
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{Sender: sender, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Send waits for a token then delegates.
func (t *Throttled) Send(ctx context.Context, n alerting.Notification, prefs alerting.Preferences) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s throttle: %w", t.Sender.Channel(), err)
	}
	return t.Sender.Send(ctx, n, prefs)
}

// Probe forwards to the wrapped sender when it supports probing.
func (t *Throttled) Probe(ctx context.Context) error {
	if prober, ok := t.Sender.(Prober); ok {
		return prober.Probe(ctx)
	}
	return nil
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256]
	}
	if body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Code, body)
}

// classifyStatus returns nil for 2xx responses. Client errors other than timeouts
// and throttling are permanent; everything else is retried.
func classifyStatus(provider string, code int, body string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &StatusError{Provider: provider, Code: code, Body: body}
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return alerting.Permanent(err)
	}
	return err
}

func missingContact(channel alerting.Channel, field string) error {
	return alerting.Permanent(fmt.Errorf("%s: %w: %s is empty", channel, alerting.ErrChannelNotConfigured, field))
}

func newHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}
