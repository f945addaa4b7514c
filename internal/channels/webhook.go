package channels

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charlesng35/salesalert/internal/alerting"
)

const (
	SignatureHeader = "X-Salesalert-Signature"
	TimestampHeader = "X-Salesalert-Timestamp"
	EventHeader     = "X-Salesalert-Event"
)

// poster posts JSON documents and classifies the response.
type poster struct {
	provider string
	client   *http.Client
	secret   []byte
	headers  map[string]string
	now      func() time.Time
}

func (p *poster) post(ctx context.Context, target string, payload any) error {
	if _, err := url.ParseRequestURI(target); err != nil {
		return alerting.Permanent(fmt.Errorf("%s: invalid url: %w", p.provider, err))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return alerting.Permanent(fmt.Errorf("%s: encode payload: %w", p.provider, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return alerting.Permanent(fmt.Errorf("%s: build request: %w", p.provider, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "salesalert/1.0")
	for key, value := range p.headers {
		req.Header.Set(key, value)
	}
	if len(p.secret) > 0 {
		ts := strconv.FormatInt(p.now().Unix(), 10)
		req.Header.Set(TimestampHeader, ts)
		req.Header.Set(SignatureHeader, "sha256="+Sign(p.secret, ts, body))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", p.provider, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return classifyStatus(p.provider, resp.StatusCode, string(respBody))
}

// Sign computes the hex HMAC-SHA256 of "timestamp.body".
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a header produced by Sign.
func VerifySignature(secret []byte, timestamp string, body []byte, header string) bool {
	expected := "sha256=" + Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(header))
}

// HTTPConfig configures the HTTP based senders.
type HTTPConfig struct {
	Secret  string
	Timeout time.Duration
	Client  *http.Client
	Now     func() time.Time
}

func newPoster(provider string, cfg HTTPConfig) *poster {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &poster{
		provider: provider,
		client:   newHTTPClient(cfg.Client, cfg.Timeout),
		secret:   []byte(cfg.Secret),
		now:      now,
	}
}

// WebhookPayload is the document posted to user webhooks.
type WebhookPayload struct {
	Event        string                `json:"event"`
	Notification alerting.Notification `json:"notification"`
	SentAt       time.Time             `json:"sent_at"`
}

// Webhook posts the full notification to the user's webhook URL.
type Webhook struct {
	poster *poster
}

// NewWebhook constructs the webhook sender. Requests are signed when a secret is set.
func NewWebhook(cfg HTTPConfig) *Webhook {
	p := newPoster("webhook", cfg)
	p.headers = map[string]string{EventHeader: "notification.created"}
	return &Webhook{poster: p}
}

func (w *Webhook) Channel() alerting.Channel { return alerting.ChannelWebhook }

func (w *Webhook) Send(ctx context.Context, n alerting.Notification, prefs alerting.Preferences) error {
	target := strings.TrimSpace(prefs.Contacts.WebhookURL)
	if target == "" {
		return missingContact(alerting.ChannelWebhook, "contacts.webhook_url")
	}
	return w.poster.post(ctx, target, WebhookPayload{
		Event:        "notification.created",
		Notification: n,
		SentAt:       w.poster.now().UTC(),
	})
}

// Chat posts a Slack compatible message to the user's incoming webhook.
type Chat struct {
	poster *poster
}

// NewChat constructs the chat sender.
func NewChat(cfg HTTPConfig) *Chat {
	cfg.Secret = ""
	return &Chat{poster: newPoster("chat", cfg)}
}

type chatMessage struct {
	Text   string      `json:"text"`
	Blocks []chatBlock `json:"blocks,omitempty"`
}

type chatBlock struct {
	Type string    `json:"type"`
	Text *chatText `json:"text,omitempty"`
}

type chatText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *Chat) Channel() alerting.Channel { return alerting.ChannelChat }

func (c *Chat) Send(ctx context.Context, n alerting.Notification, prefs alerting.Preferences) error {
	target := strings.TrimSpace(prefs.Contacts.ChatWebhookURL)
	if target == "" {
		return missingContact(alerting.ChannelChat, "contacts.chat_webhook_url")
	}
	msg := chatMessage{
		Text: Subject(n),
		Blocks: []chatBlock{
			{Type: "header", Text: &chatText{Type: "plain_text", Text: n.Title}},
		},
	}
	if n.Message != "" {
		msg.Blocks = append(msg.Blocks, chatBlock{Type: "section", Text: &chatText{Type: "mrkdwn", Text: n.Message}})
	}
	return c.poster.post(ctx, target, msg)
}

// Push forwards notifications to a push gateway keyed by device token.
type Push struct {
	poster  *poster
	gateway string
}

// PushConfig points at the push gateway.
type PushConfig struct {
	HTTPConfig
	GatewayURL string
	APIKey     string
}

// NewPush constructs the push sender.
func NewPush(cfg PushConfig) (*Push, error) {
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return nil, errors.New("push: gateway url is required")
	}
	p := newPoster("push", cfg.HTTPConfig)
	if cfg.APIKey != "" {
		p.headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	return &Push{poster: p, gateway: cfg.GatewayURL}, nil
}

type pushMessage struct {
	Token    string            `json:"token"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data"`
}

func (p *Push) Channel() alerting.Channel { return alerting.ChannelPush }

func (p *Push) Send(ctx context.Context, n alerting.Notification, prefs alerting.Preferences) error {
	token := strings.TrimSpace(prefs.Contacts.PushToken)
	if token == "" {
		return missingContact(alerting.ChannelPush, "contacts.push_token")
	}
	priority := "normal"
	if n.Priority.Rank() >= alerting.PriorityHigh.Rank() {
		priority = "high"
	}
	return p.poster.post(ctx, p.gateway, pushMessage{
		Token:    token,
		Title:    n.Title,
		Body:     n.Message,
		Priority: priority,
		Data: map[string]string{
			"notification_id": n.ID,
			"type":            string(n.Type),
			"category":        string(n.Category),
		},
	})
}

func (p *Push) Probe(context.Context) error {
	if _, err := url.ParseRequestURI(p.gateway); err != nil {
		return fmt.Errorf("push gateway url: %w", err)
	}
	return nil
}
