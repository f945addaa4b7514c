package channels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mrz1836/postmark"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/pkg/mail"
	"github.com/charlesng35/salesalert/pkg/validator"
)

const (
	EmailProviderSMTP     = "smtp"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderPostmark = "postmark"

	defaultSendGridURL = "https://api.sendgrid.com/v3/mail/send"
)

// EmailConfig selects and configures the email provider.
type EmailConfig struct {
	Provider             string
	From                 string
	FromName             string
	SMTP                 mail.SMTPSettings
	SendGridAPIKey       string
	SendGridURL          string
	PostmarkServerToken  string
	PostmarkAccountToken string
	PostmarkURL          string
	Timeout              time.Duration
	// RecipientDomain addresses users without contacts.email as <user_id>@domain.
	RecipientDomain string
}

// Email delivers notifications to the address in the user's contacts. Users
// without one fall back to an email-shaped user ID, then to RecipientDomain.
type Email struct {
	provider string
	mailer   mail.Mailer
	from     string
	fromName string
	domain   string

	sendgridKey string
	sendgridURL string
	postmark    *postmark.Client
	http        *http.Client
}

// NewEmail builds the sender for the configured provider.
func NewEmail(cfg EmailConfig) (*Email, error) {
	if strings.TrimSpace(cfg.From) == "" && cfg.Provider != EmailProviderSMTP {
		return nil, errors.New("email: from address is required")
	}

	sender := &Email{
		provider: strings.ToLower(strings.TrimSpace(cfg.Provider)),
		from:     cfg.From,
		fromName: cfg.FromName,
		domain:   strings.TrimPrefix(strings.TrimSpace(cfg.RecipientDomain), "@"),
		http:     newHTTPClient(nil, cfg.Timeout),
	}

	switch sender.provider {
	case "", EmailProviderSMTP:
		sender.provider = EmailProviderSMTP
		smtpCfg := cfg.SMTP
		smtpCfg.Enabled = true
		if smtpCfg.From == "" {
			smtpCfg.From = cfg.From
		}
		mailer, err := mail.NewSMTPMailer(smtpCfg)
		if err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
		sender.mailer = mailer
	case EmailProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, errors.New("email: sendgrid api key is required")
		}
		sender.sendgridKey = cfg.SendGridAPIKey
		sender.sendgridURL = cfg.SendGridURL
		if sender.sendgridURL == "" {
			sender.sendgridURL = defaultSendGridURL
		}
	case EmailProviderPostmark:
		if cfg.PostmarkServerToken == "" {
			return nil, errors.New("email: postmark server token is required")
		}
		client := postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
		client.HTTPClient = sender.http
		if cfg.PostmarkURL != "" {
			client.BaseURL = strings.TrimRight(cfg.PostmarkURL, "/")
		}
		sender.postmark = client
	default:
		return nil, fmt.Errorf("email: unsupported provider %q", cfg.Provider)
	}
	return sender, nil
}

// WithMailer swaps the SMTP mailer, used by tests.
func (s *Email) WithMailer(m mail.Mailer) *Email {
	s.mailer = m
	return s
}

func (s *Email) Channel() alerting.Channel { return alerting.ChannelEmail }

// Provider reports the configured backend.
func (s *Email) Provider() string { return s.provider }

func (s *Email) Send(ctx context.Context, n alerting.Notification, prefs alerting.Preferences) error {
	to := s.recipient(n.UserID, prefs)
	if to == "" {
		return missingContact(alerting.ChannelEmail, "contacts.email")
	}

	switch s.provider {
	case EmailProviderSendGrid:
		return s.sendGrid(ctx, to, n)
	case EmailProviderPostmark:
		return s.sendPostmark(ctx, to, n)
	default:
		err := s.mailer.Send(ctx, mail.Message{
			From:     s.from,
			To:       []string{to},
			Subject:  Subject(n),
			Body:     PlainBody(n),
			HTMLBody: HTMLBody(n),
			Headers:  map[string]string{"X-Notification-ID": n.ID},
		})
		if errors.Is(err, mail.ErrSMTPDisabled) {
			return alerting.Permanent(err)
		}
		return err
	}
}

func (s *Email) recipient(userID string, prefs alerting.Preferences) string {
	if to := strings.TrimSpace(prefs.Contacts.Email); to != "" {
		return to
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ""
	}
	if validator.ValidateVar(userID, "email") == nil {
		return userID
	}
	if s.domain != "" && !strings.ContainsAny(userID, "@ <>") {
		return userID + "@" + s.domain
	}
	return ""
}

func (s *Email) sendGrid(ctx context.Context, to string, n alerting.Notification) error {
	message := sgmail.NewV3Mail()
	message.SetFrom(sgmail.NewEmail(s.fromName, s.from))
	message.Subject = Subject(n)

	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail("", to))
	message.AddPersonalizations(p)
	message.AddContent(sgmail.NewContent("text/plain", PlainBody(n)))
	message.AddContent(sgmail.NewContent("text/html", HTMLBody(n)))
	message.SetHeader("X-Notification-ID", n.ID)
	message.AddCategories(string(n.Category))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendgridURL, bytes.NewReader(sgmail.GetRequestBody(message)))
	if err != nil {
		return alerting.Permanent(fmt.Errorf("sendgrid: build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.sendgridKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return classifyStatus("sendgrid", resp.StatusCode, string(body))
}

// Postmark error codes that will not succeed on retry: invalid or inactive
// recipients and sender signature problems.
var postmarkPermanentCodes = map[int64]struct{}{
	300: {},
	400: {},
	401: {},
	406: {},
	422: {},
}

func (s *Email) sendPostmark(ctx context.Context, to string, n alerting.Notification) error {
	from := s.from
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.from)
	}
	resp, err := s.postmark.SendEmail(ctx, postmark.Email{
		From:     from,
		To:       to,
		Subject:  Subject(n),
		Tag:      string(n.Type),
		HTMLBody: HTMLBody(n),
		TextBody: PlainBody(n),
		Metadata: map[string]string{"notification_id": n.ID},
	})
	if err != nil {
		return fmt.Errorf("postmark: %w", err)
	}
	if resp.ErrorCode > 0 {
		err := fmt.Errorf("postmark: error %d: %s", resp.ErrorCode, resp.Message)
		if _, ok := postmarkPermanentCodes[int64(resp.ErrorCode)]; ok {
			return alerting.Permanent(err)
		}
		return err
	}
	return nil
}

func (s *Email) Probe(context.Context) error {
	switch s.provider {
	case EmailProviderSMTP:
		if s.mailer == nil {
			return errors.New("smtp mailer not configured")
		}
	case EmailProviderSendGrid:
		if s.sendgridKey == "" {
			return errors.New("sendgrid api key missing")
		}
	case EmailProviderPostmark:
		if s.postmark == nil {
			return errors.New("postmark client missing")
		}
	}
	return nil
}
