package channels

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/realtime"
	"github.com/charlesng35/salesalert/pkg/mail"
)

func sampleNotification() alerting.Notification {
	return alerting.Notification{
		ID:       "n-1",
		UserID:   "rep-1",
		Type:     alerting.TypeDealRisk,
		Priority: alerting.PriorityHigh,
		Category: alerting.CategorySales,
		Title:    "Acme renewal at risk",
		Message:  "No activity for 21 days",
		Actions: []alerting.Action{
			{ID: "review_deal", Label: "Review deal", Type: alerting.ActionPrimary, Action: "open_deal", URL: "https://crm.example.com/deals/1"},
		},
	}
}

func prefsWith(contacts alerting.Contacts) alerting.Preferences {
	prefs := alerting.DefaultPreferences("rep-1")
	prefs.Contacts = contacts
	return prefs
}

type fakeHub struct {
	stream string
	userID string
	msg    realtime.Message
}

func (h *fakeHub) BroadcastToUser(stream, userID string, message realtime.Message) int {
	h.stream, h.userID, h.msg = stream, userID, message
	return 0
}

func TestInAppBroadcastsAndSucceedsWithoutListeners(t *testing.T) {
	hub := &fakeHub{}
	sender := NewInApp(hub)

	require.NoError(t, sender.Send(context.Background(), sampleNotification(), alerting.Preferences{}))
	require.Equal(t, realtime.StreamNotifications, hub.stream)
	require.Equal(t, "rep-1", hub.userID)
	require.Equal(t, realtime.EventNotificationCreated, hub.msg.Event)
	require.NoError(t, sender.Probe(context.Background()))
}

func TestWebhookSignsPayload(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var received WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.True(t, VerifySignature([]byte("s3cret"), r.Header.Get(TimestampHeader), body, r.Header.Get(SignatureHeader)))
		require.Equal(t, "notification.created", r.Header.Get(EventHeader))
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewWebhook(HTTPConfig{Secret: "s3cret", Now: func() time.Time { return fixed }})
	err := sender.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{WebhookURL: server.URL}))
	require.NoError(t, err)
	require.Equal(t, "n-1", received.Notification.ID)
	require.True(t, received.SentAt.Equal(fixed))
}

func TestWebhookClassifiesResponses(t *testing.T) {
	var status atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	sender := NewWebhook(HTTPConfig{})
	prefs := prefsWith(alerting.Contacts{WebhookURL: server.URL})

	status.Store(http.StatusGone)
	err := sender.Send(context.Background(), sampleNotification(), prefs)
	require.ErrorIs(t, err, alerting.ErrPermanent)

	status.Store(http.StatusTooManyRequests)
	err = sender.Send(context.Background(), sampleNotification(), prefs)
	require.Error(t, err)
	require.NotErrorIs(t, err, alerting.ErrPermanent)

	status.Store(http.StatusBadGateway)
	err = sender.Send(context.Background(), sampleNotification(), prefs)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.Code)
	require.NotErrorIs(t, err, alerting.ErrPermanent)
}

func TestMissingContactIsPermanent(t *testing.T) {
	ctx := context.Background()
	n := sampleNotification()
	empty := prefsWith(alerting.Contacts{})

	push, err := NewPush(PushConfig{GatewayURL: "https://push.example.com/send"})
	require.NoError(t, err)

	for _, sender := range []alerting.Sender{NewWebhook(HTTPConfig{}), NewChat(HTTPConfig{}), push} {
		err := sender.Send(ctx, n, empty)
		require.ErrorIs(t, err, alerting.ErrPermanent, sender.Channel())
		require.ErrorIs(t, err, alerting.ErrChannelNotConfigured, sender.Channel())
	}
}

func TestChatPostsSlackMessage(t *testing.T) {
	var payload chatMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get(SignatureHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer server.Close()

	err := NewChat(HTTPConfig{Secret: "ignored"}).Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{ChatWebhookURL: server.URL}))
	require.NoError(t, err)
	require.Equal(t, "[HIGH] Acme renewal at risk", payload.Text)
	require.Len(t, payload.Blocks, 2)
}

func TestPushSendsTokenAndPriority(t *testing.T) {
	var payload pushMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer push-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer server.Close()

	push, err := NewPush(PushConfig{GatewayURL: server.URL, APIKey: "push-key"})
	require.NoError(t, err)
	require.NoError(t, push.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{PushToken: "device-1"})))
	require.Equal(t, "device-1", payload.Token)
	require.Equal(t, "high", payload.Priority)
	require.Equal(t, "n-1", payload.Data["notification_id"])

	_, err = NewPush(PushConfig{})
	require.Error(t, err)
}

func TestEmailSendGrid(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender, err := NewEmail(EmailConfig{
		Provider:       EmailProviderSendGrid,
		From:           "alerts@example.com",
		FromName:       "Sales Alerts",
		SendGridAPIKey: "sg-key",
		SendGridURL:    server.URL,
	})
	require.NoError(t, err)
	require.NoError(t, sender.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{Email: "rep@example.com"})))
	require.Equal(t, "[HIGH] Acme renewal at risk", body["subject"])

	err = sender.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{}))
	require.ErrorIs(t, err, alerting.ErrPermanent)
}

func TestEmailSendGridRejectionIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"invalid email"}]}`, http.StatusBadRequest)
	}))
	defer server.Close()

	sender, err := NewEmail(EmailConfig{Provider: EmailProviderSendGrid, From: "alerts@example.com", SendGridAPIKey: "k", SendGridURL: server.URL})
	require.NoError(t, err)
	err = sender.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{Email: "bad@example.com"}))
	require.ErrorIs(t, err, alerting.ErrPermanent)
}

type captureMailer struct {
	msg mail.Message
	err error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.msg = msg
	return m.err
}

func TestEmailSMTPBuildsMultipartMessage(t *testing.T) {
	sender, err := NewEmail(EmailConfig{
		Provider: EmailProviderSMTP,
		From:     "alerts@example.com",
		SMTP:     mail.SMTPSettings{Host: "smtp.example.com", Port: 587},
	})
	require.NoError(t, err)

	mailer := &captureMailer{}
	sender.WithMailer(mailer)
	require.NoError(t, sender.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{Email: "rep@example.com"})))
	require.Equal(t, []string{"rep@example.com"}, mailer.msg.To)
	require.Equal(t, "n-1", mailer.msg.Headers["X-Notification-ID"])
	require.Contains(t, mailer.msg.HTMLBody, `<a href="https://crm.example.com/deals/1">Review deal</a>`)

	mailer.err = errors.New("connection reset")
	err = sender.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{Email: "rep@example.com"}))
	require.Error(t, err)
	require.NotErrorIs(t, err, alerting.ErrPermanent)
}

func TestEmailRecipientFallback(t *testing.T) {
	newSender := func(domain string) (*Email, *captureMailer) {
		sender, err := NewEmail(EmailConfig{
			Provider:        EmailProviderSMTP,
			From:            "alerts@example.com",
			SMTP:            mail.SMTPSettings{Host: "smtp.example.com", Port: 587},
			RecipientDomain: domain,
		})
		require.NoError(t, err)
		mailer := &captureMailer{}
		sender.WithMailer(mailer)
		return sender, mailer
	}

	sender, mailer := newSender("@crm.example.com")
	require.NoError(t, sender.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{})))
	require.Equal(t, []string{"rep-1@crm.example.com"}, mailer.msg.To)

	require.NoError(t, sender.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{Email: "owner@example.com"})))
	require.Equal(t, []string{"owner@example.com"}, mailer.msg.To, "contacts win over the domain")

	sender, mailer = newSender("")
	n := sampleNotification()
	n.UserID = "jane@example.com"
	require.NoError(t, sender.Send(context.Background(), n, prefsWith(alerting.Contacts{})))
	require.Equal(t, []string{"jane@example.com"}, mailer.msg.To)

	err := sender.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{}))
	require.ErrorIs(t, err, alerting.ErrPermanent)
	require.ErrorIs(t, err, alerting.ErrChannelNotConfigured)
}

func TestNewEmailRejectsUnknownProvider(t *testing.T) {
	_, err := NewEmail(EmailConfig{Provider: "pigeon", From: "a@example.com"})
	require.Error(t, err)

	_, err = NewEmail(EmailConfig{Provider: EmailProviderSendGrid, From: "a@example.com"})
	require.Error(t, err)
}

type fakeTwilio struct {
	messages []*api.CreateMessageParams
	calls    []*api.CreateCallParams
	err      error
}

func (f *fakeTwilio) CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
	f.messages = append(f.messages, params)
	return &api.ApiV2010Message{}, f.err
}

func (f *fakeTwilio) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	f.calls = append(f.calls, params)
	return &api.ApiV2010Call{}, f.err
}

func TestSMSNormalizesRecipient(t *testing.T) {
	client := &fakeTwilio{}
	sms, err := NewSMS(client, TwilioConfig{FromNumber: "+14155550100", DefaultRegion: "US"})
	require.NoError(t, err)

	require.NoError(t, sms.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{Phone: "(415) 555-2671"})))
	require.Len(t, client.messages, 1)
	require.Equal(t, "+14155552671", *client.messages[0].To)
	require.Equal(t, "+14155550100", *client.messages[0].From)

	err = sms.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{Phone: "12"}))
	require.ErrorIs(t, err, alerting.ErrPermanent)
	require.Len(t, client.messages, 1)
}

func TestSMSTransportErrorIsRetryable(t *testing.T) {
	client := &fakeTwilio{err: errors.New("dial tcp: timeout")}
	sms, err := NewSMS(client, TwilioConfig{FromNumber: "+14155550100"})
	require.NoError(t, err)

	err = sms.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{Phone: "+14155552671"}))
	require.Error(t, err)
	require.NotErrorIs(t, err, alerting.ErrPermanent)
}

func TestVoicePlacesCallWithTwiml(t *testing.T) {
	client := &fakeTwilio{}
	voice, err := NewVoice(client, TwilioConfig{FromNumber: "+14155550100"})
	require.NoError(t, err)

	require.NoError(t, voice.Send(context.Background(), sampleNotification(), prefsWith(alerting.Contacts{Phone: "+14155552671"})))
	require.Len(t, client.calls, 1)
	require.Contains(t, *client.calls[0].Twiml, "<Say>high priority alert. Acme renewal at risk.")
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("+44 20 7946 0958", "")
	require.NoError(t, err)
	require.Equal(t, "+442079460958", got)

	_, err = NormalizePhone("4155552671", "")
	require.Error(t, err)

	_, err = NormalizePhone("", "US")
	require.Error(t, err)
}

type countingSender struct {
	calls atomic.Int32
}

func (s *countingSender) Channel() alerting.Channel { return alerting.ChannelWebhook }

func (s *countingSender) Send(context.Context, alerting.Notification, alerting.Preferences) error {
	s.calls.Add(1)
	return nil
}

func TestThrottleHonoursContext(t *testing.T) {
	inner := &countingSender{}
	sender := Throttle(inner, 0.001, 1)

	require.NoError(t, sender.Send(context.Background(), sampleNotification(), alerting.Preferences{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, sender.Send(ctx, sampleNotification(), alerting.Preferences{}))
	require.EqualValues(t, 1, inner.calls.Load())

	require.Same(t, alerting.Sender(inner), Throttle(inner, 0, 0))
}

func TestBuildRegistersEnabledChannels(t *testing.T) {
	senders, err := Build(Config{
		SMSEnabled:     true,
		VoiceEnabled:   true,
		Twilio:         TwilioConfig{FromNumber: "+14155550100"},
		ChatEnabled:    true,
		WebhookEnabled: true,
		Throttle:       map[alerting.Channel]ThrottleConfig{alerting.ChannelSMS: {PerSecond: 1, Burst: 1}},
	}, Deps{Hub: &fakeHub{}, Twilio: &fakeTwilio{}})
	require.NoError(t, err)

	var got []alerting.Channel
	for _, sender := range senders {
		got = append(got, sender.Channel())
	}
	require.Equal(t, []alerting.Channel{
		alerting.ChannelInApp, alerting.ChannelSMS, alerting.ChannelVoice, alerting.ChannelChat, alerting.ChannelWebhook,
	}, got)
	require.IsType(t, &Throttled{}, senders[1])
	require.Len(t, Probes(senders), 5)
}

func TestBuildCombinesConfigurationErrors(t *testing.T) {
	_, err := Build(Config{
		EmailEnabled: true,
		Email:        EmailConfig{Provider: EmailProviderSendGrid},
		PushEnabled:  true,
	}, Deps{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "from address is required")
	require.Contains(t, err.Error(), "gateway url is required")
}
