package channels

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/charlesng35/salesalert/internal/alerting"
)

// TwilioConfig holds the account credentials shared by SMS and voice.
type TwilioConfig struct {
	AccountSID    string
	AuthToken     string
	FromNumber    string
	DefaultRegion string
}

// TwilioAPI is the subset of the Twilio REST client used for delivery.
type TwilioAPI interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// NewTwilioAPI builds the REST client from credentials.
func NewTwilioAPI(cfg TwilioConfig) (TwilioAPI, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio: account sid and auth token are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return client.Api, nil
}

// SMS sends text messages through Twilio.
type SMS struct {
	api    TwilioAPI
	from   string
	region string
}

// NewSMS constructs the SMS sender.
func NewSMS(client TwilioAPI, cfg TwilioConfig) (*SMS, error) {
	from, err := NormalizePhone(cfg.FromNumber, cfg.DefaultRegion)
	if err != nil {
		return nil, fmt.Errorf("sms: from number: %w", err)
	}
	return &SMS{api: client, from: from, region: cfg.DefaultRegion}, nil
}

func (s *SMS) Channel() alerting.Channel { return alerting.ChannelSMS }

func (s *SMS) Send(ctx context.Context, n alerting.Notification, prefs alerting.Preferences) error {
	to, err := contactPhone(alerting.ChannelSMS, prefs, s.region)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(ShortText(n))
	if _, err := s.api.CreateMessage(params); err != nil {
		return classifyTwilio("sms", err)
	}
	return nil
}

func (s *SMS) Probe(context.Context) error {
	if s.api == nil {
		return errors.New("twilio client missing")
	}
	return nil
}

// Voice places a call that reads the notification aloud.
type Voice struct {
	api    TwilioAPI
	from   string
	region string
}

// NewVoice constructs the voice sender.
func NewVoice(client TwilioAPI, cfg TwilioConfig) (*Voice, error) {
	from, err := NormalizePhone(cfg.FromNumber, cfg.DefaultRegion)
	if err != nil {
		return nil, fmt.Errorf("voice: from number: %w", err)
	}
	return &Voice{api: client, from: from, region: cfg.DefaultRegion}, nil
}

func (v *Voice) Channel() alerting.Channel { return alerting.ChannelVoice }

func (v *Voice) Send(ctx context.Context, n alerting.Notification, prefs alerting.Preferences) error {
	to, err := contactPhone(alerting.ChannelVoice, prefs, v.region)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(v.from)
	params.SetTwiml(Twiml(n))
	if _, err := v.api.CreateCall(params); err != nil {
		return classifyTwilio("voice", err)
	}
	return nil
}

func (v *Voice) Probe(context.Context) error {
	if v.api == nil {
		return errors.New("twilio client missing")
	}
	return nil
}

// Twiml renders the spoken script for a voice alert.
func Twiml(n alerting.Notification) string {
	text := fmt.Sprintf("%s priority alert. %s. %s", n.Priority, n.Title, n.Message)
	return "<Response><Say>" + html.EscapeString(strings.TrimSpace(text)) + "</Say></Response>"
}

// NormalizePhone parses a number and formats it as E.164. Numbers without a
// leading + are resolved against region.
func NormalizePhone(number, region string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", errors.New("missing number")
	}
	if !strings.HasPrefix(number, "+") && region == "" {
		return "", errors.New("phone number must be in E.164 format with +")
	}
	parsed, err := phonenumbers.Parse(number, strings.ToUpper(region))
	if err != nil {
		return "", fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

func contactPhone(channel alerting.Channel, prefs alerting.Preferences, region string) (string, error) {
	if strings.TrimSpace(prefs.Contacts.Phone) == "" {
		return "", missingContact(channel, "contacts.phone")
	}
	to, err := NormalizePhone(prefs.Contacts.Phone, region)
	if err != nil {
		return "", alerting.Permanent(fmt.Errorf("%s: %w", channel, err))
	}
	return to, nil
}

func classifyTwilio(provider string, err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return classifyStatus("twilio "+provider, restErr.Status, fmt.Sprintf("%d %s", restErr.Code, restErr.Message))
	}
	return fmt.Errorf("twilio %s: %w", provider, err)
}
