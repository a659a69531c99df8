package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// whatsappPrefix is the Twilio addressing prefix for WhatsApp numbers.
const whatsappPrefix = "whatsapp:"

// TwilioOpts holds configuration options for the Twilio WhatsApp channel.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption defines a configuration option for the Twilio channel.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the WhatsApp Business sender number.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// TwilioChannel delivers WhatsApp Business messages through the Twilio REST
// API. Inbound traffic arrives through the webhook endpoint, so Start is a
// no-op here.
type TwilioChannel struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioChannel creates a Twilio channel, falling back to the TWILIO_*
// environment variables for missing credentials.
func NewTwilioChannel(opts ...TwilioOption) (*TwilioChannel, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("twilio from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioChannel{client: client, from: canonicalWhatsAppNumber(cfg.FromNumber)}, nil
}

// Name identifies the provider.
func (c *TwilioChannel) Name() models.Channel {
	return models.ChannelTwilioWhatsApp
}

// Send delivers a text message and returns the Twilio message SID.
func (c *TwilioChannel) Send(ctx context.Context, recipient, text string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	if text == "" {
		return "", models.ErrEmptyBody
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(canonicalWhatsAppNumber(recipient))
	params.SetBody(text)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send twilio message to %s: %w", recipient, err)
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("TwilioChannel.Send: message sent", "to", recipient, "sid", sid)
	return sid, nil
}

// Start is a no-op: inbound Twilio traffic enters through the webhook.
func (c *TwilioChannel) Start(ctx context.Context, handle func(models.InboundMessage)) error {
	return nil
}

// Stop is a no-op for the REST client.
func (c *TwilioChannel) Stop() error {
	return nil
}

// canonicalWhatsAppNumber ensures the "whatsapp:+E164" addressing format.
func canonicalWhatsAppNumber(number string) string {
	if strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}
