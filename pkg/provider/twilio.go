package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio sends SMS through the Twilio Programmable Messaging API.
type Twilio struct {
	client *twilio.RestClient
	cfg    TwilioConfig
}

func NewTwilio(cfg TwilioConfig) (*Twilio, error) {
	if cfg.FromNumber != "" && !ValidE164(cfg.FromNumber) {
		return nil, fmt.Errorf("twilio: from number %q is not E.164", cfg.FromNumber)
	}
	t := &Twilio{cfg: cfg}
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		t.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
	}
	return t, nil
}

func (t *Twilio) Name() string     { return "twilio" }
func (t *Twilio) Channel() Channel { return ChannelSMS }

func (t *Twilio) IsAvailable() bool {
	return t.client != nil && t.cfg.FromNumber != ""
}

func (t *Twilio) ValidateDestination(address string) bool { return ValidE164(address) }

// Send delivers one SMS. The generated Twilio REST client carries no context
// parameter, so cancellation is honored up front only.
func (t *Twilio) Send(ctx context.Context, req Request) (*Response, error) {
	if !t.IsAvailable() {
		return nil, Permanent(t.Name(), "not_configured", "missing credentials", ErrProviderUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, Transient(t.Name(), "context", err.Error(), err)
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(req.To)
	params.SetFrom(t.cfg.FromNumber)
	params.SetBody(req.Body)

	msg, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return nil, classifyTwilioError(t.Name(), err)
	}

	var sid string
	if msg.Sid != nil {
		sid = *msg.Sid
	}
	return &Response{ProviderMessageID: sid}, nil
}

func classifyTwilioError(providerName string, err error) *SendError {
	terr, ok := err.(*twilioclient.TwilioRestError)
	if !ok {
		return Transient(providerName, "request_failed", err.Error(), err)
	}
	code := fmt.Sprintf("%d", terr.Code)
	if terr.Status == http.StatusTooManyRequests || terr.Status >= 500 {
		return Transient(providerName, code, terr.Message, err)
	}
	return Permanent(providerName, code, terr.Message, err)
}
