package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGrid sends transactional email through the SendGrid v3 mail API.
type SendGrid struct {
	client *sendgrid.Client
	cfg    SendGridConfig
}

func NewSendGrid(cfg SendGridConfig) (*SendGrid, error) {
	if cfg.SenderEmail != "" && !ValidEmail(cfg.SenderEmail) {
		return nil, fmt.Errorf("sendgrid: sender %q is not a valid email address", cfg.SenderEmail)
	}
	s := &SendGrid{cfg: cfg}
	if cfg.APIKey != "" {
		s.client = sendgrid.NewSendClient(cfg.APIKey)
	}
	return s, nil
}

func (s *SendGrid) Name() string     { return "sendgrid" }
func (s *SendGrid) Channel() Channel { return ChannelEmail }

func (s *SendGrid) IsAvailable() bool {
	return s.client != nil && s.cfg.SenderEmail != ""
}

func (s *SendGrid) ValidateDestination(address string) bool { return ValidEmail(address) }

func (s *SendGrid) Send(ctx context.Context, req Request) (*Response, error) {
	if !s.IsAvailable() {
		return nil, Permanent(s.Name(), "not_configured", "missing credentials", ErrProviderUnavailable)
	}

	from := mail.NewEmail(s.cfg.SenderName, s.cfg.SenderEmail)
	to := mail.NewEmail("", req.To)
	message := mail.NewSingleEmail(from, req.Subject, to, req.Body, req.HTMLBody)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, Transient(s.Name(), "request_failed", err.Error(), err)
	}

	code := fmt.Sprintf("%d", resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusAccepted:
		var messageID string
		if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
			messageID = ids[0]
		}
		return &Response{ProviderMessageID: messageID, Raw: resp.Body}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Transient(s.Name(), code, resp.Body, nil)
	default:
		return nil, Permanent(s.Name(), code, resp.Body, nil)
	}
}
