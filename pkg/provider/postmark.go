package provider

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
)

// Postmark sends transactional email through Postmark.
type Postmark struct {
	client *postmark.Client
	cfg    PostmarkConfig
}

// NewPostmark creates the Postmark email provider. Missing tokens leave the
// provider unavailable rather than failing construction; a configured sender
// address must still be a valid email.
func NewPostmark(cfg PostmarkConfig) (*Postmark, error) {
	if cfg.SenderEmail != "" && !ValidEmail(cfg.SenderEmail) {
		return nil, fmt.Errorf("postmark: sender %q is not a valid email address", cfg.SenderEmail)
	}
	p := &Postmark{cfg: cfg}
	if cfg.ServerToken != "" {
		p.client = postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	}
	return p, nil
}

func (p *Postmark) Name() string     { return "postmark" }
func (p *Postmark) Channel() Channel { return ChannelEmail }

func (p *Postmark) IsAvailable() bool {
	return p.client != nil && p.cfg.SenderEmail != ""
}

func (p *Postmark) ValidateDestination(address string) bool { return ValidEmail(address) }

// Send delivers one email. Tracking covers opens and HTML link clicks only;
// plain-text link rewriting breaks too many mail clients.
func (p *Postmark) Send(ctx context.Context, req Request) (*Response, error) {
	if !p.IsAvailable() {
		return nil, Permanent(p.Name(), "not_configured", "missing credentials", ErrProviderUnavailable)
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       p.cfg.SenderEmail,
		ReplyTo:    p.cfg.ReplyTo,
		To:         req.To,
		Subject:    req.Subject,
		Tag:        req.Tag,
		TextBody:   req.Body,
		HTMLBody:   req.HTMLBody,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return nil, Transient(p.Name(), "request_failed", err.Error(), err)
	}
	if resp.ErrorCode > 0 {
		code := fmt.Sprintf("%d", resp.ErrorCode)
		// 100 is planned maintenance, 429 is rate limiting; everything else
		// Postmark returns with an error code is a hard rejection.
		switch resp.ErrorCode {
		case 100, 429:
			return nil, Transient(p.Name(), code, resp.Message, nil)
		default:
			return nil, Permanent(p.Name(), code, resp.Message, nil)
		}
	}

	return &Response{ProviderMessageID: resp.MessageID, Raw: resp.Message}, nil
}
