package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
)

// SES sends transactional email through Amazon SES v2.
type SES struct {
	client *sesv2.Client
	cfg    SESConfig
}

// NewSES creates the SES email provider. AWS credentials resolve through the
// default chain; the provider stays unavailable when region or sender are
// unset so construction never fails on a machine without AWS access.
func NewSES(ctx context.Context, cfg SESConfig) (*SES, error) {
	if cfg.SenderEmail != "" && !ValidEmail(cfg.SenderEmail) {
		return nil, fmt.Errorf("ses: sender %q is not a valid email address", cfg.SenderEmail)
	}
	s := &SES{cfg: cfg}
	if cfg.Region != "" {
		awscfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("ses: load aws config: %w", err)
		}
		s.client = sesv2.NewFromConfig(awscfg)
	}
	return s, nil
}

func (s *SES) Name() string     { return "ses" }
func (s *SES) Channel() Channel { return ChannelEmail }

func (s *SES) IsAvailable() bool {
	return s.client != nil && s.cfg.SenderEmail != ""
}

func (s *SES) ValidateDestination(address string) bool { return ValidEmail(address) }

func (s *SES) Send(ctx context.Context, req Request) (*Response, error) {
	if !s.IsAvailable() {
		return nil, Permanent(s.Name(), "not_configured", "missing credentials", ErrProviderUnavailable)
	}

	body := &sestypes.Body{}
	if req.Body != "" {
		body.Text = &sestypes.Content{Data: aws.String(req.Body)}
	}
	if req.HTMLBody != "" {
		body.Html = &sestypes.Content{Data: aws.String(req.HTMLBody)}
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.cfg.SenderEmail),
		Destination:      &sestypes.Destination{ToAddresses: []string{req.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(req.Subject)},
				Body:    body,
			},
		},
	})
	if err != nil {
		return nil, classifySESError(s.Name(), err)
	}

	return &Response{ProviderMessageID: aws.ToString(out.MessageId)}, nil
}

func classifySESError(providerName string, err error) *SendError {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return Transient(providerName, "request_failed", err.Error(), err)
	}
	switch apiErr.ErrorCode() {
	case "TooManyRequestsException", "LimitExceededException", "SendingPausedException", "InternalServiceErrorException":
		return Transient(providerName, apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	default:
		return Permanent(providerName, apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	}
}
