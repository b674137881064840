package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OneSignal sends push notifications through the OneSignal REST API. The
// vendor ships no maintained Go SDK, so this adapter speaks HTTP directly.
type OneSignal struct {
	httpClient *http.Client
	cfg        OneSignalConfig
}

type oneSignalOption func(*OneSignal)

// WithOneSignalHTTPClient overrides the HTTP client, primarily for tests.
func WithOneSignalHTTPClient(c *http.Client) oneSignalOption {
	return func(o *OneSignal) { o.httpClient = c }
}

func NewOneSignal(cfg OneSignalConfig, opts ...oneSignalOption) *OneSignal {
	o := &OneSignal{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OneSignal) Name() string     { return "onesignal" }
func (o *OneSignal) Channel() Channel { return ChannelPush }

func (o *OneSignal) IsAvailable() bool {
	return o.cfg.AppID != "" && o.cfg.RESTAPIKey != ""
}

func (o *OneSignal) ValidateDestination(address string) bool { return ValidDeviceToken(address) }

type oneSignalRequest struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings,omitempty"`
	Contents         map[string]string `json:"contents"`
	Data             map[string]string `json:"data,omitempty"`
}

type oneSignalResponse struct {
	ID     string          `json:"id"`
	Errors json.RawMessage `json:"errors"`
}

func (o *OneSignal) Send(ctx context.Context, req Request) (*Response, error) {
	if !o.IsAvailable() {
		return nil, Permanent(o.Name(), "not_configured", "missing credentials", ErrProviderUnavailable)
	}

	body, err := json.Marshal(oneSignalRequest{
		AppID:            o.cfg.AppID,
		IncludePlayerIDs: []string{req.To},
		Headings:         map[string]string{"en": req.Subject},
		Contents:         map[string]string{"en": req.Body},
		Data:             req.Data,
	})
	if err != nil {
		return nil, Permanent(o.Name(), "marshal", err.Error(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(o.Name(), "request", err.Error(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+o.cfg.RESTAPIKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, Transient(o.Name(), "request_failed", err.Error(), err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, Transient(o.Name(), "read_response", err.Error(), err)
	}

	code := fmt.Sprintf("%d", resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Transient(o.Name(), code, string(raw), nil)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, Permanent(o.Name(), code, string(raw), nil)
	}

	var parsed oneSignalResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, Transient(o.Name(), "decode_response", err.Error(), err)
	}
	// OneSignal reports per-recipient rejections inside a 200 response.
	if parsed.ID == "" && len(parsed.Errors) > 0 {
		return nil, Permanent(o.Name(), "rejected", string(parsed.Errors), nil)
	}

	return &Response{ProviderMessageID: parsed.ID, Raw: string(raw)}, nil
}
