package delivery_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldlabs/herald/pkg/backoff"
	"github.com/heraldlabs/herald/pkg/delivery"
	"github.com/heraldlabs/herald/pkg/provider"
)

func validNotification() *delivery.Notification {
	return &delivery.Notification{
		ID:         "n-1",
		Channel:    provider.ChannelEmail,
		Recipient:  "user@example.com",
		Subject:    "Welcome",
		Body:       "Hello!",
		Status:     delivery.StatusPending,
		MaxRetries: 3,
	}
}

func TestStatus_CanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to delivery.Status }{
		{delivery.StatusPending, delivery.StatusProcessing},
		{delivery.StatusProcessing, delivery.StatusSent},
		{delivery.StatusProcessing, delivery.StatusDelivered},
		{delivery.StatusProcessing, delivery.StatusFailed},
		{delivery.StatusSent, delivery.StatusDelivered},
		{delivery.StatusSent, delivery.StatusFailed},
		{delivery.StatusFailed, delivery.StatusPending},
	}
	for _, tr := range allowed {
		assert.True(t, tr.from.CanTransition(tr.to), "%s -> %s must be legal", tr.from, tr.to)
	}

	forbidden := []struct{ from, to delivery.Status }{
		{delivery.StatusPending, delivery.StatusSent},
		{delivery.StatusPending, delivery.StatusDelivered},
		{delivery.StatusSent, delivery.StatusPending},
		{delivery.StatusSent, delivery.StatusProcessing},
		{delivery.StatusDelivered, delivery.StatusFailed},
		{delivery.StatusDelivered, delivery.StatusPending},
		{delivery.StatusFailed, delivery.StatusSent},
	}
	for _, tr := range forbidden {
		assert.False(t, tr.from.CanTransition(tr.to), "%s -> %s must be illegal", tr.from, tr.to)
	}
}

func TestNotification_MarkAsFailed(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	strategy := backoff.Notification{}

	t.Run("schedules coarse retries at 5m, 15m, 45m", func(t *testing.T) {
		t.Parallel()

		n := validNotification()
		n.MaxRetries = 4
		wantDelays := []time.Duration{5 * time.Minute, 15 * time.Minute, 45 * time.Minute}

		for i, want := range wantDelays {
			n.MarkAsFailed("all providers failed", strategy, now)
			require.Equal(t, i+1, n.RetryCount)
			require.Equal(t, delivery.StatusPending, n.Status)
			require.NotNil(t, n.NextRetryAt)
			assert.Equal(t, now.Add(want), *n.NextRetryAt)
		}

		// Fourth failure exhausts the budget; nothing further is scheduled.
		n.MarkAsFailed("all providers failed", strategy, now)
		assert.Equal(t, 4, n.RetryCount)
		assert.Equal(t, delivery.StatusFailed, n.Status)
		assert.Nil(t, n.NextRetryAt)
		assert.NotNil(t, n.FailedAt)
	})

	t.Run("zero max retries fails immediately", func(t *testing.T) {
		t.Parallel()

		n := validNotification()
		n.MaxRetries = 0

		n.MarkAsFailed("boom", strategy, now)
		assert.Equal(t, delivery.StatusFailed, n.Status)
		assert.Nil(t, n.NextRetryAt)
	})
}

func TestNotification_Defer(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(42 * time.Second)

	n := validNotification()
	n.Defer(delivery.ReasonRateLimited, until, now)

	assert.Equal(t, delivery.StatusPending, n.Status)
	assert.Equal(t, 0, n.RetryCount, "a deferral must not consume a retry")
	require.NotNil(t, n.NextRetryAt)
	assert.Equal(t, until, *n.NextRetryAt)
	assert.Equal(t, delivery.ReasonRateLimited, n.Reason)
}

func TestNotification_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*delivery.Notification)
		wantErr error
	}{
		{"valid", func(n *delivery.Notification) {}, nil},
		{"missing id", func(n *delivery.Notification) { n.ID = "" }, delivery.ErrMissingID},
		{"bad channel", func(n *delivery.Notification) { n.Channel = "pigeon" }, delivery.ErrUnknownChannel},
		{"missing recipient", func(n *delivery.Notification) { n.Recipient = "" }, delivery.ErrMissingRecipient},
		{"no content and no template", func(n *delivery.Notification) {
			n.Body, n.Subject, n.HTMLBody, n.TemplateID = "", "", "", ""
		}, delivery.ErrMissingContent},
		{"template reference alone is enough", func(n *delivery.Notification) {
			n.Body, n.HTMLBody = "", ""
			n.TemplateID = "welcome_email"
		}, nil},
		{"negative max retries", func(n *delivery.Notification) { n.MaxRetries = -1 }, delivery.ErrInvalidMaxRetries},
		{"retry count over budget", func(n *delivery.Notification) { n.RetryCount = 4 }, delivery.ErrRetryCountExceedsMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := validNotification()
			tt.mutate(n)
			err := n.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
