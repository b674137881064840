package dispatch_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldlabs/herald/pkg/circuit"
	"github.com/heraldlabs/herald/pkg/clock"
	"github.com/heraldlabs/herald/pkg/dispatch"
	"github.com/heraldlabs/herald/pkg/provider"
)

// stubProvider scripts send outcomes for chain tests.
type stubProvider struct {
	name      string
	channel   provider.Channel
	available bool
	sendErr   error
	calls     atomic.Int64
}

func (s *stubProvider) Name() string                    { return s.name }
func (s *stubProvider) Channel() provider.Channel       { return s.channel }
func (s *stubProvider) IsAvailable() bool               { return s.available }
func (s *stubProvider) ValidateDestination(string) bool { return true }

func (s *stubProvider) Send(ctx context.Context, req provider.Request) (*provider.Response, error) {
	s.calls.Add(1)
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	return &provider.Response{ProviderMessageID: s.name + "-msg-1"}, nil
}

func emailStub(name string, sendErr error) *stubProvider {
	return &stubProvider{name: name, channel: provider.ChannelEmail, available: true, sendErr: sendErr}
}

func newEmailDispatcher(t *testing.T, breakers *circuit.Registry, providers ...provider.Provider) *dispatch.Dispatcher {
	t.Helper()

	opts := []dispatch.Option{}
	if breakers != nil {
		opts = append(opts, dispatch.WithBreakers(breakers))
	}
	d, err := dispatch.New(provider.ChannelEmail, providers, opts...)
	require.NoError(t, err)
	return d
}

func TestDispatcher_FallbackChain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	req := provider.Request{NotificationID: "n-1", To: "user@example.com", Body: "hi"}

	t.Run("first healthy provider wins", func(t *testing.T) {
		t.Parallel()

		primary := emailStub("postmark", nil)
		secondary := emailStub("sendgrid", nil)
		d := newEmailDispatcher(t, nil, primary, secondary)

		res, err := d.Dispatch(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "postmark", res.Provider)
		assert.Equal(t, "postmark-msg-1", res.ProviderMessageID)
		assert.EqualValues(t, 1, primary.calls.Load())
		assert.EqualValues(t, 0, secondary.calls.Load())
	})

	t.Run("falls through to the next provider on failure", func(t *testing.T) {
		t.Parallel()

		primary := emailStub("postmark", provider.Transient("postmark", "503", "down", nil))
		secondary := emailStub("sendgrid", nil)
		breakers := circuit.NewRegistry(circuit.Settings{FailureThreshold: 3, CoolDown: 5 * time.Minute})
		d := newEmailDispatcher(t, breakers, primary, secondary)

		res, err := d.Dispatch(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "sendgrid", res.Provider)
		assert.EqualValues(t, 1, primary.calls.Load())

		stats := breakers.Stats()
		assert.Equal(t, 1, stats["postmark"].Failures)
	})

	t.Run("provider order is fixed across dispatches", func(t *testing.T) {
		t.Parallel()

		primary := emailStub("postmark", nil)
		secondary := emailStub("sendgrid", nil)
		d := newEmailDispatcher(t, nil, primary, secondary)

		for range 5 {
			res, err := d.Dispatch(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, "postmark", res.Provider)
		}
		assert.EqualValues(t, 5, primary.calls.Load())
		assert.EqualValues(t, 0, secondary.calls.Load())
	})

	t.Run("all providers failing yields an aggregate error", func(t *testing.T) {
		t.Parallel()

		primary := emailStub("postmark", provider.Transient("postmark", "503", "down", nil))
		secondary := emailStub("sendgrid", provider.Transient("sendgrid", "502", "down", nil))
		d := newEmailDispatcher(t, nil, primary, secondary)

		_, err := d.Dispatch(ctx, req)
		require.ErrorIs(t, err, dispatch.ErrAllProvidersExhausted)

		var exhausted *dispatch.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		require.Len(t, exhausted.Failures, 2)
		assert.False(t, exhausted.Permanent())
	})

	t.Run("unanimous permanent rejection is permanent", func(t *testing.T) {
		t.Parallel()

		primary := emailStub("postmark", provider.Permanent("postmark", "300", "invalid recipient", nil))
		secondary := emailStub("sendgrid", provider.Permanent("sendgrid", "400", "invalid recipient", nil))
		d := newEmailDispatcher(t, nil, primary, secondary)

		_, err := d.Dispatch(ctx, req)
		var exhausted *dispatch.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.True(t, exhausted.Permanent())
	})
}

func TestDispatcher_BreakerIntegration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	req := provider.Request{NotificationID: "n-2", To: "user@example.com", Body: "hi"}
	settings := circuit.Settings{FailureThreshold: 3, CoolDown: 5 * time.Minute}

	t.Run("open breaker skips the provider without calling it", func(t *testing.T) {
		t.Parallel()

		primary := emailStub("postmark", provider.Transient("postmark", "503", "down", nil))
		secondary := emailStub("sendgrid", nil)
		mock := clock.NewMock(time.Time{})
		breakers := circuit.NewRegistry(settings, circuit.WithClock(mock))
		d := newEmailDispatcher(t, breakers, primary, secondary)

		// Three consecutive failures trip the primary's breaker.
		for range 3 {
			_, err := d.Dispatch(ctx, req)
			require.NoError(t, err)
		}
		require.Equal(t, circuit.Open, breakers.Get("postmark").State())
		require.EqualValues(t, 3, primary.calls.Load())

		_, err := d.Dispatch(ctx, req)
		require.NoError(t, err)
		assert.EqualValues(t, 3, primary.calls.Load(), "open breaker must short-circuit the call")
	})

	t.Run("breaker closes after cool-down and the provider is retried", func(t *testing.T) {
		t.Parallel()

		primary := emailStub("postmark", provider.Transient("postmark", "503", "down", nil))
		secondary := emailStub("sendgrid", nil)
		mock := clock.NewMock(time.Time{})
		breakers := circuit.NewRegistry(settings, circuit.WithClock(mock))
		d := newEmailDispatcher(t, breakers, primary, secondary)

		for range 3 {
			_, _ = d.Dispatch(ctx, req)
		}
		require.Equal(t, circuit.Open, breakers.Get("postmark").State())

		mock.Advance(5*time.Minute + time.Second)

		primary.sendErr = nil
		res, err := d.Dispatch(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "postmark", res.Provider)
		assert.Equal(t, circuit.Closed, breakers.Get("postmark").State())
	})

	t.Run("success resets accumulated failures", func(t *testing.T) {
		t.Parallel()

		primary := emailStub("postmark", provider.Transient("postmark", "503", "down", nil))
		secondary := emailStub("sendgrid", nil)
		breakers := circuit.NewRegistry(settings)
		d := newEmailDispatcher(t, breakers, primary, secondary)

		for range 2 {
			_, _ = d.Dispatch(ctx, req)
		}
		require.Equal(t, 2, breakers.Stats()["postmark"].Failures)

		primary.sendErr = nil
		_, err := d.Dispatch(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 0, breakers.Stats()["postmark"].Failures)
	})

	t.Run("permanent rejections do not count against the breaker", func(t *testing.T) {
		t.Parallel()

		primary := emailStub("postmark", provider.Permanent("postmark", "406", "inactive recipient", nil))
		secondary := emailStub("sendgrid", nil)
		breakers := circuit.NewRegistry(settings)
		d := newEmailDispatcher(t, breakers, primary, secondary)

		for range 5 {
			_, err := d.Dispatch(ctx, req)
			require.NoError(t, err)
		}
		assert.Equal(t, circuit.Closed, breakers.Get("postmark").State())
		assert.Equal(t, 0, breakers.Stats()["postmark"].Failures)
		assert.EqualValues(t, 5, primary.calls.Load())
	})

	t.Run("fully skipped chain is not a permanent failure", func(t *testing.T) {
		t.Parallel()

		only := emailStub("postmark", provider.Transient("postmark", "503", "down", nil))
		breakers := circuit.NewRegistry(settings)
		d := newEmailDispatcher(t, breakers, only)

		for range 3 {
			_, _ = d.Dispatch(ctx, req)
		}
		require.Equal(t, circuit.Open, breakers.Get("postmark").State())

		_, err := d.Dispatch(ctx, req)
		var exhausted *dispatch.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		require.Len(t, exhausted.Failures, 1)
		assert.True(t, exhausted.Failures[0].Skipped)
		assert.False(t, exhausted.Permanent())
	})
}

func TestDispatcher_Construction(t *testing.T) {
	t.Parallel()

	t.Run("unavailable providers are excluded", func(t *testing.T) {
		t.Parallel()

		down := &stubProvider{name: "postmark", channel: provider.ChannelEmail, available: false}
		up := emailStub("sendgrid", nil)

		d, err := dispatch.New(provider.ChannelEmail, []provider.Provider{down, up})
		require.NoError(t, err)
		assert.Equal(t, []string{"sendgrid"}, d.Providers())
	})

	t.Run("wrong-channel providers are excluded", func(t *testing.T) {
		t.Parallel()

		sms := &stubProvider{name: "twilio", channel: provider.ChannelSMS, available: true}
		up := emailStub("sendgrid", nil)

		d, err := dispatch.New(provider.ChannelEmail, []provider.Provider{sms, up})
		require.NoError(t, err)
		assert.Equal(t, []string{"sendgrid"}, d.Providers())
	})

	t.Run("empty chain fails construction", func(t *testing.T) {
		t.Parallel()

		down := &stubProvider{name: "postmark", channel: provider.ChannelEmail, available: false}

		_, err := dispatch.New(provider.ChannelEmail, []provider.Provider{down})
		assert.ErrorIs(t, err, dispatch.ErrNoProviders)
	})
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	newProviders := func() []provider.Provider {
		return []provider.Provider{
			emailStub("postmark", nil),
			emailStub("sendgrid", nil),
			&stubProvider{name: "twilio", channel: provider.ChannelSMS, available: true},
			&stubProvider{name: "inapp", channel: provider.ChannelInApp, available: true},
			&stubProvider{name: "fcm", channel: provider.ChannelPush, available: false},
		}
	}

	t.Run("groups providers by channel", func(t *testing.T) {
		t.Parallel()

		reg := dispatch.NewRegistry(newProviders())

		avail := reg.Availability()
		assert.Equal(t, []string{"postmark", "sendgrid"}, avail[provider.ChannelEmail])
		assert.Equal(t, []string{"twilio"}, avail[provider.ChannelSMS])
		assert.Equal(t, []string{"inapp"}, avail[provider.ChannelInApp])
		assert.NotContains(t, avail, provider.ChannelPush, "channel with no available providers is not served")

		_, err := reg.Get(provider.ChannelPush)
		assert.ErrorIs(t, err, dispatch.ErrUnknownChannel)
	})

	t.Run("sms breaker trips at five failures", func(t *testing.T) {
		t.Parallel()

		twilio := &stubProvider{
			name:      "twilio",
			channel:   provider.ChannelSMS,
			available: true,
			sendErr:   provider.Transient("twilio", "500", "down", nil),
		}
		reg := dispatch.NewRegistry([]provider.Provider{twilio})

		d, err := reg.Get(provider.ChannelSMS)
		require.NoError(t, err)

		req := provider.Request{NotificationID: "n-3", To: "+14155552671", Body: "code 123456"}
		for range 5 {
			_, err := d.Dispatch(ctx, req)
			require.Error(t, err)
		}

		stats := reg.BreakerStats()[provider.ChannelSMS]
		assert.Equal(t, circuit.Open.String(), stats["twilio"].State)
	})

	t.Run("in-app channel carries no breaker state", func(t *testing.T) {
		t.Parallel()

		reg := dispatch.NewRegistry(newProviders())
		assert.NotContains(t, reg.BreakerStats(), provider.ChannelInApp)
	})
}
