package delivery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldlabs/herald/pkg/clock"
	"github.com/heraldlabs/herald/pkg/delivery"
	"github.com/heraldlabs/herald/pkg/dispatch"
	"github.com/heraldlabs/herald/pkg/provider"
	"github.com/heraldlabs/herald/pkg/ratelimit"
	"github.com/heraldlabs/herald/pkg/template"
)

// scriptProvider pops one scripted error per Send call; an empty script means
// every call succeeds.
type scriptProvider struct {
	name     string
	channel  provider.Channel
	validate func(string) bool

	mu      sync.Mutex
	script  []error
	calls   int
	lastReq provider.Request

	entered chan struct{} // closed once on first Send, when set
	release chan struct{} // Send blocks until closed, when set
}

func (s *scriptProvider) Name() string              { return s.name }
func (s *scriptProvider) Channel() provider.Channel { return s.channel }
func (s *scriptProvider) IsAvailable() bool         { return true }

func (s *scriptProvider) ValidateDestination(addr string) bool {
	if s.validate != nil {
		return s.validate(addr)
	}
	return true
}

func (s *scriptProvider) Send(ctx context.Context, req provider.Request) (*provider.Response, error) {
	s.mu.Lock()
	s.calls++
	s.lastReq = req
	entered, release := s.entered, s.release
	var err error
	if len(s.script) > 0 {
		err = s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if entered != nil {
		close(entered)
		s.mu.Lock()
		s.entered = nil
		s.mu.Unlock()
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &provider.Response{ProviderMessageID: s.name + "-msg"}, nil
}

func (s *scriptProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptProvider) lastRequest() provider.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

type testEnv struct {
	orch    *delivery.Orchestrator
	storage *delivery.MemoryStorage
	clk     *clock.Mock
}

func newTestEnv(t *testing.T, p provider.Provider, opts ...delivery.Option) *testEnv {
	t.Helper()

	mock := clock.NewMock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	storage := delivery.NewMemoryStorage()
	registry := dispatch.NewRegistry([]provider.Provider{p}, dispatch.WithRegistryClock(mock))

	opts = append([]delivery.Option{delivery.WithClock(mock)}, opts...)
	orch, err := delivery.NewOrchestrator(storage, registry, delivery.Config{MaxRetries: 3}, opts...)
	require.NoError(t, err)
	return &testEnv{orch: orch, storage: storage, clk: mock}
}

func emailProvider(name string, script ...error) *scriptProvider {
	return &scriptProvider{name: name, channel: provider.ChannelEmail, script: script}
}

func TestOrchestrator_SendNotification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("successful send", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark")
		env := newTestEnv(t, p)

		attempt, err := env.orch.SendNotification(ctx, validNotification())
		require.NoError(t, err)
		require.NotNil(t, attempt)
		assert.Equal(t, 1, attempt.Number)
		assert.Equal(t, delivery.AttemptSent, attempt.Status)
		assert.Equal(t, "postmark", attempt.Provider)
		assert.Equal(t, "postmark-msg", attempt.ProviderMessageID)

		n, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusSent, n.Status)
		assert.NotNil(t, n.SentAt)
		assert.Equal(t, 0, n.RetryCount)
	})

	t.Run("in-app delivery is immediately delivered", func(t *testing.T) {
		t.Parallel()

		p := &scriptProvider{name: "inapp", channel: provider.ChannelInApp}
		env := newTestEnv(t, p)

		n := validNotification()
		n.Channel = provider.ChannelInApp
		n.Recipient = "user-42"

		attempt, err := env.orch.SendNotification(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptSent, attempt.Status)

		stored, err := env.orch.GetNotification(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusDelivered, stored.Status)
		assert.NotNil(t, stored.DeliveredAt)
	})

	t.Run("future schedule defers without an attempt", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark")
		env := newTestEnv(t, p)

		n := validNotification()
		at := env.clk.Now().Add(time.Hour)
		n.ScheduledAt = &at

		attempt, err := env.orch.SendNotification(ctx, n)
		require.NoError(t, err)
		assert.Nil(t, attempt)
		assert.Equal(t, 0, p.callCount())

		stored, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusPending, stored.Status)
	})

	t.Run("generates an id when the caller omits one", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, emailProvider("postmark"))

		n := validNotification()
		n.ID = ""
		_, err := env.orch.SendNotification(ctx, n)
		require.NoError(t, err)
		assert.NotEmpty(t, n.ID)
	})

	t.Run("rejects destinations no provider accepts", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark")
		p.validate = provider.ValidEmail
		env := newTestEnv(t, p)

		n := validNotification()
		n.Recipient = "not-an-address"
		_, err := env.orch.SendNotification(ctx, n)
		assert.ErrorIs(t, err, delivery.ErrInvalidDestination)
	})

	t.Run("rejects channels with no dispatcher", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, emailProvider("postmark"))

		n := validNotification()
		n.Channel = provider.ChannelSMS
		n.Recipient = "+14155552671"
		_, err := env.orch.SendNotification(ctx, n)
		assert.ErrorIs(t, err, dispatch.ErrUnknownChannel)
	})
}

func TestOrchestrator_RateLimiting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	mock := clock.NewMock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter, err := ratelimit.NewFixedWindow(
		ratelimit.NewMemoryStore(ratelimit.WithClock(mock)),
		1, time.Minute,
		ratelimit.WithLimiterClock(mock),
	)
	require.NoError(t, err)

	p := emailProvider("postmark")
	storage := delivery.NewMemoryStorage()
	registry := dispatch.NewRegistry([]provider.Provider{p}, dispatch.WithRegistryClock(mock))
	orch, err := delivery.NewOrchestrator(storage, registry, delivery.Config{MaxRetries: 3},
		delivery.WithClock(mock),
		delivery.WithLimiter(provider.ChannelEmail, limiter),
	)
	require.NoError(t, err)

	first := validNotification()
	_, err = orch.SendNotification(ctx, first)
	require.NoError(t, err)

	second := validNotification()
	second.ID = "n-2"
	_, err = orch.SendNotification(ctx, second)
	require.ErrorIs(t, err, delivery.ErrRateLimitExceeded)

	// No vendor call, no delivery log entry, no retry consumed.
	assert.Equal(t, 1, p.callCount())
	attempts, err := orch.ListAttempts(ctx, "n-2")
	require.NoError(t, err)
	assert.Empty(t, attempts)

	stored, err := orch.GetNotification(ctx, "n-2")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusPending, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Equal(t, delivery.ReasonRateLimited, stored.Reason)
	require.NotNil(t, stored.NextRetryAt, "callers must see when the next try happens")
	assert.Equal(t, mock.Now().Add(time.Minute), *stored.NextRetryAt,
		"deferral waits out the window on the injected clock")
}

func TestOrchestrator_FailureAndRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("transient failure schedules a seconds-scale retry", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark", provider.Transient("postmark", "503", "down", nil))
		env := newTestEnv(t, p)
		start := env.clk.Now()

		attempt, err := env.orch.SendNotification(ctx, validNotification())
		require.ErrorIs(t, err, delivery.ErrDeliveryFailed)
		require.ErrorIs(t, err, dispatch.ErrAllProvidersExhausted)
		require.NotNil(t, attempt)
		assert.Equal(t, delivery.AttemptFailed, attempt.Status)
		assert.Equal(t, "providers_exhausted", attempt.ErrorCode)

		n, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusPending, n.Status)
		assert.Equal(t, 1, n.RetryCount)
		assert.Equal(t, delivery.ReasonProvidersExhausted, n.Reason)
		require.NotNil(t, n.NextRetryAt)
		assert.Equal(t, start.Add(10*time.Second), *n.NextRetryAt, "5s * 2^1")
	})

	t.Run("permanent rejection fails terminally", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark", provider.Permanent("postmark", "406", "inactive recipient", nil))
		env := newTestEnv(t, p)

		_, err := env.orch.SendNotification(ctx, validNotification())
		require.ErrorIs(t, err, delivery.ErrDeliveryFailed)

		n, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusFailed, n.Status)
		assert.Equal(t, delivery.ReasonPermanentRejection, n.Reason)
		assert.Nil(t, n.NextRetryAt)

		_, err = env.orch.RetryNotification(ctx, "n-1")
		assert.ErrorIs(t, err, delivery.ErrRetriesExhausted)
	})

	t.Run("retries exhaust after max retries with contiguous attempt numbers", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark",
			provider.Transient("postmark", "503", "down", nil),
			provider.Transient("postmark", "503", "down", nil),
			provider.Transient("postmark", "503", "down", nil),
		)
		env := newTestEnv(t, p)

		_, err := env.orch.SendNotification(ctx, validNotification())
		require.ErrorIs(t, err, delivery.ErrDeliveryFailed)

		for i := 2; i <= 3; i++ {
			_, err = env.orch.RetryNotification(ctx, "n-1")
			require.ErrorIs(t, err, delivery.ErrDeliveryFailed, "retry %d", i)
		}

		n, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusFailed, n.Status)
		assert.Equal(t, 3, n.RetryCount)
		assert.Equal(t, delivery.ReasonRetriesExhausted, n.Reason)
		assert.Nil(t, n.NextRetryAt)

		attempts, err := env.orch.ListAttempts(ctx, "n-1")
		require.NoError(t, err)
		require.Len(t, attempts, 3)
		for i, a := range attempts {
			assert.Equal(t, i+1, a.Number)
			assert.Equal(t, delivery.AttemptFailed, a.Status)
		}

		_, err = env.orch.RetryNotification(ctx, "n-1")
		assert.ErrorIs(t, err, delivery.ErrRetriesExhausted)
	})

	t.Run("manual retry clears the retry timer", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark", provider.Transient("postmark", "503", "down", nil))
		env := newTestEnv(t, p)

		_, err := env.orch.SendNotification(ctx, validNotification())
		require.ErrorIs(t, err, delivery.ErrDeliveryFailed)

		// NextRetryAt is an hour away on the wall clock; the manual retry
		// does not wait for it.
		attempt, err := env.orch.RetryNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, 2, attempt.Number)

		n, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusSent, n.Status)
	})

	t.Run("retry of a sent notification is an invalid state", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, emailProvider("postmark"))

		_, err := env.orch.SendNotification(ctx, validNotification())
		require.NoError(t, err)

		_, err = env.orch.RetryNotification(ctx, "n-1")
		assert.ErrorIs(t, err, delivery.ErrInvalidState)

		_, err = env.orch.ProcessDelivery(ctx, "n-1")
		assert.ErrorIs(t, err, delivery.ErrInvalidState)
	})
}

func TestOrchestrator_SingleFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	p := emailProvider("postmark")
	p.entered = make(chan struct{})
	p.release = make(chan struct{})
	env := newTestEnv(t, p)

	require.NoError(t, env.storage.CreateNotification(ctx, validNotification()))

	done := make(chan error, 1)
	go func() {
		_, err := env.orch.ProcessDelivery(ctx, "n-1")
		done <- err
	}()

	<-p.entered // first round is mid-vendor-call

	_, err := env.orch.ProcessDelivery(ctx, "n-1")
	assert.ErrorIs(t, err, delivery.ErrDeliveryInFlight)

	close(p.release)
	require.NoError(t, <-done)

	n, err := env.orch.GetNotification(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusSent, n.Status)
}

// attemptErrStorage rejects every attempt write.
type attemptErrStorage struct {
	delivery.Storage
	err error
}

func (s *attemptErrStorage) CreateAttempt(ctx context.Context, a *delivery.Attempt) error {
	return s.err
}

func TestOrchestrator_ProcessingNeverStranded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("attempt write failure returns the row to pending", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark")
		mock := clock.NewMock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
		storage := &attemptErrStorage{
			Storage: delivery.NewMemoryStorage(),
			err:     errors.New("attempt write refused"),
		}
		registry := dispatch.NewRegistry([]provider.Provider{p}, dispatch.WithRegistryClock(mock))
		orch, err := delivery.NewOrchestrator(storage, registry, delivery.Config{MaxRetries: 3},
			delivery.WithClock(mock))
		require.NoError(t, err)

		_, err = orch.SendNotification(ctx, validNotification())
		require.ErrorContains(t, err, "attempt write refused")
		assert.Equal(t, 0, p.callCount())

		stored, err := orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusPending, stored.Status)
		require.NotNil(t, stored.NextRetryAt, "the retry sweep must be able to rescue the row")
		assert.Equal(t, mock.Now(), *stored.NextRetryAt)
	})

	t.Run("unservable channel leaves the row pending", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, emailProvider("postmark"))

		n := validNotification()
		n.Channel = provider.ChannelSMS
		n.Recipient = "+14155552671"
		require.NoError(t, env.storage.CreateNotification(ctx, n))

		_, err := env.orch.ProcessDelivery(ctx, n.ID)
		assert.ErrorIs(t, err, dispatch.ErrUnknownChannel)

		stored, err := env.orch.GetNotification(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusPending, stored.Status)
	})
}

func TestOrchestrator_Templates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	welcome := template.Template{
		ID:            "welcome_email",
		Name:          "Welcome",
		Dialect:       "go",
		DefaultLocale: "en",
		Locales: map[string]template.Content{
			"en": {
				Subject: "Welcome, {{.userName}}!",
				Body:    "Hi {{.userName}}, thanks for joining.",
			},
		},
		Variables: []template.Variable{
			{Name: "userName", Type: template.VarString, Required: true},
		},
	}

	newTemplatedEnv := func(t *testing.T, p provider.Provider) *testEnv {
		t.Helper()
		engine, err := template.NewEngine(template.NewMemorySource(welcome), template.Config{})
		require.NoError(t, err)
		t.Cleanup(engine.Close)

		env := newTestEnv(t, p, delivery.WithTemplates(engine))
		return env
	}

	t.Run("renders before dispatch", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark")
		env := newTemplatedEnv(t, p)

		n := validNotification()
		n.Subject, n.Body = "", ""
		n.TemplateID = "welcome_email"
		n.Variables = map[string]any{"userName": "Ada"}

		_, err := env.orch.SendNotification(ctx, n)
		require.NoError(t, err)

		sent := p.lastRequest()
		assert.Equal(t, "Welcome, Ada!", sent.Subject)
		assert.Equal(t, "Hi Ada, thanks for joining.", sent.Body)
	})

	t.Run("validation failure is terminal without a vendor call", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark")
		env := newTemplatedEnv(t, p)

		n := validNotification()
		n.Subject, n.Body = "", ""
		n.TemplateID = "welcome_email"
		// userName missing

		_, err := env.orch.SendNotification(ctx, n)
		require.Error(t, err)
		var verr *template.ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Equal(t, 0, p.callCount())

		stored, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusFailed, stored.Status)
		assert.Equal(t, delivery.ReasonTemplateInvalid, stored.Reason)
		assert.Nil(t, stored.NextRetryAt)

		attempts, err := env.orch.ListAttempts(ctx, "n-1")
		require.NoError(t, err)
		assert.Empty(t, attempts)
	})

	t.Run("unknown template is terminal", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark")
		env := newTemplatedEnv(t, p)

		n := validNotification()
		n.Subject, n.Body = "", ""
		n.TemplateID = "ghost"

		_, err := env.orch.SendNotification(ctx, n)
		assert.ErrorIs(t, err, template.ErrTemplateNotFound)
		assert.Equal(t, 0, p.callCount())
	})

	t.Run("preview render without a delivery", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark")
		env := newTemplatedEnv(t, p)

		res, err := env.orch.RenderTemplate(ctx, "welcome_email", map[string]any{"userName": "Ada"}, "en")
		require.NoError(t, err)
		assert.Equal(t, "Welcome, Ada!", res.Subject)
		assert.Equal(t, 0, p.callCount())
	})

	t.Run("preview render without an engine", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, emailProvider("postmark"))

		_, err := env.orch.RenderTemplate(ctx, "welcome_email", nil, "en")
		assert.ErrorIs(t, err, template.ErrTemplateNotFound)
	})
}

func TestOrchestrator_ProviderEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	sendOne := func(t *testing.T) (*testEnv, *delivery.Attempt) {
		t.Helper()
		env := newTestEnv(t, emailProvider("postmark"))
		attempt, err := env.orch.SendNotification(ctx, validNotification())
		require.NoError(t, err)
		return env, attempt
	}

	t.Run("delivery confirmation promotes sent to delivered", func(t *testing.T) {
		t.Parallel()

		env, attempt := sendOne(t)
		require.NoError(t, env.orch.ApplyProviderEvent(ctx, "postmark", attempt.ProviderMessageID, "Delivery"))

		n, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusDelivered, n.Status)

		attempts, err := env.orch.ListAttempts(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptDelivered, attempts[0].Status)
	})

	t.Run("bounce fails the notification without retry", func(t *testing.T) {
		t.Parallel()

		env, attempt := sendOne(t)
		require.NoError(t, env.orch.ApplyProviderEvent(ctx, "postmark", attempt.ProviderMessageID, "Bounce"))

		n, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusFailed, n.Status)
		assert.Nil(t, n.NextRetryAt)

		attempts, err := env.orch.ListAttempts(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptBounced, attempts[0].Status)
	})

	t.Run("engagement events do not move delivery state", func(t *testing.T) {
		t.Parallel()

		env, attempt := sendOne(t)
		require.NoError(t, env.orch.ApplyProviderEvent(ctx, "postmark", attempt.ProviderMessageID, "Open"))

		n, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusSent, n.Status)
	})

	t.Run("events for unknown messages are dropped", func(t *testing.T) {
		t.Parallel()

		env, _ := sendOne(t)
		assert.NoError(t, env.orch.ApplyProviderEvent(ctx, "postmark", "never-heard-of-it", "Delivery"))
	})

	t.Run("delivered is final even if a bounce arrives later", func(t *testing.T) {
		t.Parallel()

		env, attempt := sendOne(t)
		require.NoError(t, env.orch.ApplyProviderEvent(ctx, "postmark", attempt.ProviderMessageID, "Delivery"))
		require.NoError(t, env.orch.ApplyProviderEvent(ctx, "postmark", attempt.ProviderMessageID, "Bounce"))

		n, err := env.orch.GetNotification(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusDelivered, n.Status)
	})
}

func TestOrchestrator_MetricsAndHealth(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, emailProvider("postmark"))

	_, err := env.orch.SendNotification(ctx, validNotification())
	require.NoError(t, err)

	metrics, err := env.orch.Metrics(ctx, delivery.MetricsFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, metrics.Notifications[delivery.StatusSent])
	assert.EqualValues(t, 1, metrics.Channels[provider.ChannelEmail])
	assert.Equal(t, []string{"postmark"}, metrics.Availability[provider.ChannelEmail])
	assert.EqualValues(t, 1, metrics.Providers["postmark"].Sent)
	assert.Contains(t, metrics.Breakers, provider.ChannelEmail)

	filtered, err := env.orch.Metrics(ctx, delivery.MetricsFilter{Channel: provider.ChannelSMS})
	require.NoError(t, err)
	assert.Empty(t, filtered.Notifications)
	assert.Empty(t, filtered.Providers)

	health, err := env.orch.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, delivery.HealthOK, health.Status)
	assert.Equal(t, []string{"postmark"}, health.Availability[provider.ChannelEmail])
	assert.Zero(t, health.QueueDepth)
}

func TestOrchestrator_SendBulk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("processes the whole group in batches", func(t *testing.T) {
		t.Parallel()

		p := emailProvider("postmark")
		mock := clock.NewMock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
		storage := delivery.NewMemoryStorage()
		registry := dispatch.NewRegistry([]provider.Provider{p}, dispatch.WithRegistryClock(mock))
		orch, err := delivery.NewOrchestrator(storage, registry, delivery.Config{
			MaxRetries:     3,
			BulkBatchSize:  2,
			BulkBatchDelay: time.Millisecond,
		}, delivery.WithClock(mock))
		require.NoError(t, err)

		var group []*delivery.Notification
		for _, id := range []string{"b-1", "b-2", "b-3", "b-4", "b-5"} {
			n := validNotification()
			n.ID = id
			n.Recipient = id + "@example.com"
			group = append(group, n)
		}

		fut, err := orch.SendBulk(ctx, delivery.BulkRequest{Notifications: group})
		require.NoError(t, err)

		stats, err := fut.Await()
		require.NoError(t, err)
		assert.EqualValues(t, 5, stats.Total)
		assert.EqualValues(t, 5, stats.Sent)
		assert.Equal(t, 5, p.callCount())
		assert.NotEmpty(t, stats.GroupID)

		for _, n := range group {
			assert.Equal(t, stats.GroupID, n.GroupID)
		}
	})

	t.Run("rejects empty and oversized groups", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, emailProvider("postmark"))

		_, err := env.orch.SendBulk(ctx, delivery.BulkRequest{})
		assert.ErrorIs(t, err, delivery.ErrEmptyGroup)

		big := make([]*delivery.Notification, 10001)
		for i := range big {
			big[i] = validNotification()
		}
		_, err = env.orch.SendBulk(ctx, delivery.BulkRequest{Notifications: big})
		assert.ErrorIs(t, err, delivery.ErrGroupTooBig)
	})
}
