package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldlabs/herald/pkg/clock"
	"github.com/heraldlabs/herald/pkg/ratelimit"
)

func newLimiter(t *testing.T, limit int, window time.Duration) (*ratelimit.FixedWindow, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock(time.Time{})
	store := ratelimit.NewMemoryStore(ratelimit.WithClock(mock))
	fw, err := ratelimit.NewFixedWindow(store, limit, window, ratelimit.WithLimiterClock(mock))
	require.NoError(t, err)
	return fw, mock
}

func TestFixedWindow_ResetAtFollowsClock(t *testing.T) {
	t.Parallel()

	fw, mock := newLimiter(t, 1, time.Minute)
	ctx := context.Background()

	res, err := fw.Allow(ctx, "email:user@example.com")
	require.NoError(t, err)
	assert.Equal(t, mock.Now().Add(time.Minute), res.ResetAt)

	mock.Advance(20 * time.Second)

	res, err = fw.Allow(ctx, "email:user@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, mock.Now().Add(40*time.Second), res.ResetAt,
		"reset time stays anchored to the window start")
}

func TestFixedWindow_CeilingEnforced(t *testing.T) {
	t.Parallel()

	fw, _ := newLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := range 3 {
		res, err := fw.Allow(ctx, "email:user@example.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d within ceiling", i+1)
		assert.Equal(t, 3-(i+1), res.Remaining)
	}

	res, err := fw.Allow(ctx, "email:user@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "excess request denied")
	assert.Equal(t, 0, res.Remaining)
}

func TestFixedWindow_FreshWindowResetsCount(t *testing.T) {
	t.Parallel()

	fw, mock := newLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for range 3 {
		_, err := fw.Allow(ctx, "sms:+15551234567")
		require.NoError(t, err)
	}

	mock.Advance(time.Minute)

	res, err := fw.Allow(ctx, "sms:+15551234567")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining, "fresh window starts counting from one")
}

func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	fw, _ := newLimiter(t, 1, time.Minute)
	ctx := context.Background()

	res, err := fw.Allow(ctx, "email:a@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = fw.Allow(ctx, "email:a@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = fw.Allow(ctx, "email:b@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other recipients unaffected")
}

func TestFixedWindow_StatusDoesNotConsume(t *testing.T) {
	t.Parallel()

	fw, _ := newLimiter(t, 5, time.Minute)
	ctx := context.Background()

	_, err := fw.Allow(ctx, "push:device-1")
	require.NoError(t, err)

	for range 3 {
		res, err := fw.Status(ctx, "push:device-1")
		require.NoError(t, err)
		assert.Equal(t, 4, res.Remaining)
	}
}

func TestFixedWindow_Reset(t *testing.T) {
	t.Parallel()

	fw, _ := newLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := fw.Allow(ctx, "email:x@example.com")
	require.NoError(t, err)
	require.NoError(t, fw.Reset(ctx, "email:x@example.com"))

	res, err := fw.Allow(ctx, "email:x@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestFixedWindow_ConcurrentAllow(t *testing.T) {
	t.Parallel()

	fw, _ := newLimiter(t, 100, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := fw.Allow(ctx, "email:burst@example.com")
			if err == nil {
				allowed <- res.Allowed
			}
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, 100, count, "exactly the ceiling is admitted under contention")
}

func TestNewFixedWindow_Validation(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore()

	_, err := ratelimit.NewFixedWindow(nil, 10, time.Minute)
	assert.ErrorIs(t, err, ratelimit.ErrStoreRequired)

	_, err = ratelimit.NewFixedWindow(store, 0, time.Minute)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)

	_, err = ratelimit.NewFixedWindow(store, 10, 0)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidWindow)
}

func TestMemoryStore_Purge(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock(time.Time{})
	store := ratelimit.NewMemoryStore(ratelimit.WithClock(mock))
	ctx := context.Background()

	_, _, err := store.IncrementAndGet(ctx, "a", time.Minute)
	require.NoError(t, err)
	_, _, err = store.IncrementAndGet(ctx, "b", time.Hour)
	require.NoError(t, err)

	mock.Advance(2 * time.Minute)
	store.Purge()

	assert.Equal(t, 1, store.Len(), "only the live window survives")
}
