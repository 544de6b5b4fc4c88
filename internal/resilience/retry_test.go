package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return NewTransientError(errors.New("connection reset"), 0)
		}
		return nil
	})
	require.NoError(t, err)
	// Two failures plus the success make three attempts.
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return NewTransientError(errors.New("boom"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	var transient *TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestDo_TerminalErrorStopsImmediately(t *testing.T) {
	calls := 0
	terminal := errors.New("bad request")
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return terminal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, terminal)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastConfig(10), func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("flaky"), 0)
	})
	require.Error(t, err)
	// Cancellation surfaces the last attempt's error without further retries.
	var transient *TransientError
	assert.ErrorAs(t, err, &transient)
	assert.Equal(t, 1, calls)
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}

	assert.Equal(t, time.Second, Backoff(1, cfg))
	assert.Equal(t, 2*time.Second, Backoff(2, cfg))
	assert.Equal(t, 4*time.Second, Backoff(3, cfg))
	assert.Equal(t, 8*time.Second, Backoff(4, cfg))
	// Doubling past the ceiling clamps to MaxDelay.
	assert.Equal(t, 10*time.Second, Backoff(5, cfg))
	assert.Equal(t, 10*time.Second, Backoff(9, cfg))
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastConfig(3), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(errors.New("try again"), 429)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	assert.True(t, IsTransientHTTPStatus(408))
	assert.True(t, IsTransientHTTPStatus(429))
	assert.True(t, IsTransientHTTPStatus(500))
	assert.True(t, IsTransientHTTPStatus(503))
	assert.False(t, IsTransientHTTPStatus(200))
	assert.False(t, IsTransientHTTPStatus(400))
	assert.False(t, IsTransientHTTPStatus(404))
}
