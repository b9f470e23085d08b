package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linuxfirst/docscan/internal/fetcher"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func fastRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestCalculateBackoffBounds(t *testing.T) {
	policy := NewRetryPolicy()

	for attempt := 0; attempt < 6; attempt++ {
		backoff := policy.CalculateBackoff(attempt)
		// Jitter is at most ±25% around the capped exponential value
		assert.GreaterOrEqual(t, backoff, time.Duration(float64(policy.InitialBackoff)*0.75))
		assert.LessOrEqual(t, backoff, time.Duration(float64(policy.MaxBackoff)*1.25))
	}
}

func TestCalculateBackoffGrows(t *testing.T) {
	policy := &RetryPolicy{
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Hour,
		BackoffMultiplier: 2.0,
	}

	// With jitter bounded at 25%, attempt 3 (8s ±2s) always exceeds
	// attempt 0 (1s ±250ms)
	assert.Greater(t, policy.CalculateBackoff(3), policy.CalculateBackoff(0))
}

func TestFetchWithRetrySucceedsFirstTry(t *testing.T) {
	policy := fastRetryPolicy()
	calls := 0

	result, err := policy.FetchWithRetry(context.Background(), arbor.NewLogger(), func() (*models.FetchResult, error) {
		calls++
		return &models.FetchResult{UnitID: "https://docs.example.com/a"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com/a", result.UnitID)
	assert.Equal(t, 1, calls)
}

func TestFetchWithRetryRecoversFromTransient(t *testing.T) {
	policy := fastRetryPolicy()
	calls := 0

	result, err := policy.FetchWithRetry(context.Background(), arbor.NewLogger(), func() (*models.FetchResult, error) {
		calls++
		if calls < 3 {
			return nil, &fetcher.Error{Kind: fetcher.KindTransient, Unit: "u", Err: errors.New("connection reset")}
		}
		return &models.FetchResult{UnitID: "u"}, nil
	})

	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, 3, calls)
}

func TestFetchWithRetryNonRetryableFailsImmediately(t *testing.T) {
	policy := fastRetryPolicy()
	calls := 0
	fetchErr := &fetcher.Error{Kind: fetcher.KindNotFound, Unit: "u", StatusCode: 404, Err: errors.New("not found")}

	_, err := policy.FetchWithRetry(context.Background(), arbor.NewLogger(), func() (*models.FetchResult, error) {
		calls++
		return nil, fetchErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, fetcher.KindNotFound, fetcher.KindOf(err))
}

func TestFetchWithRetryExhaustsAttempts(t *testing.T) {
	policy := fastRetryPolicy()
	calls := 0

	_, err := policy.FetchWithRetry(context.Background(), arbor.NewLogger(), func() (*models.FetchResult, error) {
		calls++
		return nil, &fetcher.Error{Kind: fetcher.KindRateLimited, Unit: "u", StatusCode: 429, Err: errors.New("throttled")}
	})

	require.Error(t, err)
	assert.Equal(t, policy.MaxAttempts, calls)
	assert.True(t, fetcher.IsRetryable(err))
}

func TestFetchWithRetryUntypedErrorIsTransient(t *testing.T) {
	policy := fastRetryPolicy()
	calls := 0

	_, err := policy.FetchWithRetry(context.Background(), arbor.NewLogger(), func() (*models.FetchResult, error) {
		calls++
		return nil, errors.New("dial tcp: i/o timeout")
	})

	require.Error(t, err)
	assert.Equal(t, policy.MaxAttempts, calls)
}

func TestFetchWithRetryHonorsContext(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := policy.FetchWithRetry(ctx, arbor.NewLogger(), func() (*models.FetchResult, error) {
		calls++
		return nil, &fetcher.Error{Kind: fetcher.KindTransient, Unit: "u", Err: errors.New("flaky")}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
