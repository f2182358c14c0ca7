package genai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	assert.Zero(t, CalculateBackoff(0, time.Second, 10*time.Second))
	assert.Zero(t, CalculateBackoff(-1, time.Second, 10*time.Second))

	for range 50 {
		d := CalculateBackoff(3, time.Second, 10*time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 4*time.Second)

		capped := CalculateBackoff(20, time.Second, 5*time.Second)
		assert.Less(t, capped, 5*time.Second)
	}
}

func TestSleep_Canceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
	assert.NoError(t, Sleep(ctx, 0))
}

func TestWithRetry_SucceedsAfterTransientErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	var retried []int

	err := WithRetry(context.Background(), fastRetry(3), func(attempt int, _ error) {
		retried = append(retried, attempt)
	}, func() error {
		calls++
		if calls < 3 {
			return errors.New("503 unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	t.Parallel()
	calls := 0
	err := WithRetry(context.Background(), fastRetry(5), nil, func() error {
		calls++
		return errors.New("401 unauthorized")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ReturnsLastError(t *testing.T) {
	t.Parallel()
	calls := 0
	err := WithRetry(context.Background(), fastRetry(2), nil, func() error {
		calls++
		return errors.New("rate limit")
	})

	require.EqualError(t, err, "rate limit")
	assert.Equal(t, 2, calls)
}

func TestWithRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	_ = WithRetry(context.Background(), RetryConfig{}, nil, func() error {
		calls++
		return nil
	})
	assert.Equal(t, 1, calls)
}

func TestHasSufficientBudget(t *testing.T) {
	t.Parallel()
	assert.True(t, HasSufficientBudget(context.Background(), time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, HasSufficientBudget(ctx, time.Second))
	assert.True(t, HasSufficientBudget(ctx, time.Microsecond))
}
