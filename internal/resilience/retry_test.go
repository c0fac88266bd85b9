package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastConfig() Config {
	return Config{
		MaxRetries:   3,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0.2,
	}
}

// TestRetry_SucceedsFirstTry verifies no retries on immediate success
func TestRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), zap.NewNop(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// TestRetry_SucceedsAfterFailures verifies recovery within the retry budget
func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), zap.NewNop(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestRetry_ExhaustsBudget verifies the last error is returned after max retries
func TestRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	boom := errors.New("persistent")
	err := Retry(context.Background(), fastConfig(), zap.NewNop(), func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls) // initial attempt + 3 retries
}

// TestRetry_PermanentError verifies a permanent error stops the loop at once
func TestRetry_PermanentError(t *testing.T) {
	calls := 0
	boom := errors.New("not worth retrying")
	err := Retry(context.Background(), fastConfig(), zap.NewNop(), func() error {
		calls++
		return Permanent(boom)
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

// TestPermanent_NilPassthrough verifies Permanent(nil) stays nil
func TestPermanent_NilPassthrough(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

// TestRetry_CanceledContext verifies cancellation short-circuits
func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastConfig(), zap.NewNop(), func() error {
		calls++
		return errors.New("never seen")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

// TestDelay_GrowsAndCaps verifies exponential growth bounded by MaxDelay
func TestDelay_GrowsAndCaps(t *testing.T) {
	cfg := Config{
		MaxRetries:   5,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		JitterFactor: 0.2,
	}

	first := Delay(cfg, 0)
	assert.InDelta(t, float64(100*time.Millisecond), float64(first), float64(20*time.Millisecond))

	// Far past the cap: 100ms << 6 = 6.4s, capped at 1s before jitter.
	capped := Delay(cfg, 10)
	assert.LessOrEqual(t, capped, time.Second+200*time.Millisecond)
	assert.GreaterOrEqual(t, capped, 800*time.Millisecond)
}

// TestDelay_ZeroConfigUsesDefaults verifies defaults kick in for a zero config
func TestDelay_ZeroConfigUsesDefaults(t *testing.T) {
	d := Delay(Config{}, 0)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, DefaultBaseDelay+DefaultBaseDelay/2)
}
