package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexdl/vortex/internal/errs"
)

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
}

func connErr() error {
	return errs.New(errs.KindConnectionFailed, "CONN", "connection refused")
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	p := DefaultRetryPolicy()
	p.sleep = noSleep(nil)

	calls := 0
	err := p.Do(context.Background(), "fake", func(context.Context) error {
		calls++
		if calls < 3 {
			return connErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := DefaultRetryPolicy()
	p.sleep = noSleep(nil)

	calls := 0
	err := p.Do(context.Background(), "fake", func(context.Context) error {
		calls++
		return connErr()
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	require.NotNil(t, errs.AsError(err))
	assert.Equal(t, 3, errs.AsError(err).Attempts)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := DefaultRetryPolicy()
	p.sleep = noSleep(nil)

	calls := 0
	err := p.Do(context.Background(), "fake", func(context.Context) error {
		calls++
		return errs.New(errs.KindAuthenticationFailed, "AUTH", "bad credentials")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, errs.AsError(err).Attempts)
}

func TestDoStopsWhenContextCanceled(t *testing.T) {
	p := DefaultRetryPolicy()
	p.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, "fake", func(context.Context) error { return connErr() })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelayStrategies(t *testing.T) {
	base := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}

	fixed := base
	fixed.Strategy = StrategyFixed
	assert.Equal(t, time.Second, fixed.Delay(1, connErr()))
	assert.Equal(t, time.Second, fixed.Delay(5, connErr()))

	linear := base
	linear.Strategy = StrategyLinear
	assert.Equal(t, time.Second, linear.Delay(1, connErr()))
	assert.Equal(t, 3*time.Second, linear.Delay(3, connErr()))

	exp := base
	exp.Strategy = StrategyExponential
	assert.Equal(t, time.Second, exp.Delay(1, connErr()))
	assert.Equal(t, 4*time.Second, exp.Delay(3, connErr()))
	assert.Equal(t, time.Minute, exp.Delay(20, connErr()), "capped at MaxDelay")
}

func TestDelayJitterBounded(t *testing.T) {
	p := RetryPolicy{
		Strategy:       StrategyExponentialJitter,
		BaseDelay:      time.Second,
		MaxDelay:       time.Minute,
		Multiplier:     2,
		JitterFraction: 0.25,
		jitter:         func() float64 { return 1 },
	}
	// attempt 2 nominal delay is 2s, full jitter adds 25%
	assert.Equal(t, 2500*time.Millisecond, p.Delay(2, connErr()))

	p.jitter = func() float64 { return 0 }
	assert.Equal(t, 2*time.Second, p.Delay(2, connErr()))
}

func TestDelayHonorsRetryAfter(t *testing.T) {
	p := DefaultRetryPolicy()
	rateLimited := errs.New(errs.KindRateLimited, "RATE", "throttled").
		WithRetryAfter(5 * time.Second)

	// declared retry-after times the 1.5 multiplier beats the strategy delay
	assert.Equal(t, 7500*time.Millisecond, p.Delay(1, rateLimited))

	huge := errs.New(errs.KindRateLimited, "RATE", "throttled").
		WithRetryAfter(10 * time.Minute)
	assert.Equal(t, p.MaxDelay, p.Delay(1, huge), "capped at MaxDelay")
}

func TestDoRecordsDelays(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{
		MaxAttempts: 3,
		Strategy:    StrategyFixed,
		BaseDelay:   time.Second,
		sleep:       noSleep(&delays),
	}
	err := p.Do(context.Background(), "fake", func(context.Context) error { return connErr() })
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, delays)
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), 0))
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(sleepCtx(ctx, time.Hour), context.Canceled))
}
