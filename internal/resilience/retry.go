package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/metrics"
)

// Strategy selects how retry delays grow between attempts.
type Strategy string

const (
	StrategyFixed             Strategy = "fixed"
	StrategyLinear            Strategy = "linear"
	StrategyExponential       Strategy = "exponential"
	StrategyExponentialJitter Strategy = "exponential_jitter"
)

// RetryPolicy drives re-attempts of retryable provider errors. Rate-limit
// errors that declare a retry-after override the strategy delay.
type RetryPolicy struct {
	MaxAttempts                int
	Strategy                   Strategy
	BaseDelay                  time.Duration
	MaxDelay                   time.Duration
	Multiplier                 float64
	JitterFraction             float64
	RateLimitBackoffMultiplier float64

	// jitter returns a uniform value in [0,1); replaced in tests.
	jitter func() float64
	// sleep waits, honoring ctx; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the per-provider defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:                3,
		Strategy:                   StrategyExponentialJitter,
		BaseDelay:                  time.Second,
		MaxDelay:                   60 * time.Second,
		Multiplier:                 2,
		JitterFraction:             0.25,
		RateLimitBackoffMultiplier: 1.5,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Strategy == "" {
		p.Strategy = StrategyExponentialJitter
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 60 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.RateLimitBackoffMultiplier <= 0 {
		p.RateLimitBackoffMultiplier = 1.5
	}
	if p.jitter == nil {
		p.jitter = rand.Float64
	}
	if p.sleep == nil {
		p.sleep = sleepCtx
	}
	return p
}

// Delay computes the wait before re-attempting after attempt n (1-based)
// failed with err. Capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	p = p.withDefaults()
	if ra := errs.RetryAfterOf(err); ra > 0 {
		return capDelay(time.Duration(float64(ra)*p.RateLimitBackoffMultiplier), p.MaxDelay)
	}
	var d time.Duration
	switch p.Strategy {
	case StrategyFixed:
		d = p.BaseDelay
	case StrategyLinear:
		d = time.Duration(attempt) * p.BaseDelay
	case StrategyExponential:
		d = time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	default: // exponential with jitter
		d = time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
		if p.JitterFraction > 0 {
			d += time.Duration(float64(d) * p.JitterFraction * p.jitter())
		}
	}
	return capDelay(d, p.MaxDelay)
}

// Do runs fn, retrying retryable errors up to MaxAttempts. Only the final
// attempt's error surfaces, annotated with the attempt count.
func (p RetryPolicy) Do(ctx context.Context, providerName string, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attempts = attempt
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errs.Retryable(lastErr) || attempt == p.MaxAttempts {
			break
		}
		delay := p.Delay(attempt, lastErr)
		metrics.RetryAttempts.WithLabelValues(providerName).Inc()
		log.Warn().
			Str("provider", providerName).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("delay", delay).
			Err(lastErr).
			Msg("retrying after failure")
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
	if e := errs.AsError(lastErr); e != nil {
		e.Attempts = attempts
	}
	return lastErr
}

func capDelay(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
