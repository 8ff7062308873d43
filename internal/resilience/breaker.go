package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/metrics"
)

// BreakerConfig sets the per-provider circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive failures before opening
	RecoveryTimeout  time.Duration // how long OPEN fails fast before probing
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// Breaker wraps one provider's circuit. CLOSED trips to OPEN on the Nth
// consecutive failure; after RecoveryTimeout a single HALF_OPEN probe is
// admitted, success closes and resets, failure re-opens.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one probe at a time in HALF_OPEN
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(stateGauge(to))
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn behind the breaker. While OPEN (or when the probe slot is
// taken in HALF_OPEN) it fails fast with a CircuitOpen error.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errs.Wrap(errs.KindCircuitOpen, "CIRCUIT_OPEN",
			fmt.Sprintf("circuit breaker for %s is %s", b.name, b.cb.State()), err).
			WithHelp("the provider failed repeatedly and is cooling off", "wait for the recovery timeout or switch providers")
	}
	return err
}

// State exposes the current breaker state for status surfaces.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func stateGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerRegistry holds one breaker per provider for the process lifetime.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the provider's breaker, creating it on first use.
func (r *BreakerRegistry) Get(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[provider]; ok {
		return b
	}
	b := NewBreaker(provider, r.cfg)
	r.breakers[provider] = b
	return b
}
