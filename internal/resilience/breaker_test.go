package resilience

import (
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexdl/vortex/internal/errs"
)

func failingCall() error {
	return errs.New(errs.KindProvider, "PROVIDER_5XX", "server error")
}

func tripBreaker(t *testing.T, b *Breaker, failures int) {
	t.Helper()
	for i := 0; i < failures; i++ {
		err := b.Execute(failingCall)
		require.Error(t, err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("fake", BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute})

	tripBreaker(t, b, 4)
	assert.Equal(t, gobreaker.StateClosed, b.State())

	tripBreaker(t, b, 1)
	assert.Equal(t, gobreaker.StateOpen, b.State())

	// while open, calls fail fast without invoking fn
	called := false
	err := b.Execute(func() error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, errs.KindCircuitOpen, errs.KindOf(err))
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker("fake", BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	tripBreaker(t, b, 2)
	require.NoError(t, b.Execute(func() error { return nil }))
	tripBreaker(t, b, 2)
	assert.Equal(t, gobreaker.StateClosed, b.State(), "success resets the consecutive count")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker("fake", BreakerConfig{FailureThreshold: 2, RecoveryTimeout: 30 * time.Millisecond})

	tripBreaker(t, b, 2)
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, gobreaker.StateHalfOpen, b.State())

	// a successful probe closes the circuit
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("fake", BreakerConfig{FailureThreshold: 2, RecoveryTimeout: 30 * time.Millisecond})

	tripBreaker(t, b, 2)
	time.Sleep(50 * time.Millisecond)

	require.Error(t, b.Execute(failingCall))
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreakerRegistryReuse(t *testing.T) {
	reg := NewBreakerRegistry(DefaultBreakerConfig())
	a := reg.Get("barchart")
	b := reg.Get("barchart")
	c := reg.Get("yahoo")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
