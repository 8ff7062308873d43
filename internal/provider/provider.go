package provider

import (
	"context"
	"time"

	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/series"
)

// Provider is the uniform contract over historical data sources.
// Login and Logout are idempotent; Logout must not fail when never logged
// in. FetchHistoricalData is the sole data-plane operation and is always
// invoked through the resilience layer.
type Provider interface {
	Name() string
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	SupportedFrequencies() []period.FrequencyAttributes
	FetchHistoricalData(ctx context.Context, inst instrument.Instrument, p period.Period, start, end time.Time) (*series.Series, error)
}

// Frequency returns the provider's attributes for a period, if supported.
func Frequency(p Provider, per period.Period) (period.FrequencyAttributes, bool) {
	for _, fa := range p.SupportedFrequencies() {
		if fa.Frequency == per {
			return fa, true
		}
	}
	return period.FrequencyAttributes{}, false
}

// Supports reports whether the provider serves the period at all.
func Supports(p Provider, per period.Period) bool {
	_, ok := Frequency(p, per)
	return ok
}

// MaxRange returns the widest request window for a period, zero when the
// period is unsupported or unconstrained.
func MaxRange(p Provider, per period.Period) time.Duration {
	fa, ok := Frequency(p, per)
	if !ok {
		return 0
	}
	return fa.Window()
}

// MinStart resolves the earliest supported date for a period at now.
// The zero time means no lower bound.
func MinStart(p Provider, per period.Period, now time.Time) time.Time {
	fa, ok := Frequency(p, per)
	if !ok {
		return time.Time{}
	}
	return fa.MinStart.Resolve(now)
}
