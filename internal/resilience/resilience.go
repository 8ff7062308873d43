// Package resilience wraps every provider fetch with, outermost to
// innermost: correlation context, circuit breaker, retry with backoff, and
// the recovery planner.
package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vortexdl/vortex/internal/correlation"
	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/metrics"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/provider"
	"github.com/vortexdl/vortex/internal/ratelimit"
	"github.com/vortexdl/vortex/internal/series"
)

// Executor is the resilient fetch pipeline shared by all jobs in a run.
type Executor struct {
	Retry    RetryPolicy
	Breakers *BreakerRegistry
	Limiter  *ratelimit.Limiter
	Tracker  *correlation.RequestTracker

	// HasFallback reports whether another provider could serve the job;
	// feeds the recovery planner.
	HasFallback bool
}

func NewExecutor(retry RetryPolicy, breakerCfg BreakerConfig, limiter *ratelimit.Limiter) *Executor {
	return &Executor{
		Retry:    retry,
		Breakers: NewBreakerRegistry(breakerCfg),
		Limiter:  limiter,
		Tracker:  correlation.DefaultTracker,
	}
}

// Fetch runs one resilient fetch_historical_data call.
func (e *Executor) Fetch(ctx context.Context, p provider.Provider, inst instrument.Instrument, per period.Period, start, end time.Time) (*series.Series, error) {
	ctx, cc := correlation.Start(ctx, "fetch", p.Name())
	if e.Tracker != nil {
		e.Tracker.TrackStart(cc)
	}
	logger := correlation.Logger(ctx, log.Logger)

	var result *series.Series
	breaker := e.Breakers.Get(p.Name())
	err := breaker.Execute(func() error {
		return e.Retry.Do(ctx, p.Name(), func(ctx context.Context) error {
			if e.Limiter != nil {
				if err := e.Limiter.Wait(ctx, p.Name()); err != nil {
					return err
				}
			}
			s, fetchErr := p.FetchHistoricalData(ctx, inst, per, start, end)
			if fetchErr != nil {
				return fetchErr
			}
			result = s
			return nil
		})
	})

	if e.Tracker != nil {
		e.Tracker.TrackComplete(cc, err)
	}
	if err != nil {
		if typed := errs.AsError(err); typed != nil && typed.CorrelationID == "" {
			typed.CorrelationID = cc.ID
		}
		metrics.DownloadErrors.WithLabelValues(p.Name(), errs.KindOf(err).String()).Inc()

		plan := PlanRecovery(err, e.HasFallback)
		if plan.RequiresManualIntervention() {
			err = AnnotateManualIntervention(err)
		}
		logger.Warn().
			Str("symbol", inst.Symbol()).
			Str("period", per.String()).
			Str("recovery", recoveryNames(plan)).
			Err(err).
			Msg("fetch failed")
		return nil, err
	}

	logger.Debug().
		Str("symbol", inst.Symbol()).
		Str("period", per.String()).
		Int("rows", result.Len()).
		Msg("fetch succeeded")
	return result, nil
}

func recoveryNames(plan RecoveryPlan) string {
	if len(plan.Actions) == 0 {
		return "none"
	}
	out := ""
	for i, a := range plan.Actions {
		if i > 0 {
			out += ","
		}
		out += a.String()
	}
	return out
}
