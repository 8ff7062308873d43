package resilience

import (
	"time"

	"github.com/vortexdl/vortex/internal/errs"
)

// RecoveryAction is one advisory step the planner proposes after a failure.
type RecoveryAction int

const (
	ActionImmediateRetry RecoveryAction = iota
	ActionExponentialBackoff
	ActionProviderFallback
	ActionGracefulDegradation
	ActionCircuitBreaker
	ActionManualIntervention
)

func (a RecoveryAction) String() string {
	switch a {
	case ActionImmediateRetry:
		return "immediate_retry"
	case ActionExponentialBackoff:
		return "exponential_backoff"
	case ActionProviderFallback:
		return "provider_fallback"
	case ActionGracefulDegradation:
		return "graceful_degradation"
	case ActionCircuitBreaker:
		return "circuit_breaker"
	case ActionManualIntervention:
		return "manual_intervention"
	default:
		return "unknown"
	}
}

// RecoveryPlan is an ordered list of proposed actions. Plans are advisory:
// the retry policy consumes backoff proposals, and ManualIntervention is
// surfaced as fatal.
type RecoveryPlan struct {
	Actions []RecoveryAction
	// Delay is the proposed backoff, set from retry-after for rate limits.
	Delay time.Duration
}

// RequiresManualIntervention reports whether the plan demands an operator.
func (p RecoveryPlan) RequiresManualIntervention() bool {
	for _, a := range p.Actions {
		if a == ActionManualIntervention {
			return true
		}
	}
	return false
}

// PlanRecovery analyzes a failure and proposes ordered recovery actions.
// fallbackConfigured reports whether alternate providers exist for the job.
func PlanRecovery(err error, fallbackConfigured bool) RecoveryPlan {
	switch errs.KindOf(err) {
	case errs.KindAuthenticationFailed:
		return RecoveryPlan{Actions: []RecoveryAction{ActionManualIntervention}}
	case errs.KindConnectionFailed:
		return RecoveryPlan{Actions: []RecoveryAction{ActionExponentialBackoff, ActionProviderFallback}}
	case errs.KindRateLimited:
		return RecoveryPlan{
			Actions: []RecoveryAction{ActionExponentialBackoff},
			Delay:   errs.RetryAfterOf(err),
		}
	case errs.KindDataNotFound:
		if fallbackConfigured {
			return RecoveryPlan{Actions: []RecoveryAction{ActionProviderFallback}}
		}
		return RecoveryPlan{}
	case errs.KindAllowanceExceeded:
		return RecoveryPlan{Actions: []RecoveryAction{ActionGracefulDegradation}}
	case errs.KindCircuitOpen:
		return RecoveryPlan{Actions: []RecoveryAction{ActionCircuitBreaker}}
	case errs.KindProvider:
		return RecoveryPlan{Actions: []RecoveryAction{ActionExponentialBackoff, ActionCircuitBreaker}}
	default:
		return RecoveryPlan{}
	}
}

// AnnotateManualIntervention decorates an error the planner deems fatal with
// the operator-facing next step.
func AnnotateManualIntervention(err error) error {
	if e := errs.AsError(err); e != nil {
		if e.UserAction == "" {
			e.UserAction = "manual intervention required; fix credentials or provider access and rerun"
		}
		return e
	}
	return err
}
