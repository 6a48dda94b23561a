// Package retry decides when a queue item's delivery sub-states may be
// attempted again. Every function is a pure computation over the item and
// a caller-supplied clock so the full decision table can be tested without
// storage or network.
package retry

import (
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/queue"
)

// Phase identifies which backoff regime a service state is in.
type Phase string

const (
	// PhaseFast allows immediate retries up to MaxFastRetries attempts.
	PhaseFast Phase = "fast"
	// PhaseSlow gates retries behind a cooldown, bounded by item age.
	PhaseSlow Phase = "slow"
)

// Decision reasons. Exactly one is reported per evaluation.
const (
	ReasonReady     = "ready"
	ReasonStuck     = "stuck"
	ReasonCompleted = "completed"
	ReasonQueued    = "queued"
	ReasonExhausted = "exhausted"
	ReasonCooldown  = "cooldown"
	ReasonInFlight  = "in-flight"
	ReasonBlocked   = "blocked"
)

// Params holds the backoff constants, normally sourced from config.
type Params struct {
	MaxFastRetries    int
	Cooldown          time.Duration
	MaxAge            time.Duration
	ProcessingTimeout time.Duration
}

// ParamsFromConfig converts the retry config section into policy parameters.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		MaxFastRetries:    cfg.Retry.MaxFastRetries,
		Cooldown:          time.Duration(cfg.Retry.CooldownMinutes) * time.Minute,
		MaxAge:            time.Duration(cfg.Retry.MaxAgeDays) * 24 * time.Hour,
		ProcessingTimeout: time.Duration(cfg.Retry.ProcessingTimeoutSeconds) * time.Second,
	}
}

// Decision is the outcome of evaluating one service state at one instant.
type Decision struct {
	Eligible bool
	Phase    Phase
	Reason   string
}

// EvaluateItem applies the item-level gate: completed, exhausted, and
// already-claimed items are never eligible regardless of service state.
func (p Params) EvaluateItem(item *queue.Item, now time.Time) Decision {
	if item.Status == queue.StatusCompleted || item.IsFullyDelivered() {
		return Decision{Reason: ReasonCompleted}
	}
	if item.Exhausted {
		return Decision{Reason: ReasonExhausted}
	}
	if item.Status == queue.StatusQueued {
		// A live claim belongs to an in-flight pass, possibly in another
		// process sharing the store. A claim whose attempt never
		// materialized (process killed between claim and dispatch) is
		// reclaimed once the processing timeout lapses.
		ref := item.ClaimedAt
		if ref == nil {
			ref = item.LastAttemptAt
		}
		if ref == nil {
			ref = &item.CreatedAt
		}
		if now.Sub(*ref) < p.ProcessingTimeout {
			return Decision{Reason: ReasonQueued}
		}
	}
	return Decision{Eligible: true, Reason: ReasonReady}
}

// EvaluateService decides whether one sub-state may be attempted now.
func (p Params) EvaluateService(item *queue.Item, name queue.ServiceName, now time.Time) Decision {
	if gate := p.EvaluateItem(item, now); !gate.Eligible {
		return gate
	}

	state := item.Service(name)
	if state == nil {
		return Decision{Reason: ReasonBlocked}
	}

	phase := PhaseFast
	if state.InSlowMode() {
		phase = PhaseSlow
	}

	if state.Status == queue.ServiceCompleted {
		return Decision{Phase: phase, Reason: ReasonCompleted}
	}

	// Proof embeds the ledger record id and linking needs both results, so
	// neither is attemptable before its upstream services complete.
	if !p.preconditionsMet(item, name) {
		return Decision{Phase: phase, Reason: ReasonBlocked}
	}

	switch state.Status {
	case queue.ServiceProcessing:
		// A processing state without a terminal transition is presumed
		// lost once the attempt is old enough (app killed mid-call).
		if item.LastAttemptAt == nil || now.Sub(*item.LastAttemptAt) >= p.ProcessingTimeout {
			return Decision{Eligible: true, Phase: phase, Reason: ReasonStuck}
		}
		return Decision{Phase: phase, Reason: ReasonInFlight}
	}

	if item.Age(now) > p.MaxAge {
		return Decision{Phase: phase, Reason: ReasonExhausted}
	}

	if phase == PhaseSlow {
		if item.LastAttemptAt != nil && now.Sub(*item.LastAttemptAt) < p.Cooldown {
			return Decision{Phase: phase, Reason: ReasonCooldown}
		}
	}

	return Decision{Eligible: true, Phase: phase, Reason: ReasonReady}
}

// Evaluate reports whether any of the item's sub-states is eligible now.
// The first eligible service decision wins; otherwise the ledger decision
// is returned as the representative reason.
func (p Params) Evaluate(item *queue.Item, now time.Time) Decision {
	if gate := p.EvaluateItem(item, now); !gate.Eligible {
		return gate
	}
	fallback := Decision{Reason: ReasonCompleted}
	for _, name := range []queue.ServiceName{queue.ServiceLedger, queue.ServiceProof, queue.ServiceLinking} {
		decision := p.EvaluateService(item, name, now)
		if decision.Eligible {
			return decision
		}
		if fallback.Reason == ReasonCompleted && decision.Reason != ReasonCompleted {
			fallback = decision
		}
	}
	return fallback
}

func (p Params) preconditionsMet(item *queue.Item, name queue.ServiceName) bool {
	switch name {
	case queue.ServiceProof:
		return item.Ledger.Status == queue.ServiceCompleted
	case queue.ServiceLinking:
		return item.Ledger.Status == queue.ServiceCompleted && item.Proof.Status == queue.ServiceCompleted
	default:
		return true
	}
}
