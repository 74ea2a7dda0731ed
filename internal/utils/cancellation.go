package utils

import (
	"fmt"
	"time"

	"vehicle-rental-backend/internal/domain"
)

// CancellationPolicy holds the refund tier thresholds. Both thresholds are strict:
// a cancellation exactly FullRefundAfter before pickup only earns the partial tier.
type CancellationPolicy struct {
	FullRefundAfter      time.Duration
	PartialRefundAfter   time.Duration
	PartialRefundPercent int32
}

func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		FullRefundAfter:      24 * time.Hour,
		PartialRefundAfter:   6 * time.Hour,
		PartialRefundPercent: 50,
	}
}

// Evaluate has no side effects. Call it at the moment of cancellation; a decision
// computed earlier goes stale as pickup approaches.
func (p CancellationPolicy) Evaluate(now, pickup time.Time) domain.CancellationDecision {
	until := pickup.Sub(now)
	d := domain.CancellationDecision{HoursUntilPickup: until.Hours()}

	switch {
	case until > p.FullRefundAfter:
		d.Tier = domain.RefundTierFull
		d.RefundPercent = 100
		d.PolicyNote = fmt.Sprintf("Cancelled more than %s before pickup: full refund.", formatHours(p.FullRefundAfter))
	case until > p.PartialRefundAfter:
		d.Tier = domain.RefundTierPartial
		d.RefundPercent = p.PartialRefundPercent
		d.PolicyNote = fmt.Sprintf("Cancelled between %s and %s before pickup: %d%% refund.",
			formatHours(p.PartialRefundAfter), formatHours(p.FullRefundAfter), p.PartialRefundPercent)
	default:
		d.Tier = domain.RefundTierNone
		d.RefundPercent = 0
		d.PolicyNote = fmt.Sprintf("Cancelled %s or less before pickup: no refund.", formatHours(p.PartialRefundAfter))
	}
	return d
}

// EvaluateCancellation applies the default 24h/6h policy.
func EvaluateCancellation(now, pickup time.Time) domain.CancellationDecision {
	return DefaultCancellationPolicy().Evaluate(now, pickup)
}

func formatHours(d time.Duration) string {
	return fmt.Sprintf("%g hours", d.Hours())
}
