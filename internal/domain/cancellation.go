package domain

type RefundTier string

const (
	RefundTierFull    RefundTier = "full_refund"
	RefundTierPartial RefundTier = "partial_refund"
	RefundTierNone    RefundTier = "no_refund"
)

// CancellationDecision is derived on demand and never stored as-is.
type CancellationDecision struct {
	Tier             RefundTier `json:"tier"`
	RefundPercent    int32      `json:"refund_percent"`
	HoursUntilPickup float64    `json:"hours_until_pickup"`
	PolicyNote       string     `json:"policy_note"`
}

// RefundCents applies the decision to an amount that was actually paid.
func (d CancellationDecision) RefundCents(paidCents int32) int32 {
	return int32(int64(paidCents) * int64(d.RefundPercent) / 100)
}
