package marketplace

import "fmt"

// DefaultApprovalThresholdUSD is the documented cutoff above which a human
// must sign off before a bid is accepted.
const DefaultApprovalThresholdUSD = 10.0

// ApprovalGate decides whether a payment-affecting transition needs human
// sign-off. It is consulted with the bid's final negotiated price, not the
// job's original budget.
type ApprovalGate struct {
	ThresholdUSD float64
}

// NewApprovalGate returns a gate with the given threshold, falling back to
// the documented default when the threshold is zero or negative.
func NewApprovalGate(thresholdUSD float64) ApprovalGate {
	if thresholdUSD <= 0 {
		thresholdUSD = DefaultApprovalThresholdUSD
	}
	return ApprovalGate{ThresholdUSD: thresholdUSD}
}

// RequiresApproval reports whether the amount is strictly above the
// threshold. An amount exactly at the threshold never requires approval.
func (g ApprovalGate) RequiresApproval(amountUSD float64) bool {
	return amountUSD > g.ThresholdUSD
}

// Reason returns the human-readable explanation recorded on gated bids.
func (g ApprovalGate) Reason(amountUSD float64) string {
	return fmt.Sprintf("transaction of $%.2f exceeds $%.2f approval threshold", amountUSD, g.ThresholdUSD)
}
