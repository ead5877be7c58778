package marketplace

import "context"

// RailRequest describes a funds movement for the external payment rail.
type RailRequest struct {
	JobID      string
	AmountUSD  float64
	FromWallet string
	ToWallet   string
	Memo       string

	// IdempotencyKey is derived from the ledger transaction id so a retried
	// rail call cannot double-move funds.
	IdempotencyKey string
}

// RailReceipt is the rail-side confirmation of a funds movement.
type RailReceipt struct {
	TxnHash string
}

// PaymentRail executes off-engine funds movements. Collect pulls funds from a
// payer wallet into the marketplace escrow wallet; Pay disburses from the
// escrow wallet to a payee. Both block until the rail confirms or rejects, so
// callers must supply a context with a deadline.
type PaymentRail interface {
	Collect(ctx context.Context, req RailRequest) (RailReceipt, error)
	Pay(ctx context.Context, req RailRequest) (RailReceipt, error)
}

// Matcher ranks candidate agents for a job. Scores are in [0,1]. The engine
// only consumes the ranking; the matching algorithm lives elsewhere.
type Matcher interface {
	Match(ctx context.Context, jobID string, limit int) ([]MatchCandidate, error)
}

// MatchCandidate is one ranked agent from the matching service.
type MatchCandidate struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}
