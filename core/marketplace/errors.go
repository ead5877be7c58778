package marketplace

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrInvalidSpec       = Err("invalid job spec")
	ErrInvalidTransition = Err("operation not valid in current status")
	ErrJobNotFound       = Err("job not found")
	ErrBidNotFound       = Err("bid not found")
	ErrTxnNotFound       = Err("transaction not found")
	ErrJobNotOpen        = Err("job is not accepting bids")
	ErrEscrowFailed      = Err("escrow could not be recorded")
	ErrPaymentFailed     = Err("payment rail rejected the operation")
	ErrDeadlineExceeded  = Err("deadline exceeded")
	ErrNegotiationClosed = Err("bid is not open for negotiation")

	// ErrReconciliationRequired marks the one failure that cannot be rolled
	// back: money already moved on one leg of a paired payout while the other
	// leg failed. Never retried blindly; surfaced for manual repair.
	ErrReconciliationRequired = Err("paired payout partially applied; manual reconciliation required")
)
