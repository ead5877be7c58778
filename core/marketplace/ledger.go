package marketplace

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// usdEpsilon absorbs float noise when comparing USD amounts.
const usdEpsilon = 1e-6

// LedgerConfig carries the explicit knobs for the transaction ledger.
type LedgerConfig struct {
	// MarketplaceWallet holds escrowed funds between collection and payout.
	MarketplaceWallet string
	// RailAttempts is the total number of rail call attempts before the
	// operation is surfaced as a payment failure. Minimum 1.
	RailAttempts int
	// RailBackoff is the base delay between attempts; it grows linearly.
	RailBackoff time.Duration
}

// ReconciliationCase is a standing alert for a paired payout whose second leg
// failed after the first leg moved money. These are never retried blindly.
type ReconciliationCase struct {
	JobID        string    `json:"job_id"`
	ReleaseTxnID string    `json:"release_txn_id"`
	FailedRefund float64   `json:"failed_refund_usd"`
	PayerWallet  string    `json:"payer_wallet"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ledger is the only component permitted to create or mutate transaction
// records. Job and bid managers invoke it; they never write money state.
type Ledger struct {
	store  Store
	rail   PaymentRail
	cfg    LedgerConfig
	events *EventLog

	reconMu sync.Mutex
	recon   []ReconciliationCase
}

// NewLedger wires a ledger over the store and payment rail.
func NewLedger(store Store, rail PaymentRail, cfg LedgerConfig, events *EventLog) *Ledger {
	if cfg.RailAttempts < 1 {
		cfg.RailAttempts = 1
	}
	if cfg.RailBackoff <= 0 {
		cfg.RailBackoff = 200 * time.Millisecond
	}
	return &Ledger{store: store, rail: rail, cfg: cfg, events: events}
}

// CreateEscrow collects the job budget from the poster into the marketplace
// wallet and records the escrow transaction. Exactly one non-failed escrow
// may exist per job.
func (l *Ledger) CreateEscrow(ctx context.Context, jobID string, amountUSD float64, payerWallet string) (Transaction, error) {
	if amountUSD <= 0 {
		return Transaction{}, fmt.Errorf("%w: escrow amount must be positive", ErrInvalidSpec)
	}
	if existing, err := l.activeEscrow(ctx, jobID); err == nil && existing.TxnID != "" {
		return Transaction{}, fmt.Errorf("%w: job %s already has escrow %s", ErrEscrowFailed, jobID, existing.TxnID)
	}

	txn := Transaction{
		TxnID:       newTxnID(),
		Type:        TxnEscrow,
		JobID:       jobID,
		PayerWallet: payerWallet,
		PayeeWallet: l.cfg.MarketplaceWallet,
		AmountUSD:   amountUSD,
		Status:      TxnPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.store.CreateTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrEscrowFailed, err)
	}

	receipt, err := l.callRail(ctx, l.rail.Collect, RailRequest{
		JobID:          jobID,
		AmountUSD:      amountUSD,
		FromWallet:     payerWallet,
		ToWallet:       l.cfg.MarketplaceWallet,
		Memo:           "escrow " + jobID,
		IdempotencyKey: txn.TxnID,
	})
	if err != nil {
		l.markFailed(ctx, txn)
		return Transaction{}, fmt.Errorf("%w: %v", ErrEscrowFailed, err)
	}

	now := time.Now().UTC()
	txn.Status = TxnEscrowed
	txn.ExternalRef = receipt.TxnHash
	txn.ConfirmedAt = &now
	if err := l.store.UpdateTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrEscrowFailed, err)
	}
	log.Printf("escrow created job=%s txn=%s amount=%.2f", jobID, txn.TxnID, amountUSD)
	l.events.Append("escrow", jobID, "ledger", fmt.Sprintf("escrowed $%.2f", amountUSD))
	return txn, nil
}

// Release pays out part of the escrowed balance to the agent.
func (l *Ledger) Release(ctx context.Context, jobID string, amountUSD float64, payeeWallet string) (Transaction, error) {
	return l.payout(ctx, TxnRelease, jobID, amountUSD, payeeWallet)
}

// Refund returns part of the escrowed balance to the original payer. An empty
// payeeWallet falls back to the escrow's payer wallet.
func (l *Ledger) Refund(ctx context.Context, jobID string, amountUSD float64, payeeWallet string) (Transaction, error) {
	return l.payout(ctx, TxnRefund, jobID, amountUSD, payeeWallet)
}

// PartialPayout applies a release to the agent and a refund of the remainder
// to the poster as one logical operation. A refund failure after a successful
// release cannot be rolled back; it is recorded as a reconciliation case and
// surfaced as ErrReconciliationRequired.
func (l *Ledger) PartialPayout(ctx context.Context, jobID string, releaseUSD float64, payeeWallet string, refundUSD float64) error {
	release, err := l.Release(ctx, jobID, releaseUSD, payeeWallet)
	if err != nil {
		return err
	}
	if _, err := l.Refund(ctx, jobID, refundUSD, ""); err != nil {
		escrow, _ := l.activeEscrow(ctx, jobID)
		c := ReconciliationCase{
			JobID:        jobID,
			ReleaseTxnID: release.TxnID,
			FailedRefund: refundUSD,
			PayerWallet:  escrow.PayerWallet,
			Reason:       err.Error(),
			CreatedAt:    time.Now().UTC(),
		}
		l.reconMu.Lock()
		l.recon = append(l.recon, c)
		l.reconMu.Unlock()
		log.Printf("RECONCILIATION REQUIRED job=%s release=%s refund_usd=%.2f: %v", jobID, release.TxnID, refundUSD, err)
		l.events.Append("reconciliation", jobID, "ledger", c.Reason)
		return fmt.Errorf("%w: release %s succeeded, refund of $%.2f failed", ErrReconciliationRequired, release.TxnID, refundUSD)
	}
	return nil
}

// Reconciliations returns the standing reconciliation alerts.
func (l *Ledger) Reconciliations() []ReconciliationCase {
	l.reconMu.Lock()
	defer l.reconMu.Unlock()
	out := make([]ReconciliationCase, len(l.recon))
	copy(out, l.recon)
	return out
}

// RemainingBalance is the escrowed amount minus all non-failed releases and
// refunds for the job.
func (l *Ledger) RemainingBalance(ctx context.Context, jobID string) (float64, error) {
	escrow, err := l.activeEscrow(ctx, jobID)
	if err != nil {
		return 0, err
	}
	paid, err := l.paidOut(ctx, jobID)
	if err != nil {
		return 0, err
	}
	return escrow.AmountUSD - paid, nil
}

func (l *Ledger) payout(ctx context.Context, typ TxnType, jobID string, amountUSD float64, payeeWallet string) (Transaction, error) {
	if amountUSD <= 0 {
		return Transaction{}, fmt.Errorf("%w: %s amount must be positive", ErrInvalidSpec, typ)
	}
	escrow, err := l.activeEscrow(ctx, jobID)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: no active escrow for job %s", ErrPaymentFailed, jobID)
	}
	paid, err := l.paidOut(ctx, jobID)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if paid+amountUSD > escrow.AmountUSD+usdEpsilon {
		return Transaction{}, fmt.Errorf("%w: %s of $%.2f exceeds remaining balance $%.2f",
			ErrPaymentFailed, typ, amountUSD, escrow.AmountUSD-paid)
	}
	if typ == TxnRefund && payeeWallet == "" {
		payeeWallet = escrow.PayerWallet
	}

	txn := Transaction{
		TxnID:       newTxnID(),
		Type:        typ,
		JobID:       jobID,
		PayerWallet: l.cfg.MarketplaceWallet,
		PayeeWallet: payeeWallet,
		AmountUSD:   amountUSD,
		Status:      TxnPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.store.CreateTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	receipt, err := l.callRail(ctx, l.rail.Pay, RailRequest{
		JobID:          jobID,
		AmountUSD:      amountUSD,
		FromWallet:     l.cfg.MarketplaceWallet,
		ToWallet:       payeeWallet,
		Memo:           string(typ) + " " + jobID,
		IdempotencyKey: txn.TxnID,
	})
	if err != nil {
		l.markFailed(ctx, txn)
		return Transaction{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	now := time.Now().UTC()
	if typ == TxnRelease {
		txn.Status = TxnReleased
	} else {
		txn.Status = TxnRefunded
	}
	txn.ExternalRef = receipt.TxnHash
	txn.ConfirmedAt = &now
	if err := l.store.UpdateTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	log.Printf("%s confirmed job=%s txn=%s amount=%.2f", typ, jobID, txn.TxnID, amountUSD)
	l.events.Append(string(typ), jobID, "ledger", fmt.Sprintf("%s $%.2f to %s", typ, amountUSD, payeeWallet))
	return txn, nil
}

// activeEscrow returns the single non-failed escrow transaction for a job.
func (l *Ledger) activeEscrow(ctx context.Context, jobID string) (Transaction, error) {
	txns, err := l.store.ListTransactions(ctx, TxnFilter{JobID: jobID, Type: TxnEscrow})
	if err != nil {
		return Transaction{}, err
	}
	for _, t := range txns {
		if t.Status != TxnFailed && t.Status != TxnPending {
			return t, nil
		}
	}
	return Transaction{}, ErrTxnNotFound
}

func (l *Ledger) paidOut(ctx context.Context, jobID string) (float64, error) {
	txns, err := l.store.ListTransactions(ctx, TxnFilter{JobID: jobID})
	if err != nil {
		return 0, err
	}
	var paid float64
	for _, t := range txns {
		if t.Status == TxnFailed {
			continue
		}
		if t.Type == TxnRelease || t.Type == TxnRefund {
			paid += t.AmountUSD
		}
	}
	return paid, nil
}

func (l *Ledger) markFailed(ctx context.Context, txn Transaction) {
	txn.Status = TxnFailed
	if err := l.store.UpdateTransaction(ctx, txn); err != nil {
		log.Printf("failed to mark transaction %s failed: %v", txn.TxnID, err)
	}
}

// callRail invokes a rail operation with bounded linear-backoff retries. The
// idempotency key makes retries safe on the rail side.
func (l *Ledger) callRail(ctx context.Context, op func(context.Context, RailRequest) (RailReceipt, error), req RailRequest) (RailReceipt, error) {
	var lastErr error
	for attempt := 1; attempt <= l.cfg.RailAttempts; attempt++ {
		receipt, err := op(ctx, req)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		log.Printf("rail call failed job=%s attempt=%d/%d: %v", req.JobID, attempt, l.cfg.RailAttempts, err)
		if attempt == l.cfg.RailAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return RailReceipt{}, ctx.Err()
		case <-time.After(l.cfg.RailBackoff * time.Duration(attempt)):
		}
	}
	return RailReceipt{}, lastErr
}
