package marketplace

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func newTestLedger(store Store, rail PaymentRail, attempts int) *Ledger {
	return NewLedger(store, rail, LedgerConfig{
		MarketplaceWallet: "escrow-wallet",
		RailAttempts:      attempts,
		RailBackoff:       time.Millisecond,
	}, NewEventLog(0))
}

func TestCreateEscrow(t *testing.T) {
	ctx := context.Background()

	t.Run("records a confirmed escrow with rail hash", func(t *testing.T) {
		store := newFakeStore()
		ledger := newTestLedger(store, &fakeRail{}, 1)

		txn, err := ledger.CreateEscrow(ctx, "job_1", 5.00, "poster-wallet")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if txn.Status != TxnEscrowed {
			t.Fatalf("expected escrowed, got %s", txn.Status)
		}
		if txn.ExternalRef == "" {
			t.Fatal("expected a rail transaction hash")
		}
		if txn.PayerWallet != "poster-wallet" || txn.PayeeWallet != "escrow-wallet" {
			t.Fatalf("wrong wallets: %s -> %s", txn.PayerWallet, txn.PayeeWallet)
		}
	})

	t.Run("rejects a second escrow for the same job", func(t *testing.T) {
		store := newFakeStore()
		ledger := newTestLedger(store, &fakeRail{}, 1)

		if _, err := ledger.CreateEscrow(ctx, "job_1", 5.00, "w"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := ledger.CreateEscrow(ctx, "job_1", 5.00, "w"); !errors.Is(err, ErrEscrowFailed) {
			t.Fatalf("expected ErrEscrowFailed, got %v", err)
		}
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		ledger := newTestLedger(newFakeStore(), &fakeRail{}, 1)
		if _, err := ledger.CreateEscrow(ctx, "job_1", 0, "w"); !errors.Is(err, ErrInvalidSpec) {
			t.Fatalf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("marks the record failed when the rail rejects", func(t *testing.T) {
		store := newFakeStore()
		ledger := newTestLedger(store, &fakeRail{failCollect: 1}, 1)

		if _, err := ledger.CreateEscrow(ctx, "job_1", 5.00, "w"); !errors.Is(err, ErrEscrowFailed) {
			t.Fatalf("expected ErrEscrowFailed, got %v", err)
		}
		txns, _ := store.ListTransactions(ctx, TxnFilter{JobID: "job_1"})
		if len(txns) != 1 || txns[0].Status != TxnFailed {
			t.Fatalf("expected one failed transaction, got %+v", txns)
		}
	})

	t.Run("retries transient rail failures", func(t *testing.T) {
		rail := &fakeRail{failCollect: 2}
		ledger := newTestLedger(newFakeStore(), rail, 3)

		txn, err := ledger.CreateEscrow(ctx, "job_1", 5.00, "w")
		if err != nil {
			t.Fatalf("expected the third attempt to succeed: %v", err)
		}
		if txn.Status != TxnEscrowed {
			t.Fatalf("expected escrowed, got %s", txn.Status)
		}
		if len(rail.collects) != 3 {
			t.Fatalf("expected 3 rail attempts, got %d", len(rail.collects))
		}
	})
}

func TestPayouts(t *testing.T) {
	ctx := context.Background()

	setup := func(rail PaymentRail, budget float64) *Ledger {
		ledger := newTestLedger(newFakeStore(), rail, 1)
		if _, err := ledger.CreateEscrow(ctx, "job_1", budget, "poster-wallet"); err != nil {
			t.Fatalf("escrow setup: %v", err)
		}
		return ledger
	}

	t.Run("release pays the agent and confirms", func(t *testing.T) {
		ledger := setup(&fakeRail{}, 0.15)
		txn, err := ledger.Release(ctx, "job_1", 0.15, "agent-wallet")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if txn.Status != TxnReleased || txn.PayeeWallet != "agent-wallet" {
			t.Fatalf("unexpected release record: %+v", txn)
		}
	})

	t.Run("refund defaults to the escrow payer wallet", func(t *testing.T) {
		ledger := setup(&fakeRail{}, 0.20)
		txn, err := ledger.Refund(ctx, "job_1", 0.20, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if txn.PayeeWallet != "poster-wallet" {
			t.Fatalf("expected refund to poster-wallet, got %s", txn.PayeeWallet)
		}
		if txn.Status != TxnRefunded {
			t.Fatalf("expected refunded, got %s", txn.Status)
		}
	})

	t.Run("payouts never exceed the escrowed amount", func(t *testing.T) {
		ledger := setup(&fakeRail{}, 1.00)
		if _, err := ledger.Release(ctx, "job_1", 0.60, "agent"); err != nil {
			t.Fatalf("first release: %v", err)
		}
		if _, err := ledger.Release(ctx, "job_1", 0.60, "agent"); !errors.Is(err, ErrPaymentFailed) {
			t.Fatalf("expected ErrPaymentFailed on overdraw, got %v", err)
		}
		remaining, err := ledger.RemainingBalance(ctx, "job_1")
		if err != nil {
			t.Fatalf("remaining balance: %v", err)
		}
		if math.Abs(remaining-0.40) > 1e-9 {
			t.Fatalf("expected 0.40 remaining, got %.4f", remaining)
		}
	})

	t.Run("payout without escrow fails", func(t *testing.T) {
		ledger := newTestLedger(newFakeStore(), &fakeRail{}, 1)
		if _, err := ledger.Release(ctx, "job_1", 1.00, "agent"); !errors.Is(err, ErrPaymentFailed) {
			t.Fatalf("expected ErrPaymentFailed, got %v", err)
		}
	})

	t.Run("failed payout leaves the balance untouched", func(t *testing.T) {
		rail := &fakeRail{}
		ledger := setup(rail, 1.00)
		rail.failPay = 1
		if _, err := ledger.Release(ctx, "job_1", 1.00, "agent"); !errors.Is(err, ErrPaymentFailed) {
			t.Fatalf("expected ErrPaymentFailed, got %v", err)
		}
		remaining, _ := ledger.RemainingBalance(ctx, "job_1")
		if remaining != 1.00 {
			t.Fatalf("expected full balance after failed payout, got %.2f", remaining)
		}
	})
}

func TestPartialPayout(t *testing.T) {
	ctx := context.Background()

	t.Run("applies release and refund legs", func(t *testing.T) {
		ledger := newTestLedger(newFakeStore(), &fakeRail{}, 1)
		if _, err := ledger.CreateEscrow(ctx, "job_1", 0.20, "poster-wallet"); err != nil {
			t.Fatalf("escrow: %v", err)
		}
		if err := ledger.PartialPayout(ctx, "job_1", 0.10, "agent-wallet", 0.10); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		remaining, _ := ledger.RemainingBalance(ctx, "job_1")
		if math.Abs(remaining) > 1e-9 {
			t.Fatalf("expected zero remaining, got %.4f", remaining)
		}
	})

	t.Run("refund leg failure raises a reconciliation case", func(t *testing.T) {
		// Release is the first Pay call, the refund leg is the second.
		rail := &failNthPayRail{failAt: 2}
		ledger := newTestLedger(newFakeStore(), rail, 1)
		if _, err := ledger.CreateEscrow(ctx, "job_2", 0.20, "poster-wallet"); err != nil {
			t.Fatalf("escrow: %v", err)
		}
		err := ledger.PartialPayout(ctx, "job_2", 0.10, "agent-wallet", 0.10)
		if !errors.Is(err, ErrReconciliationRequired) {
			t.Fatalf("expected ErrReconciliationRequired, got %v", err)
		}
		cases := ledger.Reconciliations()
		if len(cases) != 1 {
			t.Fatalf("expected one reconciliation case, got %d", len(cases))
		}
		if cases[0].JobID != "job_2" || cases[0].FailedRefund != 0.10 {
			t.Fatalf("unexpected case: %+v", cases[0])
		}
		if cases[0].PayerWallet != "poster-wallet" {
			t.Fatalf("expected the poster wallet on the case, got %s", cases[0].PayerWallet)
		}
	})
}

// failNthPayRail succeeds on Collect and fails the nth Pay call.
type failNthPayRail struct {
	fakeRail
	failAt int
	calls  int
}

func (r *failNthPayRail) Pay(ctx context.Context, req RailRequest) (RailReceipt, error) {
	r.calls++
	if r.calls == r.failAt {
		return RailReceipt{}, errors.New("rail unavailable")
	}
	return r.fakeRail.Pay(ctx, req)
}
