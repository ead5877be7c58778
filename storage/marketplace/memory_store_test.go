package marketplace

import (
	"context"
	"errors"
	"fmt"
	"testing"

	core "bazaar-backend/core/marketplace"
)

func TestMemoryStoreJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("create get update roundtrip", func(t *testing.T) {
		s := NewMemoryStore()
		job := core.Job{JobID: "job_1", PosterID: "poster-1", Title: "t", Status: core.JobPosted}
		if err := s.CreateJob(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.CreateJob(ctx, job); err == nil {
			t.Fatal("duplicate create must fail")
		}
		job.Status = core.JobBidding
		if err := s.UpdateJob(ctx, job); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, err := s.GetJob(ctx, "job_1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != core.JobBidding {
			t.Fatalf("expected bidding, got %s", got.Status)
		}
	})

	t.Run("missing job returns the sentinel", func(t *testing.T) {
		s := NewMemoryStore()
		if _, err := s.GetJob(ctx, "nope"); !errors.Is(err, core.ErrJobNotFound) {
			t.Fatalf("expected ErrJobNotFound, got %v", err)
		}
		if err := s.UpdateJob(ctx, core.Job{JobID: "nope"}); !errors.Is(err, core.ErrJobNotFound) {
			t.Fatalf("expected ErrJobNotFound on update, got %v", err)
		}
	})

	t.Run("returned records are isolated copies", func(t *testing.T) {
		s := NewMemoryStore()
		job := core.Job{JobID: "job_1", RequiredCapabilities: []string{"research"}, Status: core.JobPosted}
		s.CreateJob(ctx, job)

		got, _ := s.GetJob(ctx, "job_1")
		got.RequiredCapabilities[0] = "mutated"

		again, _ := s.GetJob(ctx, "job_1")
		if again.RequiredCapabilities[0] != "research" {
			t.Fatal("caller mutation leaked into the store")
		}
	})

	t.Run("list filters and paginates in insertion order", func(t *testing.T) {
		s := NewMemoryStore()
		for i := 0; i < 5; i++ {
			status := core.JobPosted
			if i%2 == 1 {
				status = core.JobBidding
			}
			s.CreateJob(ctx, core.Job{
				JobID:    fmt.Sprintf("job_%d", i),
				PosterID: "Poster-1",
				Status:   status,
			})
		}

		bidding, _ := s.ListJobs(ctx, core.JobFilter{Status: core.JobBidding})
		if len(bidding) != 2 || bidding[0].JobID != "job_1" {
			t.Fatalf("unexpected filter result: %+v", bidding)
		}

		// Poster match is case-insensitive.
		byPoster, _ := s.ListJobs(ctx, core.JobFilter{PosterID: "poster-1"})
		if len(byPoster) != 5 {
			t.Fatalf("expected 5 jobs for poster, got %d", len(byPoster))
		}

		page, _ := s.ListJobs(ctx, core.JobFilter{Offset: 1, Limit: 2})
		if len(page) != 2 || page[0].JobID != "job_1" || page[1].JobID != "job_2" {
			t.Fatalf("unexpected page: %+v", page)
		}

		past, _ := s.ListJobs(ctx, core.JobFilter{Offset: 10})
		if len(past) != 0 {
			t.Fatalf("expected empty page past the end, got %d", len(past))
		}
	})
}

func TestMemoryStoreBids(t *testing.T) {
	ctx := context.Background()

	t.Run("counter offers are copied on read", func(t *testing.T) {
		s := NewMemoryStore()
		bid := core.Bid{
			BidID: "bid_1", JobID: "job_1", AgentID: "agent-1",
			CounterOffers: []core.CounterOffer{{PriceUSD: 0.10, By: core.ByPoster}},
			Status:        core.BidCounterOffered,
		}
		s.CreateBid(ctx, bid)

		got, _ := s.GetBid(ctx, "bid_1")
		got.CounterOffers[0].PriceUSD = 99

		again, _ := s.GetBid(ctx, "bid_1")
		if again.CounterOffers[0].PriceUSD != 0.10 {
			t.Fatal("counter-offer mutation leaked into the store")
		}
	})

	t.Run("filters compose", func(t *testing.T) {
		s := NewMemoryStore()
		s.CreateBid(ctx, core.Bid{BidID: "bid_1", JobID: "job_1", AgentID: "agent-1", Status: core.BidPending})
		s.CreateBid(ctx, core.Bid{BidID: "bid_2", JobID: "job_1", AgentID: "agent-2", Status: core.BidRejected})
		s.CreateBid(ctx, core.Bid{BidID: "bid_3", JobID: "job_2", AgentID: "agent-1", Status: core.BidPending})

		got, _ := s.ListBids(ctx, core.BidFilter{JobID: "job_1", Status: core.BidPending})
		if len(got) != 1 || got[0].BidID != "bid_1" {
			t.Fatalf("unexpected result: %+v", got)
		}
		byAgent, _ := s.ListBids(ctx, core.BidFilter{AgentID: "AGENT-1"})
		if len(byAgent) != 2 {
			t.Fatalf("expected 2 bids for agent, got %d", len(byAgent))
		}
	})

	t.Run("missing bid returns the sentinel", func(t *testing.T) {
		s := NewMemoryStore()
		if _, err := s.GetBid(ctx, "nope"); !errors.Is(err, core.ErrBidNotFound) {
			t.Fatalf("expected ErrBidNotFound, got %v", err)
		}
	})
}

func TestMemoryStoreTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("pending records stay mutable", func(t *testing.T) {
		s := NewMemoryStore()
		txn := core.Transaction{TxnID: "txn_1", JobID: "job_1", Type: core.TxnEscrow, Status: core.TxnPending}
		s.CreateTransaction(ctx, txn)
		txn.Status = core.TxnEscrowed
		if err := s.UpdateTransaction(ctx, txn); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	})

	t.Run("terminal records are immutable", func(t *testing.T) {
		s := NewMemoryStore()
		for i, status := range []core.TxnStatus{core.TxnReleased, core.TxnRefunded, core.TxnFailed} {
			id := fmt.Sprintf("txn_%d", i)
			s.CreateTransaction(ctx, core.Transaction{TxnID: id, JobID: "job_1", Status: status})
			if err := s.UpdateTransaction(ctx, core.Transaction{TxnID: id, Status: core.TxnPending}); err == nil {
				t.Errorf("update of %s record must fail", status)
			}
		}
	})

	t.Run("filters by job type and status", func(t *testing.T) {
		s := NewMemoryStore()
		s.CreateTransaction(ctx, core.Transaction{TxnID: "txn_1", JobID: "job_1", Type: core.TxnEscrow, Status: core.TxnEscrowed})
		s.CreateTransaction(ctx, core.Transaction{TxnID: "txn_2", JobID: "job_1", Type: core.TxnRelease, Status: core.TxnReleased})
		s.CreateTransaction(ctx, core.Transaction{TxnID: "txn_3", JobID: "job_2", Type: core.TxnEscrow, Status: core.TxnEscrowed})

		got, _ := s.ListTransactions(ctx, core.TxnFilter{JobID: "job_1", Type: core.TxnEscrow})
		if len(got) != 1 || got[0].TxnID != "txn_1" {
			t.Fatalf("unexpected result: %+v", got)
		}
		escrowed, _ := s.ListTransactions(ctx, core.TxnFilter{Status: core.TxnEscrowed})
		if len(escrowed) != 2 {
			t.Fatalf("expected 2 escrowed records, got %d", len(escrowed))
		}
	})

	t.Run("missing transaction returns the sentinel", func(t *testing.T) {
		s := NewMemoryStore()
		if _, err := s.GetTransaction(ctx, "nope"); !errors.Is(err, core.ErrTxnNotFound) {
			t.Fatalf("expected ErrTxnNotFound, got %v", err)
		}
	})
}
