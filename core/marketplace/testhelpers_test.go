package marketplace

import (
	"context"
	"fmt"
	"sync"
)

// fakeStore is a minimal in-memory Store for engine tests.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]Job
	bids map[string]Bid
	txns map[string]Transaction

	bidOrder []string
	txnOrder []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs: make(map[string]Job),
		bids: make(map[string]Bid),
		txns: make(map[string]Transaction),
	}
}

func (s *fakeStore) Close() {}

func (s *fakeStore) CreateJob(_ context.Context, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.JobID]; ok {
		return fmt.Errorf("job %s exists", j.JobID)
	}
	s.jobs[j.JobID] = j
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return j, nil
}

func (s *fakeStore) UpdateJob(_ context.Context, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.JobID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[j.JobID] = j
	return nil
}

func (s *fakeStore) ListJobs(_ context.Context, f JobFilter) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *fakeStore) CreateBid(_ context.Context, b Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[b.BidID]; ok {
		return fmt.Errorf("bid %s exists", b.BidID)
	}
	s.bids[b.BidID] = b
	s.bidOrder = append(s.bidOrder, b.BidID)
	return nil
}

func (s *fakeStore) GetBid(_ context.Context, id string) (Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok {
		return Bid{}, ErrBidNotFound
	}
	return b, nil
}

func (s *fakeStore) UpdateBid(_ context.Context, b Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[b.BidID]; !ok {
		return ErrBidNotFound
	}
	s.bids[b.BidID] = b
	return nil
}

func (s *fakeStore) ListBids(_ context.Context, f BidFilter) ([]Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Bid
	for _, id := range s.bidOrder {
		b := s.bids[id]
		if f.JobID != "" && b.JobID != f.JobID {
			continue
		}
		if f.AgentID != "" && b.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *fakeStore) CreateTransaction(_ context.Context, t Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[t.TxnID]; ok {
		return fmt.Errorf("txn %s exists", t.TxnID)
	}
	s.txns[t.TxnID] = t
	s.txnOrder = append(s.txnOrder, t.TxnID)
	return nil
}

func (s *fakeStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return Transaction{}, ErrTxnNotFound
	}
	return t, nil
}

func (s *fakeStore) UpdateTransaction(_ context.Context, t Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[t.TxnID]; !ok {
		return ErrTxnNotFound
	}
	s.txns[t.TxnID] = t
	return nil
}

func (s *fakeStore) ListTransactions(_ context.Context, f TxnFilter) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, id := range s.txnOrder {
		t := s.txns[id]
		if f.JobID != "" && t.JobID != f.JobID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// fakeRail is a programmable PaymentRail. failCollect and failPay count down:
// while positive, the corresponding call fails.
type fakeRail struct {
	mu          sync.Mutex
	failCollect int
	failPay     int
	collects    []RailRequest
	pays        []RailRequest
}

func (r *fakeRail) Collect(_ context.Context, req RailRequest) (RailReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collects = append(r.collects, req)
	if r.failCollect > 0 {
		r.failCollect--
		return RailReceipt{}, fmt.Errorf("rail unavailable")
	}
	return RailReceipt{TxnHash: fmt.Sprintf("0xcollect%d", len(r.collects))}, nil
}

func (r *fakeRail) Pay(_ context.Context, req RailRequest) (RailReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pays = append(r.pays, req)
	if r.failPay > 0 {
		r.failPay--
		return RailReceipt{}, fmt.Errorf("rail unavailable")
	}
	return RailReceipt{TxnHash: fmt.Sprintf("0xpay%d", len(r.pays))}, nil
}

func (r *fakeRail) payCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pays)
}

func newTestManager(store Store, rail PaymentRail, cfg Config) *JobManager {
	if cfg.MarketplaceWallet == "" {
		cfg.MarketplaceWallet = "escrow-wallet"
	}
	if cfg.RailAttempts == 0 {
		cfg.RailAttempts = 1
	}
	if cfg.RailBackoff == 0 {
		cfg.RailBackoff = 1
	}
	return NewJobManager(store, rail, cfg, NewEventLog(0))
}
