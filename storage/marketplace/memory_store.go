package marketplace

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bazaar-backend/core/marketplace"
)

// MemoryStore holds marketplace state in memory with proper concurrency
// control. The single RWMutex ensures atomic operations across the three
// maps, so a reader can never observe a job without its bids or
// transactions half-written.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]marketplace.Job
	bids map[string]marketplace.Bid
	txns map[string]marketplace.Transaction

	// insertion order for deterministic listings
	jobOrder []string
	bidOrder []string
	txnOrder []string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]marketplace.Job),
		bids: make(map[string]marketplace.Bid),
		txns: make(map[string]marketplace.Transaction),
	}
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() {}

func cloneBid(b marketplace.Bid) marketplace.Bid {
	if len(b.CounterOffers) > 0 {
		offers := make([]marketplace.CounterOffer, len(b.CounterOffers))
		copy(offers, b.CounterOffers)
		b.CounterOffers = offers
	}
	return b
}

func cloneJob(j marketplace.Job) marketplace.Job {
	if len(j.RequiredCapabilities) > 0 {
		caps := make([]string, len(j.RequiredCapabilities))
		copy(caps, j.RequiredCapabilities)
		j.RequiredCapabilities = caps
	}
	return j
}

// CreateJob stores a new job; duplicate ids are rejected.
func (s *MemoryStore) CreateJob(_ context.Context, j marketplace.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.JobID]; ok {
		return fmt.Errorf("job %s already exists", j.JobID)
	}
	s.jobs[j.JobID] = cloneJob(j)
	s.jobOrder = append(s.jobOrder, j.JobID)
	return nil
}

// GetJob returns a job by ID.
func (s *MemoryStore) GetJob(_ context.Context, id string) (marketplace.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return marketplace.Job{}, marketplace.ErrJobNotFound
	}
	return cloneJob(j), nil
}

// UpdateJob replaces an existing job record.
func (s *MemoryStore) UpdateJob(_ context.Context, j marketplace.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.JobID]; !ok {
		return marketplace.ErrJobNotFound
	}
	s.jobs[j.JobID] = cloneJob(j)
	return nil
}

// ListJobs returns jobs matching the filter in insertion order.
func (s *MemoryStore) ListJobs(_ context.Context, f marketplace.JobFilter) ([]marketplace.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]marketplace.Job, 0, len(s.jobs))
	for _, id := range s.jobOrder {
		j := s.jobs[id]
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.PosterID != "" && !strings.EqualFold(f.PosterID, j.PosterID) {
			continue
		}
		if f.AgentID != "" && !strings.EqualFold(f.AgentID, j.AssignedAgentID) {
			continue
		}
		out = append(out, cloneJob(j))
	}
	if f.Offset > 0 && f.Offset < len(out) {
		out = out[f.Offset:]
	} else if f.Offset >= len(out) && f.Offset > 0 {
		out = nil
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

// CreateBid stores a new bid; duplicate ids are rejected.
func (s *MemoryStore) CreateBid(_ context.Context, b marketplace.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[b.BidID]; ok {
		return fmt.Errorf("bid %s already exists", b.BidID)
	}
	s.bids[b.BidID] = cloneBid(b)
	s.bidOrder = append(s.bidOrder, b.BidID)
	return nil
}

// GetBid returns a bid by ID.
func (s *MemoryStore) GetBid(_ context.Context, id string) (marketplace.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bids[id]
	if !ok {
		return marketplace.Bid{}, marketplace.ErrBidNotFound
	}
	return cloneBid(b), nil
}

// UpdateBid replaces an existing bid record.
func (s *MemoryStore) UpdateBid(_ context.Context, b marketplace.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[b.BidID]; !ok {
		return marketplace.ErrBidNotFound
	}
	s.bids[b.BidID] = cloneBid(b)
	return nil
}

// ListBids returns bids matching the filter in insertion order.
func (s *MemoryStore) ListBids(_ context.Context, f marketplace.BidFilter) ([]marketplace.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]marketplace.Bid, 0, len(s.bids))
	for _, id := range s.bidOrder {
		b := s.bids[id]
		if f.JobID != "" && b.JobID != f.JobID {
			continue
		}
		if f.AgentID != "" && !strings.EqualFold(f.AgentID, b.AgentID) {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, cloneBid(b))
	}
	return out, nil
}

// CreateTransaction stores a new ledger record; duplicate ids are rejected.
func (s *MemoryStore) CreateTransaction(_ context.Context, t marketplace.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[t.TxnID]; ok {
		return fmt.Errorf("transaction %s already exists", t.TxnID)
	}
	s.txns[t.TxnID] = t
	s.txnOrder = append(s.txnOrder, t.TxnID)
	return nil
}

// GetTransaction returns a ledger record by ID.
func (s *MemoryStore) GetTransaction(_ context.Context, id string) (marketplace.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txns[id]
	if !ok {
		return marketplace.Transaction{}, marketplace.ErrTxnNotFound
	}
	return t, nil
}

// UpdateTransaction replaces an existing record. Terminal records are
// immutable.
func (s *MemoryStore) UpdateTransaction(_ context.Context, t marketplace.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.txns[t.TxnID]
	if !ok {
		return marketplace.ErrTxnNotFound
	}
	switch prev.Status {
	case marketplace.TxnReleased, marketplace.TxnRefunded, marketplace.TxnFailed:
		return fmt.Errorf("transaction %s is terminal (%s)", t.TxnID, prev.Status)
	}
	s.txns[t.TxnID] = t
	return nil
}

// ListTransactions returns records matching the filter in insertion order.
func (s *MemoryStore) ListTransactions(_ context.Context, f marketplace.TxnFilter) ([]marketplace.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]marketplace.Transaction, 0, len(s.txns))
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
