package marketplace

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultMaxCounterOffers caps negotiation rounds before escalation.
const DefaultMaxCounterOffers = 5

// BidManager owns bid creation, counter-offer rounds, and bid-status
// transitions for a single job. Every method here runs under the job
// manager's per-job lock; the manager itself holds no locks.
type BidManager struct {
	store            Store
	maxCounterOffers int
	events           *EventLog
}

// NewBidManager returns a bid manager over the store.
func NewBidManager(store Store, maxCounterOffers int, events *EventLog) *BidManager {
	if maxCounterOffers <= 0 {
		maxCounterOffers = DefaultMaxCounterOffers
	}
	return &BidManager{store: store, maxCounterOffers: maxCounterOffers, events: events}
}

// negotiationOpen reports whether counter-offers may still be appended.
func negotiationOpen(s BidStatus) bool {
	return s == BidPending || s == BidCounterOffered || s == BidCounterAccepted
}

// submit validates and records a new pending bid against the job. The caller
// persists the returned job (bid count is bumped here).
func (m *BidManager) submit(ctx context.Context, job *Job, agentID string, priceUSD float64, estSeconds int, confidence float64, approach, agentWallet string) (Bid, error) {
	switch job.Status {
	case JobPosted, JobBidding, JobNegotiating:
	default:
		return Bid{}, fmt.Errorf("%w: job %s status is %s", ErrJobNotOpen, job.JobID, job.Status)
	}
	if job.BidDeadline != nil && time.Now().After(*job.BidDeadline) {
		return Bid{}, fmt.Errorf("%w: bid window for job %s closed at %s", ErrDeadlineExceeded, job.JobID, job.BidDeadline.Format(time.RFC3339))
	}
	if priceUSD <= 0 {
		return Bid{}, fmt.Errorf("%w: bid price must be positive", ErrInvalidSpec)
	}
	if priceUSD > job.BudgetUSD+usdEpsilon {
		return Bid{}, fmt.Errorf("%w: bid price $%.2f exceeds job budget $%.2f", ErrInvalidSpec, priceUSD, job.BudgetUSD)
	}

	bid := Bid{
		BidID:                newBidID(),
		JobID:                job.JobID,
		AgentID:              agentID,
		AgentWallet:          agentWallet,
		PriceUSD:             priceUSD,
		EstimatedTimeSeconds: estSeconds,
		Confidence:           confidence,
		Approach:             approach,
		Status:               BidPending,
		CreatedAt:            time.Now().UTC(),
	}
	if err := m.store.CreateBid(ctx, bid); err != nil {
		return Bid{}, err
	}
	job.BidCount++
	log.Printf("bid submitted bid=%s job=%s agent=%s price=%.2f", bid.BidID, job.JobID, agentID, priceUSD)
	m.events.Append("bid", bid.BidID, agentID, fmt.Sprintf("bid $%.2f on %s", priceUSD, job.JobID))
	return bid, nil
}

// counter appends a counter-offer. Authorship is recorded but alternation is
// not enforced; the last entry always defines the current price.
func (m *BidManager) counter(ctx context.Context, bid *Bid, job *Job, priceUSD float64, message string, by OfferAuthor) error {
	if !negotiationOpen(bid.Status) {
		return fmt.Errorf("%w: bid %s status is %s", ErrNegotiationClosed, bid.BidID, bid.Status)
	}
	if len(bid.CounterOffers) >= m.maxCounterOffers {
		return fmt.Errorf("%w: maximum negotiation rounds (%d) reached", ErrNegotiationClosed, m.maxCounterOffers)
	}
	if priceUSD <= 0 {
		return fmt.Errorf("%w: counter-offer price must be positive", ErrInvalidSpec)
	}
	if by != ByPoster && by != ByAgent {
		return fmt.Errorf("%w: counter-offer author must be poster or agent", ErrInvalidSpec)
	}

	bid.CounterOffers = append(bid.CounterOffers, CounterOffer{
		PriceUSD:  priceUSD,
		Message:   message,
		By:        by,
		CreatedAt: time.Now().UTC(),
	})
	bid.Status = BidCounterOffered
	if err := m.store.UpdateBid(ctx, *bid); err != nil {
		return err
	}

	if job.Status == JobBidding || job.Status == JobPosted {
		job.Status = JobNegotiating
		if err := m.store.UpdateJob(ctx, *job); err != nil {
			return err
		}
	}
	log.Printf("counter-offer bid=%s by=%s price=%.2f round=%d", bid.BidID, by, priceUSD, len(bid.CounterOffers))
	m.events.Append("counter", bid.BidID, string(by), fmt.Sprintf("counter $%.2f", priceUSD))
	return nil
}

// acceptCurrent pins the final price to the latest offer (or the original bid
// price) and marks the bid counter_accepted. Approval gating and sibling
// termination happen in the job manager's acceptance path.
func (m *BidManager) acceptCurrent(ctx context.Context, bid *Bid) error {
	if !negotiationOpen(bid.Status) {
		return fmt.Errorf("%w: bid %s status is %s", ErrNegotiationClosed, bid.BidID, bid.Status)
	}
	final := bid.CurrentPriceUSD()
	bid.FinalPriceUSD = &final
	bid.Status = BidCounterAccepted
	return m.store.UpdateBid(ctx, *bid)
}

// withdraw is agent-initiated and valid from any non-terminal state.
func (m *BidManager) withdraw(ctx context.Context, bid *Bid, agentID string) error {
	if bid.AgentID != agentID {
		return fmt.Errorf("%w: bid %s does not belong to agent %s", ErrInvalidSpec, bid.BidID, agentID)
	}
	if bid.Status.Terminal() {
		return fmt.Errorf("%w: bid %s already %s", ErrInvalidTransition, bid.BidID, bid.Status)
	}
	bid.Status = BidWithdrawn
	if err := m.store.UpdateBid(ctx, *bid); err != nil {
		return err
	}
	log.Printf("bid withdrawn bid=%s agent=%s", bid.BidID, agentID)
	m.events.Append("withdraw", bid.BidID, agentID, "bid withdrawn")
	return nil
}

// rejectSiblings terminates every other non-terminal bid on the job in the
// same atomic step as an acceptance, so no second bid can win later.
func (m *BidManager) rejectSiblings(ctx context.Context, jobID, winnerBidID string) error {
	bids, err := m.store.ListBids(ctx, BidFilter{JobID: jobID})
	if err != nil {
		return err
	}
	for _, sibling := range bids {
		if sibling.BidID == winnerBidID || sibling.Status.Terminal() {
			continue
		}
		sibling.Status = BidRejected
		if err := m.store.UpdateBid(ctx, sibling); err != nil {
			return err
		}
	}
	return nil
}
