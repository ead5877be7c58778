package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Config carries the explicit engine knobs. Thresholds are passed in rather
// than read from ambient state so deployments and tests can override them.
type Config struct {
	ApprovalThresholdUSD   float64
	MaxCounterOffers       int
	BidWindow              time.Duration // 0 disables the bid deadline
	DefaultDeadlineMinutes int
	MarketplaceWallet      string
	RailAttempts           int
	RailBackoff            time.Duration
}

// JobSpec is the validated input for posting a job.
type JobSpec struct {
	PosterID             string   `json:"poster_id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	TaskType             string   `json:"task_type,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities"`
	BudgetUSD            float64  `json:"budget_usd"`
	PosterWallet         string   `json:"poster_wallet"`
	DeadlineMinutes      int      `json:"deadline_minutes,omitempty"`
}

// JobManager owns the job entity and orchestrates the bid manager, approval
// gate, quality gate, and transaction ledger. All state-mutating operations
// on one job are serialized under an exclusive per-job lock, held across any
// payment rail call: payment confirmation is the irrevocable boundary, so no
// second mutation is admitted until the outcome is known. Operations on
// different jobs proceed in parallel.
type JobManager struct {
	store     Store
	ledger    *Ledger
	bids      *BidManager
	approvals ApprovalGate
	quality   QualityGate
	events    *EventLog
	cfg       Config

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewJobManager wires the engine over a store and payment rail.
func NewJobManager(store Store, rail PaymentRail, cfg Config, events *EventLog) *JobManager {
	ledger := NewLedger(store, rail, LedgerConfig{
		MarketplaceWallet: cfg.MarketplaceWallet,
		RailAttempts:      cfg.RailAttempts,
		RailBackoff:       cfg.RailBackoff,
	}, events)
	return &JobManager{
		store:     store,
		ledger:    ledger,
		bids:      NewBidManager(store, cfg.MaxCounterOffers, events),
		approvals: NewApprovalGate(cfg.ApprovalThresholdUSD),
		quality:   QualityGate{},
		events:    events,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Ledger exposes the transaction ledger for read-only surfaces
// (reconciliation alerts, balances).
func (m *JobManager) Ledger() *Ledger { return m.ledger }

// Events exposes the activity feed.
func (m *JobManager) Events() *EventLog { return m.events }

// lockJob acquires the exclusive critical section for a job id. Lock entries
// are never evicted, so the map grows with the total job count.
func (m *JobManager) lockJob(jobID string) func() {
	m.locksMu.Lock()
	mu, ok := m.locks[jobID]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[jobID] = mu
	}
	m.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// PostJob validates the spec, escrows the budget, and creates the job in
// posted status. All-or-nothing: the job is not created if the escrow cannot
// be recorded.
func (m *JobManager) PostJob(ctx context.Context, spec JobSpec) (Job, error) {
	if err := validateSpec(spec); err != nil {
		return Job{}, err
	}

	jobID := newJobID()
	unlock := m.lockJob(jobID)
	defer unlock()

	escrow, err := m.ledger.CreateEscrow(ctx, jobID, spec.BudgetUSD, spec.PosterWallet)
	if err != nil {
		return Job{}, err
	}

	now := time.Now().UTC()
	job := Job{
		JobID:                jobID,
		PosterID:             spec.PosterID,
		Title:                spec.Title,
		Description:          spec.Description,
		TaskType:             spec.TaskType,
		RequiredCapabilities: spec.RequiredCapabilities,
		BudgetUSD:            spec.BudgetUSD,
		PosterWallet:         spec.PosterWallet,
		EscrowTxnID:          escrow.TxnID,
		Status:               JobPosted,
		DeadlineMinutes:      spec.DeadlineMinutes,
		CreatedAt:            now,
	}
	if job.DeadlineMinutes <= 0 {
		job.DeadlineMinutes = m.cfg.DefaultDeadlineMinutes
	}
	if m.cfg.BidWindow > 0 {
		deadline := now.Add(m.cfg.BidWindow)
		job.BidDeadline = &deadline
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		// Escrow already moved money; hand it back rather than strand it.
		if _, rerr := m.ledger.Refund(ctx, jobID, spec.BudgetUSD, spec.PosterWallet); rerr != nil {
			log.Printf("failed to refund orphaned escrow job=%s: %v", jobID, rerr)
		}
		return Job{}, fmt.Errorf("%w: %v", ErrEscrowFailed, err)
	}
	log.Printf("job posted job=%s poster=%s budget=%.2f", jobID, spec.PosterID, spec.BudgetUSD)
	m.events.Append("post", jobID, spec.PosterID, fmt.Sprintf("posted %q with $%.2f escrowed", spec.Title, spec.BudgetUSD))
	return job, nil
}

func validateSpec(spec JobSpec) error {
	if spec.BudgetUSD <= 0 {
		return fmt.Errorf("%w: budget must be positive", ErrInvalidSpec)
	}
	if strings.TrimSpace(spec.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidSpec)
	}
	if len(spec.RequiredCapabilities) == 0 {
		return fmt.Errorf("%w: at least one required capability", ErrInvalidSpec)
	}
	return nil
}

// OpenForBidding transitions posted -> bidding. Idempotent when already
// bidding: the repeat call reports the same resulting status with no side
// effects.
func (m *JobManager) OpenForBidding(ctx context.Context, jobID string) (Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	switch job.Status {
	case JobBidding:
		return job, nil
	case JobPosted:
	default:
		return job, fmt.Errorf("%w: cannot open bidding from %s", ErrInvalidTransition, job.Status)
	}
	job.Status = JobBidding
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return Job{}, err
	}
	m.events.Append("open", jobID, job.PosterID, "open for bidding")
	return job, nil
}

// SubmitBid records an agent's bid on an open job.
func (m *JobManager) SubmitBid(ctx context.Context, jobID, agentID string, priceUSD float64, estSeconds int, confidence float64, approach, agentWallet string) (Bid, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return Bid{}, err
	}
	bid, err := m.bids.submit(ctx, &job, agentID, priceUSD, estSeconds, confidence, approach, agentWallet)
	if err != nil {
		return Bid{}, err
	}
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return Bid{}, err
	}
	return bid, nil
}

// CounterOffer appends a negotiation round to a bid and moves the job to
// negotiating on the first counter.
func (m *JobManager) CounterOffer(ctx context.Context, bidID string, priceUSD float64, message string, by OfferAuthor) (Bid, error) {
	bid, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		return Bid{}, err
	}
	unlock := m.lockJob(bid.JobID)
	defer unlock()

	// Re-read under the lock; a concurrent accept may have terminated it.
	if bid, err = m.store.GetBid(ctx, bidID); err != nil {
		return Bid{}, err
	}
	job, err := m.store.GetJob(ctx, bid.JobID)
	if err != nil {
		return Bid{}, err
	}
	if err := m.bids.counter(ctx, &bid, &job, priceUSD, message, by); err != nil {
		return Bid{}, err
	}
	return bid, nil
}

// AcceptBid accepts a bid at its current price. When the final price clears
// the approval gate the acceptance completes immediately; otherwise the job
// and bid park in awaiting_approval until ApproveBid or RejectBid.
func (m *JobManager) AcceptBid(ctx context.Context, bidID string) (Job, error) {
	bid, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		return Job{}, err
	}
	unlock := m.lockJob(bid.JobID)
	defer unlock()
	return m.acceptLocked(ctx, bidID)
}

func (m *JobManager) acceptLocked(ctx context.Context, bidID string) (Job, error) {
	bid, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		return Job{}, err
	}
	job, err := m.store.GetJob(ctx, bid.JobID)
	if err != nil {
		return Job{}, err
	}
	switch job.Status {
	case JobPosted, JobBidding, JobNegotiating:
	default:
		return job, fmt.Errorf("%w: cannot accept a bid while job is %s", ErrInvalidTransition, job.Status)
	}
	if err := m.bids.acceptCurrent(ctx, &bid); err != nil {
		return job, err
	}

	final := *bid.FinalPriceUSD
	if m.approvals.RequiresApproval(final) {
		bid.Status = BidAwaitingApproval
		bid.RequiresApproval = true
		bid.ApprovalReason = m.approvals.Reason(final)
		if err := m.store.UpdateBid(ctx, bid); err != nil {
			return job, err
		}
		job.Status = JobAwaitingApproval
		if err := m.store.UpdateJob(ctx, job); err != nil {
			return job, err
		}
		log.Printf("bid awaiting approval bid=%s job=%s final=%.2f", bid.BidID, job.JobID, final)
		m.events.Append("approval", bid.BidID, "gate", bid.ApprovalReason)
		return job, nil
	}
	return m.completeAcceptance(ctx, job, bid)
}

// completeAcceptance marks the winner accepted, rejects every sibling, and
// assigns the job — one atomic step under the per-job lock, so at most one
// bid can ever hold a winning status.
func (m *JobManager) completeAcceptance(ctx context.Context, job Job, bid Bid) (Job, error) {
	now := time.Now().UTC()
	bid.Status = BidAccepted
	bid.AcceptedAt = &now
	if bid.FinalPriceUSD == nil {
		final := bid.CurrentPriceUSD()
		bid.FinalPriceUSD = &final
	}
	if err := m.store.UpdateBid(ctx, bid); err != nil {
		return job, err
	}
	if err := m.bids.rejectSiblings(ctx, job.JobID, bid.BidID); err != nil {
		return job, err
	}

	job.Status = JobAssigned
	job.WinningBidID = bid.BidID
	job.AssignedAgentID = bid.AgentID
	job.AssignedAt = &now
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return job, err
	}
	log.Printf("bid accepted bid=%s job=%s agent=%s final=%.2f", bid.BidID, job.JobID, bid.AgentID, *bid.FinalPriceUSD)
	m.events.Append("accept", bid.BidID, job.PosterID, fmt.Sprintf("accepted at $%.2f", *bid.FinalPriceUSD))
	return job, nil
}

// ApproveBid is the human sign-off that resumes a gated acceptance.
func (m *JobManager) ApproveBid(ctx context.Context, bidID, approverID string) (Job, error) {
	bid, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		return Job{}, err
	}
	unlock := m.lockJob(bid.JobID)
	defer unlock()

	if bid, err = m.store.GetBid(ctx, bidID); err != nil {
		return Job{}, err
	}
	job, err := m.store.GetJob(ctx, bid.JobID)
	if err != nil {
		return Job{}, err
	}
	if job.Status != JobAwaitingApproval || bid.Status != BidAwaitingApproval {
		return job, fmt.Errorf("%w: bid %s is not awaiting approval", ErrInvalidTransition, bidID)
	}
	now := time.Now().UTC()
	bid.ApprovedBy = approverID
	bid.ApprovedAt = &now
	m.events.Append("approve", bidID, approverID, "approved")
	return m.completeAcceptance(ctx, job, bid)
}

// RejectBid rejects a bid. While the job is awaiting approval on this bid,
// rejection returns the job to bidding; otherwise only the bid terminates.
func (m *JobManager) RejectBid(ctx context.Context, bidID, rejectorID string) (Job, error) {
	bid, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		return Job{}, err
	}
	unlock := m.lockJob(bid.JobID)
	defer unlock()

	if bid, err = m.store.GetBid(ctx, bidID); err != nil {
		return Job{}, err
	}
	job, err := m.store.GetJob(ctx, bid.JobID)
	if err != nil {
		return Job{}, err
	}
	if bid.Status.Terminal() {
		return job, fmt.Errorf("%w: bid %s already %s", ErrInvalidTransition, bidID, bid.Status)
	}
	gated := job.Status == JobAwaitingApproval && bid.Status == BidAwaitingApproval
	bid.Status = BidRejected
	if err := m.store.UpdateBid(ctx, bid); err != nil {
		return job, err
	}
	if gated {
		job.Status = JobBidding
		if err := m.store.UpdateJob(ctx, job); err != nil {
			return job, err
		}
	}
	log.Printf("bid rejected bid=%s by=%s", bidID, rejectorID)
	m.events.Append("reject", bidID, rejectorID, "rejected")
	return job, nil
}

// WithdrawBid is the agent-initiated exit from negotiation. Withdrawing the
// bid parked at the approval gate returns the job to bidding, the same way a
// gated rejection does; a job in awaiting_approval always has a live bid at
// the gate.
func (m *JobManager) WithdrawBid(ctx context.Context, bidID, agentID string) error {
	bid, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		return err
	}
	unlock := m.lockJob(bid.JobID)
	defer unlock()

	if bid, err = m.store.GetBid(ctx, bidID); err != nil {
		return err
	}
	job, err := m.store.GetJob(ctx, bid.JobID)
	if err != nil {
		return err
	}
	gated := job.Status == JobAwaitingApproval && bid.Status == BidAwaitingApproval
	if err := m.bids.withdraw(ctx, &bid, agentID); err != nil {
		return err
	}
	if gated {
		job.Status = JobBidding
		if err := m.store.UpdateJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// BeginExecution moves an assigned job into in_progress and starts the
// execution deadline clock.
func (m *JobManager) BeginExecution(ctx context.Context, jobID string) (Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.Status != JobAssigned {
		return job, fmt.Errorf("%w: cannot begin execution from %s", ErrInvalidTransition, job.Status)
	}
	now := time.Now().UTC()
	if job.AssignedAt == nil {
		job.AssignedAt = &now
	}
	if job.DeadlineMinutes > 0 {
		deadline := now.Add(time.Duration(job.DeadlineMinutes) * time.Minute)
		job.ExecutionDeadline = &deadline
	}
	job.Status = JobInProgress
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return Job{}, err
	}
	m.events.Append("execute", jobID, job.AssignedAgentID, "execution started")
	return job, nil
}

// SubmitResult stores the result reference and parks the job for review. A
// submission past the execution deadline is rejected and the job routes to
// dispute with a full refund rather than silently stalling.
func (m *JobManager) SubmitResult(ctx context.Context, jobID, resultRef string) (Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.Status != JobInProgress {
		return job, fmt.Errorf("%w: cannot submit result from %s", ErrInvalidTransition, job.Status)
	}
	if job.ExecutionDeadline != nil && time.Now().After(*job.ExecutionDeadline) {
		if _, rerr := m.ledger.Refund(ctx, jobID, job.BudgetUSD, job.PosterWallet); rerr != nil {
			return job, rerr
		}
		job.Status = JobDisputed
		now := time.Now().UTC()
		job.CompletedAt = &now
		if err := m.store.UpdateJob(ctx, job); err != nil {
			return Job{}, err
		}
		m.events.Append("dispute", jobID, job.AssignedAgentID, "execution deadline exceeded; escrow refunded")
		return job, fmt.Errorf("%w: execution deadline passed at %s", ErrDeadlineExceeded, job.ExecutionDeadline.Format(time.RFC3339))
	}
	job.ResultRef = resultRef
	job.Status = JobPendingReview
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return Job{}, err
	}
	m.events.Append("result", jobID, job.AssignedAgentID, "result submitted for review")
	return job, nil
}

// SubmitReview applies the authoritative human decision: moves money per the
// quality gate's payment plan and terminalizes the job. The recorded quality
// score is the human rating, never the AI suggestion. If the ledger rejects
// the payout the job stays in pending_review and the caller sees
// ErrPaymentFailed; a partially applied split surfaces
// ErrReconciliationRequired with the job completed.
func (m *JobManager) SubmitReview(ctx context.Context, jobID string, review Review) (Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.Status != JobPendingReview {
		return job, fmt.Errorf("%w: cannot review from %s", ErrInvalidTransition, job.Status)
	}
	if err := m.quality.Validate(review); err != nil {
		return job, err
	}
	plan, err := m.quality.Plan(review.Decision, job.BudgetUSD)
	if err != nil {
		return job, err
	}

	agentWallet := ""
	if job.WinningBidID != "" {
		winner, err := m.store.GetBid(ctx, job.WinningBidID)
		if err != nil {
			return job, err
		}
		agentWallet = winner.AgentWallet
	}

	var payErr error
	switch review.Decision {
	case DecisionAccept:
		_, payErr = m.ledger.Release(ctx, jobID, plan.ReleaseUSD, agentWallet)
	case DecisionPartial:
		payErr = m.ledger.PartialPayout(ctx, jobID, plan.ReleaseUSD, agentWallet, plan.RefundUSD)
	case DecisionReject:
		_, payErr = m.ledger.Refund(ctx, jobID, plan.RefundUSD, job.PosterWallet)
	}
	if payErr != nil && !errors.Is(payErr, ErrReconciliationRequired) {
		// Job status unchanged; safe to retry once the rail recovers.
		return job, payErr
	}

	now := time.Now().UTC()
	rating := review.Rating
	job.QualityScore = &rating
	job.CompletedAt = &now
	job.Status = JobCompleted
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return Job{}, err
	}
	log.Printf("review recorded job=%s decision=%s rating=%.2f", jobID, review.Decision, review.Rating)
	m.events.Append("review", jobID, review.ReviewerID, fmt.Sprintf("%s (rating %.2f)", review.Decision, review.Rating))
	return job, payErr
}

// Dispute is the side exit from in_progress or pending_review: the escrow is
// refunded in full and the job terminalizes as disputed.
func (m *JobManager) Dispute(ctx context.Context, jobID, reason string) (Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.Status != JobInProgress && job.Status != JobPendingReview {
		return job, fmt.Errorf("%w: cannot dispute from %s", ErrInvalidTransition, job.Status)
	}
	if _, err := m.ledger.Refund(ctx, jobID, job.BudgetUSD, job.PosterWallet); err != nil {
		return job, err
	}
	now := time.Now().UTC()
	job.Status = JobDisputed
	job.CompletedAt = &now
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return Job{}, err
	}
	m.events.Append("dispute", jobID, job.PosterID, reason)
	return job, nil
}

// Cancel is valid only before assignment. The escrow is refunded in full and
// all live bids terminate.
func (m *JobManager) Cancel(ctx context.Context, jobID string) (Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	switch job.Status {
	case JobOpen, JobPosted, JobBidding, JobNegotiating, JobAwaitingApproval:
	default:
		return job, fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, job.Status)
	}
	if job.EscrowTxnID != "" {
		if _, err := m.ledger.Refund(ctx, jobID, job.BudgetUSD, job.PosterWallet); err != nil {
			return job, err
		}
	}
	if err := m.bids.rejectSiblings(ctx, jobID, ""); err != nil {
		return job, err
	}
	job.Status = JobCancelled
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return Job{}, err
	}
	log.Printf("job cancelled job=%s", jobID)
	m.events.Append("cancel", jobID, job.PosterID, "cancelled; escrow refunded")
	return job, nil
}

// GetJob returns the current job state.
func (m *JobManager) GetJob(ctx context.Context, jobID string) (Job, error) {
	return m.store.GetJob(ctx, jobID)
}

// ListJobs returns jobs matching the filter.
func (m *JobManager) ListJobs(ctx context.Context, f JobFilter) ([]Job, error) {
	return m.store.ListJobs(ctx, f)
}

// GetBid returns the current bid state.
func (m *JobManager) GetBid(ctx context.Context, bidID string) (Bid, error) {
	return m.store.GetBid(ctx, bidID)
}

// ListBids returns bids matching the filter.
func (m *JobManager) ListBids(ctx context.Context, f BidFilter) ([]Bid, error) {
	return m.store.ListBids(ctx, f)
}

// ListTransactions returns ledger records matching the filter.
func (m *JobManager) ListTransactions(ctx context.Context, f TxnFilter) ([]Transaction, error) {
	return m.store.ListTransactions(ctx, f)
}

// PendingApprovals lists every bid parked at the human approval gate.
func (m *JobManager) PendingApprovals(ctx context.Context) ([]Bid, error) {
	return m.store.ListBids(ctx, BidFilter{Status: BidAwaitingApproval})
}
