package marketplace

import "time"

// JobStatus tracks where a job sits in its lifecycle.
type JobStatus string

const (
	JobOpen             JobStatus = "open"
	JobPosted           JobStatus = "posted"            // escrow recorded
	JobBidding          JobStatus = "bidding"           // accepting bids
	JobNegotiating      JobStatus = "negotiating"       // counter-offers in flight
	JobAwaitingApproval JobStatus = "awaiting_approval" // human sign-off required
	JobAssigned         JobStatus = "assigned"
	JobInProgress       JobStatus = "in_progress"
	JobPendingReview    JobStatus = "pending_review"
	JobCompleted        JobStatus = "completed"
	JobDisputed         JobStatus = "disputed"
	JobCancelled        JobStatus = "cancelled"
)

// BidStatus tracks a bid through negotiation.
type BidStatus string

const (
	BidPending          BidStatus = "pending"
	BidCounterOffered   BidStatus = "counter_offered"
	BidCounterAccepted  BidStatus = "counter_accepted"
	BidAwaitingApproval BidStatus = "awaiting_approval"
	BidAccepted         BidStatus = "accepted"
	BidRejected         BidStatus = "rejected"
	BidWithdrawn        BidStatus = "withdrawn"
)

// Terminal reports whether no further negotiation actions are allowed.
func (s BidStatus) Terminal() bool {
	return s == BidAccepted || s == BidRejected || s == BidWithdrawn
}

// TxnType identifies the direction of a money movement.
type TxnType string

const (
	TxnEscrow  TxnType = "escrow"
	TxnRelease TxnType = "release"
	TxnRefund  TxnType = "refund"
)

// TxnStatus tracks a transaction against the payment rail.
type TxnStatus string

const (
	TxnPending  TxnStatus = "pending"
	TxnEscrowed TxnStatus = "escrowed"
	TxnReleased TxnStatus = "released"
	TxnRefunded TxnStatus = "refunded"
	TxnFailed   TxnStatus = "failed"
)

// OfferAuthor identifies which side of the table made a counter-offer.
type OfferAuthor string

const (
	ByPoster OfferAuthor = "poster"
	ByAgent  OfferAuthor = "agent"
)

// ReviewDecision is the human reviewer's verdict on submitted work.
type ReviewDecision string

const (
	DecisionAccept  ReviewDecision = "accept"
	DecisionPartial ReviewDecision = "partial"
	DecisionReject  ReviewDecision = "reject"
)

// Job is a posted unit of work with an escrowed budget.
type Job struct {
	JobID    string `json:"job_id"`
	PosterID string `json:"poster_id"`

	Title                string   `json:"title"`
	Description          string   `json:"description"`
	TaskType             string   `json:"task_type,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities"`

	// BudgetUSD is fixed at creation and equals the escrowed amount. The
	// negotiated price lives on the winning bid; payouts derive from the
	// budget, never the negotiated price.
	BudgetUSD    float64 `json:"budget_usd"`
	PosterWallet string  `json:"poster_wallet,omitempty"`
	EscrowTxnID  string  `json:"escrow_txn_id,omitempty"`

	Status            JobStatus  `json:"status"`
	BidCount          int        `json:"bid_count"`
	BidDeadline       *time.Time `json:"bid_deadline,omitempty"`
	DeadlineMinutes   int        `json:"deadline_minutes,omitempty"`
	ExecutionDeadline *time.Time `json:"execution_deadline,omitempty"`

	WinningBidID    string `json:"winning_bid_id,omitempty"`
	AssignedAgentID string `json:"assigned_agent_id,omitempty"`

	ResultRef    string   `json:"result_ref,omitempty"`
	QualityScore *float64 `json:"quality_score,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CounterOffer is one round in a bid negotiation. The history is append-only;
// the last entry always defines the current price.
type CounterOffer struct {
	PriceUSD  float64     `json:"price_usd"`
	Message   string      `json:"message"`
	By        OfferAuthor `json:"by"`
	CreatedAt time.Time   `json:"created_at"`
}

// Bid is an agent's offer to perform a job.
type Bid struct {
	BidID       string `json:"bid_id"`
	JobID       string `json:"job_id"`
	AgentID     string `json:"agent_id"`
	AgentWallet string `json:"agent_wallet,omitempty"`

	PriceUSD             float64 `json:"price_usd"`
	EstimatedTimeSeconds int     `json:"estimated_time_seconds,omitempty"`
	Confidence           float64 `json:"confidence,omitempty"`
	Approach             string  `json:"approach,omitempty"`

	CounterOffers []CounterOffer `json:"counter_offers,omitempty"`
	FinalPriceUSD *float64       `json:"final_price_usd,omitempty"`

	RequiresApproval bool       `json:"requires_approval,omitempty"`
	ApprovalReason   string     `json:"approval_reason,omitempty"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`

	Status BidStatus `json:"status"`

	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// CurrentPriceUSD is the latest counter-offer price, or the original bid
// price when no counters were made.
func (b Bid) CurrentPriceUSD() float64 {
	if n := len(b.CounterOffers); n > 0 {
		return b.CounterOffers[n-1].PriceUSD
	}
	return b.PriceUSD
}

// Transaction is a money-movement record against escrowed funds.
type Transaction struct {
	TxnID string  `json:"txn_id"`
	Type  TxnType `json:"txn_type"`

	JobID string `json:"job_id"`
	BidID string `json:"bid_id,omitempty"`

	PayerWallet string `json:"payer_wallet"`
	PayeeWallet string `json:"payee_wallet,omitempty"`

	AmountUSD float64 `json:"amount_usd"`

	// ExternalRef is the rail-side confirmation reference (txn hash).
	ExternalRef string `json:"external_ref,omitempty"`

	Status TxnStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// QualitySuggestion is the advisory AI evaluation of a submitted result.
// It is never applied without an explicit human decision.
type QualitySuggestion struct {
	Relevance        float64        `json:"relevance"`
	Accuracy         float64        `json:"accuracy"`
	Completeness     float64        `json:"completeness"`
	Clarity          float64        `json:"clarity"`
	Actionability    float64        `json:"actionability"`
	SuggestedOverall float64        `json:"suggested_overall"`
	Recommendation   ReviewDecision `json:"recommendation"`
	Feedback         string         `json:"feedback,omitempty"`
}

// Review is the authoritative human decision on submitted work.
type Review struct {
	Decision   ReviewDecision     `json:"decision"`
	Rating     float64            `json:"rating"` // [0,1], recorded as the job's quality score
	Feedback   string             `json:"feedback,omitempty"`
	ReviewerID string             `json:"reviewer_id,omitempty"`
	Suggestion *QualitySuggestion `json:"suggestion,omitempty"`
}

// JobFilter captures list filters for jobs.
type JobFilter struct {
	Status   JobStatus
	PosterID string
	AgentID  string
	Limit    int
	Offset   int
}

// BidFilter captures list filters for bids.
type BidFilter struct {
	JobID   string
	AgentID string
	Status  BidStatus
}

// TxnFilter captures list filters for transactions.
type TxnFilter struct {
	JobID  string
	Type   TxnType
	Status TxnStatus
}

// Event is a lightweight activity entry for marketplace actions.
type Event struct {
	Type      string    `json:"type"`      // post | bid | counter | accept | approve | result | review | cancel
	EntityID  string    `json:"entity_id"` // job_id or bid_id
	Actor     string    `json:"actor"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
