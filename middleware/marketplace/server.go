package marketplace

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	core "bazaar-backend/core/marketplace"
	"bazaar-backend/payments"
	"bazaar-backend/services"
)

// Server wires the marketplace engine to HTTP handlers.
type Server struct {
	engine  *core.JobManager
	metrics *services.Metrics
}

// NewServer builds a Server over the engine.
func NewServer(engine *core.JobManager, metrics *services.Metrics) *Server {
	return &Server{engine: engine, metrics: metrics}
}

// RegisterRoutes attaches handlers to the mux. auth wraps every API route
// (use middleware.APIAuth); the health endpoint stays open. A nil auth
// registers the routes unprotected.
func (s *Server) RegisterRoutes(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(h))
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	handle("/api/marketplace/jobs", s.handleJobs)
	handle("/api/marketplace/jobs/", s.handleJobs)
	handle("/api/marketplace/bids", s.handleBids)
	handle("/api/marketplace/bids/", s.handleBids)
	handle("/api/marketplace/approvals", s.handleApprovals)
	handle("/api/marketplace/transactions", s.handleTransactions)
	handle("/api/marketplace/reconciliations", s.handleReconciliations)
	handle("/api/marketplace/events", s.handleEvents)
	handle("/api/marketplace/quality/suggest", s.handleSuggest)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) record(name string, err error) {
	if s.metrics != nil {
		s.metrics.RecordOperation(name, err)
	}
}

// handleJobs serves the job collection, job items, and job sub-actions:
//
//	POST /api/marketplace/jobs                   post a job
//	GET  /api/marketplace/jobs                   list jobs
//	GET  /api/marketplace/jobs/{id}              fetch one job
//	POST /api/marketplace/jobs/{id}/open         open for bidding
//	POST /api/marketplace/jobs/{id}/bids         submit a bid
//	GET  /api/marketplace/jobs/{id}/bids         list bids for the job
//	POST /api/marketplace/jobs/{id}/execution    begin execution
//	POST /api/marketplace/jobs/{id}/result       submit the result
//	POST /api/marketplace/jobs/{id}/review       submit the human review
//	POST /api/marketplace/jobs/{id}/dispute      dispute the job
//	POST /api/marketplace/jobs/{id}/cancel       cancel the job
//	GET  /api/marketplace/jobs/{id}/transactions ledger records for the job
//	GET  /api/marketplace/jobs/{id}/funding-qr   escrow top-up QR PNG
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/marketplace/jobs"), "/")
	if path == "" {
		switch r.Method {
		case http.MethodPost:
			s.postJob(w, r)
		case http.MethodGet:
			s.listJobs(w, r)
		default:
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	parts := strings.Split(path, "/")
	jobID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		job, err := s.engine.GetJob(r.Context(), jobID)
		if err != nil {
			engineError(w, err)
			return
		}
		JSON(w, http.StatusOK, job)
		return
	}

	switch parts[1] {
	case "open":
		s.openBidding(w, r, jobID)
	case "bids":
		if r.Method == http.MethodGet {
			s.listBids(w, r, jobID)
			return
		}
		s.submitBid(w, r, jobID)
	case "execution":
		s.beginExecution(w, r, jobID)
	case "result":
		s.submitResult(w, r, jobID)
	case "review":
		s.submitReview(w, r, jobID)
	case "dispute":
		s.disputeJob(w, r, jobID)
	case "cancel":
		s.cancelJob(w, r, jobID)
	case "transactions":
		s.listJobTransactions(w, r, jobID)
	case "funding-qr":
		s.fundingQR(w, r, jobID)
	default:
		Error(w, http.StatusNotFound, "unknown job action")
	}
}

func (s *Server) postJob(w http.ResponseWriter, r *http.Request) {
	var spec core.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job, err := s.engine.PostJob(r.Context(), spec)
	s.record("post_job", err)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusCreated, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	jobs, err := s.engine.ListJobs(r.Context(), core.JobFilter{
		Status:   core.JobStatus(q.Get("status")),
		PosterID: q.Get("poster_id"),
		AgentID:  q.Get("agent_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"jobs":        jobs,
		"total_count": len(jobs),
	})
}

func (s *Server) openBidding(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.engine.OpenForBidding(r.Context(), jobID)
	s.record("open_bidding", err)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, job)
}

type bidCreateBody struct {
	AgentID              string  `json:"agent_id"`
	PriceUSD             float64 `json:"price_usd"`
	EstimatedTimeSeconds int     `json:"estimated_time_seconds"`
	Confidence           float64 `json:"confidence"`
	Approach             string  `json:"approach"`
	AgentWallet          string  `json:"agent_wallet"`
}

func (s *Server) submitBid(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body bidCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	bid, err := s.engine.SubmitBid(r.Context(), jobID, body.AgentID, body.PriceUSD,
		body.EstimatedTimeSeconds, body.Confidence, body.Approach, body.AgentWallet)
	s.record("submit_bid", err)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusCreated, bid)
}

func (s *Server) listBids(w http.ResponseWriter, r *http.Request, jobID string) {
	bids, err := s.engine.ListBids(r.Context(), core.BidFilter{
		JobID:   jobID,
		AgentID: r.URL.Query().Get("agent_id"),
		Status:  core.BidStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"bids":        bids,
		"total_count": len(bids),
	})
}

func (s *Server) beginExecution(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.engine.BeginExecution(r.Context(), jobID)
	s.record("begin_execution", err)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, job)
}

func (s *Server) submitResult(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		ResultRef string `json:"result_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job, err := s.engine.SubmitResult(r.Context(), jobID, body.ResultRef)
	s.record("submit_result", err)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, job)
}

func (s *Server) submitReview(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var review core.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job, err := s.engine.SubmitReview(r.Context(), jobID, review)
	s.record("submit_review", err)
	if err != nil {
		// The split applied partially; money needs an operator, but the
		// review itself is recorded and the job is terminal.
		if errors.Is(err, core.ErrReconciliationRequired) {
			if s.metrics != nil {
				s.metrics.SetReconciliations(len(s.engine.Ledger().Reconciliations()))
			}
			JSON(w, http.StatusOK, map[string]interface{}{
				"job":     job,
				"warning": err.Error(),
			})
			return
		}
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, job)
}

func (s *Server) disputeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job, err := s.engine.Dispute(r.Context(), jobID, body.Reason)
	s.record("dispute", err)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, job)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.engine.Cancel(r.Context(), jobID)
	s.record("cancel", err)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, job)
}

func (s *Server) listJobTransactions(w http.ResponseWriter, r *http.Request, jobID string) {
	txns, err := s.engine.ListTransactions(r.Context(), core.TxnFilter{JobID: jobID})
	if err != nil {
		engineError(w, err)
		return
	}
	remaining, err := s.engine.Ledger().RemainingBalance(r.Context(), jobID)
	if err != nil && !errors.Is(err, core.ErrTxnNotFound) {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"transactions":  txns,
		"total_count":   len(txns),
		"remaining_usd": remaining,
	})
}

func (s *Server) fundingQR(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.engine.GetJob(r.Context(), jobID)
	if err != nil {
		engineError(w, err)
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := payments.FundingQR(job.PosterWallet, job.BudgetUSD, size)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleBids serves bid items and bid sub-actions:
//
//	GET  /api/marketplace/bids/{id}           fetch one bid
//	POST /api/marketplace/bids/{id}/counter   append a counter-offer
//	POST /api/marketplace/bids/{id}/accept    accept at current price
//	POST /api/marketplace/bids/{id}/approve   human approval sign-off
//	POST /api/marketplace/bids/{id}/reject    reject the bid
//	POST /api/marketplace/bids/{id}/withdraw  agent withdrawal
func (s *Server) handleBids(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/marketplace/bids"), "/")
	if path == "" {
		Error(w, http.StatusNotFound, "bid id required")
		return
	}
	parts := strings.Split(path, "/")
	bidID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		bid, err := s.engine.GetBid(r.Context(), bidID)
		if err != nil {
			engineError(w, err)
			return
		}
		JSON(w, http.StatusOK, bid)
		return
	}

	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch parts[1] {
	case "counter":
		s.counterOffer(w, r, bidID)
	case "accept":
		job, err := s.engine.AcceptBid(r.Context(), bidID)
		s.record("accept_bid", err)
		if err != nil {
			engineError(w, err)
			return
		}
		JSON(w, http.StatusOK, job)
	case "approve":
		var body struct {
			ApproverID string `json:"approver_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		job, err := s.engine.ApproveBid(r.Context(), bidID, body.ApproverID)
		s.record("approve_bid", err)
		if err != nil {
			engineError(w, err)
			return
		}
		JSON(w, http.StatusOK, job)
	case "reject":
		var body struct {
			RejectorID string `json:"rejector_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		job, err := s.engine.RejectBid(r.Context(), bidID, body.RejectorID)
		s.record("reject_bid", err)
		if err != nil {
			engineError(w, err)
			return
		}
		JSON(w, http.StatusOK, job)
	case "withdraw":
		var body struct {
			AgentID string `json:"agent_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		err := s.engine.WithdrawBid(r.Context(), bidID, body.AgentID)
		s.record("withdraw_bid", err)
		if err != nil {
			engineError(w, err)
			return
		}
		JSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
	default:
		Error(w, http.StatusNotFound, "unknown bid action")
	}
}

type counterBody struct {
	PriceUSD float64 `json:"price_usd"`
	Message  string  `json:"message"`
	By       string  `json:"by"` // "poster" or "agent"
}

func (s *Server) counterOffer(w http.ResponseWriter, r *http.Request, bidID string) {
	var body counterBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	by := core.OfferAuthor(body.By)
	if by != core.ByPoster && by != core.ByAgent {
		Error(w, http.StatusBadRequest, "by must be poster or agent")
		return
	}
	bid, err := s.engine.CounterOffer(r.Context(), bidID, body.PriceUSD, body.Message, by)
	s.record("counter_offer", err)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, bid)
}

func (s *Server) handleApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	bids, err := s.engine.PendingApprovals(r.Context())
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"pending":     bids,
		"total_count": len(bids),
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	txns, err := s.engine.ListTransactions(r.Context(), core.TxnFilter{
		JobID:  q.Get("job_id"),
		Type:   core.TxnType(q.Get("type")),
		Status: core.TxnStatus(q.Get("status")),
	})
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txns,
		"total_count":  len(txns),
	})
}

func (s *Server) handleReconciliations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cases := s.engine.Ledger().Reconciliations()
	if s.metrics != nil {
		s.metrics.SetReconciliations(len(cases))
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"reconciliations": cases,
		"total_count":     len(cases),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	JSON(w, http.StatusOK, map[string]interface{}{
		"events": s.engine.Events().Recent(limit),
	})
}

type suggestBody struct {
	Relevance     float64 `json:"relevance"`
	Accuracy      float64 `json:"accuracy"`
	Completeness  float64 `json:"completeness"`
	Clarity       float64 `json:"clarity"`
	Actionability float64 `json:"actionability"`
	Feedback      string  `json:"feedback"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body suggestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	suggestion := core.Suggest(body.Relevance, body.Accuracy, body.Completeness,
		body.Clarity, body.Actionability, body.Feedback)
	JSON(w, http.StatusOK, suggestion)
}
