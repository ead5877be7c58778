package marketplace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	core "bazaar-backend/core/marketplace"
	"bazaar-backend/middleware"
	"bazaar-backend/payments"
	storage "bazaar-backend/storage/marketplace"
)

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	engine := core.NewJobManager(storage.NewMemoryStore(), payments.NewX402Client("", true), core.Config{
		MarketplaceWallet:      "escrow-wallet",
		RailAttempts:           1,
		RailBackoff:            time.Millisecond,
		DefaultDeadlineMinutes: 60,
	}, core.NewEventLog(0))

	mux := http.NewServeMux()
	NewServer(engine, nil).RegisterRoutes(mux, middleware.APIAuth(apiKey))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func postTestJob(t *testing.T, srv *httptest.Server, budget float64) core.Job {
	t.Helper()
	var job core.Job
	status := doJSON(t, http.MethodPost, srv.URL+"/api/marketplace/jobs", core.JobSpec{
		PosterID:             "poster-1",
		Title:                "summarize this paper",
		RequiredCapabilities: []string{"research"},
		BudgetUSD:            budget,
		PosterWallet:         "poster-wallet",
	}, &job)
	if status != http.StatusCreated {
		t.Fatalf("post job: status %d", status)
	}
	return job
}

func TestJobLifecycleHTTP(t *testing.T) {
	srv := newTestServer(t, "")
	job := postTestJob(t, srv, 0.15)
	base := srv.URL + "/api/marketplace"

	if status := doJSON(t, http.MethodPost, fmt.Sprintf("%s/jobs/%s/open", base, job.JobID), nil, nil); status != http.StatusOK {
		t.Fatalf("open: status %d", status)
	}

	var bid core.Bid
	status := doJSON(t, http.MethodPost, fmt.Sprintf("%s/jobs/%s/bids", base, job.JobID), map[string]interface{}{
		"agent_id":     "agent-1",
		"price_usd":    0.12,
		"agent_wallet": "agent-wallet",
	}, &bid)
	if status != http.StatusCreated {
		t.Fatalf("bid: status %d", status)
	}

	var countered core.Bid
	status = doJSON(t, http.MethodPost, fmt.Sprintf("%s/bids/%s/counter", base, bid.BidID), map[string]interface{}{
		"price_usd": 0.10,
		"by":        "poster",
	}, &countered)
	if status != http.StatusOK || countered.CurrentPriceUSD() != 0.10 {
		t.Fatalf("counter: status %d price %.2f", status, countered.CurrentPriceUSD())
	}

	var assigned core.Job
	if status := doJSON(t, http.MethodPost, fmt.Sprintf("%s/bids/%s/accept", base, bid.BidID), nil, &assigned); status != http.StatusOK {
		t.Fatalf("accept: status %d", status)
	}
	if assigned.Status != core.JobAssigned {
		t.Fatalf("expected assigned, got %s", assigned.Status)
	}

	if status := doJSON(t, http.MethodPost, fmt.Sprintf("%s/jobs/%s/execution", base, job.JobID), nil, nil); status != http.StatusOK {
		t.Fatalf("execution: status %d", status)
	}
	if status := doJSON(t, http.MethodPost, fmt.Sprintf("%s/jobs/%s/result", base, job.JobID), map[string]string{"result_ref": "ipfs://result"}, nil); status != http.StatusOK {
		t.Fatalf("result: status %d", status)
	}

	var completed core.Job
	status = doJSON(t, http.MethodPost, fmt.Sprintf("%s/jobs/%s/review", base, job.JobID), map[string]interface{}{
		"decision": "accept",
		"rating":   0.9,
	}, &completed)
	if status != http.StatusOK || completed.Status != core.JobCompleted {
		t.Fatalf("review: status %d job %s", status, completed.Status)
	}

	var ledger struct {
		Transactions []core.Transaction `json:"transactions"`
		RemainingUSD float64            `json:"remaining_usd"`
	}
	if status := doJSON(t, http.MethodGet, fmt.Sprintf("%s/jobs/%s/transactions", base, job.JobID), nil, &ledger); status != http.StatusOK {
		t.Fatalf("transactions: status %d", status)
	}
	if len(ledger.Transactions) != 2 {
		t.Fatalf("expected escrow and release records, got %d", len(ledger.Transactions))
	}
	if ledger.RemainingUSD != 0 {
		t.Fatalf("expected zero remaining, got %.4f", ledger.RemainingUSD)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, "secret")

	t.Run("missing key is unauthorized", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/marketplace/jobs")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("wrong key is forbidden", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/marketplace/jobs", nil)
		req.Header.Set("X-API-Key", "wrong")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("matching key passes", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/marketplace/jobs", nil)
		req.Header.Set("X-API-Key", "secret")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("bearer token works as a fallback", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/marketplace/jobs", nil)
		req.Header.Set("Authorization", "Bearer secret")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("health needs no key", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	})
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, "")
	base := srv.URL + "/api/marketplace"

	t.Run("unknown job is 404", func(t *testing.T) {
		if status := doJSON(t, http.MethodGet, base+"/jobs/job_missing", nil, nil); status != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", status)
		}
	})

	t.Run("invalid spec is 400", func(t *testing.T) {
		status := doJSON(t, http.MethodPost, base+"/jobs", core.JobSpec{Title: "no budget"}, nil)
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})

	t.Run("invalid transition is 409", func(t *testing.T) {
		job := postTestJob(t, srv, 1)
		status := doJSON(t, http.MethodPost, fmt.Sprintf("%s/jobs/%s/review", base, job.JobID), map[string]interface{}{
			"decision": "accept",
			"rating":   0.9,
		}, nil)
		if status != http.StatusConflict {
			t.Fatalf("expected 409, got %d", status)
		}
	})

	t.Run("bad counter author is 400", func(t *testing.T) {
		job := postTestJob(t, srv, 1)
		var bid core.Bid
		doJSON(t, http.MethodPost, fmt.Sprintf("%s/jobs/%s/bids", base, job.JobID), map[string]interface{}{
			"agent_id": "agent-1", "price_usd": 0.5,
		}, &bid)
		status := doJSON(t, http.MethodPost, fmt.Sprintf("%s/bids/%s/counter", base, bid.BidID), map[string]interface{}{
			"price_usd": 0.4, "by": "referee",
		}, nil)
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})
}

func TestApprovalsHTTP(t *testing.T) {
	srv := newTestServer(t, "")
	base := srv.URL + "/api/marketplace"
	job := postTestJob(t, srv, 20.00)

	var bid core.Bid
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/jobs/%s/bids", base, job.JobID), map[string]interface{}{
		"agent_id": "agent-1", "price_usd": 15.00, "agent_wallet": "agent-wallet",
	}, &bid)

	var gated core.Job
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/bids/%s/accept", base, bid.BidID), nil, &gated)
	if gated.Status != core.JobAwaitingApproval {
		t.Fatalf("expected awaiting_approval, got %s", gated.Status)
	}

	var pending struct {
		Pending    []core.Bid `json:"pending"`
		TotalCount int        `json:"total_count"`
	}
	if status := doJSON(t, http.MethodGet, base+"/approvals", nil, &pending); status != http.StatusOK {
		t.Fatalf("approvals: status %d", status)
	}
	if pending.TotalCount != 1 || pending.Pending[0].BidID != bid.BidID {
		t.Fatalf("unexpected pending approvals: %+v", pending)
	}

	var approved core.Job
	status := doJSON(t, http.MethodPost, fmt.Sprintf("%s/bids/%s/approve", base, bid.BidID), map[string]string{
		"approver_id": "human-1",
	}, &approved)
	if status != http.StatusOK || approved.Status != core.JobAssigned {
		t.Fatalf("approve: status %d job %s", status, approved.Status)
	}
}

func TestFundingQRHTTP(t *testing.T) {
	srv := newTestServer(t, "")
	job := postTestJob(t, srv, 5.00)

	resp, err := http.Get(fmt.Sprintf("%s/api/marketplace/jobs/%s/funding-qr", srv.URL, job.JobID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %s", ct)
	}
}

func TestQualitySuggestHTTP(t *testing.T) {
	srv := newTestServer(t, "")

	var suggestion core.QualitySuggestion
	status := doJSON(t, http.MethodPost, srv.URL+"/api/marketplace/quality/suggest", map[string]interface{}{
		"relevance": 0.9, "accuracy": 0.8, "completeness": 0.9, "clarity": 0.8, "actionability": 0.9,
	}, &suggestion)
	if status != http.StatusOK {
		t.Fatalf("suggest: status %d", status)
	}
	if suggestion.Recommendation != core.DecisionAccept {
		t.Fatalf("expected accept recommendation, got %s", suggestion.Recommendation)
	}
}
