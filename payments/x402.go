package payments

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bazaar-backend/core/marketplace"
)

// X402Client moves USDC over an x402 facilitator's settle endpoints. In
// simulated mode no HTTP calls are made and a synthetic transfer hash is
// returned, which is what local development and the test suite run against.
type X402Client struct {
	baseURL  string
	simulate bool
	http     *http.Client
}

// NewX402Client builds a rail client. An empty baseURL forces simulated
// mode regardless of the simulate flag.
func NewX402Client(baseURL string, simulate bool) *X402Client {
	if baseURL == "" {
		simulate = true
	}
	return &X402Client{
		baseURL:  baseURL,
		simulate: simulate,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Collect pulls funds from the payer wallet into the marketplace wallet.
func (c *X402Client) Collect(ctx context.Context, req marketplace.RailRequest) (marketplace.RailReceipt, error) {
	return c.settle(ctx, "collect", req)
}

// Pay disburses funds from the marketplace wallet to the payee.
func (c *X402Client) Pay(ctx context.Context, req marketplace.RailRequest) (marketplace.RailReceipt, error) {
	return c.settle(ctx, "pay", req)
}

type settleRequest struct {
	JobID          string  `json:"job_id"`
	AmountUSD      float64 `json:"amount_usd"`
	FromWallet     string  `json:"from_wallet"`
	ToWallet       string  `json:"to_wallet"`
	Memo           string  `json:"memo,omitempty"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type settleResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

func (c *X402Client) settle(ctx context.Context, op string, req marketplace.RailRequest) (marketplace.RailReceipt, error) {
	if req.AmountUSD <= 0 {
		return marketplace.RailReceipt{}, fmt.Errorf("%s: non-positive amount %.6f", op, req.AmountUSD)
	}
	if c.simulate {
		return marketplace.RailReceipt{TxnHash: simulatedHash()}, nil
	}

	body, err := json.Marshal(settleRequest{
		JobID:          req.JobID,
		AmountUSD:      req.AmountUSD,
		FromWallet:     req.FromWallet,
		ToWallet:       req.ToWallet,
		Memo:           req.Memo,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return marketplace.RailReceipt{}, fmt.Errorf("%s: encode request: %w", op, err)
	}

	url := fmt.Sprintf("%s/settle/%s", c.baseURL, op)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return marketplace.RailReceipt{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return marketplace.RailReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return marketplace.RailReceipt{}, fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(snippet))
	}

	var out settleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return marketplace.RailReceipt{}, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if out.Error != "" {
		return marketplace.RailReceipt{}, fmt.Errorf("%s: rail rejected: %s", op, out.Error)
	}
	if out.TxHash == "" {
		return marketplace.RailReceipt{}, fmt.Errorf("%s: rail returned empty tx hash", op)
	}
	return marketplace.RailReceipt{TxnHash: out.TxHash}, nil
}

func simulatedHash() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}
