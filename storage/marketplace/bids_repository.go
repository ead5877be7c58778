package marketplace

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar-backend/core/marketplace"
)

// BidsRepository handles bid-related database operations.
type BidsRepository struct {
	pool *pgxpool.Pool
}

// NewBidsRepository creates a new bids repository.
func NewBidsRepository(pool *pgxpool.Pool) *BidsRepository {
	return &BidsRepository{pool: pool}
}

const bidColumns = `bid_id, job_id, agent_id, agent_wallet, price_usd, estimated_time_seconds, confidence, approach, counter_offers, final_price_usd, requires_approval, approval_reason, approved_by, approved_at, status, created_at, accepted_at`

// Get returns a bid by ID.
func (r *BidsRepository) Get(ctx context.Context, id string) (marketplace.Bid, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM bazaar_bids WHERE bid_id=$1`, id)
	bid, err := scanBidRow(row)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return marketplace.Bid{}, marketplace.ErrBidNotFound
		}
		return marketplace.Bid{}, err
	}
	return bid, nil
}

// List returns bids filtered by a BidFilter.
func (r *BidsRepository) List(ctx context.Context, f marketplace.BidFilter) ([]marketplace.Bid, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+bidColumns+`
FROM bazaar_bids
WHERE ($1 = '' OR job_id = $1)
AND ($2 = '' OR agent_id = $2)
AND ($3 = '' OR status = $3)
ORDER BY created_at
`, f.JobID, f.AgentID, string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []marketplace.Bid
	for rows.Next() {
		bid, err := scanBidRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bid)
	}
	return out, rows.Err()
}

// Upsert persists a bid idempotently. Counter-offer history is stored as
// JSONB; the column is replaced wholesale since the history is append-only.
func (r *BidsRepository) Upsert(ctx context.Context, b marketplace.Bid) error {
	offersJSON, _ := json.Marshal(b.CounterOffers)
	_, err := r.pool.Exec(ctx, `
INSERT INTO bazaar_bids (`+bidColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (bid_id) DO UPDATE SET
  counter_offers = EXCLUDED.counter_offers,
  final_price_usd = EXCLUDED.final_price_usd,
  requires_approval = EXCLUDED.requires_approval,
  approval_reason = EXCLUDED.approval_reason,
  approved_by = EXCLUDED.approved_by,
  approved_at = EXCLUDED.approved_at,
  status = EXCLUDED.status,
  accepted_at = EXCLUDED.accepted_at
`, b.BidID, b.JobID, b.AgentID, b.AgentWallet, b.PriceUSD, b.EstimatedTimeSeconds,
		b.Confidence, b.Approach, string(offersJSON), b.FinalPriceUSD, b.RequiresApproval,
		b.ApprovalReason, b.ApprovedBy, b.ApprovedAt, string(b.Status), b.CreatedAt, b.AcceptedAt)
	return err
}

// scanBidRow scans a bid from a database row.
func scanBidRow(scanner interface {
	Scan(dest ...interface{}) error
}) (marketplace.Bid, error) {
	var b marketplace.Bid
	var status string
	var offersJSON []byte
	var agentWallet, approach, approvalReason, approvedBy sql.NullString
	var estSeconds sql.NullInt32
	var confidence, finalPrice sql.NullFloat64
	var approvedAt, acceptedAt sql.NullTime
	if err := scanner.Scan(
		&b.BidID, &b.JobID, &b.AgentID, &agentWallet, &b.PriceUSD, &estSeconds,
		&confidence, &approach, &offersJSON, &finalPrice, &b.RequiresApproval,
		&approvalReason, &approvedBy, &approvedAt, &status, &b.CreatedAt, &acceptedAt,
	); err != nil {
		return marketplace.Bid{}, err
	}
	b.Status = marketplace.BidStatus(status)
	b.AgentWallet = agentWallet.String
	b.Approach = approach.String
	b.ApprovalReason = approvalReason.String
	b.ApprovedBy = approvedBy.String
	if estSeconds.Valid {
		b.EstimatedTimeSeconds = int(estSeconds.Int32)
	}
	if confidence.Valid {
		b.Confidence = confidence.Float64
	}
	if finalPrice.Valid {
		p := finalPrice.Float64
		b.FinalPriceUSD = &p
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		b.ApprovedAt = &t
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		b.AcceptedAt = &t
	}
	if len(offersJSON) > 0 {
		_ = json.Unmarshal(offersJSON, &b.CounterOffers)
	}
	return b, nil
}
