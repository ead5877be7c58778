package marketplace

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaManager handles database schema migrations.
type SchemaManager struct {
	pool *pgxpool.Pool
}

// NewSchemaManager creates a new schema manager.
func NewSchemaManager(pool *pgxpool.Pool) *SchemaManager {
	return &SchemaManager{pool: pool}
}

// Initialize creates the database schema.
func (m *SchemaManager) Initialize(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, m.getSchema())
	return err
}

// getSchema returns the complete database schema.
func (m *SchemaManager) getSchema() string {
	return `
-- Jobs table
CREATE TABLE IF NOT EXISTS bazaar_jobs (
  job_id TEXT PRIMARY KEY,
  poster_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  task_type TEXT,
  required_capabilities TEXT[],
  budget_usd DOUBLE PRECISION NOT NULL,
  poster_wallet TEXT,
  escrow_txn_id TEXT,
  status TEXT NOT NULL,
  bid_count INT NOT NULL DEFAULT 0,
  bid_deadline TIMESTAMPTZ,
  deadline_minutes INT,
  execution_deadline TIMESTAMPTZ,
  winning_bid_id TEXT,
  assigned_agent_id TEXT,
  result_ref TEXT,
  quality_score DOUBLE PRECISION,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  assigned_at TIMESTAMPTZ,
  completed_at TIMESTAMPTZ
);

-- Bids table
CREATE TABLE IF NOT EXISTS bazaar_bids (
  bid_id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  agent_wallet TEXT,
  price_usd DOUBLE PRECISION NOT NULL,
  estimated_time_seconds INT,
  confidence DOUBLE PRECISION,
  approach TEXT,
  counter_offers JSONB,
  final_price_usd DOUBLE PRECISION,
  requires_approval BOOLEAN NOT NULL DEFAULT false,
  approval_reason TEXT,
  approved_by TEXT,
  approved_at TIMESTAMPTZ,
  status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  accepted_at TIMESTAMPTZ
);

-- Transactions table
CREATE TABLE IF NOT EXISTS bazaar_transactions (
  txn_id TEXT PRIMARY KEY,
  txn_type TEXT NOT NULL,
  job_id TEXT NOT NULL,
  bid_id TEXT,
  payer_wallet TEXT,
  payee_wallet TEXT,
  amount_usd DOUBLE PRECISION NOT NULL,
  external_ref TEXT,
  status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  confirmed_at TIMESTAMPTZ
);

-- Indexes for status reads
CREATE INDEX IF NOT EXISTS idx_bazaar_jobs_status ON bazaar_jobs(status);
CREATE INDEX IF NOT EXISTS idx_bazaar_bids_job_status ON bazaar_bids(job_id, status);
CREATE INDEX IF NOT EXISTS idx_bazaar_txns_job ON bazaar_transactions(job_id);

-- At most one live escrow per job
CREATE UNIQUE INDEX IF NOT EXISTS uq_bazaar_escrow_per_job
  ON bazaar_transactions(job_id)
  WHERE txn_type = 'escrow' AND status NOT IN ('failed');

-- At most one winning bid per job
CREATE UNIQUE INDEX IF NOT EXISTS uq_bazaar_winner_per_job
  ON bazaar_bids(job_id)
  WHERE status IN ('accepted', 'counter_accepted');
`
}
