package marketplace

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar-backend/core/marketplace"
)

// JobsRepository handles job-related database operations.
type JobsRepository struct {
	pool *pgxpool.Pool
}

// NewJobsRepository creates a new jobs repository.
func NewJobsRepository(pool *pgxpool.Pool) *JobsRepository {
	return &JobsRepository{pool: pool}
}

const jobColumns = `job_id, poster_id, title, description, task_type, required_capabilities, budget_usd, poster_wallet, escrow_txn_id, status, bid_count, bid_deadline, deadline_minutes, execution_deadline, winning_bid_id, assigned_agent_id, result_ref, quality_score, created_at, assigned_at, completed_at`

// Get returns a job by ID.
func (r *JobsRepository) Get(ctx context.Context, id string) (marketplace.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM bazaar_jobs WHERE job_id=$1`, id)
	job, err := scanJobRow(row)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return marketplace.Job{}, marketplace.ErrJobNotFound
		}
		return marketplace.Job{}, err
	}
	return job, nil
}

// List returns jobs filtered by a JobFilter.
func (r *JobsRepository) List(ctx context.Context, f marketplace.JobFilter) ([]marketplace.Job, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+jobColumns+`
FROM bazaar_jobs
WHERE ($1 = '' OR status = $1)
AND ($2 = '' OR poster_id = $2)
AND ($3 = '' OR assigned_agent_id = $3)
ORDER BY created_at
`, string(f.Status), f.PosterID, f.AgentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []marketplace.Job
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			out = nil
		} else {
			out = out[f.Offset:]
		}
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, rows.Err()
}

// Upsert persists a job idempotently.
func (r *JobsRepository) Upsert(ctx context.Context, j marketplace.Job) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO bazaar_jobs (`+jobColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
ON CONFLICT (job_id) DO UPDATE SET
  status = EXCLUDED.status,
  bid_count = EXCLUDED.bid_count,
  bid_deadline = EXCLUDED.bid_deadline,
  execution_deadline = EXCLUDED.execution_deadline,
  winning_bid_id = EXCLUDED.winning_bid_id,
  assigned_agent_id = EXCLUDED.assigned_agent_id,
  result_ref = EXCLUDED.result_ref,
  quality_score = EXCLUDED.quality_score,
  assigned_at = EXCLUDED.assigned_at,
  completed_at = EXCLUDED.completed_at
`, j.JobID, j.PosterID, j.Title, j.Description, j.TaskType, j.RequiredCapabilities,
		j.BudgetUSD, j.PosterWallet, j.EscrowTxnID, string(j.Status), j.BidCount,
		j.BidDeadline, j.DeadlineMinutes, j.ExecutionDeadline, emptyToNull(j.WinningBidID),
		emptyToNull(j.AssignedAgentID), j.ResultRef, j.QualityScore, j.CreatedAt,
		j.AssignedAt, j.CompletedAt)
	return err
}

func emptyToNull(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanJobRow scans a job from a database row.
func scanJobRow(scanner interface {
	Scan(dest ...interface{}) error
}) (marketplace.Job, error) {
	var j marketplace.Job
	var status string
	var winningBid, assignedAgent, resultRef, taskType, description, posterWallet, escrowTxn sql.NullString
	var bidDeadline, execDeadline, assignedAt, completedAt sql.NullTime
	var deadlineMinutes sql.NullInt32
	var quality sql.NullFloat64
	if err := scanner.Scan(
		&j.JobID, &j.PosterID, &j.Title, &description, &taskType, &j.RequiredCapabilities,
		&j.BudgetUSD, &posterWallet, &escrowTxn, &status, &j.BidCount,
		&bidDeadline, &deadlineMinutes, &execDeadline, &winningBid, &assignedAgent,
		&resultRef, &quality, &j.CreatedAt, &assignedAt, &completedAt,
	); err != nil {
		return marketplace.Job{}, err
	}
	j.Status = marketplace.JobStatus(status)
	j.Description = description.String
	j.TaskType = taskType.String
	j.PosterWallet = posterWallet.String
	j.EscrowTxnID = escrowTxn.String
	j.WinningBidID = winningBid.String
	j.AssignedAgentID = assignedAgent.String
	j.ResultRef = resultRef.String
	if deadlineMinutes.Valid {
		j.DeadlineMinutes = int(deadlineMinutes.Int32)
	}
	if bidDeadline.Valid {
		t := bidDeadline.Time
		j.BidDeadline = &t
	}
	if execDeadline.Valid {
		t := execDeadline.Time
		j.ExecutionDeadline = &t
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		j.AssignedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	if quality.Valid {
		q := quality.Float64
		j.QualityScore = &q
	}
	return j, nil
}
