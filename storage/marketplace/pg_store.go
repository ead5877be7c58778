package marketplace

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar-backend/core/marketplace"
)

// PGStore implements the engine's Store interface on PostgreSQL via pgx.
// Each record type gets its own repository; the schema is initialized on
// connect so a fresh database is usable immediately.
type PGStore struct {
	pool *pgxpool.Pool
	jobs *JobsRepository
	bids *BidsRepository
	txns *TransactionsRepository
}

// NewPGStore connects to the database, runs schema initialization and
// returns a ready store.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := NewSchemaManager(pool).Initialize(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	log.Printf("Connected to PostgreSQL marketplace store")
	return &PGStore{
		pool: pool,
		jobs: NewJobsRepository(pool),
		bids: NewBidsRepository(pool),
		txns: NewTransactionsRepository(pool),
	}, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) CreateJob(ctx context.Context, j marketplace.Job) error {
	return s.jobs.Upsert(ctx, j)
}

func (s *PGStore) GetJob(ctx context.Context, id string) (marketplace.Job, error) {
	return s.jobs.Get(ctx, id)
}

func (s *PGStore) UpdateJob(ctx context.Context, j marketplace.Job) error {
	if _, err := s.jobs.Get(ctx, j.JobID); err != nil {
		return err
	}
	return s.jobs.Upsert(ctx, j)
}

func (s *PGStore) ListJobs(ctx context.Context, f marketplace.JobFilter) ([]marketplace.Job, error) {
	return s.jobs.List(ctx, f)
}

func (s *PGStore) CreateBid(ctx context.Context, b marketplace.Bid) error {
	return s.bids.Upsert(ctx, b)
}

func (s *PGStore) GetBid(ctx context.Context, id string) (marketplace.Bid, error) {
	return s.bids.Get(ctx, id)
}

func (s *PGStore) UpdateBid(ctx context.Context, b marketplace.Bid) error {
	if _, err := s.bids.Get(ctx, b.BidID); err != nil {
		return err
	}
	return s.bids.Upsert(ctx, b)
}

func (s *PGStore) ListBids(ctx context.Context, f marketplace.BidFilter) ([]marketplace.Bid, error) {
	return s.bids.List(ctx, f)
}

func (s *PGStore) CreateTransaction(ctx context.Context, t marketplace.Transaction) error {
	return s.txns.Upsert(ctx, t)
}

func (s *PGStore) GetTransaction(ctx context.Context, id string) (marketplace.Transaction, error) {
	return s.txns.Get(ctx, id)
}

func (s *PGStore) UpdateTransaction(ctx context.Context, t marketplace.Transaction) error {
	if _, err := s.txns.Get(ctx, t.TxnID); err != nil {
		return err
	}
	return s.txns.Upsert(ctx, t)
}

func (s *PGStore) ListTransactions(ctx context.Context, f marketplace.TxnFilter) ([]marketplace.Transaction, error) {
	return s.txns.List(ctx, f)
}
