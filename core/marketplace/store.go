package marketplace

import "context"

// Store is the persistence seam the engine writes through. Implementations
// live in storage/marketplace (memory and Postgres).
type Store interface {
	CreateJob(ctx context.Context, j Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	UpdateJob(ctx context.Context, j Job) error
	ListJobs(ctx context.Context, f JobFilter) ([]Job, error)

	CreateBid(ctx context.Context, b Bid) error
	GetBid(ctx context.Context, id string) (Bid, error)
	UpdateBid(ctx context.Context, b Bid) error
	ListBids(ctx context.Context, f BidFilter) ([]Bid, error)

	CreateTransaction(ctx context.Context, t Transaction) error
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	UpdateTransaction(ctx context.Context, t Transaction) error
	ListTransactions(ctx context.Context, f TxnFilter) ([]Transaction, error)

	Close()
}
