package marketplace

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar-backend/core/marketplace"
)

// TransactionsRepository handles ledger-related database operations.
type TransactionsRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionsRepository creates a new transactions repository.
func NewTransactionsRepository(pool *pgxpool.Pool) *TransactionsRepository {
	return &TransactionsRepository{pool: pool}
}

const txnColumns = `txn_id, txn_type, job_id, bid_id, payer_wallet, payee_wallet, amount_usd, external_ref, status, created_at, confirmed_at`

// Get returns a ledger record by ID.
func (r *TransactionsRepository) Get(ctx context.Context, id string) (marketplace.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+txnColumns+` FROM bazaar_transactions WHERE txn_id=$1`, id)
	txn, err := scanTxnRow(row)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return marketplace.Transaction{}, marketplace.ErrTxnNotFound
		}
		return marketplace.Transaction{}, err
	}
	return txn, nil
}

// List returns ledger records filtered by a TxnFilter.
func (r *TransactionsRepository) List(ctx context.Context, f marketplace.TxnFilter) ([]marketplace.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+txnColumns+`
FROM bazaar_transactions
WHERE ($1 = '' OR job_id = $1)
AND ($2 = '' OR txn_type = $2)
AND ($3 = '' OR status = $3)
ORDER BY created_at
`, f.JobID, string(f.Type), string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []marketplace.Transaction
	for rows.Next() {
		txn, err := scanTxnRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// Upsert persists a ledger record. Terminal records are guarded by the
// WHERE clause so a released or refunded row is never rewritten.
func (r *TransactionsRepository) Upsert(ctx context.Context, t marketplace.Transaction) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO bazaar_transactions (`+txnColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (txn_id) DO UPDATE SET
  external_ref = EXCLUDED.external_ref,
  status = EXCLUDED.status,
  confirmed_at = EXCLUDED.confirmed_at
WHERE bazaar_transactions.status NOT IN ('released', 'refunded', 'failed')
`, t.TxnID, string(t.Type), t.JobID, emptyToNull(t.BidID), t.PayerWallet,
		emptyToNull(t.PayeeWallet), t.AmountUSD, emptyToNull(t.ExternalRef),
		string(t.Status), t.CreatedAt, t.ConfirmedAt)
	return err
}

// scanTxnRow scans a ledger record from a database row.
func scanTxnRow(scanner interface {
	Scan(dest ...interface{}) error
}) (marketplace.Transaction, error) {
	var t marketplace.Transaction
	var txnType, status string
	var bidID, payeeWallet, externalRef sql.NullString
	var confirmedAt sql.NullTime
	if err := scanner.Scan(
		&t.TxnID, &txnType, &t.JobID, &bidID, &t.PayerWallet, &payeeWallet,
		&t.AmountUSD, &externalRef, &status, &t.CreatedAt, &confirmedAt,
	); err != nil {
		return marketplace.Transaction{}, err
	}
	t.Type = marketplace.TxnType(txnType)
	t.Status = marketplace.TxnStatus(status)
	t.BidID = bidID.String
	t.PayeeWallet = payeeWallet.String
	t.ExternalRef = externalRef.String
	if confirmedAt.Valid {
		at := confirmedAt.Time
		t.ConfirmedAt = &at
	}
	return t, nil
}
