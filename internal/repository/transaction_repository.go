package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/taqo-app/taqo-backend/internal/model"
)

// TransactionRepo provides data access for transactions.  Like spots,
// every mutation runs as an atomic read-mutate-write on a single row;
// there is no primitive spanning a transaction and its spot, which is
// why the booking flow is an explicit sequence of single-document steps
// with compensations.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo returns a new TransactionRepo bound to the given
// database.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const txnColumns = `id, spot_id, queue_name, seller_id, buyer_id, status, payout_status,
                    seller_price, buyer_price, payment_provider, payment_intent_id, capture_id,
                    created_at, booked_at`

// Create inserts a new transaction with a generated id, writing the id
// and creation time back onto the model.
func (r *TransactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	const q = `INSERT INTO transactions (id, spot_id, queue_name, seller_id, buyer_id, status, payout_status,
                                         seller_price, buyer_price, payment_provider, payment_intent_id, capture_id,
                                         created_at, booked_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		t.ID, t.SpotID, t.QueueName, t.SellerID, t.BuyerID, t.Status, t.PayoutStatus,
		t.SellerPrice, t.BuyerPrice, t.PaymentProvider, t.PaymentIntentID, t.CaptureID,
		t.CreatedAt, nullTime(t.BookedAt),
	)
	return err
}

// Get returns a single transaction by id, or ErrNotFound.
func (r *TransactionRepo) Get(ctx context.Context, id string) (*model.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// Update applies mutate to the current row state atomically.  The row
// is locked for the duration so concurrent updates (request flow vs
// webhook vs sweep) serialize instead of clobbering each other.
func (r *TransactionRepo) Update(ctx context.Context, id string, mutate func(*model.Transaction)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	row := tx.QueryRowContext(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id = ? FOR UPDATE`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return err
	}
	mutate(t)
	const q = `UPDATE transactions
               SET status = ?, payout_status = ?, payment_intent_id = ?, capture_id = ?, booked_at = ?
               WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q,
		t.Status, t.PayoutStatus, t.PaymentIntentID, t.CaptureID, nullTime(t.BookedAt), t.ID,
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ListRefundDue returns transactions marked to_refund whose booked_at
// is at or before the cutoff.  The grace period lets an in-flight
// booking finish before the refund sweep touches its transaction.
func (r *TransactionRepo) ListRefundDue(ctx context.Context, cutoff time.Time) ([]*model.Transaction, error) {
	const q = `SELECT ` + txnColumns + ` FROM transactions WHERE status = ? AND booked_at <= ?`
	return r.list(ctx, q, model.TxnToRefund, cutoff.UTC())
}

// ListPayoutDue returns transactions with a pending payout whose
// booked_at is at or before the cutoff.
func (r *TransactionRepo) ListPayoutDue(ctx context.Context, cutoff time.Time) ([]*model.Transaction, error) {
	const q = `SELECT ` + txnColumns + ` FROM transactions WHERE payout_status = ? AND booked_at <= ?`
	return r.list(ctx, q, model.PayoutPending, cutoff.UTC())
}

func (r *TransactionRepo) list(ctx context.Context, query string, args ...interface{}) ([]*model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	var bookedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.SpotID, &t.QueueName, &t.SellerID, &t.BuyerID, &t.Status, &t.PayoutStatus,
		&t.SellerPrice, &t.BuyerPrice, &t.PaymentProvider, &t.PaymentIntentID, &t.CaptureID,
		&t.CreatedAt, &bookedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if bookedAt.Valid {
		at := bookedAt.Time.UTC()
		t.BookedAt = &at
	}
	return &t, nil
}
