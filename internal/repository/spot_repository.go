package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taqo-app/taqo-backend/internal/model"
)

// SpotRepo provides data access for spots.  All mutation goes through
// ConditionalUpdate, which serializes concurrent writers on the same
// row: the row is read under FOR UPDATE inside a transaction, the
// caller's predicate is evaluated against the in-memory copy and the
// mutation is only written back when the predicate holds.  This gives
// per-document read-check-write atomicity; there is deliberately no
// primitive spanning two rows.  All timestamps are stored in UTC.
type SpotRepo struct {
	db *sql.DB
}

// NewSpotRepo returns a new SpotRepo bound to the given database.
func NewSpotRepo(db *sql.DB) *SpotRepo { return &SpotRepo{db: db} }

// DB exposes the underlying handle so callers can share it with other
// repositories.
func (r *SpotRepo) DB() *sql.DB { return r.db }

const spotColumns = `id, queue_name, seller_id, status, progress, seller_price, buyer_price,
                     reserved_at, interested_buyer_ids, issue_reporter_ids, created_at, updated_at`

// Create inserts a new spot with a generated id.  The id is written
// back onto the provided model.  New spots start in whatever status the
// caller set (normally available).
func (r *SpotRepo) Create(ctx context.Context, s *model.Spot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	interested, err := marshalIDs(s.InterestedBuyerIDs)
	if err != nil {
		return err
	}
	reporters, err := marshalIDs(s.IssueReporterIDs)
	if err != nil {
		return err
	}
	const q = `INSERT INTO spots (id, queue_name, seller_id, status, progress, seller_price, buyer_price,
                                  reserved_at, interested_buyer_ids, issue_reporter_ids)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.QueueName, s.SellerID, s.Status, s.Progress, s.SellerPrice, s.BuyerPrice,
		nullTime(s.ReservedAt), interested, reporters,
	)
	return err
}

// Get returns a single spot by id, or ErrNotFound.
func (r *SpotRepo) Get(ctx context.Context, id string) (*model.Spot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+spotColumns+` FROM spots WHERE id = ?`, id)
	return scanSpot(row)
}

// ConditionalUpdate reads the spot inside a transaction, evaluates pred
// against the current state and, when it holds, applies mutate and
// writes the full mutable column set back before committing.  When the
// predicate fails the transaction is rolled back and ErrConflict is
// returned without any change.  Concurrent ConditionalUpdate calls on
// the same spot serialize on the row lock, so exactly one of two
// competing writers observes the pre-state.
func (r *SpotRepo) ConditionalUpdate(ctx context.Context, id string, pred func(*model.Spot) bool, mutate func(*model.Spot)) error {
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
	row := tx.QueryRowContext(ctx, `SELECT `+spotColumns+` FROM spots WHERE id = ? FOR UPDATE`, id)
	spot, err := scanSpot(row)
	if err != nil {
		return err
	}
	if !pred(spot) {
		return ErrConflict
	}
	mutate(spot)
	interested, err := marshalIDs(spot.InterestedBuyerIDs)
	if err != nil {
		return err
	}
	reporters, err := marshalIDs(spot.IssueReporterIDs)
	if err != nil {
		return err
	}
	const q = `UPDATE spots
               SET status = ?, progress = ?, seller_price = ?, buyer_price = ?, reserved_at = ?,
                   interested_buyer_ids = ?, issue_reporter_ids = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q,
		spot.Status, spot.Progress, spot.SellerPrice, spot.BuyerPrice, nullTime(spot.ReservedAt),
		interested, reporters, spot.ID,
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ListStaleReserved returns all spots still reserved at or before the
// given cutoff.  The stale reservation sweep releases them back to
// available.
func (r *SpotRepo) ListStaleReserved(ctx context.Context, cutoff time.Time) ([]*model.Spot, error) {
	const q = `SELECT ` + spotColumns + ` FROM spots WHERE status = ? AND reserved_at <= ?`
	rows, err := r.db.QueryContext(ctx, q, model.SpotReserved, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var spots []*model.Spot
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		spots = append(spots, s)
	}
	return spots, rows.Err()
}

// CountOpenBySeller counts a seller's spots that are still available or
// reserved.  Used to block account deletion while offers are live.
func (r *SpotRepo) CountOpenBySeller(ctx context.Context, sellerID string) (int, error) {
	const q = `SELECT COUNT(*) FROM spots WHERE seller_id = ? AND status IN (?, ?)`
	var n int
	err := r.db.QueryRowContext(ctx, q, sellerID, model.SpotAvailable, model.SpotReserved).Scan(&n)
	return n, err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSpot(row rowScanner) (*model.Spot, error) {
	var s model.Spot
	var reservedAt sql.NullTime
	var interested, reporters []byte
	err := row.Scan(
		&s.ID, &s.QueueName, &s.SellerID, &s.Status, &s.Progress, &s.SellerPrice, &s.BuyerPrice,
		&reservedAt, &interested, &reporters, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if reservedAt.Valid {
		t := reservedAt.Time.UTC()
		s.ReservedAt = &t
	}
	if s.InterestedBuyerIDs, err = unmarshalIDs(interested); err != nil {
		return nil, err
	}
	if s.IssueReporterIDs, err = unmarshalIDs(reporters); err != nil {
		return nil, err
	}
	return &s, nil
}

// marshalIDs stores an id set as a JSON array.  nil and empty slices
// both encode as [] so the column never holds NULL.
func marshalIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

func unmarshalIDs(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// nullTime converts an optional timestamp into a driver-friendly value
// formatted in UTC.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
