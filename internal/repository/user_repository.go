package repository

import (
	"context"
	"database/sql"

	"github.com/taqo-app/taqo-backend/internal/model"
)

// UserRepo provides read access to marketplace user profiles plus the
// narrow writes the backend performs on them (caching a Stripe customer
// id, disabling a deleted account).  Profile creation and credential
// management belong to the identity provider.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a new UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Get returns a single user by id, or ErrNotFound.
func (r *UserRepo) Get(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT id, email, paypal_email, stripe_customer_id, messaging_token, disabled, created_at
               FROM users WHERE id = ?`
	var u model.User
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID, &u.Email, &u.PayPalEmail, &u.StripeCustomerID, &u.MessagingToken, &u.Disabled, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EmailAddress resolves a user id to the stored email address.
func (r *UserRepo) EmailAddress(ctx context.Context, id string) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, id).Scan(&email)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return email, err
}

// MessagingTokens collects the registered device tokens for the given
// users.  Users without a token are silently skipped; pushes to them
// are simply dropped.
func (r *UserRepo) MessagingTokens(ctx context.Context, userIDs []string) ([]string, error) {
	tokens := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		var token string
		err := r.db.QueryRowContext(ctx, `SELECT messaging_token FROM users WHERE id = ?`, id).Scan(&token)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

// SetStripeCustomerID caches the Stripe customer handle on the user so
// the next payment sheet skips the customer-creation call.
func (r *UserRepo) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET stripe_customer_id = ? WHERE id = ?`, customerID, id)
	return err
}

// Disable marks the account as deleted.  The row is kept so settled
// transactions remain resolvable.
func (r *UserRepo) Disable(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET disabled = TRUE WHERE id = ?`, id)
	return err
}
