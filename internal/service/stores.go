package service

import (
	"context"
	"time"

	"github.com/taqo-app/taqo-backend/internal/model"
)

// SpotStore is the document-store surface the spot state machine needs.
// ConditionalUpdate is the only mutation primitive: it must evaluate
// pred and apply mutate atomically with respect to concurrent calls on
// the same spot, returning repository.ErrConflict when pred fails.
// Satisfied by repository.SpotRepo.
type SpotStore interface {
	Create(ctx context.Context, s *model.Spot) error
	Get(ctx context.Context, id string) (*model.Spot, error)
	ConditionalUpdate(ctx context.Context, id string, pred func(*model.Spot) bool, mutate func(*model.Spot)) error
	ListStaleReserved(ctx context.Context, cutoff time.Time) ([]*model.Spot, error)
	CountOpenBySeller(ctx context.Context, sellerID string) (int, error)
}

// TransactionStore is the document-store surface the settlement flow
// needs.  Update must apply mutate atomically against the current row.
// Satisfied by repository.TransactionRepo.
type TransactionStore interface {
	Create(ctx context.Context, t *model.Transaction) error
	Get(ctx context.Context, id string) (*model.Transaction, error)
	Update(ctx context.Context, id string, mutate func(*model.Transaction)) error
	ListRefundDue(ctx context.Context, cutoff time.Time) ([]*model.Transaction, error)
	ListPayoutDue(ctx context.Context, cutoff time.Time) ([]*model.Transaction, error)
}

// UserStore resolves user profiles for settlement and account deletion.
// Satisfied by repository.UserRepo.
type UserStore interface {
	Get(ctx context.Context, id string) (*model.User, error)
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
	Disable(ctx context.Context, id string) error
}

// Notifier is the fire-and-forget fan-out the state machines publish
// side effects through.  Implementations must never return: any
// delivery or broker failure is caught and logged internally so a
// notification can never fail or roll back the state transition that
// triggered it.  wait=true blocks until the broker confirmed the
// message, for callers that want ordering before responding.
type Notifier interface {
	EnqueuePush(ctx context.Context, userIDs []string, title, body string, data map[string]string, wait bool)
	EnqueueEmail(ctx context.Context, to, subject, body string, wait bool)
}
