package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taqo-app/taqo-backend/internal/gateway"
	"github.com/taqo-app/taqo-backend/internal/model"
	"github.com/taqo-app/taqo-backend/internal/repository"
)

// fakeSpotStore is an in-memory SpotStore with the same conditional
// update contract as the SQL implementation: pred and mutate run under
// a lock, so concurrent updates on one spot serialize.
type fakeSpotStore struct {
	mu     sync.Mutex
	spots  map[string]*model.Spot
	nextID int

	// afterUpdate, when set, runs under the lock after each successful
	// conditional update.  Tests use it to interleave a competing write
	// between two steps of a flow.
	afterUpdate func(s *model.Spot)
}

func newFakeSpotStore() *fakeSpotStore {
	return &fakeSpotStore{spots: make(map[string]*model.Spot)}
}

func (f *fakeSpotStore) Create(_ context.Context, s *model.Spot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		f.nextID++
		s.ID = fmt.Sprintf("spot-%d", f.nextID)
	}
	s.CreatedAt = time.Now().UTC()
	f.spots[s.ID] = cloneSpot(s)
	return nil
}

func (f *fakeSpotStore) Get(_ context.Context, id string) (*model.Spot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.spots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSpot(s), nil
}

func (f *fakeSpotStore) ConditionalUpdate(_ context.Context, id string, pred func(*model.Spot) bool, mutate func(*model.Spot)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.spots[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !pred(s) {
		return repository.ErrConflict
	}
	mutate(s)
	s.UpdatedAt = time.Now().UTC()
	if f.afterUpdate != nil {
		f.afterUpdate(s)
	}
	return nil
}

func (f *fakeSpotStore) ListStaleReserved(_ context.Context, cutoff time.Time) ([]*model.Spot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Spot
	for _, s := range f.spots {
		if s.Status == model.SpotReserved && s.ReservedAt != nil && !s.ReservedAt.After(cutoff) {
			out = append(out, cloneSpot(s))
		}
	}
	return out, nil
}

func (f *fakeSpotStore) CountOpenBySeller(_ context.Context, sellerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.spots {
		if s.SellerID == sellerID && (s.Status == model.SpotAvailable || s.Status == model.SpotReserved) {
			n++
		}
	}
	return n, nil
}

func cloneSpot(s *model.Spot) *model.Spot {
	c := *s
	if s.ReservedAt != nil {
		t := *s.ReservedAt
		c.ReservedAt = &t
	}
	c.InterestedBuyerIDs = append([]string(nil), s.InterestedBuyerIDs...)
	c.IssueReporterIDs = append([]string(nil), s.IssueReporterIDs...)
	return &c
}

// fakeTxnStore is an in-memory TransactionStore.
type fakeTxnStore struct {
	mu     sync.Mutex
	txns   map[string]*model.Transaction
	nextID int
}

func newFakeTxnStore() *fakeTxnStore {
	return &fakeTxnStore{txns: make(map[string]*model.Transaction)}
}

func (f *fakeTxnStore) Create(_ context.Context, t *model.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		f.nextID++
		t.ID = fmt.Sprintf("txn-%d", f.nextID)
	}
	t.CreatedAt = time.Now().UTC()
	f.txns[t.ID] = cloneTxn(t)
	return nil
}

func (f *fakeTxnStore) Get(_ context.Context, id string) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTxn(t), nil
}

func (f *fakeTxnStore) Update(_ context.Context, id string, mutate func(*model.Transaction)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txns[id]
	if !ok {
		return repository.ErrNotFound
	}
	mutate(t)
	return nil
}

func (f *fakeTxnStore) ListRefundDue(_ context.Context, cutoff time.Time) ([]*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Transaction
	for _, t := range f.txns {
		if t.Status == model.TxnToRefund && t.BookedAt != nil && !t.BookedAt.After(cutoff) {
			out = append(out, cloneTxn(t))
		}
	}
	return out, nil
}

func (f *fakeTxnStore) ListPayoutDue(_ context.Context, cutoff time.Time) ([]*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Transaction
	for _, t := range f.txns {
		if t.PayoutStatus == model.PayoutPending && t.BookedAt != nil && !t.BookedAt.After(cutoff) {
			out = append(out, cloneTxn(t))
		}
	}
	return out, nil
}

func cloneTxn(t *model.Transaction) *model.Transaction {
	c := *t
	if t.BookedAt != nil {
		ts := *t.BookedAt
		c.BookedAt = &ts
	}
	return &c
}

// fakeUserStore is an in-memory UserStore.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*model.User)}
}

func (f *fakeUserStore) put(u *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeUserStore) Get(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUserStore) SetStripeCustomerID(_ context.Context, id, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.StripeCustomerID = customerID
	return nil
}

func (f *fakeUserStore) Disable(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Disabled = true
	return nil
}

// recordingNotifier captures fan-out calls for assertions.
type recordedPush struct {
	UserIDs []string
	Title   string
	Body    string
	Data    map[string]string
	Wait    bool
}

type recordedEmail struct {
	To      string
	Subject string
	Body    string
	Wait    bool
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushes []recordedPush
	emails []recordedEmail
}

func (n *recordingNotifier) EnqueuePush(_ context.Context, userIDs []string, title, body string, data map[string]string, wait bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, recordedPush{UserIDs: userIDs, Title: title, Body: body, Data: data, Wait: wait})
}

func (n *recordingNotifier) EnqueueEmail(_ context.Context, to, subject, body string, wait bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, recordedEmail{To: to, Subject: subject, Body: body, Wait: wait})
}

func (n *recordingNotifier) emailsTo(to string) []recordedEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEmail
	for _, e := range n.emails {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

// fakeStripe implements StripeGateway.
type fakeStripe struct {
	mu       sync.Mutex
	refunded []string

	refundErr error
}

func (g *fakeStripe) EnsureCustomer(existingID string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}
	return "cus_test", nil
}

func (g *fakeStripe) PaymentSheet(customerID, transactionID string, amountCents int64) (*gateway.PaymentSheet, string, error) {
	sheet := &gateway.PaymentSheet{
		PaymentIntentClientSecret: "pi_secret",
		EphemeralKey:              "ek_test",
		CustomerID:                customerID,
	}
	return sheet, "pi_" + transactionID, nil
}

func (g *fakeStripe) Refund(paymentIntentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunded = append(g.refunded, paymentIntentID)
	return nil
}

// fakePayPal implements PayPalGateway.
type fakePayPal struct {
	mu       sync.Mutex
	captured []string
	refunded []string
	payouts  []string

	captureErr error
	refundErr  error
	payoutErr  error
}

func (g *fakePayPal) CreateOrder(_ context.Context, buyerPrice float64) (string, error) {
	return fmt.Sprintf("order-%.2f", buyerPrice), nil
}

func (g *fakePayPal) CaptureOrder(_ context.Context, orderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.captureErr != nil {
		return "", g.captureErr
	}
	g.captured = append(g.captured, orderID)
	return "cap_" + orderID, nil
}

func (g *fakePayPal) Refund(_ context.Context, captureID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunded = append(g.refunded, captureID)
	return nil
}

func (g *fakePayPal) Payout(_ context.Context, receiverEmail string, amount int, batchID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.payoutErr != nil {
		return "", g.payoutErr
	}
	g.payouts = append(g.payouts, batchID)
	return "batch_" + batchID, nil
}
