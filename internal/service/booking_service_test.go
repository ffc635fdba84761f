package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taqo-app/taqo-backend/internal/gateway"
	"github.com/taqo-app/taqo-backend/internal/model"
)

const opsEmail = "ops@taqo.app"

type bookingFixture struct {
	svc      *BookingService
	spotSvc  *SpotService
	spots    *fakeSpotStore
	txns     *fakeTxnStore
	users    *fakeUserStore
	stripe   *fakeStripe
	paypal   *fakePayPal
	notifier *recordingNotifier
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	f := &bookingFixture{
		spots:    newFakeSpotStore(),
		txns:     newFakeTxnStore(),
		users:    newFakeUserStore(),
		stripe:   &fakeStripe{},
		paypal:   &fakePayPal{},
		notifier: &recordingNotifier{},
	}
	f.spotSvc = NewSpotService(f.spots, f.notifier, testFeeRate)
	f.svc = NewBookingService(f.spotSvc, f.spots, f.txns, f.users,
		f.stripe, f.paypal, f.notifier, opsEmail)
	f.users.put(&model.User{ID: "seller-1", Email: "seller@example.com", PayPalEmail: "seller@paypal.example"})
	f.users.put(&model.User{ID: "buyer-1", Email: "buyer@example.com"})
	return f
}

func (f *bookingFixture) seedSpot(t *testing.T) string {
	t.Helper()
	spot := availableSpot(8)
	require.NoError(t, f.spots.Create(context.Background(), spot))
	return spot.ID
}

func (f *bookingFixture) txn(t *testing.T, id string) *model.Transaction {
	t.Helper()
	txn, err := f.txns.Get(context.Background(), id)
	require.NoError(t, err)
	return txn
}

func (f *bookingFixture) spot(t *testing.T, id string) *model.Spot {
	t.Helper()
	spot, err := f.spots.Get(context.Background(), id)
	require.NoError(t, err)
	return spot
}

func TestCreateTransactionSnapshotsPrices(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)

	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	assert.Equal(t, model.TxnPending, txn.Status)
	assert.Equal(t, "seller-1", txn.SellerID)
	assert.Equal(t, "buyer-1", txn.BuyerID)
	assert.Equal(t, 8, txn.SellerPrice)
	assert.Equal(t, 10.0, txn.BuyerPrice)
	assert.Equal(t, model.PayoutNone, txn.PayoutStatus)
}

func TestStripePaymentSheet(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)

	result, err := f.svc.StripePaymentSheet(context.Background(), spotID, "buyer-1")
	require.NoError(t, err)
	require.NotNil(t, result.Sheet)
	assert.Equal(t, "cus_test", result.Sheet.CustomerID)

	buyer, err := f.users.Get(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, "cus_test", buyer.StripeCustomerID)

	txn := f.txn(t, result.TransactionID)
	assert.Equal(t, "pi_"+result.TransactionID, txn.PaymentIntentID)
}

func TestBookStripeSuccess(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	require.NoError(t, f.svc.BookStripe(context.Background(), spotID, txn.ID))

	spot := f.spot(t, spotID)
	assert.Equal(t, model.SpotSold, spot.Status)
	assert.Nil(t, spot.ReservedAt)

	got := f.txn(t, txn.ID)
	assert.Equal(t, model.TxnChargedBuyer, got.Status)
	assert.Equal(t, model.PayoutPending, got.PayoutStatus)
	require.NotNil(t, got.BookedAt)

	// Seller push plus three emails: seller, buyer, ops.
	require.Len(t, f.notifier.pushes, 1)
	assert.Equal(t, "Sale", f.notifier.pushes[0].Title)
	assert.Len(t, f.notifier.emailsTo("seller-1"), 1)
	assert.Len(t, f.notifier.emailsTo("buyer-1"), 1)
	assert.Len(t, f.notifier.emailsTo(opsEmail), 1)
}

func TestBookStripeIdempotentRetry(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	// A previous attempt already reserved the spot; the retry must not
	// treat its own reservation as a competing one.
	require.NoError(t, f.spotSvc.Reserve(context.Background(), spotID))

	require.NoError(t, f.svc.BookStripe(context.Background(), spotID, txn.ID))

	assert.Equal(t, model.SpotSold, f.spot(t, spotID).Status)
	assert.Equal(t, model.TxnChargedBuyer, f.txn(t, txn.ID).Status)
}

func TestEnsureReservedIdempotence(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	require.NoError(t, f.svc.ensureReserved(context.Background(), spotID, txn.ID, true))
	reservedAt := *f.spot(t, spotID).ReservedAt

	// Retrying with the reservation already held neither errors nor
	// restarts the reservation clock.
	require.NoError(t, f.svc.ensureReserved(context.Background(), spotID, txn.ID, true))

	spot := f.spot(t, spotID)
	assert.Equal(t, model.SpotReserved, spot.Status)
	assert.Equal(t, reservedAt, *spot.ReservedAt)
	assert.Equal(t, model.TxnPending, f.txn(t, txn.ID).Status)
}

func TestBookStripeSpotTaken(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	// Someone else bought the spot while the buyer was paying.
	require.NoError(t, f.spotSvc.Reserve(context.Background(), spotID))
	require.NoError(t, f.spotSvc.MarkSold(context.Background(), spotID))

	err = f.svc.BookStripe(context.Background(), spotID, txn.ID)
	assert.ErrorIs(t, err, ErrSpotUnavailable)

	got := f.txn(t, txn.ID)
	assert.Equal(t, model.TxnToRefund, got.Status)
	require.NotNil(t, got.BookedAt)
}

func TestBookStripePriceMismatch(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	// Seller raised the price between snapshot and booking.
	require.NoError(t, f.spotSvc.UpdateSellerPrice(context.Background(), spotID, 40, 16))

	err = f.svc.BookStripe(context.Background(), spotID, txn.ID)
	assert.ErrorIs(t, err, ErrInvalidSpotPrice)

	// The reservation is rolled back and the charged buyer refunded.
	spot := f.spot(t, spotID)
	assert.Equal(t, model.SpotAvailable, spot.Status)
	assert.Nil(t, spot.ReservedAt)
	assert.Equal(t, model.TxnToRefund, f.txn(t, txn.ID).Status)
}

func TestBookStripeReservationLostAfterCharge(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	// The timeout sweep frees the spot right after this flow reserves
	// it, so markSold loses the race with money already moved.
	f.spots.afterUpdate = func(s *model.Spot) {
		if s.Status == model.SpotReserved {
			s.Status = model.SpotAvailable
			s.ReservedAt = nil
		}
	}
	err = f.svc.BookStripe(context.Background(), spotID, txn.ID)
	f.spots.afterUpdate = nil

	assert.ErrorIs(t, err, ErrSpotUnavailableCharged)
	got := f.txn(t, txn.ID)
	assert.Equal(t, model.TxnToRefund, got.Status)
	require.NotNil(t, got.BookedAt)
}

func TestBookPayPalSuccess(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txnID, orderID, err := f.svc.PayPalOrder(context.Background(), spotID, "buyer-1")
	require.NoError(t, err)
	assert.NotEmpty(t, orderID)

	require.NoError(t, f.svc.BookPayPal(context.Background(), spotID, txnID, orderID))

	got := f.txn(t, txnID)
	assert.Equal(t, model.TxnChargedBuyer, got.Status)
	assert.Equal(t, "cap_"+orderID, got.CaptureID)
	assert.Equal(t, model.SpotSold, f.spot(t, spotID).Status)
}

func TestBookPayPalCaptureDeclined(t *testing.T) {
	f := newBookingFixture(t)
	f.paypal.captureErr = gateway.ErrDeclined
	spotID := f.seedSpot(t)
	txnID, orderID, err := f.svc.PayPalOrder(context.Background(), spotID, "buyer-1")
	require.NoError(t, err)

	err = f.svc.BookPayPal(context.Background(), spotID, txnID, orderID)
	assert.ErrorIs(t, err, ErrPaymentFailed)

	// No money moved: the transaction records the failure and the spot
	// stays reserved for the stale reservation sweep to free.
	assert.Equal(t, model.TxnPaymentFailed, f.txn(t, txnID).Status)
	assert.Equal(t, model.SpotReserved, f.spot(t, spotID).Status)
}

func TestBookPayPalNoRefundOnPriceMismatch(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txnID, orderID, err := f.svc.PayPalOrder(context.Background(), spotID, "buyer-1")
	require.NoError(t, err)

	require.NoError(t, f.spotSvc.UpdateSellerPrice(context.Background(), spotID, 40, 16))

	err = f.svc.BookPayPal(context.Background(), spotID, txnID, orderID)
	assert.ErrorIs(t, err, ErrInvalidSpotPrice)

	// The capture never ran, so nothing is owed back.
	assert.Equal(t, model.TxnPending, f.txn(t, txnID).Status)
	assert.Equal(t, model.SpotAvailable, f.spot(t, spotID).Status)
}

func TestRefundDispatchStripe(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)
	require.NoError(t, f.txns.Update(context.Background(), txn.ID, func(x *model.Transaction) {
		x.Status = model.TxnToRefund
		x.PaymentIntentID = "pi_123"
	}))

	require.NoError(t, f.svc.Refund(context.Background(), txn.ID))

	assert.Equal(t, []string{"pi_123"}, f.stripe.refunded)
	// Stripe confirms via the charge.refunded webhook, not here.
	assert.Equal(t, model.TxnToRefund, f.txn(t, txn.ID).Status)
}

func TestRefundDispatchPayPal(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderPayPal)
	require.NoError(t, err)
	require.NoError(t, f.txns.Update(context.Background(), txn.ID, func(x *model.Transaction) {
		x.Status = model.TxnToRefund
		x.CaptureID = "cap_123"
	}))

	require.NoError(t, f.svc.Refund(context.Background(), txn.ID))

	assert.Equal(t, []string{"cap_123"}, f.paypal.refunded)
	assert.Equal(t, model.TxnPaymentRefunded, f.txn(t, txn.ID).Status)
}

func TestPayoutUsesSellerPayPalEmail(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	require.NoError(t, f.svc.Payout(context.Background(), txn.ID))
	assert.Equal(t, []string{txn.ID}, f.paypal.payouts)
}

func TestPayoutWithoutAddressFails(t *testing.T) {
	f := newBookingFixture(t)
	f.users.put(&model.User{ID: "seller-1", Email: "seller@example.com"})
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	assert.Error(t, f.svc.Payout(context.Background(), txn.ID))
	assert.Empty(t, f.paypal.payouts)
}

func TestDeleteUserWithOpenOffer(t *testing.T) {
	f := newBookingFixture(t)
	f.seedSpot(t)

	err := f.svc.DeleteUser(context.Background(), "seller-1")
	assert.ErrorIs(t, err, ErrUserHasActiveOffer)

	seller, getErr := f.users.Get(context.Background(), "seller-1")
	require.NoError(t, getErr)
	assert.False(t, seller.Disabled)
}

func TestDeleteUserDisablesAndEmails(t *testing.T) {
	f := newBookingFixture(t)

	require.NoError(t, f.svc.DeleteUser(context.Background(), "buyer-1"))

	buyer, err := f.users.Get(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.True(t, buyer.Disabled)

	emails := f.notifier.emailsTo("buyer-1")
	require.Len(t, emails, 1)
	assert.Equal(t, "Account Deleted", emails[0].Subject)
	assert.True(t, emails[0].Wait)
}

func TestDeleteUserSoldSpotsDoNotBlock(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	require.NoError(t, f.spotSvc.Reserve(context.Background(), spotID))
	require.NoError(t, f.spotSvc.MarkSold(context.Background(), spotID))

	require.NoError(t, f.svc.DeleteUser(context.Background(), "seller-1"))
}

func TestStripeWebhookTransitions(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderStripe)
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), "payment_intent.payment_failed", txn.ID))
	assert.Equal(t, model.TxnPaymentFailed, f.txn(t, txn.ID).Status)

	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), "charge.refunded", txn.ID))
	assert.Equal(t, model.TxnPaymentRefunded, f.txn(t, txn.ID).Status)

	// Unsubscribed events are acknowledged without touching state.
	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), "invoice.created", txn.ID))
	assert.Equal(t, model.TxnPaymentRefunded, f.txn(t, txn.ID).Status)
}

func TestPayPalWebhookPayoutTransitions(t *testing.T) {
	f := newBookingFixture(t)
	spotID := f.seedSpot(t)
	txn, err := f.svc.CreateTransaction(context.Background(), spotID, "buyer-1", model.ProviderPayPal)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, f.txns.Update(context.Background(), txn.ID, func(x *model.Transaction) {
		x.Status = model.TxnChargedBuyer
		x.PayoutStatus = model.PayoutPending
		x.BookedAt = &now
	}))

	require.NoError(t, f.svc.HandlePayPalWebhook(context.Background(), "PAYMENT.PAYOUTSBATCH.SUCCESS", txn.ID))
	assert.Equal(t, model.PayoutSucceeded, f.txn(t, txn.ID).PayoutStatus)

	require.NoError(t, f.svc.HandlePayPalWebhook(context.Background(), "PAYMENT.PAYOUTSBATCH.DENIED", txn.ID))
	assert.Equal(t, model.PayoutFailed, f.txn(t, txn.ID).PayoutStatus)

	emails := f.notifier.emailsTo(opsEmail)
	require.Len(t, emails, 1)
	assert.Equal(t, "Payout Failed", emails[0].Subject)
	assert.Contains(t, emails[0].Body, txn.ID)
}
