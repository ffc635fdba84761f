package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/taqo-app/taqo-backend/internal/gateway"
	"github.com/taqo-app/taqo-backend/internal/model"
	"github.com/taqo-app/taqo-backend/internal/notify"
	"github.com/taqo-app/taqo-backend/internal/repository"
)

// StripeGateway is the Stripe surface the settlement flow consumes.
// Satisfied by gateway.Stripe.
type StripeGateway interface {
	EnsureCustomer(existingID string) (string, error)
	PaymentSheet(customerID, transactionID string, amountCents int64) (*gateway.PaymentSheet, string, error)
	Refund(paymentIntentID string) error
}

// PayPalGateway is the PayPal surface the settlement flow consumes.
// Satisfied by gateway.PayPal.
type PayPalGateway interface {
	CreateOrder(ctx context.Context, buyerPrice float64) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (string, error)
	Refund(ctx context.Context, captureID string) error
	Payout(ctx context.Context, receiverEmail string, amount int, batchID string) (string, error)
}

// BookingService couples the spot and transaction state machines
// through the booking, refund and payout flows.  There is no atomic
// update spanning a spot and its transaction, so every flow is an
// explicit sequence of single-document steps; each failure point has a
// compensating transition, and the reconciliation sweeps close whatever
// window a crash between steps leaves open.
type BookingService struct {
	spots    *SpotService
	store    SpotStore
	txns     TransactionStore
	users    UserStore
	stripe   StripeGateway
	paypal   PayPalGateway
	notifier Notifier
	opsEmail string
}

// NewBookingService constructs a BookingService.
func NewBookingService(spots *SpotService, store SpotStore, txns TransactionStore, users UserStore,
	stripeGW StripeGateway, paypalGW PayPalGateway, notifier Notifier, opsEmail string) *BookingService {
	return &BookingService{
		spots:    spots,
		store:    store,
		txns:     txns,
		users:    users,
		stripe:   stripeGW,
		paypal:   paypalGW,
		notifier: notifier,
		opsEmail: opsEmail,
	}
}

// CreateTransaction snapshots the spot's current price fields into a
// fresh pending transaction.  The snapshot, not the live spot, is what
// the buyer is charged against; the booking flow later verifies the two
// still agree.
func (b *BookingService) CreateTransaction(ctx context.Context, spotID, buyerID string, provider model.PaymentProvider) (*model.Transaction, error) {
	spot, err := b.store.Get(ctx, spotID)
	if err != nil {
		return nil, err
	}
	txn := &model.Transaction{
		SpotID:          spotID,
		QueueName:       spot.QueueName,
		SellerID:        spot.SellerID,
		BuyerID:         buyerID,
		Status:          model.TxnPending,
		SellerPrice:     spot.SellerPrice,
		BuyerPrice:      spot.BuyerPrice,
		PaymentProvider: provider,
	}
	if err := b.txns.Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// PaymentSheetResult bundles everything the mobile client needs to
// drive a Stripe payment sheet for a new transaction.
type PaymentSheetResult struct {
	TransactionID string                `json:"transactionId"`
	Sheet         *gateway.PaymentSheet `json:"sheet"`
}

// StripePaymentSheet creates the pending transaction and the Stripe
// payment intent the client charges against.  The Stripe customer id is
// created lazily and cached on the user record.
func (b *BookingService) StripePaymentSheet(ctx context.Context, spotID, buyerID string) (*PaymentSheetResult, error) {
	user, err := b.users.Get(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	customerID, err := b.stripe.EnsureCustomer(user.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	if customerID != user.StripeCustomerID {
		if err := b.users.SetStripeCustomerID(ctx, buyerID, customerID); err != nil {
			return nil, err
		}
	}
	txn, err := b.CreateTransaction(ctx, spotID, buyerID, model.ProviderStripe)
	if err != nil {
		return nil, err
	}
	sheet, intentID, err := b.stripe.PaymentSheet(customerID, txn.ID, int64(txn.BuyerPrice*100))
	if err != nil {
		return nil, err
	}
	if err := b.txns.Update(ctx, txn.ID, func(t *model.Transaction) {
		t.PaymentIntentID = intentID
	}); err != nil {
		return nil, err
	}
	return &PaymentSheetResult{TransactionID: txn.ID, Sheet: sheet}, nil
}

// PayPalOrder creates the pending transaction and a matching PayPal
// order over the snapshotted buyer price.
func (b *BookingService) PayPalOrder(ctx context.Context, spotID, buyerID string) (transactionID, orderID string, err error) {
	txn, err := b.CreateTransaction(ctx, spotID, buyerID, model.ProviderPayPal)
	if err != nil {
		return "", "", err
	}
	orderID, err = b.paypal.CreateOrder(ctx, txn.BuyerPrice)
	if err != nil {
		return "", "", err
	}
	return txn.ID, orderID, nil
}

// BookStripe finalizes a Stripe booking.  The client-side payment sheet
// has already charged the buyer by the time this runs, so every failure
// past this point must route the transaction to refund.
func (b *BookingService) BookStripe(ctx context.Context, spotID, transactionID string) error {
	if err := b.ensureReserved(ctx, spotID, transactionID, true); err != nil {
		return err
	}
	if err := b.assertPriceConsistent(ctx, spotID, transactionID, true); err != nil {
		return err
	}
	return b.finalizeSuccess(ctx, spotID, transactionID)
}

// BookPayPal finalizes a PayPal booking.  The buyer is only charged by
// the explicit capture below, so the reservation and price checks run
// without initiating refunds; a capture failure leaves the spot
// reserved and marks the transaction payment_failed for the stale
// reservation sweep to unwind.
func (b *BookingService) BookPayPal(ctx context.Context, spotID, transactionID, orderID string) error {
	if err := b.ensureReserved(ctx, spotID, transactionID, false); err != nil {
		return err
	}
	if err := b.assertPriceConsistent(ctx, spotID, transactionID, false); err != nil {
		return err
	}
	captureID, err := b.paypal.CaptureOrder(ctx, orderID)
	if err != nil {
		if updErr := b.txns.Update(ctx, transactionID, func(t *model.Transaction) {
			t.Status = model.TxnPaymentFailed
		}); updErr != nil {
			log.Printf("booking: mark payment_failed for %s: %v", transactionID, updErr)
		}
		return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if err := b.txns.Update(ctx, transactionID, func(t *model.Transaction) {
		t.CaptureID = captureID
	}); err != nil {
		return err
	}
	return b.finalizeSuccess(ctx, spotID, transactionID)
}

// ensureReserved takes the reservation for this booking.  Losing the
// reserve race is fine when the spot ended up reserved anyway: that is
// an idempotent retry of this same flow and the original reservedAt
// stands.  Anything else means another actor holds the spot: when the
// buyer was already charged (initiateRefund) the transaction is routed
// to refund before surfacing the failure.
func (b *BookingService) ensureReserved(ctx context.Context, spotID, transactionID string, initiateRefund bool) error {
	err := b.spots.Reserve(ctx, spotID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return err
	}
	spot, getErr := b.store.Get(ctx, spotID)
	if getErr != nil {
		return getErr
	}
	if spot.Status == model.SpotReserved {
		return nil
	}
	if initiateRefund {
		b.markToRefund(ctx, transactionID)
	}
	return ErrSpotUnavailable
}

// assertPriceConsistent compares the transaction's snapshotted buyer
// price against the spot's current one.  On mismatch the reservation
// taken above is released either way; the refund is only initiated when
// the buyer was already charged.
func (b *BookingService) assertPriceConsistent(ctx context.Context, spotID, transactionID string, initiateRefund bool) error {
	spot, err := b.store.Get(ctx, spotID)
	if err != nil {
		return err
	}
	txn, err := b.txns.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if spot.BuyerPrice == txn.BuyerPrice {
		return nil
	}
	if initiateRefund {
		b.markToRefund(ctx, transactionID)
	}
	if relErr := b.spots.Release(ctx, spotID); relErr != nil && !errors.Is(relErr, repository.ErrConflict) {
		log.Printf("booking: release %s after price mismatch: %v", spotID, relErr)
	}
	return ErrInvalidSpotPrice
}

// finalizeSuccess marks the spot sold and the transaction charged.  The
// two writes are separate atomic steps; losing the markSold race (the
// timeout sweep freed the spot between reserve and here) means the
// buyer's money has moved for a spot we no longer hold, so this path
// must compensate with a refund, never drop silently.
func (b *BookingService) finalizeSuccess(ctx context.Context, spotID, transactionID string) error {
	if err := b.spots.MarkSold(ctx, spotID); err != nil {
		b.markToRefund(ctx, transactionID)
		if errors.Is(err, repository.ErrConflict) {
			return ErrSpotUnavailableCharged
		}
		return err
	}
	now := time.Now().UTC()
	if err := b.txns.Update(ctx, transactionID, func(t *model.Transaction) {
		t.Status = model.TxnChargedBuyer
		t.PayoutStatus = model.PayoutPending
		t.BookedAt = &now
	}); err != nil {
		// The spot is sold but the transaction did not record it; the
		// refund sweep cannot see this one, so tell ops.
		log.Printf("booking: record success for %s: %v", transactionID, err)
		b.notifier.EnqueueEmail(ctx, b.opsEmail, "Booking Inconsistent",
			fmt.Sprintf("Spot ID: %s\nTransaction ID: %s\n", spotID, transactionID), true)
		return err
	}
	b.notifyStakeholders(ctx, spotID, transactionID)
	return nil
}

// markToRefund routes a charged transaction to the refund sweep.  The
// bookedAt stamp starts the sweep's grace period.
func (b *BookingService) markToRefund(ctx context.Context, transactionID string) {
	now := time.Now().UTC()
	if err := b.txns.Update(ctx, transactionID, func(t *model.Transaction) {
		t.Status = model.TxnToRefund
		t.BookedAt = &now
	}); err != nil {
		log.Printf("booking: mark to_refund for %s: %v", transactionID, err)
	}
}

// notifyStakeholders fans out the post-sale notifications: seller push
// and email, buyer email, ops email.  All best-effort and decoupled
// from the committed transition.
func (b *BookingService) notifyStakeholders(ctx context.Context, spotID, transactionID string) {
	txn, err := b.txns.Get(ctx, transactionID)
	if err != nil {
		log.Printf("booking: stakeholder lookup for %s: %v", transactionID, err)
		return
	}
	b.notifier.EnqueuePush(ctx, []string{txn.SellerID}, "Sale",
		"Your spot has been sold successfully. Please leave the line when the buyer shows you the badge.",
		map[string]string{"type": "sold_spot"}, false)
	b.notifier.EnqueueEmail(ctx, txn.SellerID, "Spot Sold", notify.Template("spot_sold"), false)
	b.notifier.EnqueueEmail(ctx, txn.BuyerID, "Spot Booked", notify.Template("spot_booked"), false)
	b.notifier.EnqueueEmail(ctx, b.opsEmail, "Spot Sold",
		fmt.Sprintf("Spot ID: %s\nTransaction ID: %s\n", spotID, transactionID), false)
}

// Refund dispatches a refund to the transaction's gateway.  Stripe
// answers asynchronously (the charge.refunded webhook flips the status)
// while PayPal confirms synchronously, so the status is flipped here.
// Errors propagate to the caller (the refund sweep), which records the
// failure and alerts ops.
func (b *BookingService) Refund(ctx context.Context, transactionID string) error {
	txn, err := b.txns.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	switch txn.PaymentProvider {
	case model.ProviderStripe:
		return b.stripe.Refund(txn.PaymentIntentID)
	case model.ProviderPayPal:
		if err := b.paypal.Refund(ctx, txn.CaptureID); err != nil {
			return err
		}
		return b.txns.Update(ctx, transactionID, func(t *model.Transaction) {
			t.Status = model.TxnPaymentRefunded
		})
	default:
		return fmt.Errorf("unknown payment provider %q", txn.PaymentProvider)
	}
}

// Payout initiates the seller payout over PayPal.  Success leaves
// payout_status untouched at payout_pending; the payouts webhook is the
// source of truth for the final state.  Errors propagate to the payout
// sweep.
func (b *BookingService) Payout(ctx context.Context, transactionID string) error {
	txn, err := b.txns.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	seller, err := b.users.Get(ctx, txn.SellerID)
	if err != nil {
		return err
	}
	if seller.PayPalEmail == "" {
		return fmt.Errorf("seller %s has no payout address", txn.SellerID)
	}
	batchID, err := b.paypal.Payout(ctx, seller.PayPalEmail, txn.SellerPrice, transactionID)
	if err != nil {
		return err
	}
	log.Printf("booking: initiated payout for %s, batch %s", transactionID, batchID)
	return nil
}

// DeleteUser disables an account.  Refused while the seller still has
// open offers so no live spot loses its counterparty.
func (b *BookingService) DeleteUser(ctx context.Context, userID string) error {
	open, err := b.store.CountOpenBySeller(ctx, userID)
	if err != nil {
		return err
	}
	if open > 0 {
		return ErrUserHasActiveOffer
	}
	if err := b.users.Disable(ctx, userID); err != nil {
		return err
	}
	b.notifier.EnqueueEmail(ctx, userID, "Account Deleted", notify.Template("account_deleted"), true)
	return nil
}

// HandleStripeWebhook applies a verified Stripe event to the
// transaction named in the intent metadata.
func (b *BookingService) HandleStripeWebhook(ctx context.Context, eventType, transactionID string) error {
	switch eventType {
	case "payment_intent.payment_failed":
		return b.txns.Update(ctx, transactionID, func(t *model.Transaction) {
			t.Status = model.TxnPaymentFailed
		})
	case "charge.refunded":
		return b.txns.Update(ctx, transactionID, func(t *model.Transaction) {
			t.Status = model.TxnPaymentRefunded
		})
	default:
		// Unsubscribed event types are acknowledged and ignored.
		return nil
	}
}

// HandlePayPalWebhook applies a verified PayPal payouts-batch event to
// the transaction named by its sender batch id.
func (b *BookingService) HandlePayPalWebhook(ctx context.Context, eventType, transactionID string) error {
	switch eventType {
	case "PAYMENT.PAYOUTSBATCH.SUCCESS":
		return b.txns.Update(ctx, transactionID, func(t *model.Transaction) {
			t.PayoutStatus = model.PayoutSucceeded
		})
	case "PAYMENT.PAYOUTSBATCH.DENIED":
		if err := b.txns.Update(ctx, transactionID, func(t *model.Transaction) {
			t.PayoutStatus = model.PayoutFailed
		}); err != nil {
			return err
		}
		b.notifier.EnqueueEmail(ctx, b.opsEmail, "Payout Failed",
			fmt.Sprintf("Transaction ID: %s", transactionID), true)
		return nil
	default:
		return nil
	}
}
