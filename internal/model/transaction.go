package model

import "time"

// TransactionStatus tracks the buyer-facing side of a purchase attempt.
type TransactionStatus string

const (
	TxnPending         TransactionStatus = "pending"          // created, buyer not yet charged
	TxnChargedBuyer    TransactionStatus = "charged_buyer"    // capture completed, spot sold
	TxnToRefund        TransactionStatus = "to_refund"        // charge happened but booking failed
	TxnPaymentFailed   TransactionStatus = "payment_failed"   // gateway declined the capture
	TxnPaymentRefunded TransactionStatus = "payment_refunded" // gateway confirmed the refund
	TxnRefundFailed    TransactionStatus = "refund_failed"    // refund attempt errored, ops notified
)

// PayoutStatus tracks the seller-facing side.  It only leaves
// PayoutNone after the buyer has been charged.
type PayoutStatus string

const (
	PayoutNone      PayoutStatus = ""                 // no payout owed yet
	PayoutPending   PayoutStatus = "payout_pending"   // waiting for the payout sweep / webhook
	PayoutSucceeded PayoutStatus = "payout_succeeded" // gateway confirmed the payout
	PayoutFailed    PayoutStatus = "payout_failed"    // payout attempt errored, ops notified
)

// PaymentProvider names one of the two supported gateways.
type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderPayPal PaymentProvider = "paypal"
)

// Transaction is a single buyer's attempt to purchase one spot.  Its
// lifecycle is independent from the spot's: the two are only linked by
// SpotID and by the price snapshot taken at creation time, which the
// booking flow compares against the spot's current price before
// finalizing.
//
// Fields:
//  ID              – opaque document identifier.
//  SpotID          – the spot being purchased.
//  QueueName       – denormalized queue name for notifications.
//  SellerID        – seller, copied from the spot at creation.
//  BuyerID         – buyer initiating the purchase.
//  Status          – buyer-side state, see TransactionStatus.
//  PayoutStatus    – seller-side state, see PayoutStatus.
//  SellerPrice     – seller price snapshot at creation.
//  BuyerPrice      – buyer price snapshot at creation.
//  PaymentProvider – which gateway handles the charge.
//  PaymentIntentID – Stripe settlement handle.
//  CaptureID       – PayPal settlement handle.
//  CreatedAt       – creation timestamp.
//  BookedAt        – set whenever the transaction enters a state a
//                    sweep waits on (to_refund, payout_pending).
type Transaction struct {
	ID              string            // transactions.id
	SpotID          string            // transactions.spot_id
	QueueName       string            // transactions.queue_name
	SellerID        string            // transactions.seller_id
	BuyerID         string            // transactions.buyer_id
	Status          TransactionStatus // transactions.status
	PayoutStatus    PayoutStatus      // transactions.payout_status
	SellerPrice     int               // transactions.seller_price
	BuyerPrice      float64           // transactions.buyer_price
	PaymentProvider PaymentProvider   // transactions.payment_provider
	PaymentIntentID string            // transactions.payment_intent_id
	CaptureID       string            // transactions.capture_id
	CreatedAt       time.Time         // transactions.created_at
	BookedAt        *time.Time        // transactions.booked_at (nullable)
}
