package gateway

import (
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// stripeAPIVersion is pinned so the ephemeral key stays compatible with
// the mobile SDK.
const stripeAPIVersion = "2023-10-16"

// Stripe wraps the Stripe REST client.  The buyer's charge happens
// client-side against the payment intent created here, so by the time
// the booking endpoint runs the capture has already completed.
type Stripe struct {
	api *client.API
}

// NewStripe builds a Stripe gateway from the secret API key.
func NewStripe(apiKey string) *Stripe {
	return &Stripe{api: client.New(apiKey, nil)}
}

// EnsureCustomer returns the existing Stripe customer id or creates a
// fresh customer when the user has none yet.
func (s *Stripe) EnsureCustomer(existingID string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}
	customer, err := s.api.Customers.New(&stripe.CustomerParams{})
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return customer.ID, nil
}

// PaymentSheet creates the ephemeral key and payment intent backing a
// mobile payment sheet.  The transaction id rides along as intent
// metadata so webhooks can be correlated back to the transaction.  It
// returns the client bundle plus the payment intent id for the
// transaction record.
func (s *Stripe) PaymentSheet(customerID, transactionID string, amountCents int64) (*PaymentSheet, string, error) {
	key, err := s.api.EphemeralKeys.New(&stripe.EphemeralKeyParams{
		Customer:      stripe.String(customerID),
		StripeVersion: stripe.String(stripeAPIVersion),
	})
	if err != nil {
		return nil, "", fmt.Errorf("stripe: ephemeral key: %w", err)
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(string(stripe.CurrencyEUR)),
		Customer: stripe.String(customerID),
	}
	params.AddMetadata("transactionId", transactionID)
	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, "", fmt.Errorf("stripe: payment intent: %w", err)
	}
	sheet := &PaymentSheet{
		PaymentIntentClientSecret: intent.ClientSecret,
		EphemeralKey:              key.Secret,
		CustomerID:                customerID,
	}
	return sheet, intent.ID, nil
}

// Refund refunds the full charge behind a payment intent.  Stripe
// confirms asynchronously via the charge.refunded webhook, which is the
// source of truth for the payment_refunded status.
func (s *Stripe) Refund(paymentIntentID string) error {
	_, err := s.api.Refunds.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	})
	if err != nil {
		return fmt.Errorf("stripe: refund: %w", err)
	}
	return nil
}
