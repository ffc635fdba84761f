// Package gateway binds the two external payment providers.  Both
// expose the same capability set (charge, capture, refund) behind
// provider-specific handles; only PayPal supports payouts.  Gateway
// calls are the only suspension points besides the document store and
// are never retried here; the reconciliation sweeps pace retries.
package gateway

import "errors"

// ErrDeclined is returned when the provider processed the request but
// declined the operation (as opposed to a transport or protocol
// failure).  Callers treat both the same way, but the distinction keeps
// logs readable.
var ErrDeclined = errors.New("gateway declined")

// PaymentSheet is the client bundle a mobile app needs to drive a
// Stripe payment sheet.
type PaymentSheet struct {
	PaymentIntentClientSecret string `json:"paymentIntentClientSecret"`
	EphemeralKey              string `json:"ephemeralKey"`
	CustomerID                string `json:"customer"`
}
