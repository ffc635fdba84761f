package model

import "time"

// User holds the marketplace profile of a buyer or seller.  Account
// credentials live with the identity provider; this record only carries
// the contact and payment handles the backend needs.
//
// Fields:
//  ID               – identity provider user id.
//  Email            – address used for transactional email.
//  PayPalEmail      – payout destination for sellers.
//  StripeCustomerID – cached Stripe customer, created lazily.
//  MessagingToken   – device push token; empty when no device is
//                     registered, in which case pushes are dropped.
//  Disabled         – set when the account has been deleted.
//  CreatedAt        – creation timestamp.
type User struct {
	ID               string    // users.id
	Email            string    // users.email
	PayPalEmail      string    // users.paypal_email
	StripeCustomerID string    // users.stripe_customer_id
	MessagingToken   string    // users.messaging_token
	Disabled         bool      // users.disabled
	CreatedAt        time.Time // users.created_at
}
