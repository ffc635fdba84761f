package service

import "errors"

// Stable caller-facing error codes.  Handlers return these verbatim in
// the response body so mobile clients can switch on them; the strings
// are part of the API contract and must not change.
var (
	// ErrSpotUnavailable: a conditional update lost against a
	// concurrent transition, or the spot is no longer available.
	ErrSpotUnavailable = errors.New("spot_unavailable")

	// ErrInvalidSpotPrice: the price snapshotted on the transaction no
	// longer matches the spot's current price.
	ErrInvalidSpotPrice = errors.New("invalid_spot_price")

	// ErrPaymentFailed: the gateway declined or failed the capture.
	ErrPaymentFailed = errors.New("payment_failed")

	// ErrSpotUnavailableCharged: the spot was lost after the buyer's
	// charge already happened; the transaction has been routed to
	// refund.
	ErrSpotUnavailableCharged = errors.New("spot_unavailable/charged")

	// ErrUserHasActiveOffer: account deletion refused while the seller
	// still has open spots.
	ErrUserHasActiveOffer = errors.New("user_has_active_offer")

	// ErrFailedToFreeSpot: a buyer tried to release a spot that is not
	// reserved anymore.
	ErrFailedToFreeSpot = errors.New("failed_to_free_spot")
)
