// Package pricing implements the service fee arithmetic shared by the
// spot and booking flows.  Seller prices are whole euros; buyer prices
// carry the fee and may be fractional.
package pricing

import (
	"fmt"
	"math"
	"strings"
)

// flatFeeBelow is the seller price under which a flat 1 euro fee is
// charged instead of the percentage fee.  Keeps very cheap spots worth
// listing.
const flatFeeBelow = 4

// AddServiceFee converts a seller price into the buyer-facing price.
func AddServiceFee(sellerPrice int, feeRate float64) float64 {
	if sellerPrice < flatFeeBelow {
		return float64(sellerPrice + 1)
	}
	return float64(sellerPrice) * (1 + feeRate)
}

// SubtractServiceFee is the exact inverse of the percentage branch of
// AddServiceFee.  Callers that need a whole seller price should use
// ToSellerPrice instead.
func SubtractServiceFee(buyerPrice float64, feeRate float64) float64 {
	return buyerPrice / (1 + feeRate)
}

// ToSellerPrice derives the whole-euro seller price a buyer-facing
// price corresponds to, rounding down.
func ToSellerPrice(buyerPrice float64, feeRate float64) int {
	return int(math.Floor(SubtractServiceFee(buyerPrice, feeRate)))
}

// Format renders a price for user-facing notification copy, e.g.
// "2,50 €".
func Format(price float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", price), ".", ",", 1) + " €"
}
