package model

import "time"

// SpotStatus enumerates the lifecycle states of a spot.  A spot only
// moves forward along the transition graph: available -> reserved ->
// sold, reserved -> available (release) and available -> deleted.
// Deleted is terminal; spots are never physically removed.
type SpotStatus string

const (
	SpotAvailable SpotStatus = "available" // listed and bookable
	SpotReserved  SpotStatus = "reserved"  // held by a buyer mid-checkout
	SpotSold      SpotStatus = "sold"      // terminal, buyer charged
	SpotDeleted   SpotStatus = "deleted"   // terminal, removed from sale
)

// Spot is a sellable queue position offered by a seller.  The buyer
// price is always the fee-adjusted function of the seller price and the
// two must be written together in a single atomic update.
//
// Fields:
//  ID                 – opaque document identifier.
//  QueueName          – human readable name of the physical queue.
//  SellerID           – user offering the spot.
//  Status             – current lifecycle state.
//  Progress           – seller's position in the queue, self reported.
//  SellerPrice        – the seller's ask in whole euros.
//  BuyerPrice         – seller price plus service fee.
//  ReservedAt         – set iff Status is reserved; drives the stale
//                       reservation sweep.
//  InterestedBuyerIDs – users who suggested a lower price.
//  IssueReporterIDs   – users who flagged the seller as unreachable.
//  CreatedAt          – creation timestamp.
//  UpdatedAt          – last update timestamp.
type Spot struct {
	ID                 string     `json:"id"`                 // spots.id
	QueueName          string     `json:"queueName"`          // spots.queue_name
	SellerID           string     `json:"sellerId"`           // spots.seller_id
	Status             SpotStatus `json:"status"`             // spots.status
	Progress           int        `json:"progress"`           // spots.progress
	SellerPrice        int        `json:"sellerPrice"`        // spots.seller_price
	BuyerPrice         float64    `json:"buyerPrice"`         // spots.buyer_price
	ReservedAt         *time.Time `json:"reservedAt"`         // spots.reserved_at (nullable)
	InterestedBuyerIDs []string   `json:"interestedBuyerIds"` // spots.interested_buyer_ids (JSON)
	IssueReporterIDs   []string   `json:"issueReporterIds"`   // spots.issue_reporter_ids (JSON)
	CreatedAt          time.Time  `json:"createdAt"`          // spots.created_at
	UpdatedAt          time.Time  `json:"updatedAt"`          // spots.updated_at
}
