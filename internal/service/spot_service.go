package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/taqo-app/taqo-backend/internal/model"
	"github.com/taqo-app/taqo-backend/internal/notify"
	"github.com/taqo-app/taqo-backend/internal/pricing"
	"github.com/taqo-app/taqo-backend/internal/repository"
)

// SpotService is the spot state machine.  Every transition is exactly
// one conditional update: the predicate checks the operation's
// precondition on the current status and the mutation applies the
// transition.  A failed predicate surfaces as ErrSpotUnavailable (or is
// swallowed where the contract says so); nothing here retries.
type SpotService struct {
	spots    SpotStore
	notifier Notifier
	feeRate  float64
}

// NewSpotService constructs a SpotService.  feeRate is the service fee
// configuration constant used to co-write buyer prices.
func NewSpotService(spots SpotStore, notifier Notifier, feeRate float64) *SpotService {
	return &SpotService{spots: spots, notifier: notifier, feeRate: feeRate}
}

// CreateOffer lists a new spot for sellerID.  The buyer price is
// derived from the ask at creation time so both prices are born
// consistent.
func (s *SpotService) CreateOffer(ctx context.Context, sellerID, queueName string, progress, sellerPrice int) (*model.Spot, error) {
	spot := &model.Spot{
		QueueName:   queueName,
		SellerID:    sellerID,
		Status:      model.SpotAvailable,
		Progress:    progress,
		SellerPrice: sellerPrice,
		BuyerPrice:  pricing.AddServiceFee(sellerPrice, s.feeRate),
	}
	if err := s.spots.Create(ctx, spot); err != nil {
		return nil, err
	}
	return spot, nil
}

// UpdateSellerPrice sets the seller's ask and progress on an available
// spot.  The buyer price is derived and written in the same atomic
// update so the two can never diverge.  When the new ask is strictly
// lower than the old one, all buyers who previously suggested a price
// are notified with the new buyer-facing price.
func (s *SpotService) UpdateSellerPrice(ctx context.Context, spotID string, progress, sellerPrice int) error {
	// Read before the update: whether this is a reduction, and who to
	// tell.  Stale-tolerant; the write below re-validates the status.
	before, err := s.spots.Get(ctx, spotID)
	if err != nil {
		return err
	}
	priceReduced := sellerPrice < before.SellerPrice
	interested := before.InterestedBuyerIDs
	queueName := before.QueueName

	buyerPrice := pricing.AddServiceFee(sellerPrice, s.feeRate)
	err = s.spots.ConditionalUpdate(ctx, spotID, spotIsAvailable, func(spot *model.Spot) {
		spot.Progress = progress
		spot.SellerPrice = sellerPrice
		spot.BuyerPrice = buyerPrice
	})
	if errors.Is(err, repository.ErrConflict) {
		return ErrSpotUnavailable
	}
	if err != nil {
		return err
	}
	if priceReduced && len(interested) > 0 {
		body := fmt.Sprintf("The price of %s was reduced to %s.", queueName, pricing.Format(buyerPrice))
		s.notifier.EnqueuePush(ctx, interested, "Price Update", body,
			map[string]string{"type": "price_reduction", "body": body}, true)
	}
	return nil
}

// AcceptSuggestedPrice lets the seller take a buyer's suggested price.
// Same transition as UpdateSellerPrice minus the progress field, and
// interested buyers are always notified.
func (s *SpotService) AcceptSuggestedPrice(ctx context.Context, spotID string, sellerPrice int) error {
	before, err := s.spots.Get(ctx, spotID)
	if err != nil {
		return err
	}
	buyerPrice := pricing.AddServiceFee(sellerPrice, s.feeRate)
	err = s.spots.ConditionalUpdate(ctx, spotID, spotIsAvailable, func(spot *model.Spot) {
		spot.SellerPrice = sellerPrice
		spot.BuyerPrice = buyerPrice
	})
	if errors.Is(err, repository.ErrConflict) {
		return ErrSpotUnavailable
	}
	if err != nil {
		return err
	}
	if len(before.InterestedBuyerIDs) > 0 {
		body := fmt.Sprintf("The price of %s was reduced to %s.", before.QueueName, pricing.Format(buyerPrice))
		s.notifier.EnqueuePush(ctx, before.InterestedBuyerIDs, "Price Update", body,
			map[string]string{"type": "price_reduction", "body": body}, true)
	}
	return nil
}

// Reserve moves an available spot to reserved and stamps reservedAt.
// Concurrent Reserve calls on the same spot resolve to exactly one
// winner; the rest get repository.ErrConflict.
func (s *SpotService) Reserve(ctx context.Context, spotID string) error {
	now := time.Now().UTC()
	return s.spots.ConditionalUpdate(ctx, spotID, spotIsAvailable, func(spot *model.Spot) {
		spot.Status = model.SpotReserved
		spot.ReservedAt = &now
	})
}

// Release moves a reserved spot back to available, clearing
// reservedAt.  Used by the stale reservation sweep and by compensating
// failure paths in the booking flow.
func (s *SpotService) Release(ctx context.Context, spotID string) error {
	return s.spots.ConditionalUpdate(ctx, spotID, spotIsReserved, func(spot *model.Spot) {
		spot.Status = model.SpotAvailable
		spot.ReservedAt = nil
	})
}

// MarkSold moves a reserved spot to sold.  A conflict means the
// reservation was lost between capture and finalization; the booking
// flow must compensate with a refund.
func (s *SpotService) MarkSold(ctx context.Context, spotID string) error {
	return s.spots.ConditionalUpdate(ctx, spotID, spotIsReserved, func(spot *model.Spot) {
		spot.Status = model.SpotSold
		spot.ReservedAt = nil
	})
}

// SuggestPrice records a buyer's interest at a lower price and notifies
// the seller with the seller-facing equivalent of the suggested buyer
// price.
func (s *SpotService) SuggestPrice(ctx context.Context, spotID, buyerID string, buyerPrice float64) error {
	err := s.spots.ConditionalUpdate(ctx, spotID, spotIsAvailable, func(spot *model.Spot) {
		spot.InterestedBuyerIDs = appendUnique(spot.InterestedBuyerIDs, buyerID)
	})
	if errors.Is(err, repository.ErrConflict) {
		return ErrSpotUnavailable
	}
	if err != nil {
		return err
	}
	spot, err := s.spots.Get(ctx, spotID)
	if err != nil {
		return err
	}
	sellerPrice := pricing.ToSellerPrice(buyerPrice, s.feeRate)
	body := fmt.Sprintf("A potential buyer is interested in your spot at a lower price of %s.",
		pricing.Format(float64(sellerPrice)))
	s.notifier.EnqueuePush(ctx, []string{spot.SellerID}, "Interested Buyer", body, map[string]string{
		"type":        "price_suggested",
		"spotId":      spotID,
		"sellerPrice": strconv.Itoa(sellerPrice),
	}, true)
	return nil
}

// issueReportThreshold is the number of distinct reporters after which
// a spot is removed for seller non-responsiveness.
const issueReportThreshold = 2

// ReportIssue records that a buyer could not find the seller.  Once two
// distinct reporters have flagged the spot, a second conditional update
// moves it available -> deleted and the seller is told to relist.  Both
// updates swallow conflicts: a report against a spot that has moved on
// is a no-op, and losing the deletion race (e.g. the spot got reserved
// concurrently) silently drops the deletion.
func (s *SpotService) ReportIssue(ctx context.Context, spotID, reporterID string) error {
	err := s.spots.ConditionalUpdate(ctx, spotID, spotIsAvailable, func(spot *model.Spot) {
		spot.IssueReporterIDs = appendUnique(spot.IssueReporterIDs, reporterID)
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	spot, err := s.spots.Get(ctx, spotID)
	if err != nil {
		return err
	}
	if len(spot.IssueReporterIDs) < issueReportThreshold {
		return nil
	}
	err = s.spots.ConditionalUpdate(ctx, spotID, spotIsAvailable, func(spot *model.Spot) {
		spot.Status = model.SpotDeleted
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("spot: %s deleted after %d issue reports", spotID, len(spot.IssueReporterIDs))
	s.notifier.EnqueuePush(ctx, []string{spot.SellerID}, "Action Required",
		"Multiple potential buyers were not able to find you. Your spot has been deleted. "+
			"Please create a new offer if you still want to sell your spot.",
		map[string]string{"type": "spot_deleted_due_to_issue"}, true)
	s.notifier.EnqueueEmail(ctx, spot.SellerID, "Spot Deleted", notify.Template("spot_deleted"), true)
	return nil
}

func spotIsAvailable(spot *model.Spot) bool { return spot.Status == model.SpotAvailable }
func spotIsReserved(spot *model.Spot) bool  { return spot.Status == model.SpotReserved }

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
