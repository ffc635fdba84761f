// Package sweep runs the periodic reconciliation passes that close the
// windows left open by crashed or abandoned booking flows: stale
// reservations, charged-but-unrefunded transactions and overdue
// payouts.
package sweep

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/taqo-app/taqo-backend/internal/model"
	"github.com/taqo-app/taqo-backend/internal/service"
)

const (
	// reservationTimeout is how long a reservation may sit before the
	// spot is returned to the market.
	reservationTimeout = 5 * time.Minute
	// refundGrace keeps just-marked transactions out of the refund
	// pass while their own booking flow may still be compensating.
	refundGrace = 2 * time.Minute
	// payoutDelay holds seller payouts back long enough for the buyer
	// to dispute a sale.
	payoutDelay = 12 * time.Hour

	reservationInterval = time.Minute
	refundInterval      = time.Minute
	payoutInterval      = 10 * time.Minute
)

// SpotReleaser returns a reserved spot to the market. Satisfied by
// service.SpotService.
type SpotReleaser interface {
	Release(ctx context.Context, spotID string) error
}

// Settler executes the money-moving half of a reconciliation pass.
// Satisfied by service.BookingService.
type Settler interface {
	Refund(ctx context.Context, transactionID string) error
	Payout(ctx context.Context, transactionID string) error
}

// Sweeper owns the three reconciliation passes. Every pass is
// log-and-continue per item: one bad row never blocks the rest of the
// batch.
type Sweeper struct {
	spots    service.SpotStore
	releaser SpotReleaser
	txns     service.TransactionStore
	settler  Settler
	notifier service.Notifier
	opsEmail string

	now func() time.Time
}

// NewSweeper constructs a Sweeper over the given stores and executors.
func NewSweeper(spots service.SpotStore, releaser SpotReleaser, txns service.TransactionStore,
	settler Settler, notifier service.Notifier, opsEmail string) *Sweeper {
	return &Sweeper{
		spots:    spots,
		releaser: releaser,
		txns:     txns,
		settler:  settler,
		notifier: notifier,
		opsEmail: opsEmail,
		now:      time.Now,
	}
}

// Run drives the three passes on their tickers until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	reservations := time.NewTicker(reservationInterval)
	refunds := time.NewTicker(refundInterval)
	payouts := time.NewTicker(payoutInterval)
	defer reservations.Stop()
	defer refunds.Stop()
	defer payouts.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reservations.C:
			s.FreeStaleReservations(ctx)
		case <-refunds.C:
			s.RefundPending(ctx)
		case <-payouts.C:
			s.PayoutPending(ctx)
		}
	}
}

// FreeStaleReservations releases every spot whose reservation is older
// than the timeout. A release conflict means someone else already moved
// the spot on, which is the outcome we wanted anyway.
func (s *Sweeper) FreeStaleReservations(ctx context.Context) {
	cutoff := s.now().UTC().Add(-reservationTimeout)
	spots, err := s.spots.ListStaleReserved(ctx, cutoff)
	if err != nil {
		log.Printf("sweep: list stale reservations: %v", err)
		return
	}
	for _, spot := range spots {
		if err := s.releaser.Release(ctx, spot.ID); err != nil {
			log.Printf("sweep: release spot %s: %v", spot.ID, err)
		}
	}
}

// RefundPending refunds every transaction routed to refund more than
// the grace period ago. A refund that errors is marked refund_failed so
// it is not retried blindly, and ops is told to step in.
func (s *Sweeper) RefundPending(ctx context.Context) {
	cutoff := s.now().UTC().Add(-refundGrace)
	txns, err := s.txns.ListRefundDue(ctx, cutoff)
	if err != nil {
		log.Printf("sweep: list refunds due: %v", err)
		return
	}
	for _, txn := range txns {
		if err := s.settler.Refund(ctx, txn.ID); err != nil {
			log.Printf("sweep: refund %s: %v", txn.ID, err)
			s.markFailed(ctx, txn.ID, "Refund Failed", func(t *model.Transaction) {
				t.Status = model.TxnRefundFailed
			})
		}
	}
}

// PayoutPending initiates the seller payout for every sale past the
// payout delay. PayPal dedupes payout batches by sender batch id (the
// transaction id), so re-initiating while the payouts webhook is in
// flight is harmless.
func (s *Sweeper) PayoutPending(ctx context.Context) {
	cutoff := s.now().UTC().Add(-payoutDelay)
	txns, err := s.txns.ListPayoutDue(ctx, cutoff)
	if err != nil {
		log.Printf("sweep: list payouts due: %v", err)
		return
	}
	for _, txn := range txns {
		if err := s.settler.Payout(ctx, txn.ID); err != nil {
			log.Printf("sweep: payout %s: %v", txn.ID, err)
			s.markFailed(ctx, txn.ID, "Payout Failed", func(t *model.Transaction) {
				t.PayoutStatus = model.PayoutFailed
			})
		}
	}
}

func (s *Sweeper) markFailed(ctx context.Context, transactionID, subject string, mutate func(*model.Transaction)) {
	if err := s.txns.Update(ctx, transactionID, mutate); err != nil {
		log.Printf("sweep: mark %s after failure: %v", transactionID, err)
	}
	s.notifier.EnqueueEmail(ctx, s.opsEmail, subject,
		fmt.Sprintf("Transaction ID: %s", transactionID), true)
}
