package jobs

import (
	"context"
	"errors"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
)

const expiryReason = "not confirmed before pickup"

// ExpireUnconfirmedBookings cancels bookings whose pickup time has passed (plus the
// configured grace) while they were still waiting on documents or payment.
func (jr *JobRunner) ExpireUnconfirmedBookings() {
	jr.runWithRecovery("ExpireUnconfirmedBookings", func() {
		n, err := jr.expireUnconfirmed(context.Background())
		if err != nil {
			logger.Error("Failed to expire unconfirmed bookings", "error", err)
			return
		}
		logger.Info("Expired unconfirmed bookings", "count", n)
	})
}

func (jr *JobRunner) expireUnconfirmed(ctx context.Context) (int, error) {
	cutoff := jr.now().Add(-jr.config.Booking.UnconfirmedGrace())
	stale, err := jr.bookingRepo.ListPickupBefore(ctx, domain.PreConfirmationStatuses, cutoff)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, b := range stale {
		_, err := jr.services.Bookings.RequestCancellation(ctx, domain.SystemActor, b.ID, expiryReason)
		switch {
		case err == nil:
			count++
		case isLostRace(err):
			// Moved on since it was listed; the next run sees the new state.
			logger.WithBooking(b.ID).Info("Skipping booking changed during expiry", "error", err)
		default:
			logger.WithBooking(b.ID).Error("Failed to expire booking", "error", err)
		}
	}
	return count, nil
}

func isLostRace(err error) bool {
	var cm *domain.ConcurrentModificationError
	var st *domain.InvalidStateError
	return errors.As(err, &cm) || errors.As(err, &st)
}
