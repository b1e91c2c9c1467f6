package messaging

import (
	"context"
	"errors"

	bookingRepo "staybook/database/repository/booking"
	"staybook/models"
	"staybook/services/booking"
)

// IsReplay reports whether eventID was already applied to b. Ties count as replays.
func IsReplay(b models.Booking, eventID int64) bool {
	return eventID <= b.LastAppliedEventID
}

// IdempotencyGuard loads the booking an event targets and filters replays.
// The marker itself only moves inside BookingRepository.UpdateIfEventNewer.
type IdempotencyGuard struct {
	repo bookingRepo.BookingRepository
}

func NewIdempotencyGuard(repo bookingRepo.BookingRepository) *IdempotencyGuard {
	return &IdempotencyGuard{repo: repo}
}

// Admit returns the current booking when eventID is newer than its marker.
func (g *IdempotencyGuard) Admit(ctx context.Context, bookingID string, eventID int64) (*models.Booking, error) {
	b, err := g.repo.GetByID(ctx, bookingID)
	if errors.Is(err, bookingRepo.ErrBookingNotFound) {
		return nil, booking.NewMissingReference(bookingID, err)
	}
	if err != nil {
		return nil, booking.NewTransientStoreFailure("load booking "+bookingID, err)
	}
	if IsReplay(*b, eventID) {
		return nil, booking.NewReplay(bookingID, eventID)
	}
	return b, nil
}
