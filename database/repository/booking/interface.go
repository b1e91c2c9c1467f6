package bookingRepo

import (
	"context"
	"errors"

	"staybook/models"
)

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrDuplicateBooking = errors.New("booking already exists")
	// ErrStale means the stored marker is already at or past the event id.
	ErrStale = errors.New("event is not newer than last applied event")
	// ErrConflict means the booking left the expected status or payment status
	// before the write landed.
	ErrConflict = errors.New("booking status changed concurrently")
	// ErrNotModifiable is returned when editing a canceled booking.
	ErrNotModifiable = errors.New("booking can no longer be modified")
	// ErrStoreUnavailable wraps every driver level failure. Callers treat it as transient.
	ErrStoreUnavailable = errors.New("booking store unavailable")
)

// BookingRepository is the persistence contract of the booking service.
type BookingRepository interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	Create(ctx context.Context, booking *models.Booking) error
	// Update writes the editable fields of booking unless it is canceled.
	Update(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	// Cancel moves a PENDING or CONFIRMED booking to CANCELED. The bool is
	// false when the booking was already canceled.
	Cancel(ctx context.Context, id string) (*models.Booking, bool, error)
	List(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error)
	// UpdateIfEventNewer writes patch and advances lastAppliedEventId in one
	// conditional update. It fails with ErrStale, ErrConflict or
	// ErrBookingNotFound when the condition does not hold.
	UpdateIfEventNewer(ctx context.Context, id string, eventID int64, expected models.BookingStatus, expectedPayment models.PaymentStatus, patch models.LifecyclePatch) (*models.Booking, error)
}
