package booking

import (
	"context"

	"staybook/models"
)

// BookingService is the CRUD surface the HTTP layer calls.
type BookingService interface {
	CreateBooking(ctx context.Context, in models.CreateBookingInput) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error)
	UpdateBooking(ctx context.Context, id string, patch models.BookingPatch) (*models.Booking, error)
	CancelBooking(ctx context.Context, id string) (*models.Booking, error)
}

// LifecyclePublisher announces booking lifecycle changes. Implementations
// must not block and must not report failures to the caller.
type LifecyclePublisher interface {
	Publish(event LifecycleEvent, b models.Booking)
}
