package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Booking endpoints
	CreateBookingHandler gin.HandlerFunc
	ListBookingsHandler  gin.HandlerFunc
	GetBookingHandler    gin.HandlerFunc
	UpdateBookingHandler gin.HandlerFunc
	CancelBookingHandler gin.HandlerFunc

	// Payment provider webhooks; nil when no signing secret is configured.
	StripeWebhookHandler gin.HandlerFunc

	HealthHandler gin.HandlerFunc
}

// NewHandlerBundle assembles the bundle. webhook may be nil.
func NewHandlerBundle(bookings *BookingHandler, webhook *StripeWebhookHandler) *HandlerBundle {
	hb := &HandlerBundle{
		CreateBookingHandler: bookings.CreateBookingHandler,
		ListBookingsHandler:  bookings.ListBookingsHandler,
		GetBookingHandler:    bookings.GetBookingHandler,
		UpdateBookingHandler: bookings.UpdateBookingHandler,
		CancelBookingHandler: bookings.CancelBookingHandler,
		HealthHandler:        HealthHandler,
	}
	if webhook != nil {
		hb.StripeWebhookHandler = webhook.HandleWebhook
	}
	return hb
}
