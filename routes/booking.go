package routes

import (
	"staybook/handlers"

	"github.com/gin-gonic/gin"
)

// RegisterBookingRoutes registers the booking CRUD endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	booking := r.Group("/api/bookings")
	{
		booking.POST("", hb.CreateBookingHandler)
		booking.GET("", hb.ListBookingsHandler)
		booking.GET("/:id", hb.GetBookingHandler)
		booking.PATCH("/:id", hb.UpdateBookingHandler)
		booking.DELETE("/:id", hb.CancelBookingHandler)
	}
}
