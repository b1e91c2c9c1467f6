package routes

import (
	"time"

	"staybook/handlers"
	"staybook/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
}

// RegisterWebhookRoutes registers payment provider callbacks. They skip the
// rate limiter since the provider retries on 429 anyway.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	if hb.StripeWebhookHandler == nil {
		return
	}
	r.POST("/webhooks/stripe", hb.StripeWebhookHandler)
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, requestsPerMin int) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	RegisterHealthRoute(r, hb)
	RegisterWebhookRoutes(r, hb)

	r.Use(middleware.RateLimitMiddleware(requestsPerMin))
	RegisterBookingRoutes(r, hb)
}
