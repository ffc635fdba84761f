package router // package router defines how HTTP routes are registered for the API

import (
	"time"

	"github.com/labstack/echo/v4" // Echo web framework used for routing
	"github.com/redis/go-redis/v9"

	"github.com/taqo-app/taqo-backend/internal/handler"    // HTTP handlers implementing the API
	"github.com/taqo-app/taqo-backend/internal/middleware" // JWT auth and rate limiting middleware
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance: the health check and the gateway webhook
// endpoints (those authenticate by signature, not by bearer token).
func RegisterRoutes(e *echo.Echo, wh *handler.WebhookHandler) {
	e.GET("/healthz", handler.Health)
	e.POST("/webhooks/stripe", wh.Stripe)
	e.POST("/webhooks/paypal", wh.PayPal)
}

// RegisterAPI registers the authenticated marketplace routes under /v1.
// Booking endpoints additionally carry a per-user rate limit because
// they move money.
func RegisterAPI(e *echo.Echo, spots *handler.SpotHandler, booking *handler.BookingHandler,
	account *handler.AccountHandler, jwtSecret string, rdb *redis.Client) {
	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))

	v1.POST("/spots", spots.Create)
	v1.POST("/spots/:id/price", spots.UpdatePrice)
	v1.POST("/spots/:id/accept-price", spots.AcceptPrice)
	v1.POST("/spots/:id/suggest-price", spots.SuggestPrice)
	v1.POST("/spots/:id/reserve", spots.Reserve)
	v1.POST("/spots/:id/free", spots.Free)
	v1.POST("/spots/:id/report-issue", spots.ReportIssue)

	limited := v1.Group("", middleware.RateLimit(rdb, 10, time.Minute))
	limited.POST("/spots/:id/payment-sheet", booking.PaymentSheet)
	limited.POST("/spots/:id/paypal-order", booking.PayPalOrder)
	limited.POST("/spots/:id/book/stripe", booking.BookStripe)
	limited.POST("/spots/:id/book/paypal", booking.BookPayPal)

	v1.DELETE("/account", account.Delete)
}
