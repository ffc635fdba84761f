package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taqo-app/taqo-backend/internal/service"
)

// BookingHandler exposes the payment and booking flows.  The caller is
// always the buyer.
type BookingHandler struct {
	booking *service.BookingService
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(booking *service.BookingService) *BookingHandler {
	return &BookingHandler{booking: booking}
}

// PaymentSheet handles POST /v1/spots/:id/payment-sheet.  It creates
// the pending transaction and returns the Stripe payment sheet bundle
// the mobile client charges with.
func (h *BookingHandler) PaymentSheet(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	result, err := h.booking.StripePaymentSheet(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// PayPalOrder handles POST /v1/spots/:id/paypal-order.  It creates the
// pending transaction and a PayPal order over the snapshotted price.
func (h *BookingHandler) PayPalOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	transactionID, orderID, err := h.booking.PayPalOrder(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"transactionId": transactionID,
		"orderId":       orderID,
	})
}

// BookStripe handles POST /v1/spots/:id/book/stripe, called after the
// client-side payment sheet confirmed the charge.
func (h *BookingHandler) BookStripe(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		TransactionID string `json:"transactionId"`
	}
	if err := c.Bind(&body); err != nil || body.TransactionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "transactionId is required"})
	}
	if err := h.booking.BookStripe(c.Request().Context(), c.Param("id"), body.TransactionID); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// BookPayPal handles POST /v1/spots/:id/book/paypal, called after the
// client approved the PayPal order.
func (h *BookingHandler) BookPayPal(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		TransactionID string `json:"transactionId"`
		OrderID       string `json:"orderId"`
	}
	if err := c.Bind(&body); err != nil || body.TransactionID == "" || body.OrderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "transactionId and orderId are required"})
	}
	if err := h.booking.BookPayPal(c.Request().Context(), c.Param("id"), body.TransactionID, body.OrderID); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
