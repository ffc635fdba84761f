package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/taqo-app/taqo-backend/internal/service"
)

// WebhookHandler receives and verifies gateway callbacks and applies
// them to the transaction state machine.  Both endpoints acknowledge
// with 200 on every verified event, including types we do not act on,
// so the gateways stop retrying.
type WebhookHandler struct {
	booking      *service.BookingService
	stripeSecret string
	verifyPayPal func(c echo.Context, body []byte) error
}

// NewWebhookHandler constructs a WebhookHandler.  verifyPayPal runs the
// signature check against PayPal before the event is applied.
func NewWebhookHandler(booking *service.BookingService, stripeSecret string,
	verifyPayPal func(c echo.Context, body []byte) error) *WebhookHandler {
	return &WebhookHandler{
		booking:      booking,
		stripeSecret: stripeSecret,
		verifyPayPal: verifyPayPal,
	}
}

// Stripe handles POST /webhooks/stripe.  The signature check uses the
// endpoint's signing secret; the transaction id travels in the payment
// object's metadata.
func (h *WebhookHandler) Stripe(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	event, err := webhook.ConstructEvent(payload, c.Request().Header.Get("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		c.Logger().Errorf("stripe webhook: invalid signature: %v", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_signature"})
	}

	var object struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event"})
	}
	transactionID := object.Metadata["transactionId"]
	if transactionID == "" {
		// Not one of ours; acknowledge so Stripe stops retrying.
		return c.String(http.StatusOK, "OK")
	}
	if err := h.booking.HandleStripeWebhook(c.Request().Context(), string(event.Type), transactionID); err != nil {
		return serviceError(c, err)
	}
	return c.String(http.StatusOK, "OK")
}

// PayPal handles POST /webhooks/paypal.  Only payouts-batch events are
// subscribed; the transaction id is the sender batch id set when the
// payout was initiated.
func (h *WebhookHandler) PayPal(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.verifyPayPal(c, body); err != nil {
		c.Logger().Errorf("paypal webhook: invalid signature: %v", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_signature"})
	}

	var event struct {
		EventType string `json:"event_type"`
		Resource  struct {
			BatchHeader struct {
				SenderBatchHeader struct {
					SenderBatchID string `json:"sender_batch_id"`
				} `json:"sender_batch_header"`
			} `json:"batch_header"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event"})
	}
	transactionID := event.Resource.BatchHeader.SenderBatchHeader.SenderBatchID
	if transactionID == "" {
		return c.String(http.StatusOK, "OK")
	}
	if err := h.booking.HandlePayPalWebhook(c.Request().Context(), event.EventType, transactionID); err != nil {
		return serviceError(c, err)
	}
	return c.String(http.StatusOK, "OK")
}
