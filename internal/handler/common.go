// Package handler contains the Echo HTTP handlers for the marketplace
// API and the payment-gateway webhooks.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taqo-app/taqo-backend/internal/repository"
	"github.com/taqo-app/taqo-backend/internal/service"
)

// getUserID extracts the authenticated caller injected by the JWT
// middleware.
func getUserID(c echo.Context) (string, error) {
	if v, ok := c.Get("user_id").(string); ok && v != "" {
		return v, nil
	}
	return "", errors.New("no user in context")
}

// serviceError maps domain errors to their stable caller-facing codes.
// Clients dispatch on the error string, so the codes here are API
// contract and must not change.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrSpotUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "spot_unavailable"})
	case errors.Is(err, service.ErrInvalidSpotPrice):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_spot_price"})
	case errors.Is(err, service.ErrSpotUnavailableCharged):
		return c.JSON(http.StatusConflict, echo.Map{"error": "spot_unavailable/charged"})
	case errors.Is(err, service.ErrPaymentFailed):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment_failed"})
	case errors.Is(err, service.ErrUserHasActiveOffer):
		return c.JSON(http.StatusConflict, echo.Map{"error": "user_has_active_offer"})
	case errors.Is(err, service.ErrFailedToFreeSpot):
		return c.JSON(http.StatusConflict, echo.Map{"error": "failed_to_free_spot"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	default:
		c.Logger().Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
	}
}
