package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taqo-app/taqo-backend/internal/service"
)

// AccountHandler exposes account lifecycle operations.
type AccountHandler struct {
	booking *service.BookingService
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(booking *service.BookingService) *AccountHandler {
	return &AccountHandler{booking: booking}
}

// Delete handles DELETE /v1/account.  Refused while the caller still
// has open offers.
func (h *AccountHandler) Delete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.booking.DeleteUser(c.Request().Context(), userID); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
