package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taqo-app/taqo-backend/internal/repository"
	"github.com/taqo-app/taqo-backend/internal/service"
)

// SpotHandler exposes the seller- and buyer-facing spot operations.
// JWT authentication has already run; the caller id comes from the
// request context.
type SpotHandler struct {
	spots *service.SpotService
}

// NewSpotHandler constructs a SpotHandler.
func NewSpotHandler(spots *service.SpotService) *SpotHandler {
	return &SpotHandler{spots: spots}
}

// Create handles POST /v1/spots.  The caller becomes the seller of the
// new offer.
func (h *SpotHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		QueueName   string `json:"queueName"`
		Progress    int    `json:"progress"`
		SellerPrice int    `json:"sellerPrice"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.QueueName == "" || body.SellerPrice <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "queueName and sellerPrice are required"})
	}
	spot, err := h.spots.CreateOffer(c.Request().Context(), userID, body.QueueName, body.Progress, body.SellerPrice)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, spot)
}

// UpdatePrice handles POST /v1/spots/:id/price.  Progress and ask move
// together; the derived buyer price is written in the same update.
func (h *SpotHandler) UpdatePrice(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Progress    int `json:"progress"`
		SellerPrice int `json:"sellerPrice"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.SellerPrice <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sellerPrice is required"})
	}
	if err := h.spots.UpdateSellerPrice(c.Request().Context(), c.Param("id"), body.Progress, body.SellerPrice); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AcceptPrice handles POST /v1/spots/:id/accept-price, the seller
// taking a buyer's suggested price.
func (h *SpotHandler) AcceptPrice(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		SellerPrice int `json:"sellerPrice"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.SellerPrice <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sellerPrice is required"})
	}
	if err := h.spots.AcceptSuggestedPrice(c.Request().Context(), c.Param("id"), body.SellerPrice); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SuggestPrice handles POST /v1/spots/:id/suggest-price, a buyer
// registering interest at a lower price.
func (h *SpotHandler) SuggestPrice(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		BuyerPrice float64 `json:"buyerPrice"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.BuyerPrice <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "buyerPrice is required"})
	}
	if err := h.spots.SuggestPrice(c.Request().Context(), c.Param("id"), userID, body.BuyerPrice); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Reserve handles POST /v1/spots/:id/reserve.  The mobile client calls
// this when the buyer enters checkout so the spot is held while the
// payment sheet is open; the stale reservation sweep frees abandoned
// holds.
func (h *SpotHandler) Reserve(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	err := h.spots.Reserve(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrConflict) {
		err = service.ErrSpotUnavailable
	}
	if err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Free handles POST /v1/spots/:id/free, the buyer backing out of
// checkout before paying.
func (h *SpotHandler) Free(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	err := h.spots.Release(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrConflict) {
		err = service.ErrFailedToFreeSpot
	}
	if err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReportIssue handles POST /v1/spots/:id/report-issue, a buyer
// flagging that the seller could not be found.
func (h *SpotHandler) ReportIssue(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.spots.ReportIssue(c.Request().Context(), c.Param("id"), userID); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
