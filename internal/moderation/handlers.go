package moderation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fuelmap/fuelmap/internal/auth"
	"github.com/fuelmap/fuelmap/internal/geocode"
	"github.com/fuelmap/fuelmap/internal/stations"
	"github.com/fuelmap/fuelmap/internal/users"
	"github.com/fuelmap/fuelmap/internal/validation"
)

// Handler provides the submission, reporting and review endpoints.
type Handler struct {
	workflow *Workflow
}

// NewHandler creates a new moderation handler.
func NewHandler(workflow *Workflow) *Handler {
	return &Handler{workflow: workflow}
}

// RegisterProtectedRoutes sets up endpoints that need an authenticated user.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/prices", h.SubmitPrice)
	r.POST("/prices/report", h.ReportPrice)
}

// RegisterAdminRoutes sets up the admin review endpoints.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/prices/pending", h.ListPending)
	r.POST("/prices/review", h.ReviewPrice)
}

// SubmitPrice records a fuel price report.
// POST /v1/prices
func (h *Handler) SubmitPrice(c *gin.Context) {
	var req struct {
		Name        string  `json:"name"`
		Address     string  `json:"address"`
		FuelType    string  `json:"fuelType"`
		Price       float64 `json:"price"`
		QueueStatus string  `json:"queueStatus"`
		HasImage    bool    `json:"hasImage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}

	result, err := h.workflow.SubmitPrice(c.Request.Context(), SubmitRequest{
		UserID:      auth.UserID(c),
		StationName: validation.SanitizeString(req.Name, 200),
		Address:     validation.SanitizeString(req.Address, 500),
		FuelType:    req.FuelType,
		Price:       req.Price,
		QueueStatus: req.QueueStatus,
		HasImage:    req.HasImage,
	})
	if err != nil {
		h.submitError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Price submitted",
		"station": result.Station,
		"price":   result.Price,
		"created": result.CreatedStation,
		"flagged": result.Flagged,
	})
}

func (h *Handler) submitError(c *gin.Context, err error) {
	var verrs validation.ValidationErrors
	var cooldown *CooldownError
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": verrs,
		})
	case errors.Is(err, geocode.ErrNoLocation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "geocode_failed",
			"message": "Could not find a valid location for that address",
		})
	case errors.As(err, &cooldown):
		c.Header("Retry-After", strconv.Itoa(int(cooldown.RetryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      "rate_limited",
			"message":    "You can only update this station every 10 minutes",
			"retryAfter": int(cooldown.RetryAfter.Seconds()),
		})
	case errors.Is(err, geocode.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "geocoder_unavailable",
			"message": "Location lookup is temporarily unavailable",
		})
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "user_not_found",
			"message": "User not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to submit price",
		})
	}
}

// ReportPrice records a community downvote on a price entry.
// POST /v1/prices/report
func (h *Handler) ReportPrice(c *gin.Context) {
	var req struct {
		StationID string `json:"stationId"`
		PriceID   string `json:"priceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}
	if errs := validation.Validate(
		validation.Required("stationId", req.StationID),
		validation.Required("priceId", req.PriceID),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": errs})
		return
	}

	price, err := h.workflow.ReportPrice(c.Request.Context(), auth.UserID(c), req.StationID, req.PriceID)
	switch {
	case errors.Is(err, stations.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "station_not_found",
			"message": "Station not found",
		})
	case errors.Is(err, stations.ErrPriceNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "price_not_found",
			"message": "Price entry not found",
		})
	case errors.Is(err, ErrAlreadyReported):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_reported",
			"message": "You already reported this price",
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to report price",
		})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Price reported", "price": price})
	}
}

// ListPending returns stations that have prices awaiting review.
// GET /v1/admin/prices/pending
func (h *Handler) ListPending(c *gin.Context) {
	pending, err := h.workflow.PendingStations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list pending prices",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stations": pending})
}

// ReviewPrice applies an admin approve/reject decision.
// POST /v1/admin/prices/review
func (h *Handler) ReviewPrice(c *gin.Context) {
	var req struct {
		StationID string `json:"stationId"`
		PriceID   string `json:"priceId"`
		Action    string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}

	price, err := h.workflow.ReviewPrice(c.Request.Context(), req.StationID, req.PriceID, req.Action)
	switch {
	case errors.Is(err, ErrInvalidDecision):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_decision",
			"message": "action must be approve or reject",
		})
	case errors.Is(err, stations.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "station_not_found",
			"message": "Station not found",
		})
	case errors.Is(err, stations.ErrPriceNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "price_not_found",
			"message": "Price entry not found",
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to review price",
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message": "Price " + req.Action + "d",
			"price":   price,
		})
	}
}
