package stations

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fuelmap/fuelmap/internal/auth"
	"github.com/fuelmap/fuelmap/internal/geocode"
	"github.com/fuelmap/fuelmap/internal/idgen"
	"github.com/fuelmap/fuelmap/internal/validation"
)

const (
	defaultNearbyRadius = 5000 // meters
	maxNearbyResults    = 20
	searchResultLimit   = 5
)

// Handler provides the public and admin station endpoints.
type Handler struct {
	store    Store
	geocoder geocode.Geocoder
}

// NewHandler creates a new stations handler.
func NewHandler(store Store, geocoder geocode.Geocoder) *Handler {
	return &Handler{store: store, geocoder: geocoder}
}

// RegisterRoutes sets up public station endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/stations", h.ListStations)
	r.GET("/stations/nearby", h.Nearby)
	r.GET("/stations/search", h.Search)
}

// RegisterAdminRoutes sets up admin station management endpoints.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/stations", h.AdminListStations)
	r.POST("/stations", h.CreateStation)
	r.GET("/stations/flagged", h.ListFlagged)
	r.DELETE("/stations/:id", h.DeleteStation)
	r.PATCH("/stations/:id/price", h.AppendPrice)
}

// Nearby returns stations within a radius of a point, nearest first.
// GET /v1/stations/nearby?lat=&lon=&radius=
func (h *Handler) Nearby(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_coordinates",
			"message": "lat and lon query parameters are required",
		})
		return
	}
	if errs := validation.Validate(
		validation.Latitude("lat", lat),
		validation.Longitude("lon", lon),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": errs})
		return
	}

	radius := float64(defaultNearbyRadius)
	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_radius",
				"message": "radius must be a positive number of meters",
			})
			return
		}
		radius = r
	}

	stations, err := h.store.FindNearby(c.Request.Context(), lat, lon, radius, maxNearbyResults)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to query stations",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stations": stations})
}

// ListStations returns a paginated, filterable station listing.
// GET /v1/stations?page=&limit=&name=&fuelType=&minPrice=&maxPrice=
func (h *Handler) ListStations(c *gin.Context) {
	f := ListFilter{
		Name:     validation.SanitizeString(c.Query("name"), 200),
		FuelType: c.Query("fuelType"),
		Page:     1,
		Limit:    20,
	}
	if f.FuelType != "" {
		if errs := validation.Validate(
			validation.OneOf("fuelType", f.FuelType, FuelTypes...),
		); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": errs})
			return
		}
	}
	if raw := c.Query("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			f.Page = v
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 100 {
			f.Limit = v
		}
	}
	if raw := c.Query("minPrice"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			f.MinPrice = &v
		}
	}
	if raw := c.Query("maxPrice"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			f.MaxPrice = &v
		}
	}

	stations, total, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list stations",
		})
		return
	}
	pages := (total + f.Limit - 1) / f.Limit
	c.JSON(http.StatusOK, gin.H{
		"stations": stations,
		"total":    total,
		"page":     f.Page,
		"pages":    pages,
	})
}

// Search combines a local fuzzy lookup with an external geocoder search.
// GET /v1/stations/search?q=&address=
func (h *Handler) Search(c *gin.Context) {
	q := validation.SanitizeString(c.Query("q"), 200)
	address := validation.SanitizeString(c.Query("address"), 500)
	if q == "" && address == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_query",
			"message": "Provide q or address",
		})
		return
	}

	local, err := h.store.Search(c.Request.Context(), q, firstAddressSegment(address), searchResultLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Search failed",
		})
		return
	}

	// External results are best-effort; a geocoder outage degrades the
	// response to local matches only.
	external := []gin.H{}
	if results, err := h.geocoder.Search(c.Request.Context(), strings.TrimSpace(q+" "+address)); err == nil {
		for _, r := range results {
			external = append(external, gin.H{
				"name":    firstAddressSegment(r.DisplayName),
				"address": r.DisplayName,
				"lat":     r.Lat,
				"lon":     r.Lon,
				"source":  "external",
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{"local": local, "external": external})
}

// AdminListStations returns every station, newest first.
// GET /v1/admin/stations
func (h *Handler) AdminListStations(c *gin.Context) {
	stations, _, err := h.store.List(c.Request.Context(), ListFilter{Limit: 1000})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list stations",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stations": stations})
}

// CreateStation adds a station manually. The point defaults to a
// placeholder until someone geocodes it properly.
// POST /v1/admin/stations
func (h *Handler) CreateStation(c *gin.Context) {
	var req struct {
		Name    string  `json:"name"`
		Address string  `json:"address"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}
	if errs := validation.Validate(
		validation.Required("name", req.Name),
		validation.Required("address", req.Address),
		validation.Latitude("lat", req.Lat),
		validation.Longitude("lon", req.Lon),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": errs})
		return
	}

	station := &Station{
		ID:        idgen.WithPrefix("stn_"),
		Name:      validation.SanitizeString(req.Name, 200),
		Address:   validation.SanitizeString(req.Address, 500),
		Lat:       req.Lat,
		Lon:       req.Lon,
		Prices:    []Price{},
		CreatedAt: time.Now(),
	}
	if err := h.store.Create(c.Request.Context(), station); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create station",
		})
		return
	}
	c.JSON(http.StatusCreated, station)
}

// DeleteStation removes a station and its prices.
// DELETE /v1/admin/stations/:id
func (h *Handler) DeleteStation(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "station_not_found",
			"message": "Station not found",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to delete station",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Station deleted"})
}

// AppendPrice records an admin-entered price. It enters approved and
// skips the anomaly check and cooldown that user submissions go through.
// PATCH /v1/admin/stations/:id/price
func (h *Handler) AppendPrice(c *gin.Context) {
	var req struct {
		FuelType    string  `json:"fuelType"`
		Price       float64 `json:"price"`
		QueueStatus string  `json:"queueStatus"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}
	req.QueueStatus = NormalizeQueueStatus(req.QueueStatus)
	if errs := validation.Validate(
		validation.Required("fuelType", req.FuelType),
		validation.OneOf("fuelType", req.FuelType, FuelTypes...),
		validation.FloatRange("price", req.Price, MinPrice, MaxPrice),
		validation.OneOf("queueStatus", req.QueueStatus, QueueStatuses...),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": errs})
		return
	}

	ctx := c.Request.Context()
	station, err := h.store.GetByID(ctx, c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "station_not_found",
			"message": "Station not found",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load station",
		})
		return
	}

	station.Prices = append(station.Prices, Price{
		ID:          idgen.WithPrefix("prc_"),
		FuelType:    req.FuelType,
		Amount:      req.Price,
		QueueStatus: req.QueueStatus,
		SubmittedBy: auth.UserID(c),
		SubmittedAt: time.Now(),
		Moderation:  Approved(),
	})
	if err := h.store.Update(ctx, station); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to update station",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Price updated", "station": station})
}

// ListFlagged returns stations carrying flagged or downvoted prices.
// GET /v1/admin/stations/flagged
func (h *Handler) ListFlagged(c *gin.Context) {
	stations, err := h.store.ListFlagged(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list flagged stations",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stations": stations})
}
