package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the fuelmap API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // API key, e.g. "fk_..."
}

// FuelMapClient is a pure HTTP client for the fuelmap API.
type FuelMapClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewFuelMapClient creates a new client for the fuelmap API.
func NewFuelMapClient(cfg Config) *FuelMapClient {
	return &FuelMapClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *FuelMapClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ListStations returns the station listing, optionally filtered.
func (c *FuelMapClient) ListStations(ctx context.Context, name, fuelType, maxPrice string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if fuelType != "" {
		q.Set("fuelType", fuelType)
	}
	if maxPrice != "" {
		q.Set("maxPrice", maxPrice)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/stations", q, nil)
}

// NearbyStations returns stations within a radius of a point, nearest first.
func (c *FuelMapClient) NearbyStations(ctx context.Context, lat, lon, radius float64) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	if radius > 0 {
		q.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/stations/nearby", q, nil)
}

// SearchStations searches stations by name or address.
func (c *FuelMapClient) SearchStations(ctx context.Context, query, address string) (json.RawMessage, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if address != "" {
		q.Set("address", address)
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/stations/search", q, nil)
}

// SubmitPrice reports a fuel price observation for a station.
func (c *FuelMapClient) SubmitPrice(ctx context.Context, name, address, fuelType string, price float64, queueStatus string) (json.RawMessage, error) {
	body := map[string]any{
		"name":     name,
		"address":  address,
		"fuelType": fuelType,
		"price":    price,
	}
	if queueStatus != "" {
		body["queueStatus"] = queueStatus
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/prices", nil, body)
}

// ReportPrice downvotes a price entry as inaccurate.
func (c *FuelMapClient) ReportPrice(ctx context.Context, stationID, priceID string) (json.RawMessage, error) {
	body := map[string]string{
		"stationId": stationID,
		"priceId":   priceID,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/prices/report", nil, body)
}

// GetBadgeSummary returns the trust level, reputation and badges for a user.
// Pass "me" for the authenticated user.
func (c *FuelMapClient) GetBadgeSummary(ctx context.Context, userID string) (json.RawMessage, error) {
	path := "/v1/users/" + userID + "/badges"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// ListBadges returns the full badge catalog.
func (c *FuelMapClient) ListBadges(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/badges", nil, nil)
}
