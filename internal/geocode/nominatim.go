package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fuelmap/fuelmap/internal/circuitbreaker"
	"github.com/fuelmap/fuelmap/internal/metrics"
	"github.com/fuelmap/fuelmap/internal/retry"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "fuelmap/1.0 (fuel price backend)"
	breakerKey       = "nominatim"
	maxResults       = 5
)

// NominatimClient queries the Nominatim search API. Requests are
// retried with backoff and guarded by a circuit breaker so a dead
// upstream fails fast instead of stalling every submission.
type NominatimClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	breaker   *circuitbreaker.Breaker
	logger    *slog.Logger
}

var _ Geocoder = (*NominatimClient)(nil)

// NominatimOption configures a NominatimClient.
type NominatimOption func(*NominatimClient)

// WithBaseURL overrides the Nominatim endpoint (used in tests and for
// self-hosted instances).
func WithBaseURL(u string) NominatimOption {
	return func(c *NominatimClient) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) NominatimOption {
	return func(c *NominatimClient) { c.http = h }
}

// WithUserAgent sets the User-Agent header. Nominatim's usage policy
// requires an identifying agent.
func WithUserAgent(ua string) NominatimOption {
	return func(c *NominatimClient) { c.userAgent = ua }
}

// NewNominatimClient creates a client against the public Nominatim
// instance unless overridden.
func NewNominatimClient(logger *slog.Logger, opts ...NominatimOption) *NominatimClient {
	c := &NominatimClient{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
		breaker:   circuitbreaker.New(5, 30*time.Second),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nominatimResult mirrors the wire format: coordinates arrive as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search queries Nominatim for the free-text query and returns up to
// maxResults candidates in relevance order. A query that matches
// nothing returns an empty slice and a nil error.
func (c *NominatimClient) Search(ctx context.Context, query string) ([]Result, error) {
	if !c.breaker.Allow(breakerKey) {
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	u := fmt.Sprintf("%s/search?q=%s&format=json&limit=%d",
		c.baseURL, url.QueryEscape(query), maxResults)

	var raw []nominatimResult
	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(fmt.Errorf("geocode: unexpected status %d", resp.StatusCode))
		}

		raw = raw[:0]
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return retry.Permanent(fmt.Errorf("geocode: decode response: %w", err))
		}
		return nil
	})
	if err != nil {
		c.breaker.RecordFailure(breakerKey)
		metrics.GeocodeRequestsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("geocode request failed", "query", query, "error", err)
		return nil, err
	}
	c.breaker.RecordSuccess(breakerKey)
	metrics.GeocodeRequestsTotal.WithLabelValues("ok").Inc()

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue // Skip malformed entries rather than failing the batch.
		}
		results = append(results, Result{Lat: lat, Lon: lon, DisplayName: r.DisplayName})
	}
	return results, nil
}
