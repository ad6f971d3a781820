// Package geocode resolves free-text addresses to coordinates.
//
// The backend treats the geocoder as a black box: a query either yields
// an ordered list of candidate locations or it doesn't. Zero results is
// not an error at this layer; callers decide what an empty answer means.
package geocode

import (
	"context"
	"errors"
)

// ErrNoLocation is returned by callers (notably the station resolver)
// when a query yields no usable location.
var ErrNoLocation = errors.New("geocode: no location found for address")

// ErrUnavailable indicates the upstream geocoding service could not be
// reached (timeout, network failure, or an open circuit).
var ErrUnavailable = errors.New("geocode: service unavailable")

// Result is one candidate location, ordered by relevance upstream.
type Result struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"displayName"`
}

// Geocoder searches for locations matching a free-text query.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]Result, error)
}
