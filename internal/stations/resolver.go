package stations

import (
	"context"
	"strings"
	"time"

	"github.com/fuelmap/fuelmap/internal/geocode"
	"github.com/fuelmap/fuelmap/internal/idgen"
)

// proximityRadiusMeters bounds the dedup search: two submissions that
// geocode within this distance are candidates for the same outlet.
const proximityRadiusMeters = 300

// Resolver maps a user-supplied station name and raw address onto an
// existing station, or creates one when nothing nearby matches.
type Resolver struct {
	store    Store
	geocoder geocode.Geocoder
	now      func() time.Time
	newID    func() string
}

// NewResolver creates a station resolver.
func NewResolver(store Store, geocoder geocode.Geocoder) *Resolver {
	return &Resolver{
		store:    store,
		geocoder: geocoder,
		now:      time.Now,
		newID:    func() string { return idgen.WithPrefix("stn_") },
	}
}

// Resolve geocodes the raw address and returns the matching station,
// creating one at the geocoded point when no existing station within
// 300 meters matches the name or address. The created flag reports
// which path was taken. The new station is persisted before return.
//
// Fails with geocode.ErrNoLocation when the address yields no results.
func (r *Resolver) Resolve(ctx context.Context, name, rawAddress string) (*Station, bool, error) {
	results, err := r.geocoder.Search(ctx, rawAddress)
	if err != nil {
		return nil, false, err
	}
	if len(results) == 0 {
		return nil, false, geocode.ErrNoLocation
	}
	top := results[0]

	nearby, err := r.store.FindNearby(ctx, top.Lat, top.Lon, proximityRadiusMeters, 0)
	if err != nil {
		return nil, false, err
	}
	segment := firstAddressSegment(rawAddress)
	for _, s := range nearby {
		if matchesNameOrAddress(s, name, segment) {
			return s, false, nil
		}
	}

	address := top.DisplayName
	if address == "" {
		address = rawAddress
	}
	station := &Station{
		ID:        r.newID(),
		Name:      name,
		Address:   address,
		Lat:       top.Lat,
		Lon:       top.Lon,
		Prices:    []Price{},
		CreatedAt: r.now(),
	}
	if err := r.store.Create(ctx, station); err != nil {
		return nil, false, err
	}
	return station, true, nil
}

// firstAddressSegment returns the text before the first comma, trimmed.
// Users tend to lead with the street; the tail is city/state noise that
// defeats substring matching.
func firstAddressSegment(address string) string {
	if i := strings.Index(address, ","); i >= 0 {
		address = address[:i]
	}
	return strings.TrimSpace(address)
}

// matchesNameOrAddress reports whether a station fuzzily matches a
// submitted name or address segment: case-insensitive substring on the
// station name, or on the stored address. Empty inputs never match.
func matchesNameOrAddress(s *Station, name, addressSegment string) bool {
	if name != "" && strings.Contains(strings.ToLower(s.Name), strings.ToLower(name)) {
		return true
	}
	if addressSegment != "" && strings.Contains(strings.ToLower(s.Address), strings.ToLower(addressSegment)) {
		return true
	}
	return false
}
