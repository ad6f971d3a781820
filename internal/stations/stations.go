// Package stations holds the station/price model and station resolution.
//
// A Station owns its Price records: prices are embedded, appended in
// submission order and never deleted, only transitioned between
// moderation states. The resolver deduplicates stations by geographic
// proximity plus name/address similarity so the same physical outlet is
// not recorded twice under differently phrased addresses.
package stations

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates a station ID does not resolve.
	ErrNotFound = errors.New("stations: station not found")
	// ErrPriceNotFound indicates a price ID does not exist on the station.
	ErrPriceNotFound = errors.New("stations: price entry not found")
	// ErrExists indicates a duplicate station ID on create.
	ErrExists = errors.New("stations: station already exists")
)

// Fuel types sold at stations.
const (
	FuelPMS = "PMS" // petrol
	FuelAGO = "AGO" // diesel
	FuelLPG = "LPG" // cooking gas
)

// FuelTypes lists the accepted fuel type values.
var FuelTypes = []string{FuelPMS, FuelAGO, FuelLPG}

// Queue status values reported by submitters.
const (
	QueueNone  = "no-queue"
	QueueShort = "short"
	QueueLong  = "long"
)

// QueueStatuses lists the accepted queue status values.
var QueueStatuses = []string{QueueNone, QueueShort, QueueLong}

// Price bounds in naira.
const (
	MinPrice = 50
	MaxPrice = 2000
)

// NormalizeQueueStatus maps legacy spellings ("no queue") onto the
// canonical hyphenated form and defaults empty input to QueueNone.
func NormalizeQueueStatus(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "", "no queue":
		return QueueNone
	default:
		return s
	}
}

// Price is one fuel price report, embedded in its station.
type Price struct {
	ID          string     `json:"id"`
	FuelType    string     `json:"fuelType"`
	Amount      float64    `json:"price"`
	QueueStatus string     `json:"queueStatus"`
	SubmittedBy string     `json:"submittedBy"`
	SubmittedAt time.Time  `json:"submittedAt"`
	Moderation  Moderation `json:"-"`
	Downvotes   []string   `json:"downvotes,omitempty"`
}

// HasDownvote reports whether userID already downvoted this price.
func (p *Price) HasDownvote(userID string) bool {
	for _, id := range p.Downvotes {
		if id == userID {
			return true
		}
	}
	return false
}

// Station is a physical fuel outlet.
type Station struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Prices    []Price   `json:"prices"`
	CreatedAt time.Time `json:"createdAt"`
}

// FindPrice returns a pointer into s.Prices for the given price ID.
func (s *Station) FindPrice(priceID string) (*Price, bool) {
	for i := range s.Prices {
		if s.Prices[i].ID == priceID {
			return &s.Prices[i], true
		}
	}
	return nil, false
}

// ApprovedAmounts returns the approved price amounts for one fuel type,
// in submission order. This is the history the anomaly detector reads.
func (s *Station) ApprovedAmounts(fuelType string) []float64 {
	var out []float64
	for i := range s.Prices {
		p := &s.Prices[i]
		if p.FuelType == fuelType && p.Moderation.Status() == StatusApproved {
			out = append(out, p.Amount)
		}
	}
	return out
}

// LastPriceBy returns the most recent price submitted by userID, or nil.
func (s *Station) LastPriceBy(userID string) *Price {
	for i := len(s.Prices) - 1; i >= 0; i-- {
		if s.Prices[i].SubmittedBy == userID {
			return &s.Prices[i]
		}
	}
	return nil
}

// HasFlaggedOrDownvoted reports whether any price entry is flagged or
// carries at least one downvote. Used for the admin review queue.
func (s *Station) HasFlaggedOrDownvoted() bool {
	for i := range s.Prices {
		if s.Prices[i].Moderation.Flagged() || len(s.Prices[i].Downvotes) > 0 {
			return true
		}
	}
	return false
}

// HasPendingPrice reports whether any price entry awaits review.
func (s *Station) HasPendingPrice() bool {
	for i := range s.Prices {
		if s.Prices[i].Moderation.Status() == StatusPending {
			return true
		}
	}
	return false
}

// ListFilter narrows and pages the station listing.
type ListFilter struct {
	Name     string   // case-insensitive substring on station name
	FuelType string   // match prices with this fuel type
	MinPrice *float64 // match prices >= this amount
	MaxPrice *float64 // match prices <= this amount
	Page     int      // 1-based
	Limit    int
}

// Matches reports whether a station passes the filter's predicates
// (ignoring pagination). Price predicates match if any single price
// entry satisfies all of them together.
func (f ListFilter) Matches(s *Station) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.FuelType == "" && f.MinPrice == nil && f.MaxPrice == nil {
		return true
	}
	for i := range s.Prices {
		p := &s.Prices[i]
		if f.FuelType != "" && p.FuelType != f.FuelType {
			continue
		}
		if f.MinPrice != nil && p.Amount < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.Amount > *f.MaxPrice {
			continue
		}
		return true
	}
	return false
}

// Store persists stations. A station and its embedded price list are
// saved atomically by Update.
type Store interface {
	Create(ctx context.Context, s *Station) error
	GetByID(ctx context.Context, id string) (*Station, error)
	Update(ctx context.Context, s *Station) error
	Delete(ctx context.Context, id string) error

	// FindNearby returns stations within radiusMeters of the point,
	// nearest first, capped at limit.
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]*Station, error)

	// List returns one page of stations (newest first) and the total
	// count of stations matching the filter.
	List(ctx context.Context, f ListFilter) ([]*Station, int, error)

	// Search finds stations whose name contains name or whose address
	// contains addressSegment, case-insensitive, capped at limit.
	Search(ctx context.Context, name, addressSegment string, limit int) ([]*Station, error)

	// ListPending returns stations with at least one pending price.
	ListPending(ctx context.Context) ([]*Station, error)

	// ListFlagged returns stations with flagged or downvoted prices.
	ListFlagged(ctx context.Context) ([]*Station, error)
}
