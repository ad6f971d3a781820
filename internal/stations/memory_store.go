package stations

import (
	"context"
	"sort"
	"sync"

	"github.com/golang/geo/s2"
)

const earthRadiusMeters = 6371010

// distanceMeters returns the great-circle distance between two points.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * earthRadiusMeters
}

// MemoryStore is an in-memory station store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	stations map[string]*Station
	order    []string // insertion order, for stable newest-first listing
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory station store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stations: make(map[string]*Station)}
}

func cloneStation(s *Station) *Station {
	out := *s
	out.Prices = make([]Price, len(s.Prices))
	for i, p := range s.Prices {
		out.Prices[i] = p
		if p.Downvotes != nil {
			out.Prices[i].Downvotes = append([]string(nil), p.Downvotes...)
		}
	}
	return &out
}

// Create adds a new station.
func (m *MemoryStore) Create(_ context.Context, s *Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stations[s.ID]; ok {
		return ErrExists
	}
	m.stations[s.ID] = cloneStation(s)
	m.order = append(m.order, s.ID)
	return nil
}

// GetByID returns a copy of a station by ID.
func (m *MemoryStore) GetByID(_ context.Context, id string) (*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneStation(s), nil
}

// Update replaces a station record.
func (m *MemoryStore) Update(_ context.Context, s *Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stations[s.ID]; !ok {
		return ErrNotFound
	}
	m.stations[s.ID] = cloneStation(s)
	return nil
}

// Delete removes a station.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stations[id]; !ok {
		return ErrNotFound
	}
	delete(m.stations, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// FindNearby returns stations within radiusMeters of the point, nearest
// first.
func (m *MemoryStore) FindNearby(_ context.Context, lat, lon, radiusMeters float64, limit int) ([]*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type hit struct {
		station *Station
		dist    float64
	}
	var hits []hit
	for _, s := range m.stations {
		d := distanceMeters(lat, lon, s.Lat, s.Lon)
		if d <= radiusMeters {
			hits = append(hits, hit{cloneStation(s), d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]*Station, len(hits))
	for i, h := range hits {
		out[i] = h.station
	}
	return out, nil
}

// newestFirst returns all stations ordered the way the SQL store lists
// them, created_at descending. Ties keep reverse insertion order.
// The caller must hold at least a read lock.
func (m *MemoryStore) newestFirst() []*Station {
	out := make([]*Station, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if s, ok := m.stations[m.order[i]]; ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// List returns one page of stations, newest first, plus the total count
// of stations matching the filter.
func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]*Station, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Station
	for _, s := range m.newestFirst() {
		if f.Matches(s) {
			matched = append(matched, s)
		}
	}
	total := len(matched)

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= total {
		return []*Station{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*Station, 0, end-start)
	for _, s := range matched[start:end] {
		out = append(out, cloneStation(s))
	}
	return out, total, nil
}

// Search finds stations by name or address substring, case-insensitive.
func (m *MemoryStore) Search(_ context.Context, name, addressSegment string, limit int) ([]*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Station
	for _, s := range m.newestFirst() {
		if matchesNameOrAddress(s, name, addressSegment) {
			out = append(out, cloneStation(s))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ListPending returns stations with at least one pending price.
func (m *MemoryStore) ListPending(_ context.Context) ([]*Station, error) {
	return m.listWhere(func(s *Station) bool { return s.HasPendingPrice() })
}

// ListFlagged returns stations with flagged or downvoted prices.
func (m *MemoryStore) ListFlagged(_ context.Context) ([]*Station, error) {
	return m.listWhere((*Station).HasFlaggedOrDownvoted)
}

func (m *MemoryStore) listWhere(pred func(*Station) bool) ([]*Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Station
	for _, s := range m.newestFirst() {
		if pred(s) {
			out = append(out, cloneStation(s))
		}
	}
	return out, nil
}
