package stations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fuelmap/fuelmap/internal/geocode"
)

// fakeGeocoder returns canned results per query.
type fakeGeocoder struct {
	results map[string][]geocode.Result
	err     error
}

func (f *fakeGeocoder) Search(_ context.Context, query string) ([]geocode.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func newTestResolver(geo *fakeGeocoder) (*Resolver, *MemoryStore) {
	store := NewMemoryStore()
	r := NewResolver(store, geo)
	r.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	n := 0
	r.newID = func() string { n++; return "stn_" + string(rune('a'+n-1)) }
	return r, store
}

func TestResolveCreatesNewStation(t *testing.T) {
	geo := &fakeGeocoder{results: map[string][]geocode.Result{
		"Admiralty Way, Lekki": {{Lat: 6.4478, Lon: 3.4723, DisplayName: "Admiralty Way, Lekki, Lagos"}},
	}}
	r, _ := newTestResolver(geo)

	station, created, err := r.Resolve(context.Background(), "Shell Express", "Admiralty Way, Lekki")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !created {
		t.Fatal("created = false, want true for empty store")
	}
	if station.Address != "Admiralty Way, Lekki, Lagos" {
		t.Errorf("address = %q, want geocoded display name", station.Address)
	}
	if station.Lat != 6.4478 || station.Lon != 3.4723 {
		t.Errorf("location = (%v, %v), want geocoded point", station.Lat, station.Lon)
	}
}

func TestResolveDeduplicatesNearbyStation(t *testing.T) {
	// Roughly 50 meters north of the first point.
	geo := &fakeGeocoder{results: map[string][]geocode.Result{
		"Admiralty Way, Lekki": {{Lat: 6.4478, Lon: 3.4723, DisplayName: "Admiralty Way, Lekki, Lagos"}},
		"Admiralty Way":        {{Lat: 6.44825, Lon: 3.4723, DisplayName: "Admiralty Way, Lagos"}},
	}}
	r, _ := newTestResolver(geo)
	ctx := context.Background()

	first, created, err := r.Resolve(ctx, "Shell Express", "Admiralty Way, Lekki")
	if err != nil || !created {
		t.Fatalf("first Resolve: created=%v err=%v", created, err)
	}

	second, created, err := r.Resolve(ctx, "Shell", "Admiralty Way")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if created {
		t.Fatal("created = true, want dedup onto existing station")
	}
	if second.ID != first.ID {
		t.Errorf("resolved to %q, want %q", second.ID, first.ID)
	}
}

func TestResolveFarPointCreatesNewStation(t *testing.T) {
	// Roughly 1000 meters away, and no name overlap.
	geo := &fakeGeocoder{results: map[string][]geocode.Result{
		"Admiralty Way, Lekki": {{Lat: 6.4478, Lon: 3.4723, DisplayName: "Admiralty Way, Lekki, Lagos"}},
		"Freedom Way, Lekki":   {{Lat: 6.4568, Lon: 3.4723, DisplayName: "Freedom Way, Lekki, Lagos"}},
	}}
	r, _ := newTestResolver(geo)
	ctx := context.Background()

	first, _, err := r.Resolve(ctx, "Shell Express", "Admiralty Way, Lekki")
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, created, err := r.Resolve(ctx, "Total Energies", "Freedom Way, Lekki")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if !created {
		t.Fatal("created = false, want a new station 1km away")
	}
	if second.ID == first.ID {
		t.Error("distinct outlets resolved to the same station")
	}
}

func TestResolveNearbyButUnrelatedName(t *testing.T) {
	// Same point, but neither name nor address segment overlaps.
	geo := &fakeGeocoder{results: map[string][]geocode.Result{
		"Plot 1 Fjord St":  {{Lat: 6.5, Lon: 3.3, DisplayName: "Fjord Street, Lagos"}},
		"Plot 2 Creek Ave": {{Lat: 6.5, Lon: 3.3, DisplayName: "Creek Avenue, Lagos"}},
	}}
	r, _ := newTestResolver(geo)
	ctx := context.Background()

	if _, _, err := r.Resolve(ctx, "Mobil", "Plot 1 Fjord St"); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	_, created, err := r.Resolve(ctx, "Oando", "Plot 2 Creek Ave")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if !created {
		t.Error("created = false, want new station when nothing matches by name or address")
	}
}

func TestResolveAddressSegmentMatch(t *testing.T) {
	// Different name, but the submitted address leads with the same street.
	geo := &fakeGeocoder{results: map[string][]geocode.Result{
		"Akin Adesola Street, VI": {{Lat: 6.428, Lon: 3.421, DisplayName: "Akin Adesola Street, Victoria Island, Lagos"}},
	}}
	r, _ := newTestResolver(geo)
	ctx := context.Background()

	first, _, err := r.Resolve(ctx, "NNPC Mega", "Akin Adesola Street, VI")
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, created, err := r.Resolve(ctx, "The Fuel Place", "Akin Adesola Street, VI")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if created || second.ID != first.ID {
		t.Errorf("created=%v id=%q, want address-segment dedup onto %q", created, second.ID, first.ID)
	}
}

func TestResolveNoLocation(t *testing.T) {
	r, _ := newTestResolver(&fakeGeocoder{results: map[string][]geocode.Result{}})

	_, _, err := r.Resolve(context.Background(), "Shell", "definitely not a place")
	if !errors.Is(err, geocode.ErrNoLocation) {
		t.Errorf("err = %v, want geocode.ErrNoLocation", err)
	}
}

func TestResolveGeocoderFailure(t *testing.T) {
	wantErr := errors.New("upstream down")
	r, _ := newTestResolver(&fakeGeocoder{err: wantErr})

	_, _, err := r.Resolve(context.Background(), "Shell", "anywhere")
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped upstream error", err)
	}
}
