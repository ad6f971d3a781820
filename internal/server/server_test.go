package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/fuelmap/fuelmap/internal/config"
	"github.com/fuelmap/fuelmap/internal/geocode"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubGeocoder implements geocode.Geocoder for testing
type stubGeocoder struct{}

func (stubGeocoder) Search(ctx context.Context, query string) ([]geocode.Result, error) {
	return []geocode.Result{
		{Lat: 6.45, Lon: 3.40, DisplayName: "12 Marina Road, Lagos Island, Lagos"},
	}, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		NominatimURL:    config.DefaultNominatimURL,
		GeocodeTimeout:  config.DefaultGeocodeTimeout,
		UserAgent:       config.DefaultUserAgent,
		RateLimitPerMin: 6000,
	}
}

// newTestServer creates a server with in-memory stores and a stub geocoder
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), WithGeocoder(stubGeocoder{}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// registerTestUser registers a user through the API and returns its ID and API key
func registerTestUser(t *testing.T, s *Server, username string) (userID, apiKey string) {
	t.Helper()

	body := `{"username":"` + username + `","email":"` + username + `@example.com"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/users", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("registration failed: %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return resp.User.ID, resp.APIKey
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"POST:/v1/users",
		"GET:/v1/stations",
		"GET:/v1/stations/nearby",
		"GET:/v1/stations/search",
		"GET:/v1/badges",
		"GET:/v1/users/:id/badges",
		"POST:/v1/prices",
		"POST:/v1/prices/report",
		"GET:/v1/admin/prices/pending",
		"POST:/v1/admin/prices/review",
		"GET:/v1/admin/stations",
		"POST:/v1/admin/stations",
		"DELETE:/v1/admin/stations/:id",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Registration and submission flow
// ---------------------------------------------------------------------------

func TestUserRegistration(t *testing.T) {
	s := newTestServer(t)

	userID, apiKey := registerTestUser(t, s, "ada")
	if userID == "" {
		t.Error("Expected user ID in registration response")
	}
	if !strings.HasPrefix(apiKey, "fk_") {
		t.Errorf("Expected fk_ API key, got %q", apiKey)
	}
}

func TestUserRegistration_Duplicate(t *testing.T) {
	s := newTestServer(t)
	registerTestUser(t, s, "ada")

	body := `{"username":"ada","email":"other@example.com"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/users", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", w.Code)
	}
}

func TestPriceSubmission_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	body := `{"name":"Total Marina","address":"12 Marina Road","fuelType":"PMS","price":650}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/prices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestPriceSubmission_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := registerTestUser(t, s, "ada")

	body := `{"name":"Total Marina","address":"12 Marina Road","fuelType":"PMS","price":650,"queueStatus":"short"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/prices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Created bool `json:"created"`
		Flagged bool `json:"flagged"`
		Station struct {
			ID string `json:"id"`
		} `json:"station"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !resp.Created {
		t.Error("Expected a new station to be created")
	}
	if resp.Flagged {
		t.Error("First submission should not be flagged")
	}

	// Station is now publicly visible
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/stations", nil)
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing stations, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), resp.Station.ID) {
		t.Error("Expected created station in public listing")
	}
}

func TestAdminRoutes_RejectNonAdmin(t *testing.T) {
	s := newTestServer(t)
	_, apiKey := registerTestUser(t, s, "ada")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/admin/prices/pending", nil)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
