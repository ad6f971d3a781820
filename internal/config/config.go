// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Geocoding
	NominatimURL   string
	GeocodeTimeout time.Duration
	UserAgent      string // Sent with geocoder requests, required by Nominatim's usage policy

	// Security
	RateLimitPerMin int
	CORSOrigins     string // Comma-separated allowed origins, "*" in development

	// Tracing
	OTLPEndpoint string // OTLP/gRPC collector address (optional, tracing off if not set)
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultNominatimURL   = "https://nominatim.openstreetmap.org"
	DefaultGeocodeTimeout = 10 * time.Second
	DefaultUserAgent      = "fuelmap/1.0 (fuel price backend)"
	DefaultRateLimit      = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		NominatimURL:    getEnv("NOMINATIM_URL", DefaultNominatimURL),
		GeocodeTimeout:  getEnvDuration("GEOCODE_TIMEOUT", DefaultGeocodeTimeout),
		UserAgent:       getEnv("GEOCODE_USER_AGENT", DefaultUserAgent),
		RateLimitPerMin: int(getEnvInt64("RATE_LIMIT_PER_MIN", int64(DefaultRateLimit))),
		CORSOrigins:     os.Getenv("CORS_ORIGINS"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}

	u, err := url.Parse(c.NominatimURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("NOMINATIM_URL must be an absolute URL, got %q", c.NominatimURL)
	}

	if c.GeocodeTimeout <= 0 {
		return fmt.Errorf("GEOCODE_TIMEOUT must be positive")
	}

	if c.RateLimitPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
