package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "GEOCODE_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultNominatimURL, cfg.NominatimURL)
	assert.Equal(t, 3*time.Second, cfg.GeocodeTimeout)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitPerMin)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultGeocodeTimeout, cfg.GeocodeTimeout)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Port:            "8080",
		NominatimURL:    DefaultNominatimURL,
		GeocodeTimeout:  time.Second,
		RateLimitPerMin: 10,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "non-numeric port",
			mutate:  func(c *Config) { c.Port = "http" },
			wantErr: "PORT must be numeric",
		},
		{
			name:    "relative nominatim url",
			mutate:  func(c *Config) { c.NominatimURL = "nominatim.openstreetmap.org" },
			wantErr: "NOMINATIM_URL must be an absolute URL",
		},
		{
			name:    "zero geocode timeout",
			mutate:  func(c *Config) { c.GeocodeTimeout = 0 },
			wantErr: "GEOCODE_TIMEOUT must be positive",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimitPerMin = 0 },
			wantErr: "RATE_LIMIT_PER_MIN must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "250ms")
	setEnv(t, "TEST_BAD_DUR", "soon")

	assert.Equal(t, 250*time.Millisecond, getEnvDuration("TEST_DUR", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("NONEXISTENT_VAR", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_BAD_DUR", time.Second))
}
