package ratelimit

import (
	"testing"
	"time"
)

func TestAllowConsumesBurst(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	ip := "41.58.12.7"

	for i := 0; i < 5; i++ {
		if !limiter.Allow(ip) {
			t.Errorf("request %d should fit in the burst", i)
		}
	}
	if limiter.Allow(ip) {
		t.Error("request beyond the burst should be denied")
	}

	// At 60/min one token comes back per second.
	time.Sleep(time.Second)
	if !limiter.Allow(ip) {
		t.Error("request after replenishment should be allowed")
	}
}

func TestClientsAreIsolated(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("41.58.12.7")
	}
	if limiter.Allow("41.58.12.7") {
		t.Error("exhausted client should be limited")
	}
	if !limiter.Allow("197.210.64.2") {
		t.Error("a different client should keep its own bucket")
	}
}

func TestTokenReplenishmentRate(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 600, // 10 per second
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	ip := "41.58.12.7"

	if !limiter.Allow(ip) {
		t.Error("first request should be allowed")
	}
	if limiter.Allow(ip) {
		t.Error("second immediate request should be denied")
	}

	time.Sleep(110 * time.Millisecond)
	if !limiter.Allow(ip) {
		t.Error("request after the replenish interval should be allowed")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerMinute != 60 {
		t.Errorf("RequestsPerMinute = %d, want 60", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 10 {
		t.Errorf("BurstSize = %d, want 10", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("CleanupInterval = %v, want 1m", cfg.CleanupInterval)
	}
}
