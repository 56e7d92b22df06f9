package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPPort != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("Expected reconnect delay 3s, got %v", cfg.ReconnectDelay)
	}
	if cfg.StalenessTimeout != 15*time.Second {
		t.Errorf("Expected staleness timeout 15s, got %v", cfg.StalenessTimeout)
	}
	if cfg.RequestDelay != time.Minute {
		t.Errorf("Expected request delay 1m, got %v", cfg.RequestDelay)
	}
	if cfg.RequestLookback != 5*time.Minute {
		t.Errorf("Expected request lookback 5m, got %v", cfg.RequestLookback)
	}
	if cfg.HistoryWindowDays != 30 {
		t.Errorf("Expected window of 30 days, got %d", cfg.HistoryWindowDays)
	}
	if cfg.MinIntervalSeconds != 30 || cfg.MaxIntervals != 60 {
		t.Errorf("Unexpected aggregation defaults: %d/%d", cfg.MinIntervalSeconds, cfg.MaxIntervals)
	}
	if cfg.CacheBackend != "sqlite" {
		t.Errorf("Expected sqlite backend by default, got %s", cfg.CacheBackend)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("RECONNECT_DELAY_MS", "500")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MAX_INTERVALS", "120")

	cfg := Load()

	if cfg.HTTPPort != "9999" {
		t.Errorf("Expected port 9999, got %s", cfg.HTTPPort)
	}
	if cfg.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("Expected reconnect delay 500ms, got %v", cfg.ReconnectDelay)
	}
	if cfg.CacheBackend != "redis" {
		t.Errorf("Expected redis backend, got %s", cfg.CacheBackend)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("Expected redis db 3, got %d", cfg.RedisDB)
	}
	if cfg.MaxIntervals != 120 {
		t.Errorf("Expected 120 intervals, got %d", cfg.MaxIntervals)
	}
}

func TestLoad_InvalidNumberFallsBack(t *testing.T) {
	t.Setenv("HISTORY_WINDOW_DAYS", "not-a-number")

	cfg := Load()
	if cfg.HistoryWindowDays != 30 {
		t.Errorf("Invalid value must fall back to default, got %d", cfg.HistoryWindowDays)
	}
}
