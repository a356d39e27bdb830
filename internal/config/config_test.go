package config

import (
	"strings"
	"testing"
	"time"
)

// TestLoad_Defaults verifies that a bare environment produces usable defaults.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected default listen addr :8080, got %q", cfg.ListenAddr)
	}
	if cfg.StateBackend != BackendFile {
		t.Errorf("expected default backend %q, got %q", BackendFile, cfg.StateBackend)
	}
	if cfg.ClockSkew != 900*time.Second {
		t.Errorf("expected default clock skew 900s, got %v", cfg.ClockSkew)
	}
	if !cfg.StateFallback {
		t.Error("expected state fallback enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STATE_BACKEND", "database")
	t.Setenv("CLOCK_SKEW_SECONDS", "60")
	t.Setenv("CREDENTIAL_CACHE_TTL_SECONDS", "30")
	t.Setenv("STATE_FALLBACK", "false")
	t.Setenv("ANOMALY_QUARANTINE_THRESHOLD", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.StateBackend != BackendDatabase {
		t.Errorf("expected database backend, got %q", cfg.StateBackend)
	}
	if cfg.ClockSkew != time.Minute {
		t.Errorf("expected 60s clock skew, got %v", cfg.ClockSkew)
	}
	if cfg.CredentialCacheTTL != 30*time.Second {
		t.Errorf("expected 30s cache TTL, got %v", cfg.CredentialCacheTTL)
	}
	if cfg.StateFallback {
		t.Error("expected state fallback disabled")
	}
	if cfg.AnomalyQuarantine != 0.5 {
		t.Errorf("expected anomaly threshold 0.5, got %v", cfg.AnomalyQuarantine)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad backend", "STATE_BACKEND", "etcd"},
		{"bad skew", "CLOCK_SKEW_SECONDS", "soon"},
		{"negative skew", "CLOCK_SKEW_SECONDS", "-5"},
		{"bad fallback", "STATE_FALLBACK", "maybe"},
		{"bad threshold", "ANOMALY_QUARANTINE_THRESHOLD", "high"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestValidate_Constraints(t *testing.T) {
	base := func() *Config {
		return &Config{
			TokenSecret:        "s",
			ClockSkew:          time.Minute,
			CredentialCacheTTL: time.Minute,
			AnomalyQuarantine:  0.8,
		}
	}

	cfg := base()
	cfg.TokenSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty token secret")
	}

	cfg = base()
	cfg.AnomalyQuarantine = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range anomaly threshold")
	}
}

// TestReadinessWarnings verifies weak defaults are reported but strong config is clean.
func TestReadinessWarnings(t *testing.T) {
	cfg := &Config{
		TokenSecret:   DefaultTokenSecret,
		InternalToken: DefaultInternalToken,
		StateBackend:  BackendFile,
	}

	warnings := cfg.ReadinessWarnings()
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %v", len(warnings), warnings)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "TOKEN_SECRET") {
			found = true
		}
	}
	if !found {
		t.Error("expected a warning about the weak token secret")
	}

	strong := &Config{
		TokenSecret:   "rotated-production-secret",
		InternalToken: "rotated-internal-token",
		StateBackend:  BackendDatabase,
	}
	if warnings := strong.ReadinessWarnings(); len(warnings) != 0 {
		t.Errorf("expected no warnings for strong config, got %v", warnings)
	}
}
