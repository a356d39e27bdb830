// Package config provides configuration loading and validation from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selects the durable tier of the state store.
type Backend string

const (
	// BackendFile persists state to a single JSON file.
	BackendFile Backend = "file"
	// BackendDatabase persists state to SQLite with an in-memory cache tier.
	BackendDatabase Backend = "database"
)

// Defaults used when the corresponding environment variable is unset.
// The default secrets are intentionally weak and reported by ReadinessWarnings.
const (
	DefaultTokenSecret   = "dev-token-secret"
	DefaultInternalToken = "dev-internal-token"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string // debug, info, warn, error
	ListenAddr        string // API listen address (e.g., ":8080")
	MetricsListenAddr string // Metrics listener address (e.g., "localhost:9090")

	TokenSecret   string // HMAC secret for capability tokens
	SigningSalt   string // salt mixed into generated signing secrets
	InternalToken string // shared token guarding internal endpoints

	StateBackend  Backend // file or database
	StateFilePath string  // JSON state document path (file backend and mirror)
	DatabasePath  string  // SQLite database path (database backend)
	StateFallback bool    // fall back to the file backend on database errors

	ClockSkew          time.Duration // allowed signed-request clock skew
	CredentialCacheTTL time.Duration // signed-request credential cache TTL
	StalenessThreshold time.Duration // heartbeat age after which node risk rises sharply
	OfflineTimeout     time.Duration // heartbeat age after which a node is marked offline

	AnomalyQuarantine float64 // anomaly score above which probation nodes quarantine
}

// Load parses configuration from environment variables.
// All options have defaults so a bare process starts in a dev-usable state.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          envOr("LOG_LEVEL", "info"),
		ListenAddr:        envOr("LISTEN_ADDR", ":8080"),
		MetricsListenAddr: envOr("METRICS_LISTEN_ADDR", "localhost:9090"),
		TokenSecret:       envOr("TOKEN_SECRET", DefaultTokenSecret),
		SigningSalt:       envOr("SIGNING_SECRET_SALT", "dev-signing-salt"),
		InternalToken:     envOr("INTERNAL_API_TOKEN", DefaultInternalToken),
		StateFilePath:     envOr("STATE_FILE_PATH", "/data/controlplane-state.json"),
		DatabasePath:      envOr("DATABASE_PATH", "/data/controlplane.db"),
	}

	switch b := Backend(envOr("STATE_BACKEND", string(BackendFile))); b {
	case BackendFile, BackendDatabase:
		cfg.StateBackend = b
	default:
		return nil, fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", BackendFile, BackendDatabase, b)
	}

	var err error
	if cfg.StateFallback, err = envBool("STATE_FALLBACK", true); err != nil {
		return nil, err
	}
	if cfg.ClockSkew, err = envSeconds("CLOCK_SKEW_SECONDS", 900*time.Second); err != nil {
		return nil, err
	}
	if cfg.CredentialCacheTTL, err = envSeconds("CREDENTIAL_CACHE_TTL_SECONDS", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.StalenessThreshold, err = envSeconds("STALENESS_THRESHOLD_SECONDS", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.OfflineTimeout, err = envSeconds("OFFLINE_TIMEOUT_SECONDS", 1800*time.Second); err != nil {
		return nil, err
	}
	if cfg.AnomalyQuarantine, err = envFloat("ANOMALY_QUARANTINE_THRESHOLD", 0.8); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET must not be empty")
	}
	if c.ClockSkew <= 0 {
		return fmt.Errorf("CLOCK_SKEW_SECONDS must be positive")
	}
	if c.CredentialCacheTTL <= 0 {
		return fmt.Errorf("CREDENTIAL_CACHE_TTL_SECONDS must be positive")
	}
	if c.AnomalyQuarantine <= 0 || c.AnomalyQuarantine > 1 {
		return fmt.Errorf("ANOMALY_QUARANTINE_THRESHOLD must be in (0, 1]")
	}
	return nil
}

// ReadinessWarnings returns production-readiness problems that do not prevent
// the process from serving. Surfaced by the readiness endpoint.
func (c *Config) ReadinessWarnings() []string {
	var warnings []string
	if c.TokenSecret == DefaultTokenSecret {
		warnings = append(warnings, "TOKEN_SECRET is the weak development default")
	}
	if c.InternalToken == DefaultInternalToken {
		warnings = append(warnings, "INTERNAL_API_TOKEN is the weak development default")
	}
	if c.InternalToken == "" {
		warnings = append(warnings, "internal endpoints are unauthenticated (INTERNAL_API_TOKEN empty)")
	}
	if c.StateBackend == BackendFile {
		warnings = append(warnings, "state backend is file-only; no database tier configured")
	}
	return warnings
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func envSeconds(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer number of seconds, got %q", key, v)
	}
	return time.Duration(secs) * time.Second, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}
