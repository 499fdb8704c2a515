// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Provide New() to build a Config with defaults, Load(ctx) to layer
//     file and environment sources on top.
//   - External errors must be wrapped via this package's error helpers.
package config

import "time"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreMode selects the persistence backend: memory, sqlite or remote.
	StoreMode string `koanf:"store_mode"`

	// StorePath locates the SQLite database file in sqlite mode.
	StorePath string `koanf:"store_path"`

	// StoreRemoteURL is the base URL of the authoritative ledger in remote
	// mode, e.g. "https://ledger.internal:9080".
	StoreRemoteURL string `koanf:"store_remote_url"`

	// StoreRemoteToken is the bearer token presented to the remote ledger.
	StoreRemoteToken string `koanf:"store_remote_token"`

	// StoreFallbackLocal permits degrading to the simulated in-memory store
	// when the remote ledger is unreachable at startup. Off by default so a
	// misconfigured deployment fails loudly instead of silently simulating.
	StoreFallbackLocal bool `koanf:"store_fallback_local"`

	// AuthSecret signs and verifies API bearer tokens.
	AuthSecret string `koanf:"auth_secret"`

	// AuthDisabled turns off token verification. Development only.
	AuthDisabled bool `koanf:"auth_disabled"`

	// CORSOrigins lists the allowed origins for browser clients.
	CORSOrigins []string `koanf:"cors_origins"`

	// NotifyBuffer sets the per-subscriber delta channel capacity. A slow
	// subscriber whose buffer fills drops deltas rather than blocking bids.
	NotifyBuffer int `koanf:"notify_buffer"`

	// DedupeSize sets the size of the bid idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /api/events/{id}/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// ReconcileInterval sets the period of the background ledger
	// reconciliation sweep. Zero disables it.
	ReconcileInterval time.Duration `koanf:"reconcile_interval"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		StoreMode:           "memory",
		StorePath:           "encore.db",
		CORSOrigins:         []string{"*"},
		NotifyBuffer:        64,
		DedupeSize:          50_000,
		MaxLeaderboardLimit: 100,
		ReconcileInterval:   time.Minute,
	}
}
