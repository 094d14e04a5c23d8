// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config filled with defaults.
// - Load(ctx) layers a YAML file and environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// DatabasePath is the SQLite file holding history and caches.
	DatabasePath string `koanf:"database_path" validate:"required"`

	// FetchConcurrency bounds concurrent member fetches per aggregation.
	FetchConcurrency int `koanf:"fetch_concurrency" validate:"min=1,max=64"`

	// BackfillDelayMS is the pause between weeks of a range regeneration.
	BackfillDelayMS int `koanf:"backfill_delay_ms" validate:"min=0"`

	// MaxRangeWeeks caps weeksBack of a range regeneration.
	MaxRangeWeeks int `koanf:"max_range_weeks" validate:"min=1,max=520"`

	// RecordsLeaseMinutes is how long a records calculation or snapshot stays fresh.
	RecordsLeaseMinutes int `koanf:"records_lease_minutes" validate:"min=1"`

	// RecordsCandidateLimit bounds entries scanned by a full streak pass.
	RecordsCandidateLimit int `koanf:"records_candidate_limit" validate:"min=1"`

	// MinMembersForUserRecords gates per-user superlatives.
	MinMembersForUserRecords int `koanf:"min_members_for_user_records" validate:"min=1"`

	// LastFMAPIKey and LastFMSharedSecret authenticate against the listening source.
	LastFMAPIKey       string `koanf:"lastfm_api_key"`
	LastFMSharedSecret string `koanf:"lastfm_shared_secret"`

	// LastFMBaseURL overrides the API root.
	LastFMBaseURL string `koanf:"lastfm_base_url" validate:"omitempty,url"`

	// Source* tune pacing and retries of listening source calls.
	SourceRequestsPerSecond float64 `koanf:"source_requests_per_second" validate:"gt=0"`
	SourceMaxAttempts       int     `koanf:"source_max_attempts" validate:"min=1,max=10"`
	SourceBaseDelayMS       int     `koanf:"source_base_delay_ms" validate:"min=0"`
	SourceRateLimitDelayMS  int     `koanf:"source_rate_limit_delay_ms" validate:"min=0"`
	SourceTimeoutMS         int     `koanf:"source_timeout_ms" validate:"min=1"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		DatabasePath:             "data/tunechart.db",
		FetchConcurrency:         3,
		BackfillDelayMS:          1000,
		MaxRangeWeeks:            52,
		RecordsLeaseMinutes:      60,
		RecordsCandidateLimit:    50,
		MinMembersForUserRecords: 3,
		LastFMBaseURL:            "https://ws.audioscrobbler.com/2.0/",
		SourceRequestsPerSecond:  5,
		SourceMaxAttempts:        4,
		SourceBaseDelayMS:        500,
		SourceRateLimitDelayMS:   2000,
		SourceTimeoutMS:          10_000,
	}
}

// BackfillDelay returns BackfillDelayMS as a duration.
func (c *Config) BackfillDelay() time.Duration {
	return time.Duration(c.BackfillDelayMS) * time.Millisecond
}

// RecordsLease returns RecordsLeaseMinutes as a duration.
func (c *Config) RecordsLease() time.Duration {
	return time.Duration(c.RecordsLeaseMinutes) * time.Minute
}

// SourceBaseDelay returns SourceBaseDelayMS as a duration.
func (c *Config) SourceBaseDelay() time.Duration {
	return time.Duration(c.SourceBaseDelayMS) * time.Millisecond
}

// SourceRateLimitDelay returns SourceRateLimitDelayMS as a duration.
func (c *Config) SourceRateLimitDelay() time.Duration {
	return time.Duration(c.SourceRateLimitDelayMS) * time.Millisecond
}

// SourceTimeout returns SourceTimeoutMS as a duration.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutMS) * time.Millisecond
}
