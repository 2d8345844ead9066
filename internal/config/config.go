// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package config defines service configuration and its layered loading:
// built-in defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the root service configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	NATS       NATSConfig       `koanf:"nats"`
	Profile    ProfileConfig    `koanf:"profile"`
	Similarity SimilarityConfig `koanf:"similarity"`
	Feed       FeedConfig       `koanf:"feed"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the listen address.
	Host string `koanf:"host"`

	// Port is the listen port.
	Port int `koanf:"port"`

	// Timeout bounds request read/write.
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed CORS origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the per-IP request budget per RateLimitWindow.
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitWindow is the rate limit window.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// IngestRate is the token-bucket refill rate for POST /behavior,
	// events per second across all clients.
	IngestRate float64 `koanf:"ingest_rate"`

	// IngestBurst is the token-bucket burst size for POST /behavior.
	IngestBurst int `koanf:"ingest_burst"`
}

// DatabaseConfig holds DuckDB settings for the behavior log.
type DatabaseConfig struct {
	// Path is the DuckDB file path. Empty means in-memory.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// NATSConfig holds event pipeline settings.
type NATSConfig struct {
	// Enabled selects NATS JetStream transport. When false the pipeline
	// runs on an in-process channel, suitable for single-node deployments.
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server URL.
	URL string `koanf:"url"`

	// EmbeddedServer runs an in-process NATS server instead of
	// connecting to an external one.
	EmbeddedServer bool `koanf:"embedded_server"`

	// StoreDir is the JetStream storage directory for the embedded server.
	StoreDir string `koanf:"store_dir"`

	// StreamName is the JetStream stream holding behavior events.
	StreamName string `koanf:"stream_name"`

	// DurableName is the durable consumer name prefix.
	DurableName string `koanf:"durable_name"`

	// QueueGroup load-balances consumption across instances.
	QueueGroup string `koanf:"queue_group"`

	// SubscribersCount is the number of concurrent subscribers.
	SubscribersCount int `koanf:"subscribers_count"`

	// BatchSize is the consumer write batch size.
	BatchSize int `koanf:"batch_size"`

	// FlushInterval bounds how long a partial batch waits before writing.
	FlushInterval time.Duration `koanf:"flush_interval"`

	// RouterRetryCount is the max redeliveries before the poison queue.
	RouterRetryCount int `koanf:"router_retry_count"`

	// RouterPoisonTopic receives events that exhaust retries.
	RouterPoisonTopic string `koanf:"router_poison_topic"`

	// RouterCloseTimeout bounds graceful router shutdown.
	RouterCloseTimeout time.Duration `koanf:"router_close_timeout"`
}

// ProfileConfig holds interest profile builder settings.
type ProfileConfig struct {
	// HalfLife is the recency decay half-life: an event this old
	// contributes half its base weight.
	HalfLife time.Duration `koanf:"half_life"`

	// EventWindow bounds how far back the builder reads the behavior log.
	EventWindow time.Duration `koanf:"event_window"`

	// MaxEvents caps events read per build.
	MaxEvents int `koanf:"max_events"`

	// CachePath is the Badger directory for the materialized profile
	// cache. Empty means in-memory.
	CachePath string `koanf:"cache_path"`

	// CacheTTL is how long a cached profile stays fresh.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// RefreshInterval is how often the background refresher rebuilds
	// profiles of recently active users.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// SimilarityConfig holds similarity index settings.
type SimilarityConfig struct {
	// CacheTTL bounds staleness of cached nearest-user lists.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// MaxCandidates caps how many active users a nearest-user query scans.
	MaxCandidates int `koanf:"max_candidates"`

	// ActiveWindow defines which users count as active.
	ActiveWindow time.Duration `koanf:"active_window"`
}

// FeedConfig holds feed composer settings.
type FeedConfig struct {
	// GeneratorTimeout bounds each candidate generator; a generator that
	// exceeds it contributes nothing to that feed.
	GeneratorTimeout time.Duration `koanf:"generator_timeout"`

	// DiversityCap is the max fraction of the final feed a single source
	// may occupy (0 disables the cap).
	DiversityCap float64 `koanf:"diversity_cap"`

	// DefaultLimit is the feed size when the caller does not specify one.
	DefaultLimit int `koanf:"default_limit"`

	// MaxLimit caps caller-requested feed sizes.
	MaxLimit int `koanf:"max_limit"`

	// Neighbors is how many similar users the collaborative generator uses.
	Neighbors int `koanf:"neighbors"`

	// SeenWindow is how far back interactions exclude content from feeds.
	SeenWindow time.Duration `koanf:"seen_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes file:line in log output.
	Caller bool `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8470,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			IngestRate:      200,
			IngestBurst:     400,
		},
		Database: DatabaseConfig{
			Path:      "/data/feedrank.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		NATS: NATSConfig{
			Enabled:            false,
			URL:                "nats://127.0.0.1:4222",
			EmbeddedServer:     true,
			StoreDir:           "/data/nats/jetstream",
			StreamName:         "BEHAVIOR",
			DurableName:        "behavior-consumer",
			QueueGroup:         "ingest",
			SubscribersCount:   4,
			BatchSize:          500,
			FlushInterval:      2 * time.Second,
			RouterRetryCount:   5,
			RouterPoisonTopic:  "behavior.poison",
			RouterCloseTimeout: 30 * time.Second,
		},
		Profile: ProfileConfig{
			HalfLife:        72 * time.Hour,
			EventWindow:     30 * 24 * time.Hour,
			MaxEvents:       10000,
			CachePath:       "/data/profiles",
			CacheTTL:        15 * time.Minute,
			RefreshInterval: time.Hour,
		},
		Similarity: SimilarityConfig{
			CacheTTL:      10 * time.Minute,
			MaxCandidates: 5000,
			ActiveWindow:  7 * 24 * time.Hour,
		},
		Feed: FeedConfig{
			GeneratorTimeout: 2 * time.Second,
			DiversityCap:     0.4,
			DefaultLimit:     20,
			MaxLimit:         100,
			Neighbors:        20,
			SeenWindow:       14 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Profile.HalfLife <= 0 {
		return fmt.Errorf("profile.half_life must be positive, got %s", c.Profile.HalfLife)
	}
	if c.Profile.EventWindow <= 0 {
		return fmt.Errorf("profile.event_window must be positive, got %s", c.Profile.EventWindow)
	}
	if c.Feed.DiversityCap < 0 || c.Feed.DiversityCap > 1 {
		return fmt.Errorf("feed.diversity_cap %f outside [0,1]", c.Feed.DiversityCap)
	}
	if c.Feed.GeneratorTimeout <= 0 {
		return fmt.Errorf("feed.generator_timeout must be positive, got %s", c.Feed.GeneratorTimeout)
	}
	if c.Feed.DefaultLimit < 1 || c.Feed.DefaultLimit > c.Feed.MaxLimit {
		return fmt.Errorf("feed.default_limit %d outside [1,%d]", c.Feed.DefaultLimit, c.Feed.MaxLimit)
	}
	if c.Feed.Neighbors < 1 {
		return fmt.Errorf("feed.neighbors must be at least 1, got %d", c.Feed.Neighbors)
	}
	if c.NATS.Enabled && c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("nats.url required when nats.enabled and no embedded server")
	}
	return nil
}
