// Package config defines service configuration and how it is loaded.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of record building workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the snapshot id cache. Zero or less keeps every id.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures the number of shards in the series store.
	ShardCount int `koanf:"shard_count"`

	// MaxSeriesLimit caps GET /series?limit.
	MaxSeriesLimit int `koanf:"max_series_limit"`

	// CatalogPath points at an item catalog YAML file. Empty uses the
	// built-in catalog.
	CatalogPath string `koanf:"catalog_path"`

	// PriceURL is the base URL of a live market price service. Empty uses
	// catalog prices.
	PriceURL       string        `koanf:"price_url"`
	PriceCacheSize int           `koanf:"price_cache_size"`
	PriceCacheTTL  time.Duration `koanf:"price_cache_ttl"`
	// PriceTimeout bounds one request to the price service.
	PriceTimeout   time.Duration `koanf:"price_timeout"`

	// InfluxURL is the time-series backend. Empty keeps records in memory.
	InfluxURL string `koanf:"influx_url"`

	// v2 API settings, used when InfluxBucket is set.
	InfluxToken  string `koanf:"influx_token"`
	InfluxOrg    string `koanf:"influx_org"`
	InfluxBucket string `koanf:"influx_bucket"`

	// v1 API settings.
	InfluxDatabase string `koanf:"influx_database"`
	InfluxUsername string `koanf:"influx_username"`
	InfluxPassword string `koanf:"influx_password"`

	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
	MaxRetries    int           `koanf:"max_retries"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           ":9080",
		QueueSize:      10_000,
		WorkerCount:    runtime.NumCPU() * 2,
		DedupeSize:     50_000,
		ShardCount:     16,
		MaxSeriesLimit: 1_000,
		PriceCacheSize: 4_096,
		PriceCacheTTL:  10 * time.Minute,
		PriceTimeout:   2 * time.Second,
		InfluxDatabase: "runelite",
		BatchSize:      500,
		FlushInterval:  time.Second,
		WriteTimeout:   5 * time.Second,
		MaxRetries:     3,
	}
}

// Validate reports the first setting the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.ShardCount <= 0:
		return fmt.Errorf("%w: shard_count must be positive, got %d", ErrInvalidConfig, c.ShardCount)
	case c.MaxSeriesLimit <= 0:
		return fmt.Errorf("%w: max_series_limit must be positive, got %d", ErrInvalidConfig, c.MaxSeriesLimit)
	case c.PriceURL != "" && c.PriceCacheSize <= 0:
		return fmt.Errorf("%w: price_cache_size must be positive", ErrInvalidConfig)
	case c.PriceURL != "" && c.PriceTimeout <= 0:
		return fmt.Errorf("%w: price_timeout must be positive", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.FlushInterval <= 0:
		return fmt.Errorf("%w: flush_interval must be positive", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	case c.InfluxBucket != "" && c.InfluxOrg == "":
		return fmt.Errorf("%w: influx_org is required with influx_bucket", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}
