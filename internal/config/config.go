// Package config defines service configuration and its loading.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory sale queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount is the number of sales reconstructed concurrently.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the ingress deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxDeliveries caps how often a failing message is delivered.
	MaxDeliveries int `koanf:"max_deliveries"`
	// RedeliveryDelayMS is the wait before a failed message is redelivered.
	RedeliveryDelayMS int `koanf:"redelivery_delay_ms"`

	// DatabasePath is the sqlite file holding sales and the part catalog.
	DatabasePath string `koanf:"database_path"`

	// ChainAPIURL and ChainAPIKey address the marketplace GraphQL gateway.
	ChainAPIURL string `koanf:"chain_api_url"`
	ChainAPIKey string `koanf:"chain_api_key"`
	// ActivityPageSize is the number of activities requested per asset.
	ActivityPageSize int `koanf:"activity_page_size"`
	// FetchRetries is the number of attempts per provider call. FetchBackoffMS
	// is the wait after the first failure; it doubles on each further one.
	FetchRetries   int `koanf:"fetch_retries"`
	FetchBackoffMS int `koanf:"fetch_backoff_ms"`
	// FetchTimeoutMS bounds a single provider request.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// BreakerMaxFailures consecutive failures open the provider breaker for
	// BreakerOpenTimeoutMS.
	BreakerMaxFailures   int `koanf:"breaker_max_failures"`
	BreakerOpenTimeoutMS int `koanf:"breaker_open_timeout_ms"`

	// PartsCDNURL is the part data URL template; %s is replaced by YYYYMMDD.
	PartsCDNURL string `koanf:"parts_cdn_url"`
	// PartsSearchDays is how far back the CDN is probed for a newer version.
	PartsSearchDays int `koanf:"parts_search_days"`

	// RealtimeWindowS is the age below which a sale's live level and breed
	// count are trusted as is.
	RealtimeWindowS int `koanf:"realtime_window_s"`
	// StrictOrdering rejects out of order activity logs instead of re-sorting.
	StrictOrdering bool `koanf:"strict_ordering"`
}

// New returns a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		QueueSize:            10_000,
		WorkerCount:          5,
		DedupeSize:           100_000,
		MaxDeliveries:        5,
		RedeliveryDelayMS:    30_000,
		DatabasePath:         "axiesales.db",
		ChainAPIURL:          "https://api-gateway.skymavis.com/graphql/axie-marketplace",
		ActivityPageSize:     50,
		FetchRetries:         3,
		FetchBackoffMS:       5_000,
		FetchTimeoutMS:       15_000,
		BreakerMaxFailures:   5,
		BreakerOpenTimeoutMS: 60_000,
		PartsCDNURL:          "https://cdn.axieinfinity.com/game/origin-cards/base/origin-cards-data-%s/part_data.json",
		PartsSearchDays:      90,
		RealtimeWindowS:      60,
	}
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.MaxDeliveries <= 0:
		return fmt.Errorf("%w: max_deliveries must be positive", ErrInvalidConfig)
	case c.RedeliveryDelayMS < 0, c.FetchBackoffMS < 0, c.FetchRetries < 0:
		return fmt.Errorf("%w: delays and retries must not be negative", ErrInvalidConfig)
	case c.DatabasePath == "":
		return fmt.Errorf("%w: database_path must not be empty", ErrInvalidConfig)
	case c.ChainAPIURL == "":
		return fmt.Errorf("%w: chain_api_url must not be empty", ErrInvalidConfig)
	case c.ActivityPageSize <= 0:
		return fmt.Errorf("%w: activity_page_size must be positive", ErrInvalidConfig)
	case !strings.Contains(c.PartsCDNURL, "%s"):
		return fmt.Errorf("%w: parts_cdn_url must contain a %%s date placeholder", ErrInvalidConfig)
	case c.PartsSearchDays <= 0:
		return fmt.Errorf("%w: parts_search_days must be positive", ErrInvalidConfig)
	case c.RealtimeWindowS < 0:
		return fmt.Errorf("%w: realtime_window_s must not be negative", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Duration views of the millisecond and second settings.
func (c *Config) RedeliveryDelay() time.Duration    { return ms(c.RedeliveryDelayMS) }
func (c *Config) FetchBackoff() time.Duration       { return ms(c.FetchBackoffMS) }
func (c *Config) FetchTimeout() time.Duration       { return ms(c.FetchTimeoutMS) }
func (c *Config) BreakerOpenTimeout() time.Duration { return ms(c.BreakerOpenTimeoutMS) }
func (c *Config) RealtimeWindow() time.Duration     { return time.Duration(c.RealtimeWindowS) * time.Second }
