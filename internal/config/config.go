// Package config defines the top-level configuration for the depth metrics
// pipeline and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mpaquette/depthmetrics/internal/blob"
	"github.com/mpaquette/depthmetrics/internal/exchange"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DEPTHMETRICS_* environment variables.
type Config struct {
	Storage   StorageConfig             `toml:"storage"`
	Redis     RedisConfig               `toml:"redis"`
	Collector CollectorConfig           `toml:"collector"`
	Exchanges map[string]ExchangeConfig `toml:"exchanges"`
	Server    ServerConfig              `toml:"server"`
	Composer  ComposerConfig            `toml:"composer"`
	Mode      string                    `toml:"mode"`
	LogLevel  string                    `toml:"log_level"`
}

// StorageConfig holds S3-compatible object storage parameters.
type StorageConfig struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// latest-tick cache entirely; collection and serving work without it.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// CollectorConfig holds order-book polling and upload parameters.
type CollectorConfig struct {
	Assets         []string `toml:"assets"`
	RowInterval    duration `toml:"row_interval"`
	UploadInterval duration `toml:"upload_interval"`
	FetchTimeout   duration `toml:"fetch_timeout"`
	DataDir        string   `toml:"data_dir"`
}

// ExchangeConfig holds per-venue polling parameters. Symbols maps canonical
// asset codes to the venue's ticker when they differ (e.g. BTC -> XBT).
type ExchangeConfig struct {
	Enabled       bool              `toml:"enabled"`
	Quote         string            `toml:"quote"`
	FallbackQuote string            `toml:"fallback_quote"`
	BaseURL       string            `toml:"base_url"`
	Symbols       map[string]string `toml:"symbols"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// ComposerConfig holds daily composition parameters. ComposeAfter is a UTC
// wall-clock time ("00:03") before which yesterday's artifacts are not
// composed. Day, when set ("2026-08-30"), composes that single day once and
// exits instead of looping.
type ComposerConfig struct {
	Enabled       bool     `toml:"enabled"`
	ComposeAfter  string   `toml:"compose_after"`
	CheckInterval duration `toml:"check_interval"`
	Day           string   `toml:"day"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "depthmetrics-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Collector: CollectorConfig{
			Assets:         []string{"BTC", "ETH", "ADA"},
			RowInterval:    duration{1 * time.Second},
			UploadInterval: duration{60 * time.Second},
			FetchTimeout:   duration{5 * time.Second},
			DataDir:        "data",
		},
		Exchanges: map[string]ExchangeConfig{
			"coinbase":  {Enabled: true, Quote: "USD", FallbackQuote: "USDT"},
			"binanceus": {Enabled: true, Quote: "USD", FallbackQuote: "USDT"},
			"kraken":    {Enabled: true, Quote: "USD", FallbackQuote: "USDT"},
			"bybit":     {Enabled: true, Quote: "USDT", FallbackQuote: "USD"},
			"cryptocom": {Enabled: true, Quote: "USDT", FallbackQuote: "USD"},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Composer: ComposerConfig{
			Enabled:       true,
			ComposeAfter:  "00:03",
			CheckInterval: duration{2 * time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"collect": true,
	"serve":   true,
	"compose": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// EnabledExchanges returns the sorted-ish list of exchange names with
// Enabled set. Map iteration order is not stable, so callers that need a
// deterministic order should sort the result.
func (c *Config) EnabledExchanges() []string {
	var names []string
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// needsCollector reports whether the mode runs the polling loop.
func (c *Config) needsCollector() bool {
	return c.Mode == "collect" || c.Mode == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: collect, serve, compose, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Storage
	if c.Storage.Endpoint == "" {
		errs = append(errs, "storage: endpoint must not be empty")
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, "storage: bucket must not be empty")
	}

	// Redis — only constrained when the cache is enabled at all.
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Collector
	if c.needsCollector() {
		if len(c.Collector.Assets) == 0 {
			errs = append(errs, "collector: assets must not be empty")
		}
		if c.Collector.RowInterval.Duration <= 0 {
			errs = append(errs, "collector: row_interval must be > 0")
		}
		if c.Collector.UploadInterval.Duration <= 0 {
			errs = append(errs, "collector: upload_interval must be > 0")
		}
		if c.Collector.FetchTimeout.Duration <= 0 {
			errs = append(errs, "collector: fetch_timeout must be > 0")
		}
		if c.Collector.DataDir == "" {
			errs = append(errs, "collector: data_dir must not be empty")
		}
		if len(c.EnabledExchanges()) == 0 {
			errs = append(errs, "exchanges: at least one exchange must be enabled for mode "+c.Mode)
		}
	}

	// Exchanges — names must be known adapters regardless of enablement.
	known := map[string]bool{}
	for _, name := range exchange.Names() {
		known[name] = true
	}
	for name, ex := range c.Exchanges {
		if !known[name] {
			errs = append(errs, fmt.Sprintf("exchanges: unknown exchange %q (valid: %s)", name, strings.Join(exchange.Names(), ", ")))
			continue
		}
		if ex.Enabled && ex.Quote == "" {
			errs = append(errs, fmt.Sprintf("exchanges.%s: quote must not be empty when enabled", name))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Composer
	if c.Composer.Enabled || c.Mode == "compose" {
		if _, err := time.Parse("15:04", c.Composer.ComposeAfter); err != nil {
			errs = append(errs, fmt.Sprintf("composer: compose_after must be HH:MM, got %q", c.Composer.ComposeAfter))
		}
		if c.Composer.CheckInterval.Duration <= 0 {
			errs = append(errs, "composer: check_interval must be > 0")
		}
		if c.Composer.Day != "" && !blob.DayRE.MatchString(c.Composer.Day) {
			errs = append(errs, fmt.Sprintf("composer: day must be YYYY-MM-DD, got %q", c.Composer.Day))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
