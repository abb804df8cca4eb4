// Package config defines the top-level configuration for the oracle
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantarc/oracled/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ORACLED_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Feeds    FeedsConfig    `toml:"feeds"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Server   ServerConfig   `toml:"server"`
	Symbols  []SymbolConfig `toml:"symbols"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters for the
// history store.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the consensus
// cache and signal bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for round
// archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds one upstream price feed endpoint.
type FeedConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// FeedsConfig groups the configured upstream feeds.
type FeedsConfig struct {
	Pyth        FeedConfig `toml:"pyth"`
	Switchboard FeedConfig `toml:"switchboard"`
	Internal    FeedConfig `toml:"internal"`
}

// SymbolConfig holds one symbol's feed bindings and acceptance policy.
type SymbolConfig struct {
	Symbol           string   `toml:"symbol"`
	PythFeedID       string   `toml:"pyth_feed_id"`
	Sources          []string `toml:"sources"`
	MaxStalenessSec  int64    `toml:"max_staleness_sec"`
	MaxConfidenceBps int64    `toml:"max_confidence_bps"`
	MaxDeviationBps  int64    `toml:"max_deviation_bps"`
	MinSources       int      `toml:"min_sources"`
}

// Policy converts the symbol's thresholds into the domain policy.
func (s SymbolConfig) Policy() domain.Policy {
	return domain.Policy{
		MaxStalenessSec:  s.MaxStalenessSec,
		MaxConfidenceBps: s.MaxConfidenceBps,
		MaxDeviationBps:  s.MaxDeviationBps,
		MinSources:       s.MinSources,
	}
}

// PipelineConfig holds ingestion loop parameters.
type PipelineConfig struct {
	PollInterval         duration `toml:"poll_interval"`
	FetchTimeout         duration `toml:"fetch_timeout"`
	CacheTimeout         duration `toml:"cache_timeout"`
	ArchiveEnabled       bool     `toml:"archive_enabled"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveCron          string   `toml:"archive_cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "400ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters. RateLimitPerMin of 0 disables
// per-client rate limiting.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "oracled",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "oracled-archive",
			ForcePathStyle: true,
		},
		Feeds: FeedsConfig{
			Pyth: FeedConfig{
				Enabled: true,
				BaseURL: "https://hermes.pyth.network",
			},
			Switchboard: FeedConfig{
				Enabled: true,
				BaseURL: "https://crossbar.switchboard.xyz",
			},
			Internal: FeedConfig{
				Enabled: false,
			},
		},
		Pipeline: PipelineConfig{
			PollInterval:         duration{400 * time.Millisecond},
			FetchTimeout:         duration{5 * time.Second},
			CacheTimeout:         duration{2 * time.Second},
			ArchiveEnabled:       false,
			ArchiveRetentionDays: 90,
			ArchiveCron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Symbols: []SymbolConfig{
			{
				Symbol:           "BTC",
				PythFeedID:       "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
				Sources:          []string{"pyth", "switchboard"},
				MaxStalenessSec:  30,
				MaxConfidenceBps: 200,
				MaxDeviationBps:  100,
				MinSources:       2,
			},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"ingest": true,
	"serve":  true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: ingest, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only needed when archival runs.
	if c.Pipeline.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archival is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archival is enabled")
		}
		if c.Pipeline.ArchiveRetentionDays < 1 {
			errs = append(errs, "pipeline: archive_retention_days must be >= 1")
		}
	}

	// Pipeline
	if c.Pipeline.PollInterval.Duration <= 0 {
		errs = append(errs, "pipeline: poll_interval must be > 0")
	}
	if c.Pipeline.FetchTimeout.Duration <= 0 {
		errs = append(errs, "pipeline: fetch_timeout must be > 0")
	}

	// Symbols
	if c.Mode != "serve" && len(c.Symbols) == 0 {
		errs = append(errs, "symbols: at least one symbol must be configured for ingestion")
	}
	seen := map[string]bool{}
	for i, s := range c.Symbols {
		prefix := fmt.Sprintf("symbols[%d]", i)
		if s.Symbol == "" {
			errs = append(errs, prefix+": symbol must not be empty")
			continue
		}
		if seen[s.Symbol] {
			errs = append(errs, fmt.Sprintf("%s: duplicate symbol %q", prefix, s.Symbol))
		}
		seen[s.Symbol] = true
		if s.MinSources < 2 {
			errs = append(errs, fmt.Sprintf("%s: min_sources must be >= 2, got %d", prefix, s.MinSources))
		}
		if len(s.Sources) < s.MinSources {
			errs = append(errs, fmt.Sprintf("%s: %d sources configured but min_sources is %d", prefix, len(s.Sources), s.MinSources))
		}
		if s.MaxStalenessSec <= 0 {
			errs = append(errs, prefix+": max_staleness_sec must be > 0")
		}
		if s.MaxConfidenceBps <= 0 {
			errs = append(errs, prefix+": max_confidence_bps must be > 0")
		}
		if s.MaxDeviationBps <= 0 {
			errs = append(errs, prefix+": max_deviation_bps must be > 0")
		}
		for _, src := range s.Sources {
			if !domain.Source(src).Valid() {
				errs = append(errs, fmt.Sprintf("%s: unknown source %q", prefix, src))
			}
			if src == string(domain.SourcePyth) && s.PythFeedID == "" {
				errs = append(errs, prefix+": pyth_feed_id is required when pyth is a source")
			}
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
