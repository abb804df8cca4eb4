package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORACLED_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORACLED_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ORACLED_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ORACLED_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORACLED_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORACLED_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORACLED_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORACLED_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORACLED_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ORACLED_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ORACLED_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ORACLED_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ORACLED_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORACLED_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORACLED_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORACLED_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORACLED_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORACLED_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ORACLED_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORACLED_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORACLED_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORACLED_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORACLED_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ORACLED_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ORACLED_S3_FORCE_PATH_STYLE")

	// ── Feeds ──
	setBool(&cfg.Feeds.Pyth.Enabled, "ORACLED_FEEDS_PYTH_ENABLED")
	setStr(&cfg.Feeds.Pyth.BaseURL, "ORACLED_FEEDS_PYTH_BASE_URL")
	setStr(&cfg.Feeds.Pyth.APIKey, "ORACLED_FEEDS_PYTH_API_KEY")
	setBool(&cfg.Feeds.Switchboard.Enabled, "ORACLED_FEEDS_SWITCHBOARD_ENABLED")
	setStr(&cfg.Feeds.Switchboard.BaseURL, "ORACLED_FEEDS_SWITCHBOARD_BASE_URL")
	setStr(&cfg.Feeds.Switchboard.APIKey, "ORACLED_FEEDS_SWITCHBOARD_API_KEY")
	setBool(&cfg.Feeds.Internal.Enabled, "ORACLED_FEEDS_INTERNAL_ENABLED")
	setStr(&cfg.Feeds.Internal.BaseURL, "ORACLED_FEEDS_INTERNAL_BASE_URL")
	setStr(&cfg.Feeds.Internal.APIKey, "ORACLED_FEEDS_INTERNAL_API_KEY")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.PollInterval, "ORACLED_PIPELINE_POLL_INTERVAL")
	setDuration(&cfg.Pipeline.FetchTimeout, "ORACLED_PIPELINE_FETCH_TIMEOUT")
	setDuration(&cfg.Pipeline.CacheTimeout, "ORACLED_PIPELINE_CACHE_TIMEOUT")
	setBool(&cfg.Pipeline.ArchiveEnabled, "ORACLED_PIPELINE_ARCHIVE_ENABLED")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "ORACLED_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "ORACLED_PIPELINE_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ORACLED_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ORACLED_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ORACLED_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ORACLED_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "ORACLED_SERVER_RATE_LIMIT_PER_MIN")

	// ── Top-level ──
	setStr(&cfg.Mode, "ORACLED_MODE")
	setStr(&cfg.LogLevel, "ORACLED_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
