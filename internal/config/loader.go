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
// built-in defaults, applies DEPTHMETRICS_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known DEPTHMETRICS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file. Per-exchange tables have no env form; edit the TOML for
// those.
func applyEnvOverrides(cfg *Config) {
	// ── Storage ──
	setStr(&cfg.Storage.Endpoint, "DEPTHMETRICS_STORAGE_ENDPOINT")
	setStr(&cfg.Storage.Region, "DEPTHMETRICS_STORAGE_REGION")
	setStr(&cfg.Storage.Bucket, "DEPTHMETRICS_STORAGE_BUCKET")
	setStr(&cfg.Storage.AccessKey, "DEPTHMETRICS_STORAGE_ACCESS_KEY")
	setStr(&cfg.Storage.SecretKey, "DEPTHMETRICS_STORAGE_SECRET_KEY")
	setBool(&cfg.Storage.UseSSL, "DEPTHMETRICS_STORAGE_USE_SSL")
	setBool(&cfg.Storage.ForcePathStyle, "DEPTHMETRICS_STORAGE_FORCE_PATH_STYLE")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEPTHMETRICS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEPTHMETRICS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEPTHMETRICS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEPTHMETRICS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEPTHMETRICS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEPTHMETRICS_REDIS_TLS_ENABLED")

	// ── Collector ──
	setStringSlice(&cfg.Collector.Assets, "DEPTHMETRICS_COLLECTOR_ASSETS")
	setDuration(&cfg.Collector.RowInterval, "DEPTHMETRICS_COLLECTOR_ROW_INTERVAL")
	setDuration(&cfg.Collector.UploadInterval, "DEPTHMETRICS_COLLECTOR_UPLOAD_INTERVAL")
	setDuration(&cfg.Collector.FetchTimeout, "DEPTHMETRICS_COLLECTOR_FETCH_TIMEOUT")
	setStr(&cfg.Collector.DataDir, "DEPTHMETRICS_COLLECTOR_DATA_DIR")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEPTHMETRICS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEPTHMETRICS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEPTHMETRICS_SERVER_CORS_ORIGINS")

	// ── Composer ──
	setBool(&cfg.Composer.Enabled, "DEPTHMETRICS_COMPOSER_ENABLED")
	setStr(&cfg.Composer.ComposeAfter, "DEPTHMETRICS_COMPOSER_COMPOSE_AFTER")
	setDuration(&cfg.Composer.CheckInterval, "DEPTHMETRICS_COMPOSER_CHECK_INTERVAL")
	setStr(&cfg.Composer.Day, "DEPTHMETRICS_COMPOSER_DAY")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEPTHMETRICS_MODE")
	setStr(&cfg.LogLevel, "DEPTHMETRICS_LOG_LEVEL")
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
