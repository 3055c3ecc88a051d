package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SENTINEL_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.CEX.Venues = normalizeVenues(cfg.CEX.Venues)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SENTINEL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). The unprefixed names accepted by earlier deployments are read first
// so the prefixed form wins.
func applyEnvOverrides(cfg *Config) {
	// ── Compatibility aliases ──
	setStr(&cfg.Server.Host, "HOST")
	setInt(&cfg.Server.Port, "PORT")
	setStringSlice(&cfg.CEX.Venues, "CEX_VENUES")
	setInt(&cfg.CEX.MinIntervalMS, "CEX_MIN_INTERVAL_MS")
	setBool(&cfg.DEX.Enabled, "DEXSCREENER_ENABLED")
	setBool(&cfg.TTS.Enabled, "GOOGLE_TTS_ENABLED")
	setStr(&cfg.TTS.Voice, "GOOGLE_TTS_VOICE")
	setStr(&cfg.TTS.Language, "GOOGLE_TTS_LANGUAGE")
	setStr(&cfg.TTS.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setStr(&cfg.TTS.CredentialsBase64, "GOOGLE_SA_JSON_BASE64")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SENTINEL_SERVER_ENABLED")
	setStr(&cfg.Server.Host, "SENTINEL_SERVER_HOST")
	setInt(&cfg.Server.Port, "SENTINEL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SENTINEL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SENTINEL_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "SENTINEL_SERVER_RATE_LIMIT_PER_MIN")

	// ── CEX ──
	setStringSlice(&cfg.CEX.Venues, "SENTINEL_CEX_VENUES")
	setInt(&cfg.CEX.MinIntervalMS, "SENTINEL_CEX_MIN_INTERVAL_MS")
	setDuration(&cfg.CEX.RequestTimeout, "SENTINEL_CEX_REQUEST_TIMEOUT")
	setBool(&cfg.CEX.SharedThrottle, "SENTINEL_CEX_SHARED_THROTTLE")

	// ── DEX ──
	setBool(&cfg.DEX.Enabled, "SENTINEL_DEX_ENABLED")
	setStr(&cfg.DEX.BaseURL, "SENTINEL_DEX_BASE_URL")
	setDuration(&cfg.DEX.Timeout, "SENTINEL_DEX_TIMEOUT")

	// ── Stream ──
	setInt(&cfg.Stream.DefaultIntervalMS, "SENTINEL_STREAM_DEFAULT_INTERVAL_MS")
	setInt(&cfg.Stream.MinIntervalMS, "SENTINEL_STREAM_MIN_INTERVAL_MS")
	setInt(&cfg.Stream.MaxIntervalMS, "SENTINEL_STREAM_MAX_INTERVAL_MS")

	// ── Publish ──
	setStringSlice(&cfg.Publish.Symbols, "SENTINEL_PUBLISH_SYMBOLS")
	setDuration(&cfg.Publish.Interval, "SENTINEL_PUBLISH_INTERVAL")
	setFloat64(&cfg.Publish.AlertSpreadBps, "SENTINEL_PUBLISH_ALERT_SPREAD_BPS")
	setFloat64(&cfg.Publish.AlertDexBps, "SENTINEL_PUBLISH_ALERT_DEX_BPS")
	setDuration(&cfg.Publish.AlertCooldown, "SENTINEL_PUBLISH_ALERT_COOLDOWN")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SENTINEL_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "REDIS_URL") // compatibility alias
	setStr(&cfg.Redis.URL, "SENTINEL_REDIS_URL")
	setStr(&cfg.Redis.Addr, "SENTINEL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SENTINEL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SENTINEL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SENTINEL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SENTINEL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SENTINEL_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "SENTINEL_REDIS_SNAPSHOT_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SENTINEL_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SENTINEL_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SENTINEL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SENTINEL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SENTINEL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SENTINEL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SENTINEL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SENTINEL_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SENTINEL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SENTINEL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SENTINEL_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SENTINEL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SENTINEL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SENTINEL_S3_REGION")
	setStr(&cfg.S3.Bucket, "SENTINEL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SENTINEL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SENTINEL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SENTINEL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SENTINEL_S3_FORCE_PATH_STYLE")

	// ── TTS ──
	setBool(&cfg.TTS.Enabled, "SENTINEL_TTS_ENABLED")
	setStr(&cfg.TTS.APIKey, "SENTINEL_TTS_API_KEY")
	setStr(&cfg.TTS.CredentialsFile, "SENTINEL_TTS_CREDENTIALS_FILE")
	setStr(&cfg.TTS.CredentialsBase64, "SENTINEL_TTS_CREDENTIALS_BASE64")
	setStr(&cfg.TTS.BaseURL, "SENTINEL_TTS_BASE_URL")
	setStr(&cfg.TTS.Language, "SENTINEL_TTS_LANGUAGE")
	setStr(&cfg.TTS.Voice, "SENTINEL_TTS_VOICE")
	setDuration(&cfg.TTS.Timeout, "SENTINEL_TTS_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SENTINEL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SENTINEL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SENTINEL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SENTINEL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SENTINEL_MODE")
	setStr(&cfg.LogLevel, "SENTINEL_LOG_LEVEL")
}

// normalizeVenues trims, lower-cases and de-duplicates venue identifiers,
// keeping first-seen order.
func normalizeVenues(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
