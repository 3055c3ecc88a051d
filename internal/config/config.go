// Package config defines the top-level configuration for the sentinel service
// and provides validation helpers.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SENTINEL_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	CEX      CEXConfig      `toml:"cex"`
	DEX      DEXConfig      `toml:"dex"`
	Stream   StreamConfig   `toml:"stream"`
	Publish  PublishConfig  `toml:"publish"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	TTS      TTSConfig      `toml:"tts"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CEXConfig selects the centralized exchanges and how hard they are polled.
type CEXConfig struct {
	Venues         []string `toml:"venues"`
	MinIntervalMS  int      `toml:"min_interval_ms"`
	RequestTimeout duration `toml:"request_timeout"`
	// SharedThrottle keeps the per-venue spacing in Redis so several
	// replicas respect one budget.
	SharedThrottle bool `toml:"shared_throttle"`
}

// MinInterval returns the per-venue spacing as a duration.
func (c CEXConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMS) * time.Millisecond
}

// DEXConfig holds DexScreener parameters.
type DEXConfig struct {
	Enabled bool     `toml:"enabled"`
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// StreamConfig bounds the push-stream cadence.
type StreamConfig struct {
	DefaultIntervalMS int `toml:"default_interval_ms"`
	MinIntervalMS     int `toml:"min_interval_ms"`
	MaxIntervalMS     int `toml:"max_interval_ms"`
}

// PublishConfig drives the bus publisher and the alert detector.
type PublishConfig struct {
	Symbols        []string `toml:"symbols"`
	Interval       duration `toml:"interval"`
	AlertSpreadBps float64  `toml:"alert_spread_bps"`
	AlertDexBps    float64  `toml:"alert_dex_bps"`
	AlertCooldown  duration `toml:"alert_cooldown"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled bool `toml:"enabled"`
	// URL, when set, replaces addr, password, db and tls_enabled.
	URL         string   `toml:"url"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	SnapshotTTL duration `toml:"snapshot_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters. The database only
// stores symbol aliases.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TTSConfig holds Google Cloud Text-to-Speech parameters. Either APIKey or
// a service-account key authenticates; the API key wins when both are set.
type TTSConfig struct {
	Enabled bool   `toml:"enabled"`
	APIKey  string `toml:"api_key"`
	// CredentialsFile is a path to a service-account JSON key.
	CredentialsFile string `toml:"credentials_file"`
	// CredentialsBase64 is a base64-encoded service-account JSON key. It
	// takes precedence over CredentialsFile.
	CredentialsBase64 string   `toml:"credentials_base64"`
	BaseURL           string   `toml:"base_url"`
	Language          string   `toml:"language"`
	Voice             string   `toml:"voice"`
	Timeout           duration `toml:"timeout"`
}

// HasServiceAccount reports whether a service-account key is configured.
func (t TTSConfig) HasServiceAccount() bool {
	return t.CredentialsBase64 != "" || t.CredentialsFile != ""
}

// ServiceAccountJSON returns the configured service-account key.
func (t TTSConfig) ServiceAccountJSON() ([]byte, error) {
	if t.CredentialsBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(t.CredentialsBase64))
		if err != nil {
			return nil, fmt.Errorf("config: tts credentials_base64: %w", err)
		}
		return raw, nil
	}
	if t.CredentialsFile == "" {
		return nil, errors.New("config: tts: no service-account key configured")
	}
	raw, err := os.ReadFile(t.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("config: tts credentials_file: %w", err)
	}
	return raw, nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8081,
			CORSOrigins:     []string{"*"},
			RateLimitPerMin: 600,
		},
		CEX: CEXConfig{
			Venues:         []string{"binance", "bybit", "okx", "mexc"},
			MinIntervalMS:  600,
			RequestTimeout: duration{15 * time.Second},
		},
		DEX: DEXConfig{
			Enabled: true,
			BaseURL: "https://api.dexscreener.com",
			Timeout: duration{10 * time.Second},
		},
		Stream: StreamConfig{
			DefaultIntervalMS: 1000,
			MinIntervalMS:     250,
			MaxIntervalMS:     60_000,
		},
		Publish: PublishConfig{
			Symbols:        []string{"BTC/USDT"},
			Interval:       duration{5 * time.Second},
			AlertSpreadBps: 30,
			AlertDexBps:    100,
			AlertCooldown:  duration{5 * time.Minute},
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			TLSEnabled:  false,
			SnapshotTTL: duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "sentinel",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sentinel-tts",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		TTS: TTSConfig{
			Enabled:  false,
			BaseURL:  "https://texttospeech.googleapis.com",
			Language: "en-US",
			Voice:    "en-US-Neural2-D",
			Timeout:  duration{15 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"arb_detected"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
// Every stream and publish cadence must fall inside this window.
const (
	minCadence = 250 * time.Millisecond
	maxCadence = 60 * time.Second
)

func inCadence(d time.Duration) bool {
	return d >= minCadence && d <= maxCadence
}

var validModes = map[string]bool{
	"server":  true,
	"publish": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Publishing reports whether the mode runs the bus publisher.
func (c *Config) Publishing() bool {
	m := strings.ToLower(c.Mode)
	return m == "publish" || m == "full"
}

// Serving reports whether the mode runs the HTTP server.
func (c *Config) Serving() bool {
	m := strings.ToLower(c.Mode)
	return (m == "server" || m == "full") && c.Server.Enabled
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, publish, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
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

	// CEX
	if c.CEX.MinIntervalMS < 0 {
		errs = append(errs, "cex: min_interval_ms must be >= 0")
	}
	if c.CEX.RequestTimeout.Duration <= 0 {
		errs = append(errs, "cex: request_timeout must be > 0")
	}
	if c.CEX.SharedThrottle && !c.Redis.Enabled {
		errs = append(errs, "cex: shared_throttle requires redis.enabled")
	}

	// DEX
	if c.DEX.Enabled {
		if c.DEX.BaseURL == "" {
			errs = append(errs, "dex: base_url must not be empty when enabled")
		}
		if c.DEX.Timeout.Duration <= 0 {
			errs = append(errs, "dex: timeout must be > 0")
		}
	}

	// Stream
	s := c.Stream
	for _, f := range []struct {
		name string
		ms   int
	}{
		{"min_interval_ms", s.MinIntervalMS},
		{"max_interval_ms", s.MaxIntervalMS},
		{"default_interval_ms", s.DefaultIntervalMS},
	} {
		if !inCadence(time.Duration(f.ms) * time.Millisecond) {
			errs = append(errs, fmt.Sprintf("stream: %s %d outside [%d, %d]", f.name, f.ms, minCadence.Milliseconds(), maxCadence.Milliseconds()))
		}
	}
	if s.MinIntervalMS <= 0 || s.MinIntervalMS > s.MaxIntervalMS {
		errs = append(errs, fmt.Sprintf("stream: need 0 < min_interval_ms <= max_interval_ms, got %d/%d", s.MinIntervalMS, s.MaxIntervalMS))
	} else if s.DefaultIntervalMS < s.MinIntervalMS || s.DefaultIntervalMS > s.MaxIntervalMS {
		errs = append(errs, fmt.Sprintf("stream: default_interval_ms %d outside [%d, %d]", s.DefaultIntervalMS, s.MinIntervalMS, s.MaxIntervalMS))
	}

	// Publish
	if c.Publishing() {
		if len(c.Publish.Symbols) == 0 {
			errs = append(errs, "publish: symbols must not be empty for mode "+c.Mode)
		}
		if !c.Redis.Enabled {
			errs = append(errs, "publish: mode "+c.Mode+" requires redis.enabled")
		}
	}
	if !inCadence(c.Publish.Interval.Duration) {
		errs = append(errs, fmt.Sprintf("publish: interval %s outside [%s, %s]", c.Publish.Interval.Duration, minCadence, maxCadence))
	}
	if c.Publish.AlertSpreadBps < 0 || c.Publish.AlertDexBps < 0 {
		errs = append(errs, "publish: alert thresholds must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" && c.Redis.URL == "" {
			errs = append(errs, "redis: addr or url must be set")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.SnapshotTTL.Duration <= 0 {
			errs = append(errs, "redis: snapshot_ttl must be > 0")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// TTS
	if c.TTS.Enabled {
		if c.TTS.APIKey == "" && !c.TTS.HasServiceAccount() {
			errs = append(errs, "tts: api_key or service-account credentials are required when enabled")
		}
		if c.TTS.APIKey == "" && c.TTS.CredentialsBase64 != "" {
			if _, err := c.TTS.ServiceAccountJSON(); err != nil {
				errs = append(errs, "tts: credentials_base64 is not valid base64")
			}
		}
		if c.TTS.BaseURL == "" {
			errs = append(errs, "tts: base_url must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
