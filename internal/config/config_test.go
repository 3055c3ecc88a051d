package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads that a developer shell may
// already export.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HOST", "PORT", "CEX_VENUES", "CEX_MIN_INTERVAL_MS", "DEXSCREENER_ENABLED",
		"GOOGLE_TTS_ENABLED", "GOOGLE_TTS_VOICE", "GOOGLE_TTS_LANGUAGE", "DATABASE_URL",
		"REDIS_URL", "GOOGLE_APPLICATION_CREDENTIALS", "GOOGLE_SA_JSON_BASE64",
	} {
		t.Setenv(k, "")
	}
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "SENTINEL_") {
			t.Setenv(k, "")
		}
	}
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, []string{"binance", "bybit", "okx", "mexc"}, cfg.CEX.Venues)
	assert.Equal(t, 600*time.Millisecond, cfg.CEX.MinInterval())
	assert.Equal(t, 15*time.Second, cfg.CEX.RequestTimeout.Duration)
	assert.True(t, cfg.DEX.Enabled)
	assert.Equal(t, 10*time.Second, cfg.DEX.Timeout.Duration)
	assert.Equal(t, 1000, cfg.Stream.DefaultIntervalMS)
	assert.False(t, cfg.TTS.Enabled)
	assert.Equal(t, "en-US-Neural2-D", cfg.TTS.Voice)
	assert.True(t, cfg.Serving())
	assert.False(t, cfg.Publishing())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTOML(t, `
mode = "server"
log_level = "debug"

[server]
port = 9090

[cex]
venues = [" Binance", "OKX", "binance", "kucoin"]
min_interval_ms = 250
request_timeout = "5s"

[dex]
enabled = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "untouched default")
	assert.Equal(t, []string{"binance", "okx", "kucoin"}, cfg.CEX.Venues)
	assert.Equal(t, 250, cfg.CEX.MinIntervalMS)
	assert.Equal(t, 5*time.Second, cfg.CEX.RequestTimeout.Duration)
	assert.False(t, cfg.DEX.Enabled)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENTINEL_CEX_VENUES", "bybit, gateio ,")
	t.Setenv("SENTINEL_SERVER_PORT", "7000")
	t.Setenv("SENTINEL_REDIS_ENABLED", "true")
	t.Setenv("SENTINEL_REDIS_SNAPSHOT_TTL", "90s")
	t.Setenv("SENTINEL_PUBLISH_ALERT_SPREAD_BPS", "12.5")
	t.Setenv("SENTINEL_SERVER_RATE_LIMIT_PER_MIN", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"bybit", "gateio"}, cfg.CEX.Venues)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Redis.SnapshotTTL.Duration)
	assert.Equal(t, 12.5, cfg.Publish.AlertSpreadBps)
	assert.Equal(t, 600, cfg.Server.RateLimitPerMin, "unparsable values are ignored")
}

func TestEnvCompatibilityAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8082")
	t.Setenv("CEX_VENUES", "mexc")
	t.Setenv("DEXSCREENER_ENABLED", "false")
	t.Setenv("GOOGLE_TTS_VOICE", "en-GB-Neural2-A")
	t.Setenv("REDIS_URL", "rediss://cache.internal:6380/2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8082, cfg.Server.Port)
	assert.Equal(t, []string{"mexc"}, cfg.CEX.Venues)
	assert.False(t, cfg.DEX.Enabled)
	assert.Equal(t, "en-GB-Neural2-A", cfg.TTS.Voice)
	assert.Equal(t, "rediss://cache.internal:6380/2", cfg.Redis.URL)

	t.Setenv("SENTINEL_SERVER_PORT", "8083")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 8083, cfg.Server.Port, "prefixed variable wins")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "verbose"
	cfg.Server.Port = 0
	cfg.CEX.MinIntervalMS = -1
	cfg.Stream.DefaultIntervalMS = 10
	cfg.TTS.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "verbose"`)
	assert.Contains(t, msg, "server: port")
	assert.Contains(t, msg, "cex: min_interval_ms")
	assert.Contains(t, msg, "stream: default_interval_ms")
	assert.Contains(t, msg, "tts: api_key")
}

func TestValidatePublishNeedsRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "publish"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires redis.enabled")

	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Publishing())
	assert.False(t, cfg.Serving())
}

func TestValidateSharedThrottleNeedsRedis(t *testing.T) {
	cfg := Defaults()
	cfg.CEX.SharedThrottle = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared_throttle")
}

func TestValidateCadenceWindow(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"publish interval too short", func(c *Config) { c.Publish.Interval.Duration = 100 * time.Millisecond }, "publish: interval 100ms"},
		{"publish interval too long", func(c *Config) { c.Publish.Interval.Duration = 2 * time.Minute }, "publish: interval 2m0s"},
		{"publish interval zero", func(c *Config) { c.Publish.Interval.Duration = 0 }, "publish: interval 0s"},
		{"stream min too short", func(c *Config) { c.Stream.MinIntervalMS = 100 }, "stream: min_interval_ms 100"},
		{"stream max too long", func(c *Config) { c.Stream.MaxIntervalMS = 120_000 }, "stream: max_interval_ms 120000"},
		{"stream default too long", func(c *Config) {
			c.Stream.MaxIntervalMS = 90_000
			c.Stream.DefaultIntervalMS = 90_000
		}, "stream: default_interval_ms 90000"},
		{"stream default too short", func(c *Config) {
			c.Stream.MinIntervalMS = 10
			c.Stream.DefaultIntervalMS = 10
		}, "stream: default_interval_ms 10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("edges are inclusive", func(t *testing.T) {
		cfg := Defaults()
		cfg.Stream.MinIntervalMS = 250
		cfg.Stream.DefaultIntervalMS = 250
		cfg.Stream.MaxIntervalMS = 60_000
		cfg.Publish.Interval.Duration = 60 * time.Second
		assert.NoError(t, cfg.Validate())
	})
}

func TestTTSServiceAccount(t *testing.T) {
	key := []byte(`{"type":"service_account"}`)

	t.Run("base64 key satisfies validation", func(t *testing.T) {
		cfg := Defaults()
		cfg.TTS.Enabled = true
		cfg.TTS.CredentialsBase64 = base64.StdEncoding.EncodeToString(key)
		require.NoError(t, cfg.Validate())

		got, err := cfg.TTS.ServiceAccountJSON()
		require.NoError(t, err)
		assert.Equal(t, key, got)
	})

	t.Run("bad base64", func(t *testing.T) {
		cfg := Defaults()
		cfg.TTS.Enabled = true
		cfg.TTS.CredentialsBase64 = "not base64!"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tts: credentials_base64")
	})

	t.Run("key file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sa.json")
		require.NoError(t, os.WriteFile(path, key, 0o600))

		cfg := Defaults()
		cfg.TTS.Enabled = true
		cfg.TTS.CredentialsFile = path
		require.NoError(t, cfg.Validate())
		got, err := cfg.TTS.ServiceAccountJSON()
		require.NoError(t, err)
		assert.Equal(t, key, got)

		cfg.TTS.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")
		_, err = cfg.TTS.ServiceAccountJSON()
		assert.Error(t, err)
	})

	t.Run("environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/secrets/sa.json")
		t.Setenv("GOOGLE_SA_JSON_BASE64", "e30=")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "/secrets/sa.json", cfg.TTS.CredentialsFile)
		assert.Equal(t, "e30=", cfg.TTS.CredentialsBase64)
		assert.True(t, cfg.TTS.HasServiceAccount())
		assert.Equal(t, "***", RedactedConfig(cfg).TTS.CredentialsBase64)
	})
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "k"
	cfg.Redis.Password = "p"
	cfg.Redis.URL = "redis://:p@cache:6379/0"
	cfg.TTS.APIKey = "tts-key"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.Redis.URL)
	assert.Equal(t, "***", out.TTS.APIKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Notify.DiscordWebhookURL, "empty secrets stay empty")
	assert.Equal(t, "tts-key", cfg.TTS.APIKey, "original untouched")

	out.CEX.Venues[0] = "changed"
	assert.Equal(t, "binance", cfg.CEX.Venues[0])
}
