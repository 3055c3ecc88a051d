package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	s3blob "github.com/alanyoungcy/tradersentinel/internal/blob/s3"
	"github.com/alanyoungcy/tradersentinel/internal/aggregator"
	"github.com/alanyoungcy/tradersentinel/internal/cache/redis"
	"github.com/alanyoungcy/tradersentinel/internal/config"
	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/notify"
	"github.com/alanyoungcy/tradersentinel/internal/platform/dexscreener"
	"github.com/alanyoungcy/tradersentinel/internal/platform/exchange"
	"github.com/alanyoungcy/tradersentinel/internal/platform/gtts"
	"github.com/alanyoungcy/tradersentinel/internal/server/handler"
	"github.com/alanyoungcy/tradersentinel/internal/service"
	"github.com/alanyoungcy/tradersentinel/internal/speech"
	"github.com/alanyoungcy/tradersentinel/internal/store/postgres"
	"github.com/alanyoungcy/tradersentinel/internal/stream"
)

// Dependencies bundles everything the operating modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional backends are nil when disabled.
type Dependencies struct {
	// ReplicaID identifies this process when claiming publish ticks.
	ReplicaID string

	// Redis
	SnapshotCache domain.SnapshotCache
	SignalBus     domain.SignalBus
	RateLimiter   domain.RateLimiter
	Throttler     domain.Throttler
	Claims        *redis.ClaimStore

	// PostgreSQL
	Aliases domain.SymbolAliasStore

	// Blob storage
	BlobReader domain.BlobReader
	BlobWriter domain.BlobWriter

	// Market data
	Registry  *exchange.Registry
	CEX       *aggregator.CEX
	DEX       *aggregator.DEX
	Markets   *service.MarketService
	Publisher *service.PublishService
	Stream    *stream.Stream

	Speech   *speech.Service
	Notifier *notify.Notifier

	Features handler.Features
	// Checks reports backend reachability on /api/status.
	Checks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		ReplicaID: uuid.NewString(),
		Registry:  exchange.DefaultRegistry(),
		Checks:    map[string]handler.HealthCheck{},
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			ClientName: "sentinel-" + deps.ReplicaID,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient.Health

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient, cfg.Redis.SnapshotTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Claims = redis.NewClaimStore(redisClient)
		if cfg.CEX.SharedThrottle {
			deps.Throttler = redis.NewThrottle(redisClient, cfg.CEX.MinInterval(), logger)
		}
		deps.Features.Redis = true
	}

	// --- PostgreSQL (symbol aliases) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, func() { _ = pgClient.Close() })
		deps.Checks["postgres"] = pgClient.Health

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		aliases := postgres.NewSymbolAliasStore(pgClient.Pool())
		if err := loadAliases(ctx, aliases, deps.Registry, logger); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.Aliases = aliases
		deps.Features.Postgres = true
	}

	// --- S3 blob storage (speech cache) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Checks["s3"] = s3Client.Health

		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Features.S3 = true
	}

	// --- Market data ---
	deps.CEX = aggregator.NewCEX(aggregator.CEXConfig{
		Venues:         cfg.CEX.Venues,
		MinInterval:    cfg.CEX.MinInterval(),
		RequestTimeout: cfg.CEX.RequestTimeout.Duration,
	}, deps.Registry, deps.Throttler, logger)
	closers = append(closers, func() { _ = deps.CEX.Close() })

	dexClient := dexscreener.NewClient(
		dexscreener.WithBaseURL(cfg.DEX.BaseURL),
		dexscreener.WithTimeout(cfg.DEX.Timeout.Duration),
		dexscreener.WithLogger(logger),
	)
	deps.DEX = aggregator.NewDEX(cfg.DEX.Enabled, dexClient, logger)
	closers = append(closers, func() { _ = deps.DEX.Close() })
	deps.Features.DEX = cfg.DEX.Enabled

	deps.Markets = service.NewMarketService(deps.CEX, deps.DEX, deps.SnapshotCache, logger)
	deps.Stream = stream.New(deps.Markets, logger)
	if deps.SignalBus != nil {
		deps.Publisher = service.NewPublishService(deps.SignalBus, logger)
		deps.Features.Publish = cfg.Publishing()
	}

	// --- Speech ---
	var synth domain.Synthesizer
	if cfg.TTS.Enabled {
		gc, err := newSpeechClient(ctx, cfg.TTS, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		synth = gc
	}
	deps.Speech = speech.NewService(speech.Config{
		Enabled:  cfg.TTS.Enabled,
		Language: cfg.TTS.Language,
		Voice:    cfg.TTS.Voice,
	}, synth, deps.BlobReader, deps.BlobWriter, logger)
	deps.Features.TTS = deps.Speech.Enabled()

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, nil))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// newSpeechClient authenticates with the API key when one is set and with
// the service-account key otherwise.
func newSpeechClient(ctx context.Context, cfg config.TTSConfig, logger *slog.Logger) (*gtts.Client, error) {
	opts := []gtts.Option{
		gtts.WithBaseURL(cfg.BaseURL),
		gtts.WithTimeout(cfg.Timeout.Duration),
		gtts.WithLogger(logger),
	}
	if cfg.APIKey != "" {
		return gtts.NewClient(cfg.APIKey, opts...), nil
	}

	key, err := cfg.ServiceAccountJSON()
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	c, err := gtts.NewServiceAccountClient(ctx, key, opts...)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	logger.InfoContext(ctx, "speech authenticating with service account")
	return c, nil
}

// loadAliases copies every stored alias into the registry's symbol table.
func loadAliases(ctx context.Context, store domain.SymbolAliasStore, reg *exchange.Registry, logger *slog.Logger) error {
	aliases, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("load symbol aliases: %w", err)
	}
	reg.Symbols().Load(aliases)
	logger.InfoContext(ctx, "symbol aliases loaded", slog.Int("count", len(aliases)))
	return nil
}
