package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradersentinel/internal/arbitrage"
	"github.com/alanyoungcy/tradersentinel/internal/server"
	"github.com/alanyoungcy/tradersentinel/internal/server/handler"
	"github.com/alanyoungcy/tradersentinel/internal/server/middleware"
	"github.com/alanyoungcy/tradersentinel/internal/server/ws"
	"github.com/alanyoungcy/tradersentinel/internal/stream"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServerMode serves the HTTP, SSE and WebSocket API. Snapshots are computed
// on demand per request.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		return errors.New("server mode: server.enabled is false")
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// PublishMode polls every configured symbol on a fixed cadence, publishes
// snapshots and arbitrage reports to the signal bus, and alerts on wide
// spreads.
func (a *App) PublishMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	if err := a.startPublisher(ctx, g, deps); err != nil {
		return fmt.Errorf("publish mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs the publisher and the HTTP server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	if err := a.startPublisher(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// startPublisher adds one stream loop per configured symbol plus the alert
// detector to g.
func (a *App) startPublisher(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Publisher == nil {
		return errors.New("signal bus unavailable (redis disabled)")
	}

	p := &publisher{
		stream:    deps.Stream,
		sink:      deps.Publisher,
		replicaID: deps.ReplicaID,
		interval:  a.cfg.Publish.Interval.Duration,
		logger:    a.logger,
	}
	if deps.Claims != nil {
		p.claims = deps.Claims
	}
	for _, raw := range a.cfg.Publish.Symbols {
		symbol := strings.TrimSpace(raw)
		if symbol == "" {
			continue
		}
		g.Go(func() error {
			return p.run(ctx, symbol)
		})
	}

	detector := arbitrage.NewDetector(arbitrage.DetectorConfig{
		SpreadBps: a.cfg.Publish.AlertSpreadBps,
		DexBps:    a.cfg.Publish.AlertDexBps,
		Cooldown:  a.cfg.Publish.AlertCooldown.Duration,
		Notifier:  deps.Notifier,
		Logger:    a.logger,
	})
	g.Go(func() error {
		if err := detector.Run(ctx, deps.SignalBus); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	a.logger.InfoContext(ctx, "publisher started",
		slog.Any("symbols", a.cfg.Publish.Symbols),
		slog.Duration("interval", p.interval),
		slog.String("replica_id", deps.ReplicaID),
		slog.Bool("notify", deps.Notifier.Enabled()),
	)
	return nil
}

// startHTTPServer adds the HTTP server, and the WebSocket hub when a signal
// bus is wired, to g. The server is shut down gracefully when ctx is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	checkOrigin := middleware.OriginAllowed(a.cfg.Server.CORSOrigins)
	bounds := stream.Bounds{
		Default: time.Duration(a.cfg.Stream.DefaultIntervalMS) * time.Millisecond,
		Min:     time.Duration(a.cfg.Stream.MinIntervalMS) * time.Millisecond,
		Max:     time.Duration(a.cfg.Stream.MaxIntervalMS) * time.Millisecond,
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(a.cfg.Mode, deps.Features, a.startedAt, deps.Checks),
		Markets: handler.NewMarketHandler(deps.Markets, handler.VenueInfo{
			Configured: a.cfg.CEX.Venues,
			Supported:  deps.Registry.Supported(),
			DEX:        deps.DEX.Enabled(),
		}, a.logger),
		Streams: handler.NewStreamHandler(deps.Stream, bounds, checkOrigin, a.logger),
		TTS:     handler.NewTTSHandler(deps.Speech, a.logger),
	}

	// WebSocket hub; needs only the Redis signal bus.
	if deps.SignalBus != nil {
		hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:        a.cfg.Mode,
			StartedAt:   a.startedAt,
			CheckOrigin: checkOrigin,
		})
		handlers.Hub = hub
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(ctx, server.Config{
		Addr:            a.cfg.Server.Addr(),
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimiter:     deps.RateLimiter,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
