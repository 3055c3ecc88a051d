// Package aggregator fans ticker requests out to every configured venue and
// folds the results into normalized ticks.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/metrics"
	"github.com/alanyoungcy/tradersentinel/internal/platform/exchange"
	"github.com/alanyoungcy/tradersentinel/internal/throttle"
)

// CEXConfig configures a CEX aggregator.
type CEXConfig struct {
	Venues         []string
	MinInterval    time.Duration
	RequestTimeout time.Duration
}

// CEX aggregates public tickers across centralized exchanges. It owns one
// client per active venue for the life of the process.
type CEX struct {
	venues   []string
	clients  map[string]exchange.TickerClient
	throttle domain.Throttler
	logger   *slog.Logger
	now      func() time.Time
}

// NewCEX resolves the configured venues against reg. Identifiers are
// trimmed, lower-cased and de-duplicated; unsupported ones are dropped with a
// warning. A nil throttler gets an in-process throttle spaced MinInterval.
func NewCEX(cfg CEXConfig, reg *exchange.Registry, th domain.Throttler, logger *slog.Logger) *CEX {
	if th == nil {
		th = throttle.New(cfg.MinInterval)
	}
	logger = logger.With(slog.String("component", "cex_aggregator"))

	c := &CEX{
		clients:  make(map[string]exchange.TickerClient),
		throttle: th,
		logger:   logger,
		now:      time.Now,
	}

	opts := []exchange.Option{exchange.WithLogger(logger)}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, exchange.WithTimeout(cfg.RequestTimeout))
	}

	for _, raw := range cfg.Venues {
		venue := strings.ToLower(strings.TrimSpace(raw))
		if venue == "" {
			continue
		}
		if _, dup := c.clients[venue]; dup {
			continue
		}
		client, err := reg.NewClient(venue, opts...)
		if err != nil {
			logger.Warn("dropping unsupported venue", slog.String("venue", venue))
			continue
		}
		c.clients[venue] = client
		c.venues = append(c.venues, venue)
	}

	logger.Info("cex aggregator ready",
		slog.Any("venues", c.venues),
		slog.Duration("min_interval", cfg.MinInterval),
	)
	return c
}

// Venues returns the active venues in configured order.
func (c *CEX) Venues() []string {
	out := make([]string, len(c.venues))
	copy(out, c.venues)
	return out
}

// FetchOne returns one venue's tick. Any failure, including an inactive
// venue, yields a tick with every price absent.
func (c *CEX) FetchOne(ctx context.Context, venue, symbol string) domain.VenueTick {
	start := time.Now()
	tick, err := c.fetch(ctx, venue, symbol)
	metrics.VenueLatency.WithLabelValues(venue).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VenueFetches.WithLabelValues(venue, "error").Inc()
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		c.logger.Log(ctx, level, "venue fetch failed",
			slog.String("venue", venue),
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.EmptyVenueTick(venue, c.now().Unix())
	}
	metrics.VenueFetches.WithLabelValues(venue, "ok").Inc()
	return tick
}

func (c *CEX) fetch(ctx context.Context, venue, symbol string) (domain.VenueTick, error) {
	client, ok := c.clients[venue]
	if !ok {
		return domain.VenueTick{}, domain.ErrUnsupportedVenue
	}
	if err := c.throttle.Wait(ctx, venue); err != nil {
		return domain.VenueTick{}, err
	}
	t, err := client.FetchTicker(ctx, symbol)
	if err != nil {
		return domain.VenueTick{}, err
	}
	return domain.VenueTick{
		Venue:     venue,
		Kind:      domain.KindCEX,
		Last:      t.Last,
		Bid:       t.Bid,
		Ask:       t.Ask,
		Timestamp: c.now().Unix(),
	}, nil
}

// Snapshot fetches every active venue concurrently and returns one tick per
// venue in configured order.
func (c *CEX) Snapshot(ctx context.Context, symbol string) []domain.VenueTick {
	ticks := make([]domain.VenueTick, len(c.venues))
	if len(c.venues) == 0 {
		return ticks
	}

	var g errgroup.Group
	for i, venue := range c.venues {
		g.Go(func() error {
			ticks[i] = c.FetchOne(ctx, venue, symbol)
			return nil
		})
	}
	_ = g.Wait()
	return ticks
}

// Close releases every venue client. Individual failures are logged.
func (c *CEX) Close() error {
	for _, venue := range c.venues {
		if err := c.clients[venue].Close(); err != nil {
			c.logger.Warn("close venue client",
				slog.String("venue", venue),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
