package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradersentinel/internal/arbitrage"
	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/metrics"
)

// CEXSource produces ordered CEX ticks for a symbol.
type CEXSource interface {
	Snapshot(ctx context.Context, symbol string) []domain.VenueTick
	Venues() []string
}

// DEXSource produces the DEX tick for a symbol, nil when disabled.
type DEXSource interface {
	Snapshot(ctx context.Context, symbol string) *domain.DexTick
}

// MarketService combines the CEX and DEX aggregators into snapshots and
// arbitrage views.
type MarketService struct {
	cex    CEXSource
	dex    DEXSource
	cache  domain.SnapshotCache
	logger *slog.Logger
	now    func() time.Time
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(
	cex CEXSource,
	dex DEXSource,
	cache domain.SnapshotCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		cex:    cex,
		dex:    dex,
		cache:  cache,
		logger: logger.With(slog.String("component", "market_service")),
		now:    time.Now,
	}
}

// Venues returns the active CEX venues in configured order.
func (s *MarketService) Venues() []string {
	return s.cex.Venues()
}

// Snapshot runs the CEX fan-out and the DEX search concurrently and merges
// the results. Per-venue failures surface as absent ticks, never as errors.
func (s *MarketService) Snapshot(ctx context.Context, symbol string) domain.Snapshot {
	start := time.Now()
	snap := domain.Snapshot{
		Symbol:    symbol,
		Timestamp: s.now().Unix(),
	}

	var g errgroup.Group
	g.Go(func() error {
		snap.CEX = s.cex.Snapshot(ctx, symbol)
		return nil
	})
	g.Go(func() error {
		snap.DEX = s.dex.Snapshot(ctx, symbol)
		return nil
	})
	_ = g.Wait()

	metrics.Snapshots.Inc()
	metrics.SnapshotLatency.Observe(time.Since(start).Seconds())

	if s.cache != nil && ctx.Err() == nil {
		if err := s.cache.PutSnapshot(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache snapshot failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return snap
}

// Arbitrage computes a fresh snapshot and its arbitrage view.
func (s *MarketService) Arbitrage(ctx context.Context, symbol string) (domain.Snapshot, domain.ArbitrageView) {
	snap := s.Snapshot(ctx, symbol)
	return snap, arbitrage.Compute(snap)
}

// Latest returns the most recently cached snapshot for symbol without
// touching any venue.
func (s *MarketService) Latest(ctx context.Context, symbol string) (json.RawMessage, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("market_service: latest %s: snapshot cache: %w", symbol, domain.ErrFeatureDisabled)
	}
	raw, err := s.cache.GetSnapshot(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("market_service: latest %s: %w", symbol, err)
	}
	return raw, nil
}
