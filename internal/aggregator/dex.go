package aggregator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/metrics"
	"github.com/alanyoungcy/tradersentinel/internal/platform/dexscreener"
)

// PairSearcher runs a DEX pair search.
type PairSearcher interface {
	Search(ctx context.Context, query string) ([]dexscreener.Pair, error)
	Close() error
}

// DEX resolves a symbol to the most liquid DEX pair.
type DEX struct {
	enabled bool
	client  PairSearcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewDEX creates a DEX aggregator. A disabled aggregator never calls client.
func NewDEX(enabled bool, client PairSearcher, logger *slog.Logger) *DEX {
	return &DEX{
		enabled: enabled,
		client:  client,
		logger:  logger.With(slog.String("component", "dex_aggregator")),
		now:     time.Now,
	}
}

// Enabled reports whether DEX lookups are active.
func (d *DEX) Enabled() bool {
	return d.enabled
}

// Query turns "BTC/USDT" into the search text "BTC USDT".
func Query(symbol string) string {
	return strings.TrimSpace(strings.ReplaceAll(symbol, "/", " "))
}

// Snapshot returns nil when disabled. Otherwise it returns the most liquid
// matching pair, or an all-absent tick when the search fails or finds
// nothing.
func (d *DEX) Snapshot(ctx context.Context, symbol string) *domain.DexTick {
	if !d.enabled {
		return nil
	}
	ts := d.now().Unix()

	pairs, err := d.client.Search(ctx, Query(symbol))
	if err != nil {
		metrics.DexSearches.WithLabelValues("error").Inc()
		d.logger.Warn("dex search failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.EmptyDexTick(ts)
	}

	i := dexscreener.MostLiquid(pairs)
	if i < 0 {
		metrics.DexSearches.WithLabelValues("empty").Inc()
		return domain.EmptyDexTick(ts)
	}
	metrics.DexSearches.WithLabelValues("ok").Inc()

	best := pairs[i]
	return &domain.DexTick{
		Venue:        domain.DexVenue,
		Kind:         domain.KindDEX,
		Last:         domain.ParsePrice(best.PriceUSD),
		PairAddress:  domain.OptionalString(best.Address()),
		ChainID:      domain.OptionalString(best.ChainID),
		DexID:        domain.OptionalString(best.DexID),
		LiquidityUSD: best.LiquidityUSD(),
		Timestamp:    ts,
	}
}

// Close releases the underlying HTTP client.
func (d *DEX) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}
