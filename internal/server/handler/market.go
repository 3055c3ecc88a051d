package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradersentinel/internal/arbitrage"
	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// MarketService is what the market endpoints need from the service layer.
type MarketService interface {
	Snapshot(ctx context.Context, symbol string) domain.Snapshot
	Arbitrage(ctx context.Context, symbol string) (domain.Snapshot, domain.ArbitrageView)
	Latest(ctx context.Context, symbol string) (json.RawMessage, error)
	Venues() []string
}

// VenueInfo describes the venue configuration reported by /api/venues.
type VenueInfo struct {
	Configured []string
	Supported  []string
	DEX        bool
}

// MarketHandler serves snapshot, arbitrage and venue endpoints.
type MarketHandler struct {
	markets MarketService
	venues  VenueInfo
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, venues VenueInfo, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		venues:  venues,
		logger:  logHandler(logger, "market"),
	}
}

// Snapshot returns a fresh multi-venue snapshot.
// GET /api/market/snapshot?symbol=BTC/USDT
func (h *MarketHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	symbol, err := symbolParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.markets.Snapshot(r.Context(), symbol))
}

// Arbitrage returns the best bid/ask view over a fresh snapshot.
// GET /api/market/arb?symbol=BTC/USDT
func (h *MarketHandler) Arbitrage(w http.ResponseWriter, r *http.Request) {
	symbol, err := symbolParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, view := h.markets.Arbitrage(r.Context(), symbol)
	writeJSON(w, http.StatusOK, arbitrage.Report(snap, view))
}

// Latest returns the last cached snapshot without querying any venue.
// GET /api/market/latest?symbol=BTC/USDT
func (h *MarketHandler) Latest(w http.ResponseWriter, r *http.Request) {
	symbol, err := symbolParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := h.markets.Latest(r.Context(), symbol)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	case errors.Is(err, domain.ErrFeatureDisabled):
		writeError(w, http.StatusServiceUnavailable, "snapshot cache disabled")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "no cached snapshot for "+symbol)
	default:
		h.logger.ErrorContext(r.Context(), "latest snapshot failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read cached snapshot")
	}
}

type venuesResponse struct {
	OK         bool     `json:"ok"`
	Configured []string `json:"configured"`
	Active     []string `json:"active"`
	Supported  []string `json:"supported"`
	DEX        bool     `json:"dex"`
}

// Venues lists configured, active and supported venues.
// GET /api/venues
func (h *MarketHandler) Venues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, venuesResponse{
		OK:         true,
		Configured: nonNil(h.venues.Configured),
		Active:     nonNil(h.markets.Venues()),
		Supported:  nonNil(h.venues.Supported),
		DEX:        h.venues.DEX,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
