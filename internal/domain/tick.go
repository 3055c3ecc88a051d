// Package domain defines the venue-agnostic market data model shared by the
// aggregators, the arbitrage engine, the stream loop and the HTTP layer, along
// with the ports (caches, buses, stores) those packages depend on.
package domain

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// VenueKind distinguishes centralized exchanges from DEX aggregators.
type VenueKind string

const (
	KindCEX VenueKind = "cex"
	KindDEX VenueKind = "dex"
)

// DexVenue is the venue identifier reported on every DexTick.
const DexVenue = "dexscreener"

// VenueTick is one normalized ticker observation from a centralized exchange.
// A failed fetch is represented by a tick whose price fields are all absent.
type VenueTick struct {
	Venue     string              `json:"venue"`
	Kind      VenueKind           `json:"kind"`
	Last      decimal.NullDecimal `json:"last"`
	Bid       decimal.NullDecimal `json:"bid"`
	Ask       decimal.NullDecimal `json:"ask"`
	Timestamp int64               `json:"ts"`
}

// EmptyVenueTick returns the all-absent tick used when a venue could not be
// read.
func EmptyVenueTick(venue string, ts int64) VenueTick {
	return VenueTick{Venue: venue, Kind: KindCEX, Timestamp: ts}
}

// HasPrice reports whether any price field is populated.
func (t VenueTick) HasPrice() bool {
	return t.Last.Valid || t.Bid.Valid || t.Ask.Valid
}

// DexTick is the normalized result of a DEX search. A nil *DexTick means the
// DEX was not queried; a non-nil tick with every optional field absent means
// it was queried and nothing matched.
type DexTick struct {
	Venue        string              `json:"venue"`
	Kind         VenueKind           `json:"kind"`
	Last         decimal.NullDecimal `json:"last"`
	PairAddress  *string             `json:"pair"`
	ChainID      *string             `json:"chain"`
	DexID        *string             `json:"dex"`
	LiquidityUSD decimal.NullDecimal `json:"liquidity_usd"`
	Timestamp    int64               `json:"ts"`
}

// EmptyDexTick returns a queried-but-empty DEX tick.
func EmptyDexTick(ts int64) *DexTick {
	return &DexTick{Venue: DexVenue, Kind: KindDEX, Timestamp: ts}
}

// ParsePrice converts a loosely typed upstream value into an optional decimal.
// Nil, empty, non-numeric and non-finite inputs yield an absent value.
func ParsePrice(v any) decimal.NullDecimal {
	switch x := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case decimal.Decimal:
		return decimal.NewNullDecimal(x)
	case string:
		return parsePriceString(x)
	case json.Number:
		return parsePriceString(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(x))
	case float32:
		return ParsePrice(float64(x))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(x)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(x))
	default:
		return decimal.NullDecimal{}
	}
}

func parsePriceString(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// OptionalString returns nil for an empty string and a pointer otherwise.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
