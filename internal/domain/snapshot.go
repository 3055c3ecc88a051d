package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Snapshot is the ordered collection of ticks for one symbol at one instant:
// CEX ticks in configured venue order, then the DEX tick when it was queried.
type Snapshot struct {
	Symbol    string
	Timestamp int64
	CEX       []VenueTick
	DEX       *DexTick
}

// Venues returns the ticks in wire order.
func (s Snapshot) Venues() []any {
	out := make([]any, 0, len(s.CEX)+1)
	for _, t := range s.CEX {
		out = append(out, t)
	}
	if s.DEX != nil {
		out = append(out, s.DEX)
	}
	return out
}

type snapshotWire struct {
	OK     bool   `json:"ok"`
	Symbol string `json:"symbol"`
	TS     int64  `json:"ts"`
	Venues []any  `json:"venues"`
}

// MarshalJSON renders the snapshot response shape
// {ok, symbol, ts, venues}.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotWire{
		OK:     true,
		Symbol: s.Symbol,
		TS:     s.Timestamp,
		Venues: s.Venues(),
	})
}

// ArbitrageView is derived from a Snapshot and never stored. Every field is
// absent when its inputs are insufficient.
type ArbitrageView struct {
	BestBid         decimal.NullDecimal `json:"best_bid"`
	BestBidVenue    *string             `json:"best_bid_venue"`
	BestAsk         decimal.NullDecimal `json:"best_ask"`
	BestAskVenue    *string             `json:"best_ask_venue"`
	Spread          decimal.NullDecimal `json:"spread"`
	DexLast         decimal.NullDecimal `json:"dex_last"`
	DexMinusBestAsk decimal.NullDecimal `json:"dex_minus_best_ask"`
}

// ArbitrageReport is the arbitrage response envelope.
type ArbitrageReport struct {
	OK     bool   `json:"ok"`
	Symbol string `json:"symbol"`
	ArbitrageView
	Timestamp int64 `json:"ts"`
}
