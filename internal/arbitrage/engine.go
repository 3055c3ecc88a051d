// Package arbitrage derives cross-venue arbitrage views from aggregated
// snapshots and raises alerts when they cross configured thresholds.
package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

var bpsFactor = decimal.NewFromInt(10_000)

// Compute derives the arbitrage view of snap. It is pure: no I/O, no state.
// Best bid is the highest numeric bid, best ask the lowest numeric ask; on
// ties the first venue in snapshot order wins.
func Compute(snap domain.Snapshot) domain.ArbitrageView {
	var v domain.ArbitrageView

	for _, t := range snap.CEX {
		if t.Kind != domain.KindCEX {
			continue
		}
		if t.Bid.Valid && (!v.BestBid.Valid || t.Bid.Decimal.GreaterThan(v.BestBid.Decimal)) {
			v.BestBid = t.Bid
			v.BestBidVenue = venueRef(t.Venue)
		}
		if t.Ask.Valid && (!v.BestAsk.Valid || t.Ask.Decimal.LessThan(v.BestAsk.Decimal)) {
			v.BestAsk = t.Ask
			v.BestAskVenue = venueRef(t.Venue)
		}
	}

	if v.BestBid.Valid && v.BestAsk.Valid {
		v.Spread = decimal.NewNullDecimal(v.BestBid.Decimal.Sub(v.BestAsk.Decimal))
	}
	if snap.DEX != nil && snap.DEX.Last.Valid {
		v.DexLast = snap.DEX.Last
	}
	if v.DexLast.Valid && v.BestAsk.Valid {
		v.DexMinusBestAsk = decimal.NewNullDecimal(v.DexLast.Decimal.Sub(v.BestAsk.Decimal))
	}
	return v
}

// Report wraps a view in the response envelope.
func Report(snap domain.Snapshot, v domain.ArbitrageView) domain.ArbitrageReport {
	return domain.ArbitrageReport{
		OK:            true,
		Symbol:        snap.Symbol,
		ArbitrageView: v,
		Timestamp:     snap.Timestamp,
	}
}

// SpreadBps expresses the cross-venue spread in basis points of the
// bid/ask midpoint.
func SpreadBps(v domain.ArbitrageView) decimal.NullDecimal {
	if !v.Spread.Valid {
		return decimal.NullDecimal{}
	}
	mid := v.BestBid.Decimal.Add(v.BestAsk.Decimal).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v.Spread.Decimal.Div(mid).Mul(bpsFactor))
}

// DexDeviationBps expresses dex_minus_best_ask in basis points of the best
// ask.
func DexDeviationBps(v domain.ArbitrageView) decimal.NullDecimal {
	if !v.DexMinusBestAsk.Valid || !v.BestAsk.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v.DexMinusBestAsk.Decimal.Div(v.BestAsk.Decimal).Mul(bpsFactor))
}

func venueRef(v string) *string {
	return &v
}
