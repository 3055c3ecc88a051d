package arbitrage

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

func d(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func cex(venue string, bid, ask decimal.NullDecimal) domain.VenueTick {
	return domain.VenueTick{Venue: venue, Kind: domain.KindCEX, Bid: bid, Ask: ask, Timestamp: 1}
}

func assertDec(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	require.True(t, got.Valid, "expected %s, got absent", want)
	assert.True(t, decimal.RequireFromString(want).Equal(got.Decimal), "want %s, got %s", want, got.Decimal)
}

func TestCompute_BestBidAskAndSpread(t *testing.T) {
	snap := domain.Snapshot{
		Symbol: "BTC/USDT",
		CEX: []domain.VenueTick{
			cex("a", d("100"), d("101")),
			cex("b", d("105"), d("106")),
			cex("c", d("95"), d("99")),
		},
	}

	v := Compute(snap)
	assertDec(t, "105", v.BestBid)
	require.NotNil(t, v.BestBidVenue)
	assert.Equal(t, "b", *v.BestBidVenue)
	assertDec(t, "99", v.BestAsk)
	require.NotNil(t, v.BestAskVenue)
	assert.Equal(t, "c", *v.BestAskVenue)
	assertDec(t, "6", v.Spread)
	assert.False(t, v.DexLast.Valid)
	assert.False(t, v.DexMinusBestAsk.Valid)
}

func TestCompute_NoAsks(t *testing.T) {
	snap := domain.Snapshot{CEX: []domain.VenueTick{
		cex("a", d("100"), decimal.NullDecimal{}),
		cex("b", d("101"), decimal.NullDecimal{}),
	}}

	v := Compute(snap)
	assertDec(t, "101", v.BestBid)
	assert.False(t, v.BestAsk.Valid)
	assert.Nil(t, v.BestAskVenue)
	assert.False(t, v.Spread.Valid)
}

func TestCompute_TiesKeepFirst(t *testing.T) {
	snap := domain.Snapshot{CEX: []domain.VenueTick{
		cex("first", d("100"), d("101")),
		cex("second", d("100.0"), d("101.00")),
	}}

	v := Compute(snap)
	assert.Equal(t, "first", *v.BestBidVenue)
	assert.Equal(t, "first", *v.BestAskVenue)
}

func TestCompute_DexDeviation(t *testing.T) {
	snap := domain.Snapshot{
		CEX: []domain.VenueTick{cex("a", d("99"), d("100"))},
		DEX: &domain.DexTick{Venue: domain.DexVenue, Kind: domain.KindDEX, Last: d("100.5")},
	}

	v := Compute(snap)
	assertDec(t, "100.5", v.DexLast)
	assertDec(t, "0.5", v.DexMinusBestAsk)
	assertDec(t, "50", DexDeviationBps(v))
}

func TestCompute_DexWithoutAsk(t *testing.T) {
	snap := domain.Snapshot{DEX: &domain.DexTick{Last: d("10")}}

	v := Compute(snap)
	assertDec(t, "10", v.DexLast)
	assert.False(t, v.DexMinusBestAsk.Valid)
	assert.False(t, DexDeviationBps(v).Valid)
}

func TestCompute_EmptySnapshot(t *testing.T) {
	v := Compute(domain.Snapshot{})
	assert.Equal(t, domain.ArbitrageView{}, v)
}

func TestCompute_IsPure(t *testing.T) {
	snap := domain.Snapshot{CEX: []domain.VenueTick{
		cex("a", d("100"), d("101")),
		cex("b", d("102"), d("103")),
	}}
	before, err := json.Marshal(snap)
	require.NoError(t, err)

	first := Compute(snap)
	second := Compute(snap)

	after, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, first, second)
}

func TestSpreadBps(t *testing.T) {
	v := domain.ArbitrageView{BestBid: d("101"), BestAsk: d("99"), Spread: d("2")}
	assertDec(t, "200", SpreadBps(v))

	assert.False(t, SpreadBps(domain.ArbitrageView{BestBid: d("1")}).Valid)
}

func TestReportJSON(t *testing.T) {
	snap := domain.Snapshot{Symbol: "ETH/USDT", Timestamp: 1700000000, CEX: []domain.VenueTick{cex("okx", d("10"), d("11"))}}
	b, err := json.Marshal(Report(snap, Compute(snap)))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"ok": true,
		"symbol": "ETH/USDT",
		"best_bid": 10,
		"best_bid_venue": "okx",
		"best_ask": 11,
		"best_ask_venue": "okx",
		"spread": -1,
		"dex_last": null,
		"dex_minus_best_ask": null,
		"ts": 1700000000
	}`, string(b))
}
