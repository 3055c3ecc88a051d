package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		in    any
		want  string
		valid bool
	}{
		{"nil", nil, "", false},
		{"string", "100.25", "100.25", true},
		{"padded string", "  7 ", "7", true},
		{"empty string", "", "", false},
		{"garbage", "n/a", "", false},
		{"json number", json.Number("42.5"), "42.5", true},
		{"float", 0.1, "0.1", true},
		{"nan", math.NaN(), "", false},
		{"inf", math.Inf(1), "", false},
		{"int", 3, "3", true},
		{"int64", int64(9), "9", true},
		{"decimal", decimal.RequireFromString("1.5"), "1.5", true},
		{"bool", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(tt.in)
			require.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, got.Decimal.String())
			}
		})
	}
}

func TestVenueTickJSON(t *testing.T) {
	tick := VenueTick{
		Venue:     "binance",
		Kind:      KindCEX,
		Last:      ParsePrice("100.5"),
		Timestamp: 1700000000,
	}
	out, err := json.Marshal(tick)
	require.NoError(t, err)
	assert.JSONEq(t, `{"venue":"binance","kind":"cex","last":100.5,"bid":null,"ask":null,"ts":1700000000}`, string(out))
	assert.True(t, tick.HasPrice())
	assert.False(t, EmptyVenueTick("okx", 1).HasPrice())
}

func TestEmptyDexTickJSON(t *testing.T) {
	out, err := json.Marshal(EmptyDexTick(5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"venue":"dexscreener","kind":"dex","last":null,"pair":null,"chain":null,"dex":null,"liquidity_usd":null,"ts":5}`, string(out))
}

func TestSnapshotJSON(t *testing.T) {
	snap := Snapshot{
		Symbol:    "BTC/USDT",
		Timestamp: 10,
		CEX:       []VenueTick{EmptyVenueTick("binance", 10)},
	}

	var body struct {
		OK     bool              `json:"ok"`
		Symbol string            `json:"symbol"`
		TS     int64             `json:"ts"`
		Venues []json.RawMessage `json:"venues"`
	}

	out, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, &body))
	assert.True(t, body.OK)
	assert.Equal(t, "BTC/USDT", body.Symbol)
	assert.Equal(t, int64(10), body.TS)
	assert.Len(t, body.Venues, 1, "no DEX entry when the DEX was not queried")

	snap.DEX = EmptyDexTick(10)
	out, err = json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, &body))
	require.Len(t, body.Venues, 2)
	assert.Contains(t, string(body.Venues[1]), `"venue":"dexscreener"`)
}

func TestOptionalString(t *testing.T) {
	assert.Nil(t, OptionalString("  "))
	got := OptionalString(" 0xabc ")
	require.NotNil(t, got)
	assert.Equal(t, "0xabc", *got)
}

func TestChannels(t *testing.T) {
	assert.Equal(t, "ch:snapshot:ETH/USDT", SnapshotChannel("ETH/USDT"))
	assert.Equal(t, "ch:arb:*", ArbChannel("*"))
}
