package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

func assertPrice(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	require.True(t, got.Valid, "expected price %s, got absent", want)
	assert.True(t, decimal.RequireFromString(want).Equal(got.Decimal), "want %s, got %s", want, got.Decimal)
}

func TestVenueTickers(t *testing.T) {
	tests := []struct {
		name      string
		api       venueAPI
		wantPath  string
		wantQuery map[string]string
		body      string
	}{
		{
			name:      "binance",
			api:       binanceAPI(),
			wantPath:  "/api/v3/ticker/24hr",
			wantQuery: map[string]string{"symbol": "BTCUSDT"},
			body:      `{"symbol":"BTCUSDT","lastPrice":"65000.10","bidPrice":"65000.00","askPrice":"65000.20"}`,
		},
		{
			name:      "mexc",
			api:       mexcAPI(),
			wantPath:  "/api/v3/ticker/24hr",
			wantQuery: map[string]string{"symbol": "BTCUSDT"},
			body:      `{"symbol":"BTCUSDT","lastPrice":"65000.10","bidPrice":"65000.00","askPrice":"65000.20"}`,
		},
		{
			name:      "bybit",
			api:       bybitAPI(),
			wantPath:  "/v5/market/tickers",
			wantQuery: map[string]string{"symbol": "BTCUSDT", "category": "spot"},
			body:      `{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[{"symbol":"BTCUSDT","lastPrice":"65000.10","bid1Price":"65000.00","ask1Price":"65000.20"}]}}`,
		},
		{
			name:      "okx",
			api:       okxAPI(),
			wantPath:  "/api/v5/market/ticker",
			wantQuery: map[string]string{"instId": "BTC-USDT"},
			body:      `{"code":"0","msg":"","data":[{"instId":"BTC-USDT","last":"65000.10","bidPx":"65000.00","askPx":"65000.20"}]}`,
		},
		{
			name:      "gateio",
			api:       gateAPI(),
			wantPath:  "/api/v4/spot/tickers",
			wantQuery: map[string]string{"currency_pair": "BTC_USDT"},
			body:      `[{"currency_pair":"BTC_USDT","last":"65000.10","highest_bid":"65000.00","lowest_ask":"65000.20"}]`,
		},
		{
			name:      "bitget",
			api:       bitgetAPI(),
			wantPath:  "/api/v2/spot/market/tickers",
			wantQuery: map[string]string{"symbol": "BTCUSDT"},
			body:      `{"code":"00000","msg":"success","data":[{"symbol":"BTCUSDT","lastPr":"65000.10","bidPr":"65000.00","askPr":"65000.20"}]}`,
		},
		{
			name:      "kucoin",
			api:       kucoinAPI(),
			wantPath:  "/api/v1/market/orderbook/level1",
			wantQuery: map[string]string{"symbol": "BTC-USDT"},
			body:      `{"code":"200000","data":{"price":"65000.10","bestBid":"65000.00","bestAsk":"65000.20"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)
				for k, v := range tt.wantQuery {
					assert.Equal(t, v, r.URL.Query().Get(k), "query %s", k)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newClient(tt.api, WithBaseURL(srv.URL), WithPublicInterval(0))
			defer c.Close()

			assert.Equal(t, tt.name, c.Venue())
			tk, err := c.FetchTicker(context.Background(), "btc/usdt")
			require.NoError(t, err)
			assertPrice(t, "65000.10", tk.Last)
			assertPrice(t, "65000.00", tk.Bid)
			assertPrice(t, "65000.20", tk.Ask)
		})
	}
}

func TestFetchTicker_MissingFieldsAreAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"65000","bidPrice":"","askPrice":null}`))
	}))
	defer srv.Close()

	c := newClient(binanceAPI(), WithBaseURL(srv.URL), WithPublicInterval(0))
	tk, err := c.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assertPrice(t, "65000", tk.Last)
	assert.False(t, tk.Bid.Valid)
	assert.False(t, tk.Ask.Valid)
}

func TestFetchTicker_NumericFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"200000","data":{"price":0.1,"bestBid":"abc","bestAsk":0.2}}`))
	}))
	defer srv.Close()

	c := newClient(kucoinAPI(), WithBaseURL(srv.URL), WithPublicInterval(0))
	tk, err := c.FetchTicker(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assertPrice(t, "0.1", tk.Last)
	assert.False(t, tk.Bid.Valid)
	assertPrice(t, "0.2", tk.Ask)
}

func TestFetchTicker_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	}))
	defer srv.Close()

	c := newClient(binanceAPI(), WithBaseURL(srv.URL), WithPublicInterval(0))
	_, err := c.FetchTicker(context.Background(), "BTC/USDT")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, se.IsRateLimited())
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestFetchTicker_ApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
	}))
	defer srv.Close()

	c := newClient(okxAPI(), WithBaseURL(srv.URL), WithPublicInterval(0))
	_, err := c.FetchTicker(context.Background(), "NOPE/USDT")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "51001", se.Code)
	assert.False(t, se.IsRateLimited())
}

func TestFetchTicker_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newClient(gateAPI(), WithBaseURL(srv.URL), WithPublicInterval(0))
	_, err := c.FetchTicker(context.Background(), "BTC/USDT")
	assert.ErrorIs(t, err, errNoTicker)
}

func TestFetchTicker_InvalidSymbolMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newClient(binanceAPI(), WithBaseURL(srv.URL))
	_, err := c.FetchTicker(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrInvalidSymbol)
	assert.Zero(t, calls.Load())
}

func TestFetchTicker_AliasOverride(t *testing.T) {
	var gotSymbol string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		_, _ = w.Write([]byte(`{"symbol":"X","lastPrice":"1"}`))
	}))
	defer srv.Close()

	syms := NewSymbols()
	syms.Load([]domain.SymbolAlias{{Venue: "Binance", Symbol: "matic/usdt", VenueSymbol: "POLUSDT"}})

	c := newClient(binanceAPI(), WithBaseURL(srv.URL), WithSymbols(syms), WithPublicInterval(0))
	_, err := c.FetchTicker(context.Background(), "MATIC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "POLUSDT", gotSymbol)
}

func TestFetchTicker_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newClient(binanceAPI(), WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond), WithPublicInterval(0))
	_, err := c.FetchTicker(context.Background(), "BTC/USDT")
	assert.Error(t, err)
}

func TestNewClientDefaults(t *testing.T) {
	c := newClient(binanceAPI())
	assert.Equal(t, BinanceURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Equal(t, 50*time.Millisecond, c.throttle.Interval())
	assert.NotNil(t, c.logger)
}

func TestSplitSymbol(t *testing.T) {
	base, quote, err := SplitSymbol(" eth / usdc ")
	require.NoError(t, err)
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "USDC", quote)

	for _, bad := range []string{"", "ETH", "ETH/", "/USDC", "A/B/C"} {
		_, _, err := SplitSymbol(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidSymbol, bad)
	}
}

func TestSymbolsLoadSkipsInvalid(t *testing.T) {
	s := NewSymbols()
	s.Load([]domain.SymbolAlias{
		{Venue: "okx", Symbol: "BTC/USDT", VenueSymbol: "BTC-USDT-X"},
		{Venue: "", Symbol: "BTC/USDT", VenueSymbol: "x"},
		{Venue: "okx", Symbol: "bad", VenueSymbol: "x"},
		{Venue: "okx", Symbol: "ETH/USDT", VenueSymbol: " "},
	})
	assert.Equal(t, 1, s.Len())

	got, err := s.Resolve("okx", "btc/usdt", dashSymbol)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USDT-X", got)

	got, err = s.Resolve("okx", "eth/usdt", dashSymbol)
	require.NoError(t, err)
	assert.Equal(t, "ETH-USDT", got)
}
