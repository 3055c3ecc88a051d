package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// Public REST roots of the supported venues.
const (
	BinanceURL = "https://api.binance.com"
	BybitURL   = "https://api.bybit.com"
	OKXURL     = "https://www.okx.com"
	MEXCURL    = "https://api.mexc.com"
	GateIOURL  = "https://api.gateio.ws"
	BitgetURL  = "https://api.bitget.com"
	KuCoinURL  = "https://api.kucoin.com"
)

// decodeJSON keeps numbers as json.Number so prices never pass through float64.
func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

func tickerOf(last, bid, ask any) Ticker {
	return Ticker{
		Last: domain.ParsePrice(last),
		Bid:  domain.ParsePrice(bid),
		Ask:  domain.ParsePrice(ask),
	}
}

func symbolQuery(key, value string) url.Values {
	q := url.Values{}
	q.Set(key, value)
	return q
}

// --- binance / mexc (identical 24hr ticker shape) ---

type binanceTicker struct {
	Symbol    string `json:"symbol"`
	LastPrice any    `json:"lastPrice"`
	BidPrice  any    `json:"bidPrice"`
	AskPrice  any    `json:"askPrice"`
}

func decodeBinance(body []byte) (Ticker, error) {
	var t binanceTicker
	if err := decodeJSON(body, &t); err != nil {
		return Ticker{}, err
	}
	if t.Symbol == "" {
		return Ticker{}, errNoTicker
	}
	return tickerOf(t.LastPrice, t.BidPrice, t.AskPrice), nil
}

func binanceAPI() venueAPI {
	return venueAPI{
		id:       "binance",
		baseURL:  BinanceURL,
		interval: 50 * time.Millisecond,
		format:   concatSymbol,
		request: func(s string) (string, url.Values) {
			return "/api/v3/ticker/24hr", symbolQuery("symbol", s)
		},
		decode: decodeBinance,
	}
}

func mexcAPI() venueAPI {
	return venueAPI{
		id:       "mexc",
		baseURL:  MEXCURL,
		interval: 50 * time.Millisecond,
		format:   concatSymbol,
		request: func(s string) (string, url.Values) {
			return "/api/v3/ticker/24hr", symbolQuery("symbol", s)
		},
		decode: decodeBinance,
	}
}

// --- bybit ---

type bybitResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			LastPrice any `json:"lastPrice"`
			Bid1Price any `json:"bid1Price"`
			Ask1Price any `json:"ask1Price"`
		} `json:"list"`
	} `json:"result"`
}

func decodeBybit(body []byte) (Ticker, error) {
	var r bybitResponse
	if err := decodeJSON(body, &r); err != nil {
		return Ticker{}, err
	}
	if r.RetCode != 0 {
		return Ticker{}, &StatusError{Venue: "bybit", StatusCode: 200, Code: fmt.Sprint(r.RetCode), Message: r.RetMsg}
	}
	if len(r.Result.List) == 0 {
		return Ticker{}, errNoTicker
	}
	t := r.Result.List[0]
	return tickerOf(t.LastPrice, t.Bid1Price, t.Ask1Price), nil
}

func bybitAPI() venueAPI {
	return venueAPI{
		id:       "bybit",
		baseURL:  BybitURL,
		interval: 20 * time.Millisecond,
		format:   concatSymbol,
		request: func(s string) (string, url.Values) {
			q := symbolQuery("symbol", s)
			q.Set("category", "spot")
			return "/v5/market/tickers", q
		},
		decode: decodeBybit,
	}
}

// --- okx ---

type okxResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Last  any `json:"last"`
		BidPx any `json:"bidPx"`
		AskPx any `json:"askPx"`
	} `json:"data"`
}

func decodeOKX(body []byte) (Ticker, error) {
	var r okxResponse
	if err := decodeJSON(body, &r); err != nil {
		return Ticker{}, err
	}
	if r.Code != "0" {
		return Ticker{}, &StatusError{Venue: "okx", StatusCode: 200, Code: r.Code, Message: r.Msg}
	}
	if len(r.Data) == 0 {
		return Ticker{}, errNoTicker
	}
	t := r.Data[0]
	return tickerOf(t.Last, t.BidPx, t.AskPx), nil
}

func okxAPI() venueAPI {
	return venueAPI{
		id:       "okx",
		baseURL:  OKXURL,
		interval: 100 * time.Millisecond,
		format:   dashSymbol,
		request: func(s string) (string, url.Values) {
			return "/api/v5/market/ticker", symbolQuery("instId", s)
		},
		decode: decodeOKX,
	}
}

// --- gate.io ---

type gateTicker struct {
	CurrencyPair string `json:"currency_pair"`
	Last         any    `json:"last"`
	HighestBid   any    `json:"highest_bid"`
	LowestAsk    any    `json:"lowest_ask"`
}

func decodeGate(body []byte) (Ticker, error) {
	var list []gateTicker
	if err := decodeJSON(body, &list); err != nil {
		return Ticker{}, err
	}
	if len(list) == 0 {
		return Ticker{}, errNoTicker
	}
	t := list[0]
	return tickerOf(t.Last, t.HighestBid, t.LowestAsk), nil
}

func gateAPI() venueAPI {
	return venueAPI{
		id:       "gateio",
		baseURL:  GateIOURL,
		interval: 50 * time.Millisecond,
		format:   underscoreSymbol,
		request: func(s string) (string, url.Values) {
			return "/api/v4/spot/tickers", symbolQuery("currency_pair", s)
		},
		decode: decodeGate,
	}
}

// --- bitget ---

type bitgetResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		LastPr any `json:"lastPr"`
		BidPr  any `json:"bidPr"`
		AskPr  any `json:"askPr"`
	} `json:"data"`
}

func decodeBitget(body []byte) (Ticker, error) {
	var r bitgetResponse
	if err := decodeJSON(body, &r); err != nil {
		return Ticker{}, err
	}
	if r.Code != "00000" {
		return Ticker{}, &StatusError{Venue: "bitget", StatusCode: 200, Code: r.Code, Message: r.Msg}
	}
	if len(r.Data) == 0 {
		return Ticker{}, errNoTicker
	}
	t := r.Data[0]
	return tickerOf(t.LastPr, t.BidPr, t.AskPr), nil
}

func bitgetAPI() venueAPI {
	return venueAPI{
		id:       "bitget",
		baseURL:  BitgetURL,
		interval: 50 * time.Millisecond,
		format:   concatSymbol,
		request: func(s string) (string, url.Values) {
			return "/api/v2/spot/market/tickers", symbolQuery("symbol", s)
		},
		decode: decodeBitget,
	}
}

// --- kucoin ---

type kucoinResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Price   any `json:"price"`
		BestBid any `json:"bestBid"`
		BestAsk any `json:"bestAsk"`
	} `json:"data"`
}

func decodeKuCoin(body []byte) (Ticker, error) {
	var r kucoinResponse
	if err := decodeJSON(body, &r); err != nil {
		return Ticker{}, err
	}
	if r.Code != "200000" {
		return Ticker{}, &StatusError{Venue: "kucoin", StatusCode: 200, Code: r.Code, Message: r.Msg}
	}
	if r.Data == nil {
		return Ticker{}, errNoTicker
	}
	return tickerOf(r.Data.Price, r.Data.BestBid, r.Data.BestAsk), nil
}

func kucoinAPI() venueAPI {
	return venueAPI{
		id:       "kucoin",
		baseURL:  KuCoinURL,
		interval: 100 * time.Millisecond,
		format:   dashSymbol,
		request: func(s string) (string, url.Values) {
			return "/api/v1/market/orderbook/level1", symbolQuery("symbol", s)
		},
		decode: decodeKuCoin,
	}
}
