// Package exchange implements public, unauthenticated ticker clients for the
// supported centralized exchanges. Every venue shares one REST client type;
// venues differ only in their endpoint, symbol format and response decoding.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/throttle"
)

// DefaultTimeout bounds every ticker request.
const DefaultTimeout = 15 * time.Second

// maxBodySize caps how much of an upstream response is read.
const maxBodySize = 1 << 20

// Ticker is the normalized public ticker of one venue.
type Ticker struct {
	Last decimal.NullDecimal
	Bid  decimal.NullDecimal
	Ask  decimal.NullDecimal
}

// TickerClient fetches public tickers from one venue.
type TickerClient interface {
	Venue() string
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
	Close() error
}

// StatusError is returned when a venue answers with a non-2xx status or an
// application-level error code.
type StatusError struct {
	Venue      string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exchange: %s error %d (code %s): %s", e.Venue, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange: %s error %d: %s", e.Venue, e.StatusCode, e.Message)
}

// Unwrap lets callers match every StatusError against domain.ErrUpstream,
// and rate-limit rejections against domain.ErrRateLimited.
func (e *StatusError) Unwrap() []error {
	if e.IsRateLimited() {
		return []error{domain.ErrUpstream, domain.ErrRateLimited}
	}
	return []error{domain.ErrUpstream}
}

// IsRateLimited reports whether the venue rejected the call for rate reasons.
func (e *StatusError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == 418
}

// venueAPI describes how one venue exposes its public ticker.
type venueAPI struct {
	id       string
	baseURL  string
	interval time.Duration
	format   SymbolFormat
	request  func(venueSymbol string) (path string, query url.Values)
	decode   func(body []byte) (Ticker, error)
}

// Client is the REST ticker client for a single venue.
type Client struct {
	api        venueAPI
	baseURL    string
	httpClient *http.Client
	throttle   *throttle.Throttle
	symbols    *Symbols
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the venue's public API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSymbols installs a shared alias table.
func WithSymbols(s *Symbols) Option {
	return func(c *Client) {
		c.symbols = s
	}
}

// WithPublicInterval overrides the venue's published request spacing.
// Zero disables the client-side venue limit.
func WithPublicInterval(d time.Duration) Option {
	return func(c *Client) {
		c.throttle = throttle.New(d)
	}
}

func newClient(api venueAPI, opts ...Option) *Client {
	c := &Client{
		api:     api,
		baseURL: api.baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		throttle: throttle.New(api.interval),
		symbols:  NewSymbols(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("venue", api.id))
	return c
}

// Venue returns the venue identifier.
func (c *Client) Venue() string {
	return c.api.id
}

// FetchTicker returns the public ticker for a slash symbol such as BTC/USDT.
func (c *Client) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	venueSymbol, err := c.symbols.Resolve(c.api.id, symbol, c.api.format)
	if err != nil {
		return Ticker{}, fmt.Errorf("exchange: %s ticker %s: %w", c.api.id, symbol, err)
	}

	if err := c.throttle.Wait(ctx, c.api.id); err != nil {
		return Ticker{}, fmt.Errorf("exchange: %s ticker %s: %w", c.api.id, symbol, err)
	}

	path, query := c.api.request(venueSymbol)
	body, err := c.doGet(ctx, path, query)
	if err != nil {
		return Ticker{}, fmt.Errorf("exchange: %s ticker %s: %w", c.api.id, symbol, err)
	}

	t, err := c.api.decode(body)
	if err != nil {
		return Ticker{}, fmt.Errorf("exchange: %s decode ticker %s: %w", c.api.id, symbol, err)
	}
	return t, nil
}

// Close releases idle connections held by the HTTP client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Venue:      c.api.id,
			StatusCode: resp.StatusCode,
			Message:    snippet(body),
		}
	}
	return body, nil
}

// snippet trims an error body to something safe to log.
func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// errNoTicker reports a well-formed reply that carried no ticker for the
// requested symbol.
var errNoTicker = errors.New("no ticker in response")

var _ TickerClient = (*Client)(nil)
