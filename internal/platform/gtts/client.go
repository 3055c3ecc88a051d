// Package gtts is a REST client for Google Cloud Text-to-Speech. It
// authenticates with either an API key or a service-account key.
package gtts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

const (
	// DefaultBaseURL is the Text-to-Speech API root.
	DefaultBaseURL = "https://texttospeech.googleapis.com"
	// DefaultTimeout bounds one synthesis call.
	DefaultTimeout = 15 * time.Second

	// Scope is the OAuth2 scope requested for service-account tokens.
	Scope = "https://www.googleapis.com/auth/cloud-platform"

	// maxResponseSize caps the base64 audio reply.
	maxResponseSize = 16 << 20
)

// Client calls the text:synthesize endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
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

// NewClient creates a client authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "gtts"))
	return c
}

// NewServiceAccountClient creates a client that sends a bearer token minted
// from a service-account JSON key. Tokens are fetched lazily with ctx and
// refreshed before expiry.
func NewServiceAccountClient(ctx context.Context, keyJSON []byte, opts ...Option) (*Client, error) {
	conf, err := google.JWTConfigFromJSON(keyJSON, Scope)
	if err != nil {
		return nil, fmt.Errorf("gtts: service account: %w", err)
	}

	c := NewClient("", opts...)
	c.httpClient = &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: conf.TokenSource(ctx),
			Base:   c.httpClient.Transport,
		},
	}
	return c, nil
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type audioConfig struct {
	AudioEncoding string `json:"audioEncoding"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Synthesize renders req as MP3 audio.
func (c *Client) Synthesize(ctx context.Context, req domain.SpeechRequest) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{
		Input:       synthesisInput{Text: req.Text},
		Voice:       voiceSelection{LanguageCode: req.Language, Name: req.Voice},
		AudioConfig: audioConfig{AudioEncoding: "MP3"},
	})
	if err != nil {
		return nil, fmt.Errorf("gtts: encode request: %w", err)
	}

	endpoint := c.baseURL + "/v1/text:synthesize"
	if c.apiKey != "" {
		endpoint += "?" + url.Values{"key": {c.apiKey}}.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gtts: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gtts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("gtts: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Status + ": " + apiErr.Error.Message
		}
		return nil, fmt.Errorf("gtts: synthesize: status %d: %s: %w", resp.StatusCode, msg, domain.ErrUpstream)
	}

	var out synthesizeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gtts: decode response: %w", err)
	}
	if out.AudioContent == "" {
		return nil, fmt.Errorf("gtts: empty audio content: %w", domain.ErrUpstream)
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("gtts: decode audio: %w", err)
	}

	c.logger.DebugContext(ctx, "speech synthesized",
		slog.String("language", req.Language),
		slog.String("voice", req.Voice),
		slog.Int("bytes", len(audio)),
		slog.Duration("took", time.Since(start)),
	)
	return audio, nil
}

// Compile-time interface check.
var _ domain.Synthesizer = (*Client)(nil)
