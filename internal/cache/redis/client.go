// Package redis implements the snapshot cache, signal bus, shared throttle,
// publish claims and HTTP rate limiter on top of go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// healthTimeout bounds one Health call so a stalled server cannot hold
// up the status endpoint.
const healthTimeout = 2 * time.Second

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	// URL is a redis:// or rediss:// connection string. When set it supplies
	// the address, credentials, database and TLS mode; Addr, Password, DB
	// and TLSEnabled are ignored.
	URL        string
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// ClientName is registered with CLIENT SETNAME on every connection so
	// replicas can be told apart in CLIENT LIST.
	ClientName string
}

func (cfg ClientConfig) options() (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	} else if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.ClientName != "" {
		opts.ClientName = cfg.ClientName
	}
	return opts, nil
}

// Client wraps a go-redis Client and provides connectivity helpers.
type Client struct {
	rdb  *redis.Client
	addr string
}

// New creates a Redis Client and pings it. It returns an error if the
// configuration is malformed or the server does not answer.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}

	return &Client{rdb: rdb, addr: opts.Addr}, nil
}

// Health pings the server with a short deadline. It backs the redis entry of
// the status endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: health %s: %w", c.addr, err)
	}
	return nil
}

// Addr returns the host:port the client dials.
func (c *Client) Addr() string {
	return c.addr
}

// Close closes the Redis connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for the cache, bus and throttle
// implementations in this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
