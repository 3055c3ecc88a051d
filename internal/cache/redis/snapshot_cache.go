package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache. Each symbol's latest
// snapshot is stored as its JSON response body at "snapshot:{symbol}" and
// expires after the configured TTL.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client. A
// non-positive ttl stores entries without expiry.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl < 0 {
		ttl = 0
	}
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

func snapshotKey(symbol string) string {
	return "snapshot:" + symbol
}

// PutSnapshot replaces the cached snapshot for snap.Symbol.
func (sc *SnapshotCache) PutSnapshot(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot %s: %w", snap.Symbol, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.Symbol), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: put snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot body for symbol.
// It returns domain.ErrNotFound when nothing is cached or the entry expired.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, symbol string) (json.RawMessage, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}
	return json.RawMessage(data), nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
