package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClaimStore hands out short-lived exclusive claims using SETNX with a TTL.
// Publishing replicas claim each (symbol, tick) slot so that only one of them
// fetches and publishes it.
type ClaimStore struct {
	rdb *redis.Client
}

// NewClaimStore creates a ClaimStore backed by the given Client.
func NewClaimStore(c *Client) *ClaimStore {
	return &ClaimStore{rdb: c.Underlying()}
}

func claimKey(key string) string {
	return "claim:" + key
}

// Claim records owner as the holder of key for ttl. It returns true when the
// claim was taken by this call, or when owner already holds it.
func (cs *ClaimStore) Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ck := claimKey(key)
	ok, err := cs.rdb.SetNX(ctx, ck, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	if ok {
		return true, nil
	}

	holder, err := cs.rdb.Get(ctx, ck).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis: claim holder %s: %w", key, err)
	}
	return holder == owner, nil
}
