package redis

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/throttle"
)

//go:embed scripts/throttle.lua
var throttleLua string

// Throttle implements domain.Throttler across processes: every replica
// reserves its next per-venue slot from the same Redis key, so the combined
// request rate to a venue honours one minimum interval. While Redis is
// unreachable each replica falls back to spacing its own calls.
type Throttle struct {
	rdb      *redis.Client
	script   *redis.Script
	interval time.Duration
	local    *throttle.Throttle
	logger   *slog.Logger
	now      func() time.Time
}

// NewThrottle creates a Throttle spacing same-key calls interval apart.
func NewThrottle(c *Client, interval time.Duration, logger *slog.Logger) *Throttle {
	return &Throttle{
		rdb:      c.Underlying(),
		script:   redis.NewScript(throttleLua),
		interval: interval,
		local:    throttle.New(interval),
		logger:   logger.With(slog.String("component", "redis_throttle")),
		now:      time.Now,
	}
}

func throttleKey(key string) string {
	return "throttle:" + key
}

// Wait reserves key's next slot and sleeps until it arrives. Redis errors
// fall back to the in-process throttle; only cancellation is returned.
func (t *Throttle) Wait(ctx context.Context, key string) error {
	if t.interval <= 0 {
		return nil
	}

	waitMS, err := t.script.Run(
		ctx,
		t.rdb,
		[]string{throttleKey(key)},
		t.now().UnixMilli(),
		t.interval.Milliseconds(),
	).Int64()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("redis: throttle %s: %w", key, ctx.Err())
		}
		t.logger.WarnContext(ctx, "shared throttle unavailable, spacing locally",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return t.local.Wait(ctx, key)
	}
	if waitMS <= 0 {
		return nil
	}

	timer := time.NewTimer(time.Duration(waitMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("redis: throttle wait %s: %w", key, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Compile-time interface check.
var _ domain.Throttler = (*Throttle)(nil)
