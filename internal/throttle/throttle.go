// Package throttle enforces a minimum spacing between consecutive calls that
// share a key, typically one key per exchange venue.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// Throttle is an in-process, per-key minimum-interval limiter. Keys never
// block each other. The zero interval disables throttling.
type Throttle struct {
	interval time.Duration

	mu   sync.Mutex
	next map[string]time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Throttle spacing same-key calls at least interval apart.
func New(interval time.Duration) *Throttle {
	if interval < 0 {
		interval = 0
	}
	return &Throttle{
		interval: interval,
		next:     make(map[string]time.Time),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Interval returns the configured minimum spacing.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Wait suspends the caller until key's next slot. The slot is reserved before
// sleeping, so overlapping calls for the same key queue up one interval apart
// instead of all firing together. It returns the context error if ctx ends
// while waiting; the reserved slot is kept.
func (t *Throttle) Wait(ctx context.Context, key string) error {
	if t.interval <= 0 {
		return nil
	}

	t.mu.Lock()
	now := t.now()
	slot := now
	if n, ok := t.next[key]; ok && n.After(now) {
		slot = n
	}
	t.next[key] = slot.Add(t.interval)
	t.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return nil
	}
	if err := t.sleep(ctx, wait); err != nil {
		return fmt.Errorf("throttle: wait %s: %w", key, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ domain.Throttler = (*Throttle)(nil)
