package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Throttler spaces out consecutive calls sharing the same key.
type Throttler interface {
	Wait(ctx context.Context, key string) error
}

// SnapshotCache keeps the most recent encoded snapshot per symbol.
type SnapshotCache interface {
	PutSnapshot(ctx context.Context, snap Snapshot) error
	GetSnapshot(ctx context.Context, symbol string) (json.RawMessage, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of encoded frames.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
}

// Message is one payload received from a SignalBus subscription, tagged with
// the concrete channel it was published on.
type Message struct {
	Channel string
	Payload []byte
}

// SnapshotChannel is the bus channel carrying snapshot frames for symbol.
func SnapshotChannel(symbol string) string {
	return "ch:snapshot:" + symbol
}

// ArbChannel is the bus channel carrying arbitrage reports for symbol.
func ArbChannel(symbol string) string {
	return "ch:arb:" + symbol
}
