// Package stream runs the periodic snapshot loop behind every push
// transport: SSE, WebSocket and the bus publisher.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// Interval bounds, in milliseconds.
const (
	DefaultIntervalMS = 1000
	MinIntervalMS     = 250
	MaxIntervalMS     = 60_000
)

// ErrInvalidInterval is returned for an interval outside the allowed range.
var ErrInvalidInterval = errors.New("stream: interval_ms out of range")

// Source computes snapshots.
type Source interface {
	Snapshot(ctx context.Context, symbol string) domain.Snapshot
}

// EmitFunc hands one snapshot to the consumer. A non-nil error ends the
// stream.
type EmitFunc func(ctx context.Context, snap domain.Snapshot) error

// Bounds is the accepted interval range.
type Bounds struct {
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// DefaultBounds returns the standard [250ms, 60s] range with a 1s default.
func DefaultBounds() Bounds {
	return Bounds{
		Default: DefaultIntervalMS * time.Millisecond,
		Min:     MinIntervalMS * time.Millisecond,
		Max:     MaxIntervalMS * time.Millisecond,
	}
}

// ValidateInterval converts interval_ms into a duration, rejecting values
// outside b.
func (b Bounds) ValidateInterval(ms int) (time.Duration, error) {
	d := time.Duration(ms) * time.Millisecond
	if d < b.Min || d > b.Max {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidInterval, ms, b.Min.Milliseconds(), b.Max.Milliseconds())
	}
	return d, nil
}

// ParseInterval parses a raw interval_ms query value. Empty means the
// default.
func (b Bounds) ParseInterval(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return b.Default, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidInterval, raw)
	}
	return b.ValidateInterval(ms)
}

// ValidateInterval checks ms against DefaultBounds.
func ValidateInterval(ms int) (time.Duration, error) {
	return DefaultBounds().ValidateInterval(ms)
}

// Stream produces snapshots on a fixed cadence for one consumer at a time.
type Stream struct {
	source Source
	logger *slog.Logger
}

// New creates a Stream over source.
func New(source Source, logger *slog.Logger) *Stream {
	return &Stream{
		source: source,
		logger: logger.With(slog.String("component", "stream")),
	}
}

// Run emits one snapshot of symbol every interval until ctx ends or emit
// fails. A snapshot is computed only after the previous one was emitted, so
// at most one is in flight. When ctx ends mid-computation the snapshot is
// abandoned rather than awaited. Cancellation returns nil; an emit failure
// is returned.
func (s *Stream) Run(ctx context.Context, symbol string, interval time.Duration, emit EmitFunc) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		snap, ok := s.next(ctx, symbol)
		if !ok {
			return nil
		}
		if err := emit(ctx, snap); err != nil {
			return fmt.Errorf("stream: emit %s: %w", symbol, err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Stream) next(ctx context.Context, symbol string) (domain.Snapshot, bool) {
	res := make(chan domain.Snapshot, 1)
	go func() {
		res <- s.source.Snapshot(ctx, symbol)
	}()

	select {
	case <-ctx.Done():
		s.logger.Debug("snapshot abandoned", slog.String("symbol", symbol))
		return domain.Snapshot{}, false
	case snap := <-res:
		if ctx.Err() != nil {
			return domain.Snapshot{}, false
		}
		return snap, true
	}
}
