package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/stream"
)

type streamRunner interface {
	Run(ctx context.Context, symbol string, interval time.Duration, emit stream.EmitFunc) error
}

type snapshotSink interface {
	Publish(ctx context.Context, snap domain.Snapshot) error
}

type tickClaimer interface {
	Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
}

// publisher drives one stream loop per symbol and hands every snapshot to
// the sink. With a claimer wired, replicas sharing a Redis elect one
// publisher per symbol and tick.
type publisher struct {
	stream    streamRunner
	sink      snapshotSink
	claims    tickClaimer
	replicaID string
	interval  time.Duration
	logger    *slog.Logger
}

func (p *publisher) run(ctx context.Context, symbol string) error {
	p.logger.InfoContext(ctx, "publishing symbol", slog.String("symbol", symbol))
	return p.stream.Run(ctx, symbol, p.interval, p.emit)
}

// emit never fails the stream: bus outages are logged and the loop keeps
// its cadence.
func (p *publisher) emit(ctx context.Context, snap domain.Snapshot) error {
	if p.claims != nil {
		key := tickKey(snap, p.interval)
		won, err := p.claims.Claim(ctx, key, p.replicaID, 2*p.interval)
		switch {
		case err != nil:
			p.logger.WarnContext(ctx, "tick claim failed, publishing anyway",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		case !won:
			p.logger.DebugContext(ctx, "tick claimed by another replica", slog.String("key", key))
			return nil
		}
	}

	if err := p.sink.Publish(ctx, snap); err != nil {
		p.logger.WarnContext(ctx, "publish snapshot failed",
			slog.String("symbol", snap.Symbol),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// tickKey buckets the snapshot time into interval-wide slots.
func tickKey(snap domain.Snapshot, interval time.Duration) string {
	ms := max(interval.Milliseconds(), 1)
	return fmt.Sprintf("%s:%d", snap.Symbol, snap.Timestamp*1000/ms)
}
