package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradersentinel/internal/arbitrage"
	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// PublishService fans snapshots and their arbitrage reports out on the
// signal bus.
type PublishService struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewPublishService creates a PublishService.
func NewPublishService(bus domain.SignalBus, logger *slog.Logger) *PublishService {
	return &PublishService{
		bus:    bus,
		logger: logger.With(slog.String("component", "publish_service")),
	}
}

// Publish sends snap on its snapshot channel and the derived arbitrage report
// on its arbitrage channel. A failed arbitrage publish is logged, not
// returned.
func (s *PublishService) Publish(ctx context.Context, snap domain.Snapshot) error {
	frame, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("publish_service: encode snapshot %s: %w", snap.Symbol, err)
	}
	if err := s.bus.Publish(ctx, domain.SnapshotChannel(snap.Symbol), frame); err != nil {
		return fmt.Errorf("publish_service: publish snapshot %s: %w", snap.Symbol, err)
	}

	report, err := json.Marshal(arbitrage.Report(snap, arbitrage.Compute(snap)))
	if err != nil {
		return fmt.Errorf("publish_service: encode report %s: %w", snap.Symbol, err)
	}
	if pubErr := s.bus.Publish(ctx, domain.ArbChannel(snap.Symbol), report); pubErr != nil {
		s.logger.WarnContext(ctx, "publish_service: publish arb report failed",
			slog.String("symbol", snap.Symbol),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}
