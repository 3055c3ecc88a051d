package arbitrage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/metrics"
)

// EventArbDetected is the notification event type raised by the Detector.
const EventArbDetected = "arb_detected"

// AlertNotifier delivers alert messages.
type AlertNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// DetectorConfig configures the detector. A zero threshold disables that
// trigger.
type DetectorConfig struct {
	SpreadBps float64
	DexBps    float64
	Cooldown  time.Duration
	Notifier  AlertNotifier
	Logger    *slog.Logger
}

// Detector watches arbitrage reports and notifies when the cross-venue
// spread or the DEX deviation crosses its threshold. Alerts for one symbol
// are suppressed for Cooldown after each send.
type Detector struct {
	spreadBps decimal.Decimal
	dexBps    decimal.Decimal
	cooldown  time.Duration
	notifier  AlertNotifier
	logger    *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewDetector creates a detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{
		spreadBps: decimal.NewFromFloat(cfg.SpreadBps),
		dexBps:    decimal.NewFromFloat(cfg.DexBps),
		cooldown:  cfg.Cooldown,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger.With(slog.String("component", "arb_detector")),
		last:      make(map[string]time.Time),
		now:       time.Now,
	}
}

// Run subscribes to every arbitrage channel on bus and evaluates each report.
// It blocks until ctx is cancelled.
func (d *Detector) Run(ctx context.Context, bus domain.SignalBus) error {
	pattern := domain.ArbChannel("*")
	ch, err := bus.Subscribe(ctx, pattern)
	if err != nil {
		return fmt.Errorf("arb detector: subscribe %s: %w", pattern, err)
	}
	d.logger.Info("arb detector started",
		slog.String("spread_bps", d.spreadBps.String()),
		slog.String("dex_bps", d.dexBps.String()),
	)
	defer d.logger.Info("arb detector stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := d.handleMessage(ctx, msg.Payload); err != nil {
				d.logger.Warn("arb detector: handle message failed",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (d *Detector) handleMessage(ctx context.Context, data []byte) error {
	var report domain.ArbitrageReport
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	if strings.TrimSpace(report.Symbol) == "" {
		return nil
	}
	_, err := d.Evaluate(ctx, report)
	return err
}

// Evaluate checks one report and sends an alert when a threshold is crossed
// and the symbol is not cooling down. It reports whether an alert was sent.
func (d *Detector) Evaluate(ctx context.Context, report domain.ArbitrageReport) (bool, error) {
	reasons := d.triggers(report.ArbitrageView)
	if len(reasons) == 0 {
		return false, nil
	}

	now := d.now()
	d.mu.Lock()
	if last, ok := d.last[report.Symbol]; ok && now.Sub(last) < d.cooldown {
		d.mu.Unlock()
		return false, nil
	}
	d.last[report.Symbol] = now
	d.mu.Unlock()

	title := fmt.Sprintf("Arbitrage: %s", report.Symbol)
	msg := formatAlert(report, reasons)
	d.logger.Info("arbitrage threshold crossed",
		slog.String("symbol", report.Symbol),
		slog.String("reasons", strings.Join(reasons, "; ")),
	)
	metrics.Alerts.WithLabelValues(report.Symbol).Inc()

	if d.notifier == nil {
		return true, nil
	}
	if err := d.notifier.Notify(ctx, EventArbDetected, title, msg); err != nil {
		return true, fmt.Errorf("arb detector: notify %s: %w", report.Symbol, err)
	}
	return true, nil
}

func (d *Detector) triggers(v domain.ArbitrageView) []string {
	var reasons []string
	if d.spreadBps.IsPositive() {
		if bps := SpreadBps(v); bps.Valid && bps.Decimal.GreaterThanOrEqual(d.spreadBps) {
			reasons = append(reasons, fmt.Sprintf("spread %s bps", bps.Decimal.StringFixed(2)))
		}
	}
	if d.dexBps.IsPositive() {
		if bps := DexDeviationBps(v); bps.Valid && bps.Decimal.Abs().GreaterThanOrEqual(d.dexBps) {
			reasons = append(reasons, fmt.Sprintf("dex deviation %s bps", bps.Decimal.StringFixed(2)))
		}
	}
	return reasons
}

func formatAlert(r domain.ArbitrageReport, reasons []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", strings.Join(reasons, ", "))
	if r.BestBid.Valid && r.BestBidVenue != nil {
		fmt.Fprintf(&b, "best bid %s @ %s\n", r.BestBid.Decimal, *r.BestBidVenue)
	}
	if r.BestAsk.Valid && r.BestAskVenue != nil {
		fmt.Fprintf(&b, "best ask %s @ %s\n", r.BestAsk.Decimal, *r.BestAskVenue)
	}
	if r.DexLast.Valid {
		fmt.Fprintf(&b, "dex last %s\n", r.DexLast.Decimal)
	}
	return strings.TrimRight(b.String(), "\n")
}
