// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VenueFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_venue_fetches_total",
		Help: "CEX ticker fetches by venue and result",
	}, []string{"venue", "result"})

	VenueLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_venue_fetch_seconds",
		Help:    "CEX ticker fetch latency, throttle wait included",
		Buckets: prometheus.DefBuckets,
	}, []string{"venue"})

	DexSearches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_dex_searches_total",
		Help: "DexScreener searches by result",
	}, []string{"result"})

	Snapshots = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_snapshots_total",
		Help: "Aggregated snapshots computed",
	})

	SnapshotLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_snapshot_seconds",
		Help:    "Time to compute one aggregated snapshot",
		Buckets: prometheus.DefBuckets,
	})

	StreamSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentinel_stream_sessions",
		Help: "Open push stream sessions by transport",
	}, []string{"transport"})

	StreamFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_stream_frames_total",
		Help: "Frames emitted by transport",
	}, []string{"transport"})

	Alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_alerts_total",
		Help: "Arbitrage alerts sent by symbol",
	}, []string{"symbol"})

	Speech = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_tts_requests_total",
		Help: "Speech synthesis requests by result (hit, miss, error)",
	}, []string{"result"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_http_requests_total",
		Help: "HTTP requests by route pattern and status code",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(
		VenueFetches,
		VenueLatency,
		DexSearches,
		Snapshots,
		SnapshotLatency,
		StreamSessions,
		StreamFrames,
		Alerts,
		Speech,
		HTTPRequests,
	)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
