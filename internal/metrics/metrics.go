package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Optimizer metrics
	OptimizeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_optimize_requests_total",
			Help: "Total number of portfolio optimizations by resolved risk tolerance and outcome",
		},
		[]string{"risk_tolerance", "outcome"},
	)

	PlanExpectedAPY = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_plan_expected_apy",
			Help:    "Expected APY (percent) of computed portfolio plans",
			Buckets: []float64{2, 4, 6, 8, 10, 12, 15, 20, 30},
		},
		[]string{"risk_tolerance"},
	)

	// Protocol data metrics
	ProtocolFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_protocol_fetch_total",
			Help: "Protocol metric fetches by protocol and resulting data source",
		},
		[]string{"protocol", "source"},
	)

	ProtocolAPY = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregator_protocol_apy",
			Help: "Latest APY (percent) served for each protocol",
		},
		[]string{"protocol"},
	)

	SnapshotCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_snapshot_cache_total",
			Help: "Snapshot cache lookups by status",
		},
		[]string{"status"},
	)

	SnapshotRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregator_snapshot_refresh_duration_seconds",
			Help:    "Duration of protocol snapshot refreshes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// On-chain updater metrics
	YieldUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_yield_updates_total",
			Help: "Yield updater decisions by status",
		},
		[]string{"status"},
	)

	OnchainAPYBps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aggregator_onchain_apy_bps",
			Help: "Last APY in basis points written to (or read from) the yield contract",
		},
	)
)
