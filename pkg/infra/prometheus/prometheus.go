package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds
	latencyBuckets = []float64{
		1, 2.5, 5, 10, 25,
		50, 100, 150, 250,
		500, 1000, 2500,
	}

	scoreBuckets = prometheus.LinearBuckets(0, 10, 11)

	EventsScoredTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudguard_events_scored_total",
			Help: "Total number of scored events by type and decision",
		},
		[]string{"event_type", "decision"},
	)

	FraudScore = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fraudguard_fraud_score",
			Help:    "Distribution of fraud scores",
			Buckets: scoreBuckets,
		},
		[]string{"event_type"},
	)

	ScoringLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fraudguard_scoring_latency_ms",
			Help:    "Scoring latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"stage"}, // "score" or "process"
	)

	DegradedSignalsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudguard_degraded_signals_total",
			Help: "Signals that could not be evaluated",
		},
		[]string{"signal"},
	)

	ScoringFailuresTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudguard_scoring_failures_total",
			Help: "Events logged with the scoring-failure sentinel",
		},
		[]string{"stage"},
	)

	ReputationRetriesTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "fraudguard_reputation_contention_retries_total",
			Help: "Reputation updates retried after contention",
		},
	)

	InvalidEventsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudguard_invalid_events_total",
			Help: "Events rejected at ingest",
		},
		[]string{"reason"},
	)

	SuspiciousActivitiesTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudguard_suspicious_activities_total",
			Help: "Suspicious activities classified at scoring time",
		},
		[]string{"type", "severity"},
	)

	AlertsDroppedTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "fraudguard_alerts_dropped_total",
			Help: "Alerts dropped because the alert queue was full",
		},
	)

	DashboardRefreshLatency = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fraudguard_dashboard_refresh_latency_ms",
			Help:    "Dashboard snapshot computation latency in milliseconds",
			Buckets: latencyBuckets,
		},
	)
)

type MetricsConfig struct {
	EnableLatency bool
	EnableProcess bool
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		EnableLatency: true,
		EnableProcess: true,
	}
}

var (
	Config   = DefaultMetricsConfig()
	initOnce sync.Once
)

func Initialize(cfg MetricsConfig) {
	Config = cfg
	initOnce.Do(func() {
		if cfg.EnableProcess {
			registry.MustRegister(
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				collectors.NewGoCollector(),
			)
		}
		prometheus.DefaultRegisterer = registry
		prometheus.DefaultGatherer = registry
	})
}

// Gatherer exposes the private registry to the /metrics handler.
func Gatherer() prometheus.Gatherer {
	return registry
}
