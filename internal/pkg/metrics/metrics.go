package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FetchTotal counts provider fetches by result: ok, unreachable, error.
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_notifier_fetch_total",
			Help: "Total number of vehicle status fetches.",
		},
		[]string{"result"},
	)

	// IntentTotal counts executed intents by kind and outcome (success/failed).
	IntentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_notifier_intent_total",
			Help: "Total number of executed monitor intents.",
		},
		[]string{"kind", "status"},
	)

	// SkippedTotal counts vehicles omitted from a tick by their skip window.
	SkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentry_notifier_skipped_total",
			Help: "Total number of polls skipped by the backoff window.",
		},
	)

	// TrackedVehicles is the number of vehicles with a monitor.
	TrackedVehicles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentry_notifier_tracked_vehicles",
			Help: "Number of vehicles currently tracked.",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentry_notifier_tick_duration_seconds",
			Help:    "Duration of one poll tick across the fleet.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(FetchTotal)
	prometheus.MustRegister(IntentTotal)
	prometheus.MustRegister(SkippedTotal)
	prometheus.MustRegister(TrackedVehicles)
	prometheus.MustRegister(TickDuration)
}
