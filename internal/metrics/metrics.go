// Package metrics holds the Prometheus collectors for the vote and help
// flows and the real-time hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voteboard"

// Metrics is created once per process and passed to the components that
// record into it. Collectors are registered on the Registerer given to New,
// so tests can use a private registry.
type Metrics struct {
	// Vote submissions by outcome: registered, counted, already_voted.
	VoteSubmissions *prometheus.CounterVec
	VoteDuration    prometheus.Histogram

	// Help queue changes by action: requested, deleted, cleared.
	HelpChanges *prometheus.CounterVec

	RealtimeClients  prometheus.Gauge
	BroadcastDropped prometheus.Counter

	// Events handed to external sinks, by sink and result (ok, error).
	EventsPublished *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VoteSubmissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "votes",
				Name:      "submissions_total",
				Help:      "Vote submissions by outcome",
			},
			[]string{"status"},
		),
		VoteDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "votes",
				Name:      "submission_duration_seconds",
				Help:      "Time spent handling a vote submission, store round-trips included",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
			},
		),
		HelpChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "help",
				Name:      "changes_total",
				Help:      "Help queue changes by action",
			},
			[]string{"action"},
		),
		RealtimeClients: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "clients",
				Help:      "Connected real-time viewers",
			},
		),
		BroadcastDropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "dropped_clients_total",
				Help:      "Viewers disconnected because their send buffer was full",
			},
		),
		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Events handed to external sinks",
			},
			[]string{"sink", "result"},
		),
	}
}

// Noop returns collectors registered nowhere, for tests and tools that do
// not expose /metrics.
func Noop() *Metrics {
	return New(prometheus.NewRegistry())
}
