// Package observability holds the Prometheus instrumentation for the
// ingestion pipeline and the notification dispatcher.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the pipeline.
type Metrics struct {
	Polls         *prometheus.CounterVec // labels: outcome={success,partial,error}
	PollDuration  prometheus.Histogram
	EventsCreated prometheus.Counter
	EventsUpdated prometheus.Counter
	ChangesLogged prometheus.Counter

	NotificationsEnqueued  prometheus.Counter
	EnqueueFailures        prometheus.Counter
	NotificationsDelivered prometheus.Counter
	NotificationsFailed    prometheus.Counter

	SchedulerSources prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Polls,
		m.PollDuration,
		m.EventsCreated,
		m.EventsUpdated,
		m.ChangesLogged,
		m.NotificationsEnqueued,
		m.EnqueueFailures,
		m.NotificationsDelivered,
		m.NotificationsFailed,
		m.SchedulerSources,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registration to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "polls_total",
			Help:      "Source polls by outcome.",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alertflow",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-ingest cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "events_created_total",
			Help:      "Total first sightings inserted into the event store.",
		}),
		EventsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "events_updated_total",
			Help:      "Total re-sightings that updated a stored event.",
		}),
		ChangesLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "changes_logged_total",
			Help:      "Total meaningful changes recorded in the audit trail.",
		}),
		NotificationsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "notifications_enqueued_total",
			Help:      "Total notification jobs enqueued.",
		}),
		EnqueueFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "notification_enqueue_failures_total",
			Help:      "Total notification jobs that could not be enqueued.",
		}),
		NotificationsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "notifications_delivered_total",
			Help:      "Total notification jobs delivered.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "notifications_failed_total",
			Help:      "Total notification jobs that exhausted their retries.",
		}),
		SchedulerSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alertflow",
			Name:      "scheduler_sources",
			Help:      "Number of sources with an armed poll timer.",
		}),
	}
}
