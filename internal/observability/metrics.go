// internal/observability/metrics.go

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "regionalert"

// Metrics holds the Prometheus collectors for the alert engine.
type Metrics struct {
	AlertsCreated       *prometheus.CounterVec // labels: type, severity
	StatusTransitions   *prometheus.CounterVec // labels: status, reason
	ResponsesRecorded   *prometheus.CounterVec // labels: type
	BroadcastRecipients prometheus.Histogram
	BroadcastDeliveries *prometheus.CounterVec // labels: outcome={delivered,failed}

	// Oracle metrics.
	OracleCalls    *prometheus.CounterVec   // labels: operation={enrich,coordinate}, outcome={success,fallback}
	OracleDuration *prometheus.HistogramVec // labels: operation

	// Official feed metrics.
	FeedEntries *prometheus.CounterVec // labels: organization, outcome={created,skipped,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts created by type and severity.",
		}, []string{"type", "severity"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_status_transitions_total",
			Help:      "Alert status transitions by target status and reason.",
		}, []string{"status", "reason"}),
		ResponsesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_recorded_total",
			Help:      "Responses appended to alerts by response type.",
		}, []string{"type"}),
		BroadcastRecipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_recipients",
			Help:      "Number of users targeted per broadcast.",
			Buckets:   []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		BroadcastDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Per-recipient publishes by outcome.",
		}, []string{"outcome"}),
		OracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Scoring oracle calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		OracleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_duration_seconds",
			Help:      "Scoring oracle call duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"operation"}),
		FeedEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_entries_total",
			Help:      "Official feed entries processed by organization and outcome.",
		}, []string{"organization", "outcome"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.AlertsCreated,
		m.StatusTransitions,
		m.ResponsesRecorded,
		m.BroadcastRecipients,
		m.BroadcastDeliveries,
		m.OracleCalls,
		m.OracleDuration,
		m.FeedEntries,
	)

	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
