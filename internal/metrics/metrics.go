// Package metrics holds the tracker's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "live_tracker"

// Metrics groups every collector the tracker updates.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted   prometheus.Counter
	SessionsFinalized *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	GiftsCounted      prometheus.Counter
	GiftEventsDropped *prometheus.CounterVec
	ConnectFailures   *prometheus.CounterVec
	MergeConflicts    prometheus.Counter
	MergeFailures     prometheus.Counter
	DeadLettered      prometheus.Counter
}

// New registers a fresh set of collectors on their own registry, so several
// instances can live in one process (tests do this).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Live sessions that reached the live state.",
		}),
		SessionsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finalized_total",
			Help:      "Sessions finalized, by end trigger.",
		}, []string{"reason"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently live.",
		}),
		GiftsCounted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gifts_counted_total",
			Help:      "Final gift events folded into session totals.",
		}),
		GiftEventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gift_events_dropped_total",
			Help:      "Gift events not counted, by reason.",
		}, []string{"reason"}),
		ConnectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Failed connect attempts, by failure category.",
		}, []string{"category"}),
		MergeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_conflicts_total",
			Help:      "History writes rejected by a concurrent modification.",
		}),
		MergeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_failures_total",
			Help:      "History merges that failed after every retry.",
		}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dead_lettered_total",
			Help:      "Stream records published to the dead-letter topic.",
		}),
	}
	reg.MustRegister(
		m.SessionsStarted,
		m.SessionsFinalized,
		m.ActiveSessions,
		m.GiftsCounted,
		m.GiftEventsDropped,
		m.ConnectFailures,
		m.MergeConflicts,
		m.MergeFailures,
		m.DeadLettered,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
