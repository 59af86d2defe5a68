// Package metrics exposes pass statistics in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coversync/coversync-server/internal/domain"
)

const namespace = "coversync"

// Manager owns the registry and the engine's collectors.
type Manager struct {
	registry *prometheus.Registry

	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	outcomes     *prometheus.CounterVec
	archived     prometheus.Counter
	published    prometheus.Counter
	refErrors    prometheus.Counter
	catalogSize  prometheus.Gauge
	unmatched    prometheus.Gauge
	lastPass     prometheus.Gauge
	requests     *prometheus.CounterVec
}

// NewManager creates a registry with Go and process collectors plus the
// pass metrics.
func NewManager() *Manager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Completed reconciliation passes by trigger and result.",
		}, []string{"trigger", "result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_outcomes_total",
			Help:      "Match outcomes across all passes.",
		}, []string{"outcome"}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_total",
			Help:      "Images moved to the replaced archive.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Images uploaded to the media server.",
		}),
		refErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_errors_total",
			Help:      "Per-file failures recorded in pass reports.",
		}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Entries in the published catalog snapshot.",
		}),
		unmatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmatched_entries",
			Help:      "Entries in the unmatched registry.",
		}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_timestamp_seconds",
			Help:      "Completion time of the last successful pass.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pass_requests_total",
			Help:      "Pass requests by trigger and result (accepted, queued, busy).",
		}, []string{"trigger", "result"}),
	}

	registry.MustRegister(
		m.passes, m.passDuration, m.outcomes, m.archived, m.published,
		m.refErrors, m.catalogSize, m.unmatched, m.lastPass, m.requests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReport records a completed pass.
func (m *Manager) ObserveReport(r *domain.Report, registrySize int) {
	m.passes.WithLabelValues(string(r.Trigger), "ok").Inc()
	m.passDuration.Observe(r.Duration().Seconds())
	m.outcomes.WithLabelValues(domain.OutcomeMatched.String()).Add(float64(r.Matched))
	m.outcomes.WithLabelValues(domain.OutcomeUnmatched.String()).Add(float64(r.Unmatched))
	m.outcomes.WithLabelValues(domain.OutcomeAmbiguous.String()).Add(float64(r.Ambiguous))
	m.archived.Add(float64(r.Archived))
	m.published.Add(float64(r.Published))
	m.refErrors.Add(float64(len(r.Errors)))
	m.catalogSize.Set(float64(r.CatalogSize))
	m.unmatched.Set(float64(registrySize))
	m.lastPass.Set(float64(r.CompletedAt.Unix()))
}

// ObserveAbort records a pass that could not run.
func (m *Manager) ObserveAbort(trigger domain.Trigger) {
	m.passes.WithLabelValues(string(trigger), "aborted").Inc()
}

// ObserveRequest records a pass request and how the loop answered it.
func (m *Manager) ObserveRequest(trigger domain.Trigger, result string) {
	m.requests.WithLabelValues(string(trigger), result).Inc()
}
