// Package observability exposes Prometheus collectors for the service.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lambtrial"

// Metrics holds every collector, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	writes       *prometheus.CounterVec
	mirrorErrors prometheus.Counter
	activeAnimal *prometheus.GaugeVec
	lastReport   prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "collection_writes_total",
			Help:      "Collection replacements committed to the local store.",
		}, []string{"collection"}),
		mirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "push_failures_total",
			Help:      "Failed pushes to the remote mirror.",
		}),
		activeAnimal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trial",
			Name:      "active_animals",
			Help:      "Active animals per group at the last summary computation.",
		}, []string{"group"}),
		lastReport: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trial",
			Name:      "last_report_timestamp_seconds",
			Help:      "Unix timestamp of the most recent weekly report.",
		}),
	}

	toRegister := []prometheus.Collector{
		m.httpRequests, m.httpDuration, m.writes, m.mirrorErrors, m.activeAnimal, m.lastReport,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordWrite counts a committed collection replacement.
func (m *Metrics) RecordWrite(collection string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(collection).Inc()
}

// RecordMirrorFailure counts a failed mirror push.
func (m *Metrics) RecordMirrorFailure() {
	if m == nil {
		return
	}
	m.mirrorErrors.Inc()
}

// SetActiveAnimals publishes the active animal count of a group.
func (m *Metrics) SetActiveAnimals(group string, count int) {
	if m == nil {
		return
	}
	m.activeAnimal.WithLabelValues(group).Set(float64(count))
}

// RecordReport updates the report watermark.
func (m *Metrics) RecordReport(ts time.Time) {
	if m == nil || ts.IsZero() {
		return
	}
	m.lastReport.Set(float64(ts.Unix()))
}
