// Package metrics exposes Prometheus instrumentation for tvdeck.
//
// Metrics:
//
//	tvdeck_probes_total               counter: server probes by status
//	tvdeck_probe_duration_seconds     histogram: probe latency
//	tvdeck_check_runs_total           counter: check-all runs by trigger
//	tvdeck_playlist_imports_total     counter: playlist imports by result
//	tvdeck_http_requests_total        counter: HTTP requests by method/path/status
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry      *prometheus.Registry
	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
	checkRuns     *prometheus.CounterVec
	imports       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New creates a registry with the Go and process collectors plus the
// tvdeck metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tvdeck_probes_total",
			Help: "Server URL probes by resulting status.",
		}, []string{"status"}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tvdeck_probe_duration_seconds",
			Help:    "Time to classify one server URL, including the GET fallback.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}),
		checkRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tvdeck_check_runs_total",
			Help: "Check-all runs by trigger (sync, async, scheduled).",
		}, []string{"trigger"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tvdeck_playlist_imports_total",
			Help: "Playlist imports by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tvdeck_http_requests_total",
			Help: "HTTP requests handled.",
		}, []string{"method", "path", "status"}),
	}
	reg.MustRegister(m.probes, m.probeDuration, m.checkRuns, m.imports, m.httpRequests)
	return m
}

// ObserveProbe records one classified probe.
func (m *Metrics) ObserveProbe(status string, d time.Duration) {
	m.probes.WithLabelValues(status).Inc()
	m.probeDuration.Observe(d.Seconds())
}

// IncCheckRun counts a check-all run.
func (m *Metrics) IncCheckRun(trigger string) {
	m.checkRuns.WithLabelValues(trigger).Inc()
}

// IncImport counts a playlist import ("ok", "empty", "error").
func (m *Metrics) IncImport(result string) {
	m.imports.WithLabelValues(result).Inc()
}

// ObserveHTTP counts a served request. path should be the route pattern,
// not the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, path string, status int) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
