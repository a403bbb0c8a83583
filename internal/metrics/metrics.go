// Package metrics provides Prometheus metrics for the companion service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every metric of the service on a private registry.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry
	runtimeMetrics   bool

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	feedRenders       *prometheus.CounterVec
	feedEvents        prometheus.Histogram
	selectionWrites   *prometheus.CounterVec
	catalogSessions   prometheus.Gauge
	catalogReloads    *prometheus.CounterVec
	catalogLastReload prometheus.Gauge
	signInEmails      *prometheus.CounterVec
	maintenanceRuns   *prometheus.CounterVec
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets the buckets of latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRuntimeMetrics also registers Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(m *Manager) {
		m.runtimeMetrics = true
	}
}

// NewManager creates a Manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "companion",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	if m.runtimeMetrics {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method", "status_code"})

	m.feedRenders = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "feed",
		Name:      "renders_total",
		Help:      "Calendar feed renders by outcome",
	}, []string{"outcome"})

	m.feedEvents = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "feed",
		Name:      "events",
		Help:      "Number of events per rendered feed",
		Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
	})

	m.selectionWrites = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "selection",
		Name:      "writes_total",
		Help:      "Selection document writes by operation and outcome",
	}, []string{"operation", "outcome"})

	m.catalogSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "sessions",
		Help:      "Number of sessions in the catalog being served",
	})

	m.catalogReloads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "reloads_total",
		Help:      "Catalog reloads by outcome",
	}, []string{"outcome"})

	m.catalogLastReload = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "last_reload_unix",
		Help:      "Unix time of the last successful catalog reload",
	})

	m.signInEmails = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "auth",
		Name:      "signin_emails_total",
		Help:      "Sign-in emails by outcome",
	}, []string{"outcome"})

	m.maintenanceRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "maintenance",
		Name:      "runs_total",
		Help:      "Scheduled maintenance job runs by job and outcome",
	}, []string{"job", "outcome"})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveHTTPRequest records one served request.
func (m *Manager) ObserveHTTPRequest(route, method string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(route, method, code).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, code).Observe(float64(elapsed.Microseconds()) / 1000)
}

// ObserveFeedRender records a feed render.
func (m *Manager) ObserveFeedRender(events int, cached bool, err error) {
	switch {
	case err != nil:
		m.feedRenders.WithLabelValues("error").Inc()
		return
	case cached:
		m.feedRenders.WithLabelValues("cached").Inc()
	default:
		m.feedRenders.WithLabelValues("rendered").Inc()
	}
	m.feedEvents.Observe(float64(events))
}

// ObserveSelectionMutation records a selection write.
func (m *Manager) ObserveSelectionMutation(operation string, err error) {
	m.selectionWrites.WithLabelValues(operation, outcome(err)).Inc()
}

// ObserveCatalogReload records a catalog reload.
func (m *Manager) ObserveCatalogReload(sessions int, err error) {
	m.catalogReloads.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return
	}
	m.catalogSessions.Set(float64(sessions))
	m.catalogLastReload.Set(float64(time.Now().Unix()))
}

// SetCatalogSessions sets the catalog size gauge.
func (m *Manager) SetCatalogSessions(sessions int) {
	m.catalogSessions.Set(float64(sessions))
}

// ObserveSignInEmail records a sign-in email attempt.
func (m *Manager) ObserveSignInEmail(err error) {
	m.signInEmails.WithLabelValues(outcome(err)).Inc()
}

// ObserveMaintenanceRun records a scheduled job run.
func (m *Manager) ObserveMaintenanceRun(job string, err error) {
	m.maintenanceRuns.WithLabelValues(job, outcome(err)).Inc()
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
