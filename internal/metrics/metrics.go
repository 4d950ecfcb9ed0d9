// Package metrics exposes Prometheus instruments for the console.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are nil-safe so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	ListCacheTotal         *prometheus.CounterVec

	ModerationActionsTotal *prometheus.CounterVec
	RollbacksTotal         *prometheus.CounterVec
	TokenRetriesTotal      prometheus.Counter
	SessionsIssuedTotal    *prometheus.CounterVec

	WSConnectionsActive prometheus.Gauge
	ActiveViews         prometheus.Gauge
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests"},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "http_requests_in_flight", Help: "HTTP requests currently being served"},
		),
		BackendRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "backend_requests_total", Help: "Requests sent to the platform backend"},
			[]string{"op", "outcome"},
		),
		BackendRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "backend_request_duration_seconds", Help: "Platform backend latency", Buckets: prometheus.DefBuckets},
			[]string{"op"},
		),
		ListCacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "list_cache_total", Help: "List cache lookups by result"},
			[]string{"resource", "result"},
		),
		ModerationActionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "moderation_actions_total", Help: "Moderation actions by resource, action and outcome"},
			[]string{"resource", "action", "outcome"},
		),
		RollbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "optimistic_rollbacks_total", Help: "Optimistic updates reverted after a failed mutation"},
			[]string{"resource"},
		),
		TokenRetriesTotal: f.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "identity_token_retries_total", Help: "Retried identity token acquisitions"},
		),
		SessionsIssuedTotal: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "sessions_issued_total", Help: "Session cookies written"},
			[]string{"source"},
		),
		WSConnectionsActive: f.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "ws_connections_active", Help: "Open notification streams"},
		),
		ActiveViews: f.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "list_views_active", Help: "Live per-session list views"},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveBackend(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(op, outcome).Inc()
	m.BackendRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObserveCache(resource, result string) {
	if m == nil {
		return
	}
	m.ListCacheTotal.WithLabelValues(resource, result).Inc()
}

func (m *Metrics) ObserveModeration(resource, action, outcome string) {
	if m == nil {
		return
	}
	m.ModerationActionsTotal.WithLabelValues(resource, action, outcome).Inc()
	if outcome == "rolled_back" {
		m.RollbacksTotal.WithLabelValues(resource).Inc()
	}
}

func (m *Metrics) TokenRetry() {
	if m == nil {
		return
	}
	m.TokenRetriesTotal.Inc()
}

func (m *Metrics) SessionIssued(source string) {
	if m == nil {
		return
	}
	m.SessionsIssuedTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) WSConnected(delta float64) {
	if m == nil {
		return
	}
	m.WSConnectionsActive.Add(delta)
}

func (m *Metrics) ViewsChanged(delta float64) {
	if m == nil {
		return
	}
	m.ActiveViews.Add(delta)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack passes websocket upgrades through to the underlying connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
