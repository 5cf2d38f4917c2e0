package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every vaultkv metric.
const Namespace = "vaultkv"

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsTotal     prometheus.Counter
	HandshakeFailures prometheus.Counter

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ProtocolErrors  prometheus.Counter

	// Admission and integrity
	RateLimited         prometheus.Counter
	IntegrityViolations prometheus.Counter
}

// NewRegistry creates a registry with the vaultkv instruments plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		reg: reg,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Number of open client sessions",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_total",
			Help:      "Total client sessions accepted",
		}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "handshake_failures_total",
			Help:      "TLS handshakes that failed or timed out",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by operation and response status",
		}, []string{"op", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Request handling latency, excluding network writes",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .1},
		}, []string{"op"}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "protocol_errors_total",
			Help:      "Connections closed because of a malformed frame",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limited_total",
			Help:      "Requests denied by the rate limiter",
		}),
		IntegrityViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "integrity_violations_total",
			Help:      "Stored values that failed digest verification",
		}),
	}

	reg.MustRegister(
		r.SessionsActive,
		r.SessionsTotal,
		r.HandshakeFailures,
		r.RequestsTotal,
		r.RequestDuration,
		r.ProtocolErrors,
		r.RateLimited,
		r.IntegrityViolations,
	)
	return r
}

// Prometheus returns the underlying registry for components that register
// their own instruments.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// MustRegister registers additional collectors.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	if r == nil {
		return
	}
	r.reg.MustRegister(cs...)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveRequest records one handled request.
func (r *Registry) ObserveRequest(op, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(op, status).Inc()
	r.RequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SessionOpened records an accepted session.
func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.SessionsTotal.Inc()
	r.SessionsActive.Inc()
}

// SessionClosed records a session ending.
func (r *Registry) SessionClosed() {
	if r == nil {
		return
	}
	r.SessionsActive.Dec()
}

// HandshakeFailed records a failed TLS handshake.
func (r *Registry) HandshakeFailed() {
	if r == nil {
		return
	}
	r.HandshakeFailures.Inc()
}

// ProtocolError records a connection closed for a malformed frame.
func (r *Registry) ProtocolError() {
	if r == nil {
		return
	}
	r.ProtocolErrors.Inc()
}

// RateLimitedRequest records a denied request.
func (r *Registry) RateLimitedRequest() {
	if r == nil {
		return
	}
	r.RateLimited.Inc()
}

// IntegrityViolation records a failed verification.
func (r *Registry) IntegrityViolation() {
	if r == nil {
		return
	}
	r.IntegrityViolations.Inc()
}
