// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Buckets for session and dial latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	ErrorResponses *prometheus.CounterVec
	RelayedBytes   prometheus.Counter

	OriginDialDuration prometheus.Histogram
	OriginDialFailures prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forward_proxy_sessions_total",
			Help: "Total accepted client connections.",
		}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forward_proxy_sessions_active",
			Help: "Client connections currently being served.",
		}),

		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forward_proxy_session_duration_seconds",
			Help:    "Full session lifetime (accept to close) in seconds.",
			Buckets: defaultBuckets,
		}),

		ErrorResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forward_proxy_error_responses_total",
			Help: "Synthesized error documents sent to clients, by status code.",
		}, []string{"status_code"}),

		RelayedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forward_proxy_relayed_bytes_total",
			Help: "Origin response bytes relayed to clients.",
		}),

		OriginDialDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forward_proxy_origin_dial_duration_seconds",
			Help:    "Origin connection establishment latency in seconds.",
			Buckets: defaultBuckets,
		}),

		OriginDialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forward_proxy_origin_dial_failures_total",
			Help: "Failed origin connection attempts.",
		}),
	}

	reg.MustRegister(
		m.SessionsTotal,
		m.SessionsActive,
		m.SessionDuration,
		m.ErrorResponses,
		m.RelayedBytes,
		m.OriginDialDuration,
		m.OriginDialFailures,
	)

	return m
}
