// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for connection and upstream latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Connection outcomes used as the "outcome" label.
const (
	OutcomeForwarded      = "forwarded"
	OutcomeReadError      = "read_error"
	OutcomeMalformed      = "malformed"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeUpstreamStatus = "upstream_status"
	OutcomeWriteError     = "write_error"
	OutcomePanic          = "panic"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal    *prometheus.CounterVec
	ConnectionDuration  prometheus.Histogram
	ConnectionsInFlight prometheus.Gauge
	InboundMethods      *prometheus.CounterVec
	BytesWritten        prometheus.Counter

	UpstreamDuration  prometheus.Histogram
	UpstreamResponses *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolkit_proxy_connections_total",
			Help: "Client connections handled, by outcome.",
		}, []string{"outcome"}),
		ConnectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolkit_proxy_connection_duration_seconds",
			Help:    "Time from accept to close of a client connection.",
			Buckets: defaultBuckets,
		}),
		ConnectionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolkit_proxy_connections_in_flight",
			Help: "Client connections currently being processed (0 or 1).",
		}),
		InboundMethods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolkit_proxy_inbound_methods_total",
			Help: "Methods seen on inbound request lines before rewriting to GET.",
		}, []string{"method"}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolkit_proxy_bytes_written_total",
			Help: "Response bytes written back to clients.",
		}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolkit_proxy_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}),
		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolkit_proxy_upstream_responses_total",
			Help: "Upstream responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionDuration,
		m.ConnectionsInFlight,
		m.InboundMethods,
		m.BytesWritten,
		m.UpstreamDuration,
		m.UpstreamResponses,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true, "CONNECT": true, "TRACE": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizeStatus returns a bounded status code label. Codes outside
// 100–599 are mapped to "other".
func NormalizeStatus(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code)
}
