// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Rewrite kinds recorded by RewritesTotal.
const (
	RewriteCookie     = "cookie"
	RewriteRedirect   = "redirect"
	RewriteHTMLInject = "html_inject"
)

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	Resolutions   *prometheus.CounterVec
	RewritesTotal *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framegate_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "framegate_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds, including body streaming.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "framegate_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "framegate_upstream_request_duration_seconds",
			Help:    "Time to response headers from the target, in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framegate_upstream_responses_total",
			Help: "Total target responses by method and status code.",
		}, []string{"method", "status_code"}),

		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framegate_target_resolutions_total",
			Help: "Target resolutions by the strategy that produced them.",
		}, []string{"strategy"}),

		RewritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framegate_rewrites_total",
			Help: "Response rewrites applied, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.Resolutions,
		m.RewritesTotal,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// RouteLabel maps a registered route pattern to a metric label. Every
// proxied request shares the catch-all route, so the label set stays small
// no matter which target paths are browsed.
func RouteLabel(route string) string {
	switch route {
	case "":
		return "unmatched"
	case "/*":
		return "proxy"
	}
	return route
}
