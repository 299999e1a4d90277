// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/SlNPacifist/icfpc2023/internal/opt"
)

var (
	// Registry is the dedicated registry served by the API.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OptimizerRuns counts finished optimizer runs by mode and stop reason.
	OptimizerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Optimizer runs by mode and stop reason."},
		[]string{"mode", "stop_reason"},
	)
	OptimizerChains = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_chains_total", Help: "Move chains evaluated."},
		[]string{"mode"},
	)
	OptimizerImprovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_improvements_total", Help: "Accepted improving chains."},
		[]string{"mode"},
	)
	OptimizerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimizer_run_duration_seconds", Help: "Optimizer wall time in seconds.", Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900}},
		[]string{"mode"},
	)
	// BestScore is the best stored score per problem.
	BestScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "stageopt_best_score", Help: "Best stored score per problem."},
		[]string{"problem"},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers every collector on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(OptimizerRuns, OptimizerChains, OptimizerImprovements, OptimizerDuration, BestScore)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// ObserveRun records one optimizer run.
func ObserveRun(mode string, m opt.Metrics) {
	OptimizerRuns.WithLabelValues(mode, m.StopReason).Inc()
	OptimizerChains.WithLabelValues(mode).Add(float64(m.Chains))
	OptimizerImprovements.WithLabelValues(mode).Add(float64(m.Improvements))
	OptimizerDuration.WithLabelValues(mode).Observe(float64(m.DurationMs) / 1000)
}
