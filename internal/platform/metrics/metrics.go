package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the service's collectors. It uses a private registry so tests
// can build as many as they like.
type Registry struct {
	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpStatusClass *prometheus.CounterVec
	activations     *prometheus.CounterVec
	auditEntries    *prometheus.CounterVec
	outboxProcessed *prometheus.CounterVec
}

func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpStatusClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_by_class_total",
			Help:      "HTTP responses by status class.",
		}, []string{"class"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activation_results_total",
			Help:      "Activation attempts by result.",
		}, []string{"result"}),
		auditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "Audit entries written by action.",
		}, []string{"action"}),
		outboxProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox events handled by the relay, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.httpRequests, r.httpDuration, r.httpStatusClass, r.activations, r.auditEntries, r.outboxProcessed)
	return r
}

func (r *Registry) ObserveRequest(method, route string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	r.httpRequests.WithLabelValues(method, route, status).Inc()
	r.httpDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
	r.httpStatusClass.WithLabelValues(strconv.Itoa(statusCode/100) + "xx").Inc()
}

func (r *Registry) ActivationResult(result string) {
	r.activations.WithLabelValues(result).Inc()
}

func (r *Registry) AuditEntry(action string) {
	r.auditEntries.WithLabelValues(action).Inc()
}

// OutboxBatch records one relay pass.
func (r *Registry) OutboxBatch(published, failed, deadLettered int) {
	r.outboxProcessed.WithLabelValues("published").Add(float64(published))
	r.outboxProcessed.WithLabelValues("failed").Add(float64(failed))
	r.outboxProcessed.WithLabelValues("dead_lettered").Add(float64(deadLettered))
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
