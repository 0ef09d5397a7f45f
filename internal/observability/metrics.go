package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by the API.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SessionsCreated   prometheus.Counter
	SessionRejections *prometheus.CounterVec
	CodesIssued       *prometheus.CounterVec
	BanActions        *prometheus.CounterVec
	FilesUploaded     prometheus.Counter
	RateLimited       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "directory_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "directory_sessions_created_total",
			Help: "Person sessions created",
		}),
		SessionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_session_rejections_total",
			Help: "Session validations that failed, by reason",
		}, []string{"reason"}),
		CodesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_codes_issued_total",
			Help: "Verification codes issued, by purpose",
		}, []string{"purpose"}),
		BanActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_ban_actions_total",
			Help: "Ban and unban operations applied",
		}, []string{"action"}),
		FilesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "directory_files_uploaded_total",
			Help: "Person files stored in object storage",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_rate_limited_total",
			Help: "Requests rejected by the per-ip limiter, by scope",
		}, []string{"scope"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.SessionsCreated,
		m.SessionRejections,
		m.CodesIssued,
		m.BanActions,
		m.FilesUploaded,
		m.RateLimited,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
