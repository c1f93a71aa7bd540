package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	RecordsCreated     *prometheus.CounterVec
	DuplicatesDetected *prometheus.CounterVec
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kinship_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kinship_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RecordsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kinship_records_created_total",
			Help: "Records created by kind (person, interpersonal, parent-child, temperature)",
		}, []string{"kind"}),
		DuplicatesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kinship_duplicates_detected_total",
			Help: "Duplicate warnings raised before a write, by kind",
		}, []string{"kind"}),
	}
}

// RecordCreated increments the created counter for kind. Safe on a nil receiver.
func (m *Metrics) RecordCreated(kind string) {
	if m == nil {
		return
	}
	m.RecordsCreated.WithLabelValues(kind).Inc()
}

// DuplicateDetected increments the duplicate-warning counter for kind. Safe on a nil receiver.
func (m *Metrics) DuplicateDetected(kind string) {
	if m == nil {
		return
	}
	m.DuplicatesDetected.WithLabelValues(kind).Inc()
}

// ObserveRequest records one served request. route is the matched mux
// pattern, or "unmatched". Safe on a nil receiver.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
