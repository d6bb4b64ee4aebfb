package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	JobsEnqueued *prometheus.CounterVec
	StatusReads  prometheus.Counter
	HTTPDuration *prometheus.HistogramVec
	QueueDepth   *prometheus.GaugeVec
}

// NewMetrics registers the gateway collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ifcpipeline",
			Subsystem: "gateway",
			Name:      "jobs_enqueued_total",
			Help:      "Jobs accepted and enqueued, by kind.",
		}, []string{"kind"}),
		StatusReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ifcpipeline",
			Subsystem: "gateway",
			Name:      "status_reads_total",
			Help:      "Job status polls served.",
		}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ifcpipeline",
			Subsystem: "gateway",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ifcpipeline",
			Subsystem: "broker",
			Name:      "queue_depth",
			Help:      "Jobs waiting per queue.",
		}, []string{"queue"}),
	}
}
