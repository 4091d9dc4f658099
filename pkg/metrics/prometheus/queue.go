package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmoretti/lifeline/pkg/queue"
)

// queueMetrics implements queue.Metrics.
type queueMetrics struct {
	enqueues prometheus.Counter
	depth    prometheus.Gauge
}

// NewQueueMetrics registers and returns the offline queue metrics.
func NewQueueMetrics(reg *prometheus.Registry) queue.Metrics {
	return &queueMetrics{
		enqueues: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "lifeline_queue_enqueues_total",
				Help: "Total critical events captured into the offline queue",
			},
		),
		depth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "lifeline_queue_depth",
				Help: "Current number of queued undelivered events",
			},
		),
	}
}

func (m *queueMetrics) RecordEnqueue() {
	if m == nil {
		return
	}
	m.enqueues.Inc()
}

func (m *queueMetrics) RecordDepth(n int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(n))
}
