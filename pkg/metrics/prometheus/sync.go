package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmoretti/lifeline/pkg/syncer"
)

// syncMetrics implements syncer.Metrics.
type syncMetrics struct {
	drains    *prometheus.CounterVec
	delivered prometheus.Counter
	failures  *prometheus.CounterVec
}

// NewSyncMetrics registers and returns the synchronization metrics.
func NewSyncMetrics(reg *prometheus.Registry) syncer.Metrics {
	return &syncMetrics{
		drains: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifeline_sync_drains_total",
				Help: "Total drain runs by trigger",
			},
			[]string{"trigger"},
		),
		delivered: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "lifeline_sync_delivered_total",
				Help: "Total queued events delivered to the remote endpoint",
			},
		),
		failures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifeline_sync_delivery_failures_total",
				Help: "Total delivery failures by reason",
			},
			[]string{"reason"}, // "transient_network", "remote_rejection"
		),
	}
}

func (m *syncMetrics) RecordDrain(trigger string) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues(trigger).Inc()
}

func (m *syncMetrics) RecordDelivered(n int) {
	if m == nil {
		return
	}
	m.delivered.Add(float64(n))
}

func (m *syncMetrics) RecordDeliveryFailure(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}
