// Package prometheus holds the Prometheus implementations of the
// component metrics interfaces. Constructors register their collectors on
// the registry passed in by pkg/metrics.
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmoretti/lifeline/pkg/router"
)

// gatewayMetrics implements router.Metrics.
type gatewayMetrics struct {
	requests         *prometheus.CounterVec
	offlineFallbacks prometheus.Counter
}

// NewGatewayMetrics registers and returns the gateway request metrics.
func NewGatewayMetrics(reg *prometheus.Registry) router.Metrics {
	return &gatewayMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifeline_gateway_requests_total",
				Help: "Total routed requests by class and response status",
			},
			[]string{"class", "status"},
		),
		offlineFallbacks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "lifeline_gateway_offline_fallbacks_total",
				Help: "Total cache-first requests that fell back to an offline response",
			},
		),
	}
}

func (m *gatewayMetrics) RecordRequest(class string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(class, strconv.Itoa(status)).Inc()
}

func (m *gatewayMetrics) RecordOfflineFallback() {
	if m == nil {
		return
	}
	m.offlineFallbacks.Inc()
}
