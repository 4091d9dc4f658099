package metrics

import (
	prom "github.com/dmoretti/lifeline/pkg/metrics/prometheus"

	"github.com/dmoretti/lifeline/pkg/cache"
	"github.com/dmoretti/lifeline/pkg/queue"
	"github.com/dmoretti/lifeline/pkg/router"
	"github.com/dmoretti/lifeline/pkg/syncer"
)

// NewCacheMetrics returns Prometheus-backed cache metrics, or nil when
// metrics are disabled. Components accept nil with zero overhead.
func NewCacheMetrics() cache.Metrics {
	if !IsEnabled() {
		return nil
	}
	return prom.NewCacheMetrics(GetRegistry())
}

// NewQueueMetrics returns Prometheus-backed queue metrics, or nil when
// metrics are disabled.
func NewQueueMetrics() queue.Metrics {
	if !IsEnabled() {
		return nil
	}
	return prom.NewQueueMetrics(GetRegistry())
}

// NewSyncMetrics returns Prometheus-backed sync metrics, or nil when
// metrics are disabled.
func NewSyncMetrics() syncer.Metrics {
	if !IsEnabled() {
		return nil
	}
	return prom.NewSyncMetrics(GetRegistry())
}

// NewGatewayMetrics returns Prometheus-backed gateway metrics, or nil
// when metrics are disabled.
func NewGatewayMetrics() router.Metrics {
	if !IsEnabled() {
		return nil
	}
	return prom.NewGatewayMetrics(GetRegistry())
}
