package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmoretti/lifeline/pkg/cache"
)

// cacheMetrics implements cache.Metrics.
type cacheMetrics struct {
	hits         *prometheus.CounterVec
	misses       prometheus.Counter
	stores       *prometheus.CounterVec
	storedBytes  *prometheus.HistogramVec
	tiersDeleted prometheus.Counter
}

// NewCacheMetrics registers and returns the tier cache metrics.
func NewCacheMetrics(reg *prometheus.Registry) cache.Metrics {
	return &cacheMetrics{
		hits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifeline_cache_hits_total",
				Help: "Total cache lookups answered from a tier",
			},
			[]string{"tier"},
		),
		misses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "lifeline_cache_misses_total",
				Help: "Total cache lookups answered by neither tier",
			},
		),
		stores: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifeline_cache_stores_total",
				Help: "Total entries written into a tier",
			},
			[]string{"tier"},
		),
		storedBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "lifeline_cache_stored_bytes",
				Help: "Distribution of body sizes written into the cache",
				Buckets: []float64{
					512,     // small JSON responses
					4096,    // 4KB
					32768,   // 32KB
					131072,  // 128KB
					1048576, // 1MB - large bundles
				},
			},
			[]string{"tier"},
		),
		tiersDeleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "lifeline_cache_tiers_deleted_total",
				Help: "Total superseded tiers removed by garbage collection",
			},
		),
	}
}

func (m *cacheMetrics) RecordHit(tier string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(tier).Inc()
}

func (m *cacheMetrics) RecordMiss() {
	if m == nil {
		return
	}
	m.misses.Inc()
}

func (m *cacheMetrics) RecordStore(tier string, bytes int) {
	if m == nil {
		return
	}
	m.stores.WithLabelValues(tier).Inc()
	m.storedBytes.WithLabelValues(tier).Observe(float64(bytes))
}

func (m *cacheMetrics) RecordTierDeleted(tier string) {
	if m == nil {
		return
	}
	m.tiersDeleted.Inc()
}
