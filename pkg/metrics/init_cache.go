package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCacheMetrics() {
	r.CacheHits = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_cache_hits_total",
			Help: "Reads served from the write-back cache",
		},
		[]string{"partition"},
	)

	r.CacheMisses = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_cache_misses_total",
			Help: "Reads that had to go to flash",
		},
		[]string{"partition"},
	)

	r.CacheFlushes = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_cache_flushes_total",
			Help: "Dirty cache entries written back to flash",
		},
		[]string{"partition"},
	)

	r.CacheDirtyEntries = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nvs_cache_dirty_entries",
			Help: "Cache entries not yet written back",
		},
		[]string{"partition"},
	)
}

func (r *Registry) initPartitionMetrics() {
	r.PartitionMounts = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_partition_mounts_total",
			Help: "Partition mount attempts by result",
		},
		[]string{"partition", "status"},
	)

	r.PartitionReformat = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_partition_reformats_total",
			Help: "Partitions erased after failing to mount",
		},
		[]string{"partition"},
	)
}
