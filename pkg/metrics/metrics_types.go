package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the NVS stack.
type Registry struct {
	// Engine metrics
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	SectorRotations    *prometheus.CounterVec
	GCRuns             *prometheus.CounterVec
	GCRelocatedEntries *prometheus.CounterVec
	SectorErases       *prometheus.CounterVec
	Recoveries         *prometheus.CounterVec
	FreeSpaceBytes     *prometheus.GaugeVec

	// Write-back cache metrics
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	CacheFlushes      *prometheus.CounterVec
	CacheDirtyEntries *prometheus.GaugeVec

	// Partition manager metrics
	PartitionMounts   *prometheus.CounterVec
	PartitionReformat *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}
	r.initEngineMetrics()
	r.initCacheMetrics()
	r.initPartitionMetrics()
	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
