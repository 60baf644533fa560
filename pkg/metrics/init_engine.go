package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initEngineMetrics() {
	r.OperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_operations_total",
			Help: "Total number of NVS operations",
		},
		[]string{"partition", "operation", "status"},
	)

	r.OperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nvs_operation_duration_seconds",
			Help:    "NVS operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"partition", "operation"},
	)

	r.SectorRotations = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_sector_rotations_total",
			Help: "Number of times the active sector was closed",
		},
		[]string{"partition"},
	)

	r.GCRuns = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_gc_runs_total",
			Help: "Number of garbage collections of a closed sector",
		},
		[]string{"partition"},
	)

	r.GCRelocatedEntries = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_gc_relocated_entries_total",
			Help: "Live entries copied out of sectors being collected",
		},
		[]string{"partition"},
	)

	r.SectorErases = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_sector_erases_total",
			Help: "Physical sector erases issued to the flash device",
		},
		[]string{"partition"},
	)

	r.Recoveries = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvs_recoveries_total",
			Help: "Damage repaired at mount, by kind",
		},
		[]string{"partition", "kind"},
	)

	r.FreeSpaceBytes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nvs_free_space_bytes",
			Help: "Free space reported by the last free space query",
		},
		[]string{"partition"},
	)
}
