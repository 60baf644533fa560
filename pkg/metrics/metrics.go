package metrics

import (
	"time"
)

// RecordNVSOperation records a public engine operation and its duration.
func (r *Registry) RecordNVSOperation(partition, operation, status string, duration time.Duration) {
	r.OperationsTotal.WithLabelValues(partition, operation, status).Inc()
	r.OperationDuration.WithLabelValues(partition, operation).Observe(duration.Seconds())
}

// RecordRotation records the active sector being closed.
func (r *Registry) RecordRotation(partition string) {
	r.SectorRotations.WithLabelValues(partition).Inc()
}

// RecordGC records one garbage collection and how many entries it moved.
func (r *Registry) RecordGC(partition string, relocated int) {
	r.GCRuns.WithLabelValues(partition).Inc()
	r.GCRelocatedEntries.WithLabelValues(partition).Add(float64(relocated))
}

// RecordSectorErase records a physical erase.
func (r *Registry) RecordSectorErase(partition string) {
	r.SectorErases.WithLabelValues(partition).Inc()
}

// RecordRecovery records damage repaired while mounting.
func (r *Registry) RecordRecovery(partition, kind string) {
	r.Recoveries.WithLabelValues(partition, kind).Inc()
}

// SetFreeSpace publishes the latest free space figure.
func (r *Registry) SetFreeSpace(partition string, bytes int) {
	r.FreeSpaceBytes.WithLabelValues(partition).Set(float64(bytes))
}

// RecordCacheLookup records a cached read.
func (r *Registry) RecordCacheLookup(partition string, hit bool) {
	if hit {
		r.CacheHits.WithLabelValues(partition).Inc()
		return
	}
	r.CacheMisses.WithLabelValues(partition).Inc()
}

// RecordCacheFlush records n entries written back and the dirty count left.
func (r *Registry) RecordCacheFlush(partition string, n, dirty int) {
	r.CacheFlushes.WithLabelValues(partition).Add(float64(n))
	r.CacheDirtyEntries.WithLabelValues(partition).Set(float64(dirty))
}

// SetCacheDirty publishes the number of dirty cache entries.
func (r *Registry) SetCacheDirty(partition string, dirty int) {
	r.CacheDirtyEntries.WithLabelValues(partition).Set(float64(dirty))
}

// RecordMount records a partition mount attempt.
func (r *Registry) RecordMount(partition string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.PartitionMounts.WithLabelValues(partition, status).Inc()
}

// RecordReformat records a partition erased to recover from a failed mount.
func (r *Registry) RecordReformat(partition string) {
	r.PartitionReformat.WithLabelValues(partition).Inc()
}
