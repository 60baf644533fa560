package health

import (
	"fmt"

	"github.com/dd0wney/cluso-nvs/pkg/nvs"
	"github.com/dd0wney/cluso-nvs/pkg/storage"
)

// Usage thresholds, in percent of a partition's data capacity.
const (
	DegradedUsage  = 80
	UnhealthyUsage = 95
)

// PartitionCheck grades a partition by how much of its capacity live
// values hold. A partition that cannot report its state is unhealthy.
func PartitionCheck(stat func() (nvs.Stat, error)) CheckFunc {
	return func() Check {
		check := Check{Details: make(map[string]any)}

		st, err := stat()
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}

		capacity := int(st.SectorCount-1) * int(st.SectorSize-st.ATESize)
		used := capacity - st.FreeSpace
		usagePercent := float64(used) / float64(capacity) * 100

		check.Details["capacity_bytes"] = capacity
		check.Details["used_bytes"] = used
		check.Details["reclaimable_bytes"] = st.Reclaimable
		check.Details["live_entries"] = st.LiveEntries
		check.Details["usage_percent"] = usagePercent

		switch {
		case usagePercent > UnhealthyUsage:
			check.Status = StatusUnhealthy
			check.Message = "Partition almost full"
		case usagePercent > DegradedUsage:
			check.Status = StatusDegraded
			check.Message = "Partition filling up"
		default:
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("%d bytes free", st.FreeSpace)
		}
		return check
	}
}

// CacheCheck reports the write-back backlog. A cache whose every entry is
// dirty can take no new value until the next sync, so writes go straight
// to flash.
func CacheCheck(c *storage.WriteBackCache, capacity int) CheckFunc {
	return func() Check {
		check := Check{Details: make(map[string]any)}
		if c == nil || capacity == 0 {
			check.Status = StatusHealthy
			check.Message = "Cache disabled"
			return check
		}

		dirty := c.DirtyCount()
		hits, misses, rate := c.Stats()
		check.Details["entries"] = c.Size()
		check.Details["dirty"] = dirty
		check.Details["hits"] = hits
		check.Details["misses"] = misses
		check.Details["hit_rate"] = rate

		if dirty >= capacity {
			check.Status = StatusDegraded
			check.Message = "Every cache entry awaits write-back"
		} else {
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("%d of %d entries dirty", dirty, capacity)
		}
		return check
	}
}

// ForManager returns a checker covering both partitions of m and its
// cache.
func ForManager(m *storage.Manager) *Checker {
	c := NewChecker()
	for _, p := range storage.Partitions {
		c.Register(p.String(), PartitionCheck(func() (nvs.Stat, error) {
			s, err := m.Store(p)
			if err != nil {
				return nvs.Stat{}, err
			}
			return s.Stat()
		}))
	}
	c.Register("cache", CacheCheck(m.Cache(), m.Options().CacheEntries))
	return c
}
