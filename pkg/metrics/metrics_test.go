package metrics

import (
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.OperationsTotal == nil || r.SectorErases == nil || r.CacheHits == nil || r.PartitionMounts == nil {
		t.Error("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordNVSOperation(t *testing.T) {
	r := NewRegistry()

	r.RecordNVSOperation("user", "write", "ok", time.Millisecond)
	r.RecordNVSOperation("user", "write", "ok", 2*time.Millisecond)
	r.RecordNVSOperation("user", "read", "not_found", time.Millisecond)

	counter, err := r.OperationsTotal.GetMetricWithLabelValues("user", "write", "ok")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("write counter = %v, want 2", metric.Counter.GetValue())
	}

	got := r.Value("nvs_operation_duration_seconds", map[string]string{"partition": "user", "operation": "write"})
	if got != 2 {
		t.Errorf("histogram sample count = %v, want 2", got)
	}
}

func TestRecordGC(t *testing.T) {
	r := NewRegistry()
	r.RecordGC("factory", 3)
	r.RecordGC("factory", 0)

	if got := r.Value("nvs_gc_runs_total", map[string]string{"partition": "factory"}); got != 2 {
		t.Errorf("gc runs = %v, want 2", got)
	}
	if got := r.Value("nvs_gc_relocated_entries_total", map[string]string{"partition": "factory"}); got != 3 {
		t.Errorf("relocated = %v, want 3", got)
	}
}

func TestCacheAndPartitionMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordCacheLookup("user", true)
	r.RecordCacheLookup("user", false)
	r.RecordCacheLookup("user", true)
	r.RecordCacheFlush("user", 4, 1)
	r.RecordMount("user", nil)
	r.RecordMount("user", errors.New("corrupt"))
	r.RecordReformat("user")

	user := map[string]string{"partition": "user"}
	checks := map[string]float64{
		"nvs_cache_hits_total":          2,
		"nvs_cache_misses_total":        1,
		"nvs_cache_flushes_total":       4,
		"nvs_cache_dirty_entries":       1,
		"nvs_partition_reformats_total": 1,
	}
	for name, want := range checks {
		if got := r.Value(name, user); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	if got := r.Value("nvs_partition_mounts_total", map[string]string{"partition": "user", "status": "error"}); got != 1 {
		t.Errorf("failed mounts = %v, want 1", got)
	}
}

func TestSampleID(t *testing.T) {
	s := Sample{Name: "nvs_recoveries_total", Labels: map[string]string{"partition": "user", "kind": "torn_entry"}}
	want := `nvs_recoveries_total{kind="torn_entry",partition="user"}`
	if got := s.ID(); got != want {
		t.Errorf("ID() = %s, want %s", got, want)
	}
	if got := (Sample{Name: "up"}).ID(); got != "up" {
		t.Errorf("ID() = %s, want up", got)
	}
}
