package health

import (
	"testing"

	"github.com/dd0wney/cluso-nvs/pkg/flash"
	"github.com/dd0wney/cluso-nvs/pkg/nvs"
	"github.com/dd0wney/cluso-nvs/pkg/storage"
)

func statWithFree(free int) func() (nvs.Stat, error) {
	return func() (nvs.Stat, error) {
		// Capacity is 3 * (4096 - 32) = 12192 bytes.
		return nvs.Stat{SectorCount: 4, SectorSize: 4096, ATESize: 32, FreeSpace: free}, nil
	}
}

func TestChecker_WorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("b", func() Check { return Check{Status: StatusDegraded} })
	c.Register("a", func() Check { return Check{Status: StatusHealthy} })

	resp := c.Check()
	if resp.Status != StatusDegraded {
		t.Errorf("Status = %s, want degraded", resp.Status)
	}
	if len(resp.Checks) != 2 || resp.Checks[0].Name != "a" || resp.Checks[1].Name != "b" {
		t.Errorf("Checks = %+v, want a then b", resp.Checks)
	}
	if resp.Checks[0].LastChecked.IsZero() {
		t.Error("LastChecked not set")
	}

	c.Register("c", func() Check { return Check{Status: StatusUnhealthy} })
	if got := c.Check().Status; got != StatusUnhealthy {
		t.Errorf("Status = %s, want unhealthy", got)
	}

	if got := NewChecker().Check().Status; got != StatusHealthy {
		t.Errorf("empty checker Status = %s", got)
	}
}

func TestPartitionCheck_Thresholds(t *testing.T) {
	tests := []struct {
		free int
		want Status
	}{
		{12192, StatusHealthy},
		{2500, StatusHealthy},  // 79.5% used
		{2400, StatusDegraded}, // 80.3% used
		{700, StatusDegraded},  // 94.3% used
		{500, StatusUnhealthy}, // 95.9% used
		{0, StatusUnhealthy},
	}
	for _, tt := range tests {
		check := PartitionCheck(statWithFree(tt.free))()
		if check.Status != tt.want {
			t.Errorf("free %d: Status = %s, want %s", tt.free, check.Status, tt.want)
		}
		if check.Details["capacity_bytes"] != 12192 {
			t.Errorf("capacity_bytes = %v", check.Details["capacity_bytes"])
		}
	}
}

func TestPartitionCheck_Error(t *testing.T) {
	check := PartitionCheck(func() (nvs.Stat, error) {
		return nvs.Stat{}, nvs.ErrNotMounted
	})()
	if check.Status != StatusUnhealthy || check.Message != nvs.ErrNotMounted.Error() {
		t.Errorf("check = %+v", check)
	}
}

func TestCacheCheck(t *testing.T) {
	if got := CacheCheck(nil, 0)().Message; got != "Cache disabled" {
		t.Errorf("Message = %q", got)
	}

	c := storage.NewWriteBackCache(2, 16)
	c.Put("a", []byte("1"), true)
	if got := CacheCheck(c, 2)().Status; got != StatusHealthy {
		t.Errorf("Status = %s with one dirty entry", got)
	}
	c.Put("b", []byte("2"), true)
	check := CacheCheck(c, 2)()
	if check.Status != StatusDegraded || check.Details["dirty"] != 2 {
		t.Errorf("check = %+v", check)
	}
}

func TestForManager(t *testing.T) {
	opts := storage.DefaultOptions()
	dev, err := flash.NewMem(flash.Geometry{
		Size:           opts.DeviceSize(),
		EraseBlockSize: opts.SectorSize,
		WriteBlockSize: opts.WriteBlockSize,
		EraseValue:     opts.EraseValue,
	})
	if err != nil {
		t.Fatal(err)
	}
	m, err := storage.Open(dev, opts)
	if err != nil {
		t.Fatal(err)
	}

	resp := ForManager(m).Check()
	if resp.Status != StatusHealthy {
		t.Errorf("Status = %s, checks %+v", resp.Status, resp.Checks)
	}
	var names []string
	for _, c := range resp.Checks {
		names = append(names, c.Name)
	}
	if len(names) != 3 || names[0] != "cache" || names[1] != "factory" || names[2] != "user" {
		t.Errorf("checks = %v", names)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	resp = ForManager(m).Check()
	if resp.Status != StatusUnhealthy {
		t.Errorf("Status after Close = %s", resp.Status)
	}
	if resp.Checks[1].Message != storage.ErrClosed.Error() {
		t.Errorf("factory message = %q", resp.Checks[1].Message)
	}
}
