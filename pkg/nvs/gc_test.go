package nvs

import (
	"bytes"
	"testing"

	"github.com/dd0wney/cluso-nvs/pkg/metrics"
)

// entryCost is the flash a 100 byte value takes with its ATE.
const entryCost = 100 + 32

func TestGC_RepeatedWritesReclaimSpace(t *testing.T) {
	s, _ := newTestStore(t)
	total := 3 * (4096 - 32)

	for i := 1; i <= 90; i++ {
		mustWrite(t, s, "cfg", fill(byte(i), 100))
		st := mustStat(t, s)
		if st.FreeSpace != total-entryCost {
			t.Fatalf("write %d: FreeSpace = %d, want %d", i, st.FreeSpace, total-entryCost)
		}
		if st.Available != total-i*entryCost {
			t.Fatalf("write %d: Available = %d, want %d", i, st.Available, total-i*entryCost)
		}
	}
	if st := mustStat(t, s); st.ActiveSector != 2 {
		t.Fatalf("30 entries per sector should leave sector 2 active, got %d", st.ActiveSector)
	}

	// The 91st write closes sector 2 and collects sector 0, which holds
	// nothing live.
	mustWrite(t, s, "cfg", fill(91, 100))
	st := mustStat(t, s)
	if st.ActiveSector != 3 {
		t.Errorf("ActiveSector = %d, want 3", st.ActiveSector)
	}
	if st.FreeSpace != total-entryCost {
		t.Errorf("FreeSpace = %d, want %d", st.FreeSpace, total-entryCost)
	}
	if st.Reclaimable != 60*entryCost {
		t.Errorf("Reclaimable = %d, want %d", st.Reclaimable, 60*entryCost)
	}
	if st.Available != 4140 {
		t.Errorf("Available = %d, want 4140", st.Available)
	}
	if got := mustGet(t, s, "cfg"); !bytes.Equal(got, fill(91, 100)) {
		t.Errorf("latest value lost, got %x", got[0])
	}
}

func TestGC_RelocatesLiveEntries(t *testing.T) {
	reg := metrics.NewRegistry()
	dev := newTestDevice(t, testConfig)
	s := mountTestStore(t, dev, testConfig, WithMetrics(reg, "user"))

	// Keys written once early must survive their sector being collected.
	mustWrite(t, s, "serial", []byte("SN-0042"))
	mustWrite(t, s, "model", []byte("gw-100"))
	const writes = 400
	for i := 0; i < writes; i++ {
		mustWrite(t, s, "counter", fill(byte(i), 100))
	}
	last := writes - 1

	if got := mustGet(t, s, "serial"); string(got) != "SN-0042" {
		t.Errorf("serial = %q", got)
	}
	if got := mustGet(t, s, "model"); string(got) != "gw-100" {
		t.Errorf("model = %q", got)
	}
	if got := mustGet(t, s, "counter"); !bytes.Equal(got, fill(byte(last), 100)) {
		t.Errorf("counter = %x", got[0])
	}

	labels := map[string]string{"partition": "user"}
	if reg.Value("nvs_sector_rotations_total", labels) == 0 {
		t.Error("no rotations recorded")
	}
	if reg.Value("nvs_gc_relocated_entries_total", labels) == 0 {
		t.Error("no relocations recorded")
	}

	// Older versions are gone once their sector is collected, so history
	// reaches back at most three sectors.
	if _, err := s.ReadHistory("counter", nil, 100); !IsNotFound(err) {
		t.Errorf("ReadHistory(100): got %v", err)
	}

	s2 := mountTestStore(t, dev, testConfig)
	if keys, err := s2.Keys(); err != nil || len(keys) != 3 {
		t.Errorf("Keys after remount = %v, %v", keys, err)
	}
}

func TestGC_WearSpreadsAcrossSectors(t *testing.T) {
	s, dev := newTestStore(t)
	for i := 0; i < 1000; i++ {
		mustWrite(t, s, "hot", fill(byte(i), 200))
	}
	counts := dev.EraseCounts()
	lo, hi := counts[0], counts[0]
	for _, c := range counts {
		lo = min(lo, c)
		hi = max(hi, c)
	}
	if lo == 0 || hi-lo > 1 {
		t.Errorf("erase counts unbalanced: %v", counts)
	}
}

func TestWrite_NoSpace(t *testing.T) {
	s, dev := newTestStore(t)

	// Three 1000 byte values fill a sector, and one sector is always kept
	// free, so nine fit.
	for i := 0; i < 9; i++ {
		mustWrite(t, s, keyName(i), fill(byte(i+1), 1000))
	}
	_, err := s.Write(keyName(9), fill(10, 1000))
	if !IsNoSpace(err) {
		t.Fatalf("10th write: got %v, want ErrNoSpace", err)
	}

	check := func(s *Store) {
		t.Helper()
		for i := 0; i < 9; i++ {
			if got := mustGet(t, s, keyName(i)); !bytes.Equal(got, fill(byte(i+1), 1000)) {
				t.Errorf("key %d damaged", i)
			}
		}
		if got := mustFree(t, s); got != 3*(4096-32)-9*(1000+32) {
			t.Errorf("FreeSpace = %d, want 2904", got)
		}
	}
	check(s)

	// Rewriting an existing value is still a no-op, and a delete still fits.
	if n, err := s.Write(keyName(0), fill(1, 1000)); err != nil || n != 0 {
		t.Errorf("unchanged rewrite = %d, %v", n, err)
	}

	s2 := mountTestStore(t, dev, testConfig)
	check(s2)

	if err := s2.Delete(keyName(0)); err != nil {
		t.Fatalf("Delete on a full store: %v", err)
	}
	if _, err := s2.Get(keyName(0)); !IsNotFound(err) {
		t.Errorf("deleted key readable: %v", err)
	}
}

func TestWrite_NoSpaceAfterDeleteRecovers(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 9; i++ {
		mustWrite(t, s, keyName(i), fill(byte(i+1), 1000))
	}
	for i := 0; i < 3; i++ {
		if err := s.Delete(keyName(i)); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}
	for i := 9; i < 12; i++ {
		mustWrite(t, s, keyName(i), fill(byte(i+1), 1000))
	}
	for i := 3; i < 12; i++ {
		if got := mustGet(t, s, keyName(i)); !bytes.Equal(got, fill(byte(i+1), 1000)) {
			t.Errorf("key %d damaged", i)
		}
	}
}
