package nvs

import (
	"bytes"
	"testing"

	"github.com/dd0wney/cluso-nvs/pkg/flash"
)

// testConfig is four 4 KiB sectors with 4 byte write blocks, so ATEs take
// 32 bytes.
var testConfig = Config{
	SectorSize:     4096,
	SectorCount:    4,
	WriteBlockSize: 4,
	EraseValue:     0xff,
}

func newTestDevice(t *testing.T, cfg Config) *flash.Mem {
	t.Helper()
	dev, err := flash.NewMem(flash.Geometry{
		Size:           cfg.Offset + cfg.Size(),
		EraseBlockSize: cfg.SectorSize,
		WriteBlockSize: cfg.WriteBlockSize,
		EraseValue:     cfg.EraseValue,
	})
	if err != nil {
		t.Fatalf("NewMem: %v", err)
	}
	dev.Strict = true
	return dev
}

func mountTestStore(t *testing.T, dev Flash, cfg Config, opts ...Option) *Store {
	t.Helper()
	s := New(dev, cfg, opts...)
	if err := s.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return s
}

func newTestStore(t *testing.T) (*Store, *flash.Mem) {
	t.Helper()
	dev := newTestDevice(t, testConfig)
	return mountTestStore(t, dev, testConfig), dev
}

func fill(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func mustWrite(t *testing.T, s *Store, key string, data []byte) {
	t.Helper()
	if _, err := s.Write(key, data); err != nil {
		t.Fatalf("Write(%q, %d bytes): %v", key, len(data), err)
	}
}

func mustGet(t *testing.T, s *Store, key string) []byte {
	t.Helper()
	v, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	return v
}

func mustStat(t *testing.T, s *Store) Stat {
	t.Helper()
	st, err := s.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	return st
}

func mustFree(t *testing.T, s *Store) int {
	t.Helper()
	free, err := s.FreeSpace()
	if err != nil {
		t.Fatalf("FreeSpace: %v", err)
	}
	return free
}
