package flash

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

var testGeometry = Geometry{
	Size:           4 * 4096,
	EraseBlockSize: 4096,
	WriteBlockSize: 4,
	EraseValue:     0xff,
}

func newTestMem(t *testing.T) *Mem {
	t.Helper()
	m, err := NewMem(testGeometry)
	if err != nil {
		t.Fatalf("NewMem: %v", err)
	}
	return m
}

func TestMem_StartsErased(t *testing.T) {
	m := newTestMem(t)
	buf := make([]byte, 64)
	if err := m.Read(100, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{0xff}, 64)) {
		t.Errorf("fresh device not erased: %x", buf)
	}
}

func TestMem_ProgramClearsBitsOnly(t *testing.T) {
	m := newTestMem(t)
	if err := m.Write(0, []byte{0xf0, 0x0f, 0xaa, 0xff}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.Write(0, []byte{0xcc, 0xcc, 0xff, 0x00}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 4)
	m.Read(0, buf)
	want := []byte{0xc0, 0x0c, 0xaa, 0x00}
	if !bytes.Equal(buf, want) {
		t.Errorf("got %x, want %x", buf, want)
	}
}

func TestMem_Alignment(t *testing.T) {
	m := newTestMem(t)
	if err := m.Write(2, []byte{1, 2, 3, 4}); !errors.Is(err, ErrUnaligned) {
		t.Errorf("unaligned write: got %v", err)
	}
	if err := m.Write(0, []byte{1, 2, 3}); !errors.Is(err, ErrUnaligned) {
		t.Errorf("partial block write: got %v", err)
	}
	if err := m.Erase(0, 100); !errors.Is(err, ErrUnaligned) {
		t.Errorf("partial erase: got %v", err)
	}
	if err := m.Read(testGeometry.Size-2, make([]byte, 4)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("read past end: got %v", err)
	}
}

func TestMem_StrictRejectsOverwrite(t *testing.T) {
	m := newTestMem(t)
	m.Strict = true
	if err := m.Write(0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.Write(0, []byte{1, 2, 3, 4}); err != nil {
		t.Errorf("rewriting identical bytes: %v", err)
	}
	if err := m.Write(0, []byte{0, 2, 3, 4}); !errors.Is(err, ErrNotErased) {
		t.Errorf("overwrite: got %v, want ErrNotErased", err)
	}
}

func TestMem_EraseCounts(t *testing.T) {
	m := newTestMem(t)
	m.Write(4096, []byte{0, 0, 0, 0})
	if err := m.Erase(4096, 8192); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	counts := m.EraseCounts()
	if counts[0] != 0 || counts[1] != 1 || counts[2] != 1 || counts[3] != 0 {
		t.Errorf("erase counts = %v", counts)
	}
	buf := make([]byte, 4)
	m.Read(4096, buf)
	if !bytes.Equal(buf, []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("erase left %x", buf)
	}
}

func TestMem_WriteProtection(t *testing.T) {
	m := newTestMem(t)
	m.EnableWriteProtection()
	if err := m.Write(0, []byte{0, 0, 0, 0}); !errors.Is(err, ErrWriteProtected) {
		t.Errorf("protected write: got %v", err)
	}
	m.SetWriteProtection(false)
	if err := m.Write(0, []byte{0, 0, 0, 0}); err != nil {
		t.Errorf("unprotected write: %v", err)
	}
}

func TestMem_PowerCut(t *testing.T) {
	m := newTestMem(t)
	m.CutPowerAfter(6)

	if err := m.Write(0, []byte{1, 1, 1, 1}); err != nil {
		t.Fatalf("first write within budget: %v", err)
	}
	if err := m.Write(4, []byte{2, 2, 2, 2}); !errors.Is(err, ErrPowerLoss) {
		t.Fatalf("second write: got %v, want ErrPowerLoss", err)
	}
	if err := m.Read(0, make([]byte, 1)); !errors.Is(err, ErrPowerLoss) {
		t.Errorf("read after cut: got %v", err)
	}

	m.Restore()
	buf := make([]byte, 8)
	if err := m.Read(0, buf); err != nil {
		t.Fatalf("Read after restore: %v", err)
	}
	want := []byte{1, 1, 1, 1, 2, 2, 0xff, 0xff}
	if !bytes.Equal(buf, want) {
		t.Errorf("after cut got %x, want %x", buf, want)
	}
}

func TestMem_PowerCutDuringErase(t *testing.T) {
	m := newTestMem(t)
	m.TornErase = true
	m.Write(0, bytes.Repeat([]byte{0}, 4096))
	m.CutPowerAfter(0)
	if err := m.Erase(0, 4096); !errors.Is(err, ErrPowerLoss) {
		t.Fatalf("Erase: got %v", err)
	}
	m.Restore()
	snap := m.Snapshot()
	if snap[0] != 0xff || snap[4095] != 0x00 {
		t.Errorf("expected a half erased block, got first=%x last=%x", snap[0], snap[4095])
	}
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvs.img")

	d, err := OpenFile(path, testGeometry)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	buf := make([]byte, 8)
	if err := d.Read(4096, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{0xff}, 8)) {
		t.Fatalf("new image not erased: %x", buf)
	}
	if err := d.Write(4096, []byte("flashimg")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := d.Read(4096, buf); err != nil || string(buf) != "flashimg" {
		t.Fatalf("read back %q, %v", buf, err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d, err = OpenFile(path, testGeometry)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d.Close()
	if err := d.Read(4096, buf); err != nil || string(buf) != "flashimg" {
		t.Fatalf("after reopen %q, %v", buf, err)
	}
	if err := d.Erase(4096, 4096); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	d.Read(4096, buf)
	if !bytes.Equal(buf, bytes.Repeat([]byte{0xff}, 8)) {
		t.Errorf("erase left %x", buf)
	}
}

func TestFile_RejectsWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvs.img")
	d, err := OpenFile(path, testGeometry)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	d.Close()

	bigger := testGeometry
	bigger.Size *= 2
	if _, err := OpenFile(path, bigger); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestMem_PowerCutBeforeErase(t *testing.T) {
	m := newTestMem(t)
	m.Write(0, []byte{0, 0, 0, 0})
	m.CutPowerAfter(0)
	if err := m.Erase(0, 4096); !errors.Is(err, ErrPowerLoss) {
		t.Fatalf("Erase: got %v", err)
	}
	m.Restore()
	if snap := m.Snapshot(); snap[0] != 0x00 {
		t.Errorf("interrupted erase changed contents: %x", snap[0])
	}
}
