// Package flash provides NOR flash devices for the NVS engine: an in-memory
// simulator for tests and tools, and a device backed by an image file.
package flash

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrOutOfRange     = errors.New("flash: access out of range")
	ErrUnaligned      = errors.New("flash: unaligned access")
	ErrWriteProtected = errors.New("flash: write protected")
	ErrPowerLoss      = errors.New("flash: power lost")
	ErrNotErased      = errors.New("flash: programming non-erased bits")
)

// Geometry describes a NOR device.
type Geometry struct {
	Size           uint32
	EraseBlockSize uint32 // erase granularity
	WriteBlockSize uint32 // program granularity
	EraseValue     byte
}

func (g Geometry) validate() error {
	if g.Size == 0 || g.EraseBlockSize == 0 || g.WriteBlockSize == 0 {
		return fmt.Errorf("flash: zero geometry %+v", g)
	}
	if g.Size%g.EraseBlockSize != 0 || g.EraseBlockSize%g.WriteBlockSize != 0 {
		return fmt.Errorf("flash: size %d, erase block %d and write block %d do not nest",
			g.Size, g.EraseBlockSize, g.WriteBlockSize)
	}
	return nil
}

func (g Geometry) check(off, n uint32, align uint32) error {
	if uint64(off)+uint64(n) > uint64(g.Size) {
		return fmt.Errorf("%w: [%d, %d) beyond %d", ErrOutOfRange, off, uint64(off)+uint64(n), g.Size)
	}
	if align > 1 && (off%align != 0 || n%align != 0) {
		return fmt.Errorf("%w: [%d, +%d) on %d byte blocks", ErrUnaligned, off, n, align)
	}
	return nil
}

// program applies a NOR program: bits can only be cleared. With an erase
// value of 0x00 the polarity is inverted.
func program(dst, src []byte, eraseValue byte) {
	for i, b := range src {
		if eraseValue == 0xff {
			dst[i] &= b
		} else {
			dst[i] |= b
		}
	}
}

// Mem is a simulated NOR flash held in memory. It enforces program and
// erase granularity, counts erases per block, and can simulate a power cut
// part way through a program or erase.
type Mem struct {
	mu     sync.Mutex
	geo    Geometry
	data   []byte
	erases []uint32

	// Strict rejects programming bits that are not in the erased state.
	Strict bool
	// TornErase makes an erase interrupted by a power cut leave the first
	// half of its first block erased. Otherwise the erase does not start.
	TornErase bool

	protectable bool
	protected   bool

	powerBudget int // bytes that may still be programmed, -1 for unlimited
	powerLost   bool

	reads, writes uint64
}

// NewMem creates an erased device.
func NewMem(g Geometry) (*Mem, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	return &Mem{
		geo:         g,
		data:        bytes.Repeat([]byte{g.EraseValue}, int(g.Size)),
		erases:      make([]uint32, g.Size/g.EraseBlockSize),
		powerBudget: -1,
	}, nil
}

// Geometry returns the device geometry.
func (m *Mem) Geometry() Geometry {
	return m.geo
}

// Read copies device contents at off into p.
func (m *Mem) Read(off uint32, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.powerLost {
		return ErrPowerLoss
	}
	if err := m.geo.check(off, uint32(len(p)), 1); err != nil {
		return err
	}
	copy(p, m.data[off:])
	m.reads++
	return nil
}

// Write programs whole write blocks at off.
func (m *Mem) Write(off uint32, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.powerLost {
		return ErrPowerLoss
	}
	if m.protectable && m.protected {
		return ErrWriteProtected
	}
	if err := m.geo.check(off, uint32(len(p)), m.geo.WriteBlockSize); err != nil {
		return err
	}
	if m.Strict {
		for i, b := range p {
			cur := m.data[int(off)+i]
			if cur != m.geo.EraseValue && cur != b {
				return fmt.Errorf("%w at %d", ErrNotErased, int(off)+i)
			}
		}
	}

	n := len(p)
	if m.powerBudget >= 0 && n > m.powerBudget {
		n = m.powerBudget
		m.powerLost = true
	}
	program(m.data[off:], p[:n], m.geo.EraseValue)
	if m.powerBudget >= 0 {
		m.powerBudget -= n
	}
	m.writes++
	if m.powerLost {
		return ErrPowerLoss
	}
	return nil
}

// Erase resets whole erase blocks to the erase value.
func (m *Mem) Erase(off, size uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.powerLost {
		return ErrPowerLoss
	}
	if m.protectable && m.protected {
		return ErrWriteProtected
	}
	if err := m.geo.check(off, size, m.geo.EraseBlockSize); err != nil {
		return err
	}
	if m.powerBudget == 0 {
		if m.TornErase {
			half := m.data[off : off+m.geo.EraseBlockSize/2]
			for i := range half {
				half[i] = m.geo.EraseValue
			}
		}
		m.powerLost = true
		return ErrPowerLoss
	}
	for i := off; i < off+size; i++ {
		m.data[i] = m.geo.EraseValue
	}
	for b := off / m.geo.EraseBlockSize; b < (off+size)/m.geo.EraseBlockSize; b++ {
		m.erases[b]++
	}
	return nil
}

// EnableWriteProtection makes the device start out protected. Programs and
// erases then fail unless SetWriteProtection(false) was called first.
func (m *Mem) EnableWriteProtection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protectable = true
	m.protected = true
}

// SetWriteProtection implements nvs.WriteProtector.
func (m *Mem) SetWriteProtection(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.powerLost {
		return ErrPowerLoss
	}
	m.protected = enabled
	return nil
}

// CutPowerAfter lets n more bytes be programmed. The program that crosses
// the budget is truncated, and every access after it fails with
// ErrPowerLoss until Restore. An erase attempted with the budget spent is
// cut as well, see TornErase.
func (m *Mem) CutPowerAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerBudget = n
}

// Restore powers the device back up. Contents survive.
func (m *Mem) Restore() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerLost = false
	m.powerBudget = -1
}

// EraseCounts returns the number of erases per erase block.
func (m *Mem) EraseCounts() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint32(nil), m.erases...)
}

// Stats returns the number of read and program calls served.
func (m *Mem) Stats() (reads, writes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes
}

// Snapshot returns a copy of the whole device.
func (m *Mem) Snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Corrupt flips bits at off, bypassing all checks.
func (m *Mem) Corrupt(off uint32, mask byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[off] ^= mask
}
