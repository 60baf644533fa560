package nvs

import "fmt"

const (
	addrSectorShift = 16
	addrOffsetMask  = 0x0000FFFF
	addrSectorMask  = 0xFFFF0000
)

// Address is a logical flash address: the high 16 bits select the sector,
// the low 16 bits are the byte offset inside it.
type Address uint32

// MakeAddress builds an address from a sector number and an in-sector offset.
func MakeAddress(sector, offset uint32) Address {
	return Address(sector<<addrSectorShift | offset&addrOffsetMask)
}

// Sector returns the sector number.
func (a Address) Sector() uint32 {
	return uint32(a) >> addrSectorShift
}

// Offset returns the byte offset inside the sector.
func (a Address) Offset() uint32 {
	return uint32(a) & addrOffsetMask
}

// SectorStart returns the address of offset 0 in the same sector.
func (a Address) SectorStart() Address {
	return a & addrSectorMask
}

func (a Address) String() string {
	return fmt.Sprintf("%d:0x%04x", a.Sector(), a.Offset())
}

// alignUp rounds n up to a multiple of block, which must be a power of two.
func alignUp(n, block uint32) uint32 {
	if block <= 1 {
		return n
	}
	return (n + block - 1) &^ (block - 1)
}

// advanceSector moves a to the next sector of a ring of count sectors,
// keeping the offset.
func advanceSector(a Address, count uint32) Address {
	a += 1 << addrSectorShift
	if a.Sector() == count {
		a -= Address(count << addrSectorShift)
	}
	return a
}

// previousSector is the inverse of advanceSector.
func previousSector(a Address, count uint32) Address {
	if a.Sector() == 0 {
		return a + Address((count-1)<<addrSectorShift)
	}
	return a - 1<<addrSectorShift
}
