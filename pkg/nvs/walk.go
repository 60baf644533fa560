package nvs

import "errors"

var errWalkLimit = errors.New("chain walk did not terminate")

// closeOffsetValid reports whether a close marker's offset can point at an
// ATE slot of its sector.
func (s *Store) closeOffsetValid(off uint16) bool {
	o := uint32(off)
	return o < s.closeSlot() && (s.cfg.SectorSize-o)%s.ateSize == 0
}

// prevATE reads the entry at *addr and moves *addr to the next older slot.
// Crossing the top of a sector continues in the previous sector, at the
// newest entry its close marker names. When the previous sector was never
// closed the walk has come full circle and *addr is set to the ATE cursor.
func (s *Store) prevATE(addr *Address) (ATE, ateState, error) {
	e, st, err := s.readATE(*addr)
	if err != nil {
		return e, st, err
	}

	*addr += Address(s.ateSize)
	if addr.Offset() != s.closeSlot() {
		return e, st, nil
	}

	*addr = previousSector(*addr, s.cfg.SectorCount)
	closeATE, closeSt, err := s.readATE(*addr)
	if err != nil {
		return e, st, err
	}
	switch {
	case closeSt == ateErased:
		*addr = s.ateWra
	case closeSt == ateValid && s.closeOffsetValid(closeATE.Offset):
		*addr = addr.SectorStart() + Address(closeATE.Offset)
	default:
		err = s.recoverLastATE(addr)
	}
	return e, st, err
}

// recoverLastATE finds the newest valid entry of a sector whose close marker
// is unusable. *addr points at the close slot on entry. The scan runs down
// from the top and stops where the data of the valid entries seen so far
// ends, so data bytes are never mistaken for entries.
func (s *Store) recoverLastATE(addr *Address) error {
	*addr -= Address(s.ateSize)
	ateEnd := *addr
	dataEnd := addr.SectorStart()
	for ateEnd > dataEnd {
		e, st, err := s.readATE(ateEnd)
		if err != nil {
			return err
		}
		if st == ateValid {
			dataEnd = ateEnd.SectorStart() + Address(e.Offset) + Address(e.Len)
			*addr = ateEnd
		}
		if ateEnd.Offset() < s.ateSize {
			break
		}
		ateEnd -= Address(s.ateSize)
	}
	return nil
}

// walker steps backwards through the allocation table, newest entry first.
type walker struct {
	s     *Store
	addr  Address
	steps int
	limit int
}

// walkFrom starts a walk at addr. The limit covers every slot of every
// sector, which a walk over a consistent table never exceeds.
func (s *Store) walkFrom(addr Address) *walker {
	return &walker{
		s:     s,
		addr:  addr,
		limit: int(s.cfg.SectorCount*(s.cfg.SectorSize/s.ateSize)) + 1,
	}
}

// walk starts at the ATE cursor.
func (s *Store) walk() *walker {
	return s.walkFrom(s.ateWra)
}

// next returns the entry at the walk position and the address it was read
// from, then steps to the next older slot.
func (w *walker) next() (ATE, ateState, Address, error) {
	if w.steps >= w.limit {
		return ATE{}, ateInvalid, w.addr, NewError("walk").Addr(w.addr).Cause(ErrCorrupt).Context(errWalkLimit.Error()).Err()
	}
	w.steps++
	at := w.addr
	e, st, err := w.s.prevATE(&w.addr)
	return e, st, at, err
}

// done reports whether the walk has wrapped back to the ATE cursor.
func (w *walker) done() bool {
	return w.addr == w.s.ateWra
}

// findNewest returns the newest valid entry for key and its address.
func (s *Store) findNewest(key [KeySize]byte) (ATE, Address, bool, error) {
	w := s.walk()
	for {
		e, st, at, err := w.next()
		if err != nil {
			return ATE{}, 0, false, err
		}
		if st == ateValid && e.Key == key {
			return e, at, true, nil
		}
		if w.done() {
			return ATE{}, 0, false, nil
		}
	}
}

// dataAddr returns where the value of an entry read at ateAddr is stored.
func dataAddr(ateAddr Address, e ATE) Address {
	return ateAddr.SectorStart() + Address(e.Offset)
}
