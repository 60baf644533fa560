package nvs

import (
	"bytes"

	"github.com/dd0wney/cluso-nvs/pkg/logging"
)

// physical maps a logical address to a device offset.
func (s *Store) physical(a Address) uint32 {
	return s.cfg.Offset + s.cfg.SectorSize*a.Sector() + a.Offset()
}

func (s *Store) flashRead(a Address, p []byte) error {
	if err := s.dev.Read(s.physical(a), p); err != nil {
		return flashError("flash read", a, err)
	}
	return nil
}

// unprotected runs fn with device write protection lifted, if the device
// has any.
func (s *Store) unprotected(fn func() error) error {
	wp, ok := s.dev.(WriteProtector)
	if !ok {
		return fn()
	}
	if err := wp.SetWriteProtection(false); err != nil {
		return err
	}
	err := fn()
	if perr := wp.SetWriteProtection(true); err == nil {
		err = perr
	}
	return err
}

// alignedWrite programs p at a. The tail that does not fill a whole write
// block is padded with the erase value.
func (s *Store) alignedWrite(a Address, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	wbs := s.cfg.WriteBlockSize
	off := s.physical(a)
	err := s.unprotected(func() error {
		blen := uint32(len(p)) &^ (wbs - 1)
		if blen > 0 {
			if err := s.dev.Write(off, p[:blen]); err != nil {
				return err
			}
		}
		if rest := p[blen:]; len(rest) > 0 {
			buf := bytes.Repeat([]byte{s.cfg.EraseValue}, int(wbs))
			copy(buf, rest)
			if err := s.dev.Write(off+blen, buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("flash write failed", logging.Address(a.String()), logging.Error(err))
		return flashError("flash write", a, err)
	}
	return nil
}

// dataWrite appends p at the data cursor. The cursor moves even on failure.
func (s *Store) dataWrite(p []byte) error {
	a := s.dataWra
	s.dataWra += Address(alignUp(uint32(len(p)), s.cfg.WriteBlockSize))
	return s.alignedWrite(a, p)
}

// ateWrite appends e at the ATE cursor. The cursor moves even on failure.
func (s *Store) ateWrite(e *ATE) error {
	var raw [ATERawSize]byte
	e.Encode(raw[:])
	a := s.ateWra
	s.ateWra -= Address(s.ateSize)
	return s.alignedWrite(a, raw[:])
}

// readATE reads and classifies the slot at a.
func (s *Store) readATE(a Address) (ATE, ateState, error) {
	var raw [blockSize]byte
	slot := raw[:s.ateSize]
	if err := s.flashRead(a, slot); err != nil {
		return ATE{}, ateErased, err
	}
	e, st := classifyATE(slot, s.cfg.EraseValue)
	return e, st, nil
}

// compareFlash reports whether the flash at a holds exactly data.
func (s *Store) compareFlash(a Address, data []byte) (bool, error) {
	var buf [blockSize]byte
	for len(data) > 0 {
		n := min(len(data), blockSize)
		if err := s.flashRead(a, buf[:n]); err != nil {
			return false, err
		}
		if !bytes.Equal(buf[:n], data[:n]) {
			return false, nil
		}
		data = data[n:]
		a += Address(n)
	}
	return true, nil
}

// isErasedRange reports whether length bytes at a all hold the erase value.
func (s *Store) isErasedRange(a Address, length uint32) (bool, error) {
	var buf [blockSize]byte
	for length > 0 {
		n := min(length, blockSize)
		if err := s.flashRead(a, buf[:n]); err != nil {
			return false, err
		}
		if !isErased(buf[:n], s.cfg.EraseValue) {
			return false, nil
		}
		length -= n
		a += Address(n)
	}
	return true, nil
}

// moveBlock copies length bytes from a to the data cursor.
func (s *Store) moveBlock(a Address, length uint32) error {
	var buf [blockSize]byte
	for length > 0 {
		n := min(length, blockSize)
		if err := s.flashRead(a, buf[:n]); err != nil {
			return err
		}
		if err := s.dataWrite(buf[:n]); err != nil {
			return err
		}
		length -= n
		a += Address(n)
	}
	return nil
}

// eraseSector erases the sector containing a unless it is already blank.
func (s *Store) eraseSector(a Address) error {
	start := a.SectorStart()
	blank, err := s.isErasedRange(start, s.cfg.SectorSize)
	if err != nil {
		return err
	}
	if blank {
		return nil
	}
	s.log.Debug("erasing sector", logging.Sector(start.Sector()))
	err = s.unprotected(func() error {
		return s.dev.Erase(s.physical(start), s.cfg.SectorSize)
	})
	if err != nil {
		s.log.Error("flash erase failed", logging.Sector(start.Sector()), logging.Error(err))
		return flashError("flash erase", start, err)
	}
	if s.metrics != nil {
		s.metrics.RecordSectorErase(s.partition)
	}
	return nil
}
