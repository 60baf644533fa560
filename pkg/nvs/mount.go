package nvs

import (
	"time"

	"github.com/dd0wney/cluso-nvs/pkg/logging"
)

// Mount validates the configuration, locates the active sector and restores
// the write cursor. It repairs the damage a single unclean shutdown can
// leave behind: a torn entry at the cursor, a partly written data area, or
// a garbage collection that stopped before erasing its sector.
func (s *Store) Mount() (err error) {
	start := time.Now()
	defer func() { s.observe("mount", start, err) }()

	if err := s.cfg.Validate(); err != nil {
		return NewError("mount").Cause(err).Err()
	}

	s.lock()
	defer s.unlock()

	s.mounted = false
	if err := s.startup(); err != nil {
		s.log.Error("mount failed", logging.Error(err))
		return err
	}
	s.mounted = true

	s.log.Info("mounted",
		logging.Sector(s.ateWra.Sector()),
		logging.String("ate_cursor", s.ateWra.String()),
		logging.String("data_cursor", s.dataWra.String()),
		logging.Latency(time.Since(start)))
	return nil
}

func (s *Store) startup() error {
	n := s.cfg.SectorCount
	closeSlot := s.closeSlot()

	// The active sector follows the first closed sector whose successor is
	// still open.
	var (
		addr   Address
		i      uint32
		closed uint32
	)
	for i = 0; i < n; i++ {
		addr = MakeAddress(i, closeSlot)
		blank, err := s.isErasedRange(addr, s.ateSize)
		if err != nil {
			return err
		}
		if blank {
			continue
		}
		closed++
		addr = advanceSector(addr, n)
		blank, err = s.isErasedRange(addr, s.ateSize)
		if err != nil {
			return err
		}
		if blank {
			break
		}
	}
	if closed == n {
		return NewError("mount").Cause(ErrAllClosed).Err()
	}
	if i == n {
		// Nothing is closed. The last sector is only active if it already
		// holds entries.
		blank, err := s.isErasedRange(addr-Address(s.ateSize), s.ateSize)
		if err != nil {
			return err
		}
		if blank {
			addr = advanceSector(addr, n)
		}
	}

	// Walk down the table: every valid entry pushes the data cursor to the
	// end of its value. Torn entries are stepped over.
	s.ateWra = addr - Address(s.ateSize)
	s.dataWra = addr.SectorStart()
	torn := 0
	for s.ateWra >= s.dataWra {
		e, st, err := s.readATE(s.ateWra)
		if err != nil {
			return err
		}
		if st == ateErased {
			break
		}
		if st == ateInvalid {
			torn++
		}
		if st == ateValid {
			s.dataWra = addr.SectorStart() + Address(e.Offset) + Address(alignUp(uint32(e.Len), s.cfg.WriteBlockSize))
			if s.ateWra == s.dataWra && e.Len != 0 {
				return NewError("mount").Addr(s.ateWra).Cause(ErrCorrupt).Context("entry overlaps its data").Err()
			}
		}
		if s.ateWra.Offset() < s.ateSize {
			break
		}
		s.ateWra -= Address(s.ateSize)
	}
	if torn > 0 {
		s.log.Warn("skipped torn allocation table entries", logging.Count(torn))
		s.recordRecovery("torn_entry")
	}

	// Data written without its entry leaves programmed bytes above the data
	// cursor. Skip them so they are never programmed twice.
	dataEnd := s.dataWra
	for s.ateWra > s.dataWra {
		blank, err := s.isErasedRange(s.dataWra, uint32(s.ateWra-s.dataWra))
		if err != nil {
			return err
		}
		if blank {
			break
		}
		s.dataWra += Address(s.cfg.WriteBlockSize)
	}
	if s.dataWra != dataEnd {
		s.log.Warn("skipped orphaned data",
			logging.String("from", dataEnd.String()),
			logging.String("to", s.dataWra.String()))
		s.recordRecovery("orphaned_data")
	}

	// A garbage collection interrupted before its erase leaves the sector
	// after the active one dirty. Redo the collection into a fresh copy of
	// the active sector.
	next := advanceSector(s.ateWra.SectorStart(), n)
	blank, err := s.isErasedRange(next, s.cfg.SectorSize)
	if err != nil {
		return err
	}
	if !blank {
		s.log.Warn("sector after active sector is not erased, redoing garbage collection",
			logging.Sector(next.Sector()))
		s.recordRecovery("gc_restart")
		if err := s.eraseSector(s.ateWra); err != nil {
			return err
		}
		s.ateWra = s.ateWra.SectorStart() + Address(s.cfg.SectorSize-2*s.ateSize)
		s.dataWra = s.ateWra.SectorStart()
		if err := s.gc(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recordRecovery(kind string) {
	if s.metrics != nil {
		s.metrics.RecordRecovery(s.partition, kind)
	}
}
