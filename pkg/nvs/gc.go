package nvs

import (
	"github.com/dd0wney/cluso-nvs/pkg/logging"
)

// closeSector retires the active sector. The close marker records the
// newest entry of the sector so later walks can resume there, then the
// cursor moves to the start of the next sector.
func (s *Store) closeSector() error {
	closeATE := ATE{
		Key:    closeKey,
		Offset: uint16((s.ateWra + Address(s.ateSize)).Offset()),
		Part:   partDefault,
	}
	closeATE.Seal()

	closed := s.ateWra.Sector()
	s.ateWra = s.ateWra.SectorStart() + Address(s.closeSlot())
	err := s.ateWrite(&closeATE)
	s.ateWra = advanceSector(s.ateWra, s.cfg.SectorCount)
	s.dataWra = s.ateWra.SectorStart()

	s.log.Debug("sector closed",
		logging.Sector(closed),
		logging.Uint64("next_sector", uint64(s.ateWra.Sector())))
	if s.metrics != nil {
		s.metrics.RecordRotation(s.partition)
	}
	return err
}

// gc empties the sector after the active one. Entries that are still the
// newest valid copy of their key are copied into the active sector, then
// the sector is erased.
func (s *Store) gc() error {
	secAddr := advanceSector(s.ateWra.SectorStart(), s.cfg.SectorCount)
	gcAddr := secAddr + Address(s.closeSlot())

	closeATE, closeSt, err := s.readATE(gcAddr)
	if err != nil {
		return err
	}
	if closeSt == ateErased {
		return s.eraseSector(secAddr)
	}

	stopAddr := gcAddr - Address(s.ateSize)
	if closeSt == ateValid && s.closeOffsetValid(closeATE.Offset) {
		gcAddr = secAddr + Address(closeATE.Offset)
	} else if err := s.recoverLastATE(&gcAddr); err != nil {
		return err
	}

	relocated := 0
	for done := false; !done; {
		gcPrev := gcAddr
		e, st, err := s.prevATE(&gcAddr)
		if err != nil {
			return err
		}
		done = gcPrev == stopAddr
		if st != ateValid || e.Len == 0 {
			continue
		}

		_, newestAddr, found, err := s.findNewest(e.Key)
		if err != nil {
			return err
		}
		if !found || newestAddr != gcPrev {
			continue
		}

		from := dataAddr(gcPrev, e)
		e.Offset = uint16(s.dataWra.Offset())
		e.Seal()
		if err := s.moveBlock(from, uint32(e.Len)); err != nil {
			return err
		}
		if err := s.ateWrite(&e); err != nil {
			return err
		}
		relocated++
	}

	s.log.Debug("garbage collected sector",
		logging.Sector(secAddr.Sector()),
		logging.Count(relocated))
	if s.metrics != nil {
		s.metrics.RecordGC(s.partition, relocated)
	}
	return s.eraseSector(secAddr)
}
