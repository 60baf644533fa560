package nvs

import "time"

// Stat is a snapshot of a store's geometry and space usage.
type Stat struct {
	SectorSize     uint32
	SectorCount    uint32
	WriteBlockSize uint32
	ATESize        uint32
	ActiveSector   uint32
	ATECursor      Address
	DataCursor     Address

	// FreeSpace is the space not held by live values, out of the N-1
	// sectors that can hold data at any time.
	FreeSpace int
	// Reclaimable is the space held by superseded values, tombstones and
	// torn entries. Garbage collection returns it.
	Reclaimable int
	// Available is FreeSpace minus Reclaimable: what can be written before
	// the store has to collect garbage.
	Available   int
	LiveEntries int
}

// FreeSpace returns the number of bytes available for new values once
// everything that is no longer live has been collected.
func (s *Store) FreeSpace() (free int, err error) {
	start := time.Now()
	defer func() { s.observe("free_space", start, err) }()

	s.rlock()
	defer s.runlock()

	if !s.mounted {
		return 0, NewError("free space").Cause(ErrNotMounted).Err()
	}
	u, err := s.usage()
	if err != nil {
		return 0, NewError("free space").Cause(err).Err()
	}
	if s.metrics != nil {
		s.metrics.SetFreeSpace(s.partition, u.free)
	}
	return u.free, nil
}

// Stat reports geometry, cursors and space usage.
func (s *Store) Stat() (Stat, error) {
	s.rlock()
	defer s.runlock()

	if !s.mounted {
		return Stat{}, NewError("stat").Cause(ErrNotMounted).Err()
	}
	u, err := s.usage()
	if err != nil {
		return Stat{}, NewError("stat").Cause(err).Err()
	}
	return Stat{
		SectorSize:     s.cfg.SectorSize,
		SectorCount:    s.cfg.SectorCount,
		WriteBlockSize: s.cfg.WriteBlockSize,
		ATESize:        s.ateSize,
		ActiveSector:   s.ateWra.Sector(),
		ATECursor:      s.ateWra,
		DataCursor:     s.dataWra,
		FreeSpace:      u.free,
		Reclaimable:    u.reclaimable,
		Available:      u.free - u.reclaimable,
		LiveEntries:    u.live,
	}, nil
}

type usage struct {
	free        int
	reclaimable int
	live        int
}

// usage walks the whole table once. The first valid entry seen for a key
// is its newest; it costs its aligned length plus one ATE when it holds a
// value. Everything else the walk meets is reclaimable.
func (s *Store) usage() (usage, error) {
	ateSize := int(s.ateSize)
	u := usage{free: int(s.cfg.SectorCount-1) * int(s.cfg.SectorSize-s.ateSize)}
	seen := make(map[[KeySize]byte]struct{})

	w := s.walk()
	for {
		e, st, _, err := w.next()
		if err != nil {
			return usage{}, err
		}
		switch st {
		case ateErased:
		case ateInvalid:
			u.reclaimable += ateSize
		case ateValid:
			cost := int(alignUp(uint32(e.Len), s.cfg.WriteBlockSize)) + ateSize
			_, dup := seen[e.Key]
			seen[e.Key] = struct{}{}
			if dup || e.Len == 0 {
				u.reclaimable += cost
			} else {
				u.free -= cost
				u.live++
			}
		}
		if w.done() {
			return u, nil
		}
	}
}
