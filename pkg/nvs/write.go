package nvs

import (
	"strconv"
	"time"

	"github.com/dd0wney/cluso-nvs/pkg/logging"
)

// Write stores data under key and returns the number of bytes written.
// Writing the value a key already holds, or deleting a key that has no
// value, writes nothing and returns 0. When the active sector is full the
// store rotates to the next sector and garbage collects, up to once per
// sector before giving up with ErrNoSpace.
func (s *Store) Write(key string, data []byte) (n int, err error) {
	start := time.Now()
	op := "write"
	if len(data) == 0 {
		op = "delete"
	}
	defer func() { s.observe(op, start, err) }()

	k, err := makeKey(key)
	if err != nil {
		return 0, NewError(op).Key(key).Cause(err).Err()
	}
	if len(data) > s.cfg.MaxValueSize() {
		return 0, NewError(op).Key(key).Cause(ErrValueTooLarge).
			Context("max " + strconv.Itoa(s.cfg.MaxValueSize())).Err()
	}

	s.lock()
	defer s.unlock()

	if !s.mounted {
		return 0, NewError(op).Key(key).Cause(ErrNotMounted).Err()
	}

	unchanged, err := s.unchanged(k, data)
	if err != nil {
		return 0, NewError(op).Key(key).Cause(err).Err()
	}
	if unchanged {
		return 0, nil
	}

	// Deletes still need room for their tombstone.
	required := Address(s.ateSize)
	if len(data) > 0 {
		required += Address(alignUp(uint32(len(data)), s.cfg.WriteBlockSize))
	}

	for rotations := uint32(0); ; rotations++ {
		if rotations == s.cfg.SectorCount {
			s.log.Warn("no space for entry", logging.Key(key), logging.Int("len", len(data)))
			return 0, NewError(op).Key(key).Cause(ErrNoSpace).Err()
		}
		if s.ateWra >= s.dataWra+required {
			if err := s.writeEntry(k, data); err != nil {
				return 0, NewError(op).Key(key).Cause(err).Err()
			}
			return len(data), nil
		}
		if err := s.closeSector(); err != nil {
			return 0, NewError(op).Key(key).Cause(err).Err()
		}
		if err := s.gc(); err != nil {
			return 0, NewError(op).Key(key).Cause(err).Err()
		}
	}
}

// Delete removes key by appending a tombstone. Deleting a missing key is a
// no-op.
func (s *Store) Delete(key string) error {
	_, err := s.Write(key, nil)
	return err
}

// unchanged reports whether writing data under k would leave the visible
// state as it is.
func (s *Store) unchanged(k [KeySize]byte, data []byte) (bool, error) {
	e, at, found, err := s.findNewest(k)
	if err != nil {
		return false, err
	}
	if !found {
		return len(data) == 0, nil
	}
	if len(data) == 0 {
		return e.Len == 0, nil
	}
	if int(e.Len) != len(data) {
		return false, nil
	}
	return s.compareFlash(dataAddr(at, e), data)
}

// writeEntry appends the value, then the entry that makes it visible.
func (s *Store) writeEntry(k [KeySize]byte, data []byte) error {
	e := ATE{
		Key:    k,
		Offset: uint16(s.dataWra.Offset()),
		Len:    uint16(len(data)),
		Part:   partDefault,
	}
	e.Seal()
	if err := s.dataWrite(data); err != nil {
		return err
	}
	return s.ateWrite(&e)
}
