package nvs

import (
	"time"

	"github.com/dd0wney/cluso-nvs/pkg/logging"
)

// Clear erases every sector of a mounted store. The store stays mounted
// and empty.
func (s *Store) Clear() (err error) {
	start := time.Now()
	defer func() { s.observe("clear", start, err) }()

	s.lock()
	defer s.unlock()

	if !s.mounted {
		return NewError("clear").Cause(ErrNotMounted).Err()
	}
	return s.reset("clear")
}

// Format erases every sector whether or not the store could be mounted,
// then mounts the empty region. It is the way out of ErrAllClosed and
// ErrCorrupt.
func (s *Store) Format() (err error) {
	start := time.Now()
	defer func() { s.observe("format", start, err) }()

	if err := s.cfg.Validate(); err != nil {
		return NewError("format").Cause(err).Err()
	}

	s.lock()
	defer s.unlock()
	return s.reset("format")
}

func (s *Store) reset(op string) error {
	s.mounted = false
	for i := uint32(0); i < s.cfg.SectorCount; i++ {
		if err := s.eraseSector(MakeAddress(i, 0)); err != nil {
			return NewError(op).Cause(err).Err()
		}
	}
	if err := s.startup(); err != nil {
		return NewError(op).Cause(err).Err()
	}
	s.mounted = true
	s.log.Info("erased all sectors", logging.Operation(op))
	return nil
}
