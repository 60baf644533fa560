package nvs

import (
	"time"
)

// Read copies the live value of key into buf and returns the stored length,
// which may exceed len(buf). Pass a nil buf to learn the length only.
func (s *Store) Read(key string, buf []byte) (int, error) {
	return s.ReadHistory(key, buf, 0)
}

// ReadHistory reads an older value of key: n == 0 is the live value, n == 1
// the one it replaced, and so on. Deletions count as versions and read as
// ErrNotFound.
func (s *Store) ReadHistory(key string, buf []byte, n int) (length int, err error) {
	start := time.Now()
	defer func() { s.observe("read", start, err) }()

	k, err := makeKey(key)
	if err != nil {
		return 0, NewError("read").Key(key).Cause(err).Err()
	}
	if n < 0 {
		return 0, NewError("read").Key(key).Cause(ErrInvalidArgument).Context("negative history index").Err()
	}

	s.rlock()
	defer s.runlock()

	if !s.mounted {
		return 0, NewError("read").Key(key).Cause(ErrNotMounted).Err()
	}
	length, err = s.readHistory(k, buf, n)
	if err != nil {
		return 0, NewError("read").Key(key).Cause(err).Err()
	}
	return length, nil
}

// Get returns a copy of the live value of key.
func (s *Store) Get(key string) (value []byte, err error) {
	start := time.Now()
	defer func() { s.observe("read", start, err) }()

	k, err := makeKey(key)
	if err != nil {
		return nil, NewError("get").Key(key).Cause(err).Err()
	}

	s.rlock()
	defer s.runlock()

	if !s.mounted {
		return nil, NewError("get").Key(key).Cause(ErrNotMounted).Err()
	}
	e, at, err := s.findVersion(k, 0)
	if err != nil {
		return nil, NewError("get").Key(key).Cause(err).Err()
	}
	value = make([]byte, e.Len)
	if err := s.flashRead(dataAddr(at, e), value); err != nil {
		return nil, NewError("get").Key(key).Cause(err).Err()
	}
	return value, nil
}

func (s *Store) readHistory(k [KeySize]byte, buf []byte, n int) (int, error) {
	e, at, err := s.findVersion(k, n)
	if err != nil {
		return 0, err
	}
	if cnt := min(len(buf), int(e.Len)); cnt > 0 {
		if err := s.flashRead(dataAddr(at, e), buf[:cnt]); err != nil {
			return 0, err
		}
	}
	return int(e.Len), nil
}

// findVersion returns the (n+1)-th newest valid entry for k. Tombstones
// occupy a position but are never returned.
func (s *Store) findVersion(k [KeySize]byte, n int) (ATE, Address, error) {
	seen := 0
	w := s.walk()
	for {
		e, st, at, err := w.next()
		if err != nil {
			return ATE{}, 0, err
		}
		if st == ateValid && e.Key == k {
			if seen == n {
				if e.Len == 0 {
					return ATE{}, 0, ErrNotFound
				}
				return e, at, nil
			}
			seen++
		}
		if w.done() {
			return ATE{}, 0, ErrNotFound
		}
	}
}
