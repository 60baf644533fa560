package nvs

// EntryInfo describes the entry an iterator is positioned on.
type EntryInfo struct {
	Key  string
	Len  int
	Addr Address // where the entry's ATE is stored
}

// Iterator visits each key with a live value once, newest write first.
// Writes made while iterating may or may not be observed.
type Iterator struct {
	s        *Store
	w        *walker
	seen     map[[KeySize]byte]struct{}
	cur      EntryInfo
	valid    bool
	finished bool
}

// Iterator opens an iterator positioned before the first key. Call Next to
// advance onto it.
func (s *Store) Iterator() (*Iterator, error) {
	s.rlock()
	defer s.runlock()

	if !s.mounted {
		return nil, NewError("iterate").Cause(ErrNotMounted).Err()
	}
	return &Iterator{
		s:    s,
		w:    s.walk(),
		seen: make(map[[KeySize]byte]struct{}),
	}, nil
}

// Next advances to the next live key. It returns ErrNotFound once every
// key has been visited.
func (it *Iterator) Next() error {
	if it.finished {
		return ErrNotFound
	}
	it.s.rlock()
	defer it.s.runlock()

	for {
		e, st, at, err := it.w.next()
		if err != nil {
			it.finish()
			return err
		}
		if st == ateValid {
			if _, dup := it.seen[e.Key]; !dup {
				// A tombstone hides every older version of its key.
				it.seen[e.Key] = struct{}{}
				if e.Len > 0 {
					it.cur = EntryInfo{Key: e.KeyString(), Len: int(e.Len), Addr: at}
					it.valid = true
					return nil
				}
			}
		}
		if it.w.done() {
			it.finish()
			return ErrNotFound
		}
	}
}

// Info returns the current entry.
func (it *Iterator) Info() (EntryInfo, error) {
	if !it.valid || it.finished {
		return EntryInfo{}, ErrNotFound
	}
	return it.cur, nil
}

// Close releases the iterator. Further calls to Next report ErrNotFound.
func (it *Iterator) Close() {
	it.finish()
	it.seen = nil
}

func (it *Iterator) finish() {
	it.finished = true
	it.valid = false
}

// Keys returns every key with a live value.
func (s *Store) Keys() ([]string, error) {
	it, err := s.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var keys []string
	for {
		err := it.Next()
		if IsNotFound(err) {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		info, err := it.Info()
		if err != nil {
			return nil, err
		}
		keys = append(keys, info.Key)
	}
}
