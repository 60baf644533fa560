package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dd0wney/cluso-nvs/pkg/logging"
	"github.com/dd0wney/cluso-nvs/pkg/nvs"
)

// WriteCached stores data under key in the user partition cache and
// returns the number of bytes accepted, 0 when the cache already holds
// that value.
// The value reaches flash on the next sync. Values the cache cannot hold,
// deletes, and every write to the factory partition go straight to flash.
func (m *Manager) WriteCached(p Partition, key string, data []byte) (int, error) {
	if p != User || m.cache == nil || !m.cache.Fits(len(data)) {
		return m.Write(p, key, data)
	}
	s, err := m.Store(p)
	if err != nil {
		return 0, err
	}
	if err := nvs.ValidateKey(key); err != nil {
		return 0, nvs.NewError("write").Key(key).Cause(err).Err()
	}

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if m.cache.Equal(key, data) {
		return 0, nil
	}
	if v, ok := m.cache.Victim(key); ok && v.Dirty {
		if _, err := s.Write(v.Key, v.Value); err != nil {
			return 0, err
		}
		m.cache.MarkClean(v.Key, v.Value)
		m.recordFlush(1)
	}
	if !m.cache.Put(key, data, true) {
		return m.writeThrough(s, key, data)
	}
	m.setDirtyGauge()
	return len(data), nil
}

func (m *Manager) writeThrough(s *nvs.Store, key string, data []byte) (int, error) {
	m.cache.Delete(key)
	return s.Write(key, data)
}

// ReadCached copies the value of key into buf and returns its length. User
// partition hits are served from the cache; misses read flash and cache
// the value when it is small enough.
func (m *Manager) ReadCached(p Partition, key string, buf []byte) (int, error) {
	if p != User || m.cache == nil {
		return m.Read(p, key, buf)
	}
	s, err := m.Store(p)
	if err != nil {
		return 0, err
	}

	if v, ok := m.cache.Get(key); ok {
		m.recordLookup(true)
		copy(buf, v)
		return len(v), nil
	}
	m.recordLookup(false)

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	// A cached write may have landed while the lock was free.
	if e, ok := m.cache.Peek(key); ok {
		copy(buf, e.Value)
		return len(e.Value), nil
	}
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	if m.cache.Fits(len(v)) {
		// A full cache of dirty entries simply does not take the value.
		m.cache.Put(key, v, false)
	}
	copy(buf, v)
	return len(v), nil
}

// GetCached returns the value of key like ReadCached, allocating the
// buffer.
func (m *Manager) GetCached(p Partition, key string) ([]byte, error) {
	if p != User || m.cache == nil {
		return m.Get(p, key)
	}
	buf := make([]byte, m.opts.CacheValueSize)
	n, err := m.ReadCached(p, key, buf)
	if err != nil {
		return nil, err
	}
	if n > len(buf) {
		return m.Get(p, key)
	}
	return buf[:n], nil
}

// Flush writes the dirty cache entries of partition p to flash. Only the
// user partition is cached, so flushing the factory partition does
// nothing.
func (m *Manager) Flush(p Partition) error {
	if !p.valid() {
		return ErrInvalidPartition
	}
	if p != User || m.cache == nil {
		return nil
	}
	s, err := m.Store(p)
	if err != nil {
		return err
	}

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	var errs []error
	written := 0
	for _, e := range m.cache.Dirty() {
		if _, err := s.Write(e.Key, e.Value); err != nil {
			m.log.Error("cache write-back failed", logging.Key(e.Key), logging.Error(err))
			errs = append(errs, err)
			continue
		}
		m.cache.MarkClean(e.Key, e.Value)
		written++
	}
	m.recordFlush(written)
	if written > 0 {
		m.log.Debug("cache flushed", logging.Count(written))
	}
	return errors.Join(errs...)
}

// FlushAll flushes every partition.
func (m *Manager) FlushAll() error {
	var errs []error
	for _, p := range Partitions {
		if err := m.Flush(p); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TriggerSync wakes Run for an immediate flush. It never blocks.
func (m *Manager) TriggerSync() {
	select {
	case m.syncCh <- struct{}{}:
	default:
	}
}

// Run syncs the cache to flash every SyncInterval and whenever TriggerSync
// is called, until ctx is done. It flushes once more before returning and
// reports that flush's error.
func (m *Manager) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if m.opts.SyncInterval > 0 {
		ticker := time.NewTicker(m.opts.SyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-m.syncCh:
			m.sync("trigger")
		case <-tick:
			m.sync("periodic")
		case <-ctx.Done():
			return m.FlushAll()
		}
	}
}

func (m *Manager) sync(reason string) {
	if m.cache == nil || m.cache.DirtyCount() == 0 {
		return
	}
	if err := m.FlushAll(); err != nil {
		m.log.Error("cache sync failed", logging.String("reason", reason), logging.Error(err))
	}
}

func (m *Manager) recordLookup(hit bool) {
	if m.metrics != nil {
		m.metrics.RecordCacheLookup(User.String(), hit)
	}
}

func (m *Manager) recordFlush(n int) {
	if m.metrics != nil {
		m.metrics.RecordCacheFlush(User.String(), n, m.cache.DirtyCount())
	}
}
