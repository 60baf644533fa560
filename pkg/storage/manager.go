package storage

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dd0wney/cluso-nvs/pkg/logging"
	"github.com/dd0wney/cluso-nvs/pkg/metrics"
	"github.com/dd0wney/cluso-nvs/pkg/nvs"
)

// Manager owns the NVS partitions of one flash device.
type Manager struct {
	dev    nvs.Flash
	opts   Options
	stores [2]*nvs.Store

	cache *WriteBackCache
	// cacheMu orders cache updates against their write-back.
	cacheMu sync.Mutex
	syncCh  chan struct{}

	mu     sync.RWMutex
	closed bool

	log     logging.Logger
	metrics *metrics.Registry
}

// Open mounts both partitions of dev. A partition that fails to mount is
// erased and mounted again when opts.ReformatOnFailure is set.
func Open(dev nvs.Flash, opts Options) (*Manager, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	m := &Manager{
		dev:     dev,
		opts:    opts,
		syncCh:  make(chan struct{}, 1),
		log:     log.With(logging.Component("storage")),
		metrics: opts.Metrics,
	}
	if opts.CacheEntries > 0 {
		m.cache = NewWriteBackCache(opts.CacheEntries, opts.CacheValueSize)
	}

	for _, p := range Partitions {
		s, err := m.mount(p)
		if err != nil {
			return nil, err
		}
		m.stores[p] = s
	}
	return m, nil
}

func (m *Manager) mount(p Partition) (*nvs.Store, error) {
	var storeOpts []nvs.Option
	if m.opts.Logger != nil {
		storeOpts = append(storeOpts, nvs.WithLogger(m.opts.Logger))
	}
	if m.metrics != nil {
		storeOpts = append(storeOpts, nvs.WithMetrics(m.metrics, p.String()))
	}
	s := nvs.New(m.dev, m.opts.NVSConfig(p), storeOpts...)

	start := time.Now()
	err := s.Mount()
	if m.metrics != nil {
		m.metrics.RecordMount(p.String(), err)
	}
	if err == nil {
		m.log.Info("partition mounted", logging.Partition(p.String()), logging.Latency(time.Since(start)))
		return s, nil
	}
	if !m.opts.ReformatOnFailure {
		return nil, fmt.Errorf("mount %s partition: %w", p, err)
	}

	m.log.Warn("partition mount failed, erasing", logging.Partition(p.String()), logging.Error(err))
	if m.metrics != nil {
		m.metrics.RecordReformat(p.String())
	}
	if ferr := s.Format(); ferr != nil {
		return nil, fmt.Errorf("reformat %s partition after %v: %w", p, err, ferr)
	}
	return s, nil
}

// Options returns the options the manager was opened with.
func (m *Manager) Options() Options {
	return m.opts
}

// Store returns the engine of partition p.
func (m *Manager) Store(p Partition) (*nvs.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	if !p.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPartition, int(p))
	}
	return m.stores[p], nil
}

// Cache returns the user partition cache, nil when caching is disabled.
func (m *Manager) Cache() *WriteBackCache {
	return m.cache
}

// Write stores data under key directly on flash. A cached copy of the key
// is replaced so cached reads stay consistent.
func (m *Manager) Write(p Partition, key string, data []byte) (int, error) {
	s, err := m.Store(p)
	if err != nil {
		return 0, err
	}
	if p != User || m.cache == nil {
		return s.Write(key, data)
	}

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.cache.Delete(key)
	return s.Write(key, data)
}

// Read copies the live value of key into buf and returns its length. A
// dirty cache entry is newer than flash and wins.
func (m *Manager) Read(p Partition, key string, buf []byte) (int, error) {
	if p == User {
		if v, ok := m.dirtyValue(key); ok {
			copy(buf, v)
			return len(v), nil
		}
	}
	s, err := m.Store(p)
	if err != nil {
		return 0, err
	}
	return s.Read(key, buf)
}

// Get returns the live value of key.
func (m *Manager) Get(p Partition, key string) ([]byte, error) {
	if p == User {
		if v, ok := m.dirtyValue(key); ok {
			return v, nil
		}
	}
	s, err := m.Store(p)
	if err != nil {
		return nil, err
	}
	return s.Get(key)
}

// Delete removes key from flash and from the cache.
func (m *Manager) Delete(p Partition, key string) error {
	_, err := m.Write(p, key, nil)
	return err
}

// Clear erases partition p.
func (m *Manager) Clear(p Partition) error {
	s, err := m.Store(p)
	if err != nil {
		return err
	}
	if p == User && m.cache != nil {
		m.cacheMu.Lock()
		defer m.cacheMu.Unlock()
		m.cache.Clear()
		m.setDirtyGauge()
	}
	return s.Clear()
}

// Format erases partition p whatever its state and mounts it again. Cached
// values of the user partition are dropped.
func (m *Manager) Format(p Partition) error {
	s, err := m.Store(p)
	if err != nil {
		return err
	}
	if p == User && m.cache != nil {
		m.cacheMu.Lock()
		defer m.cacheMu.Unlock()
		m.cache.Clear()
		m.setDirtyGauge()
	}
	return s.Format()
}

// Dump writes every live key of partition p with its value, one per line,
// newest first. Values are printed as text when they are printable and as
// hex otherwise.
func (m *Manager) Dump(p Partition, w io.Writer) error {
	if p == User {
		if err := m.Flush(User); err != nil {
			return err
		}
	}
	s, err := m.Store(p)
	if err != nil {
		return err
	}
	keys, err := s.Keys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		_, err := fmt.Fprintln(w, "No entry found")
		return err
	}
	for _, k := range keys {
		v, err := s.Get(k)
		if nvs.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "Key: %s, Value: %s\n", k, FormatValue(v)); err != nil {
			return err
		}
	}
	return nil
}

// FormatValue renders a stored value for display. Firmware strings carry a
// trailing NUL, which is dropped.
func FormatValue(v []byte) string {
	text := v
	if n := len(text); n > 0 && text[n-1] == 0 {
		text = text[:n-1]
	}
	for _, b := range text {
		if b < 0x20 || b > 0x7e {
			return fmt.Sprintf("%x", v)
		}
	}
	return string(text)
}

// Close writes dirty cache entries back and stops accepting operations.
func (m *Manager) Close() error {
	err := m.FlushAll()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return err
}

func (m *Manager) dirtyValue(key string) ([]byte, bool) {
	if m.cache == nil {
		return nil, false
	}
	if e, ok := m.cache.Peek(key); ok && e.Dirty {
		return e.Value, true
	}
	return nil, false
}

func (m *Manager) setDirtyGauge() {
	if m.metrics != nil && m.cache != nil {
		m.metrics.SetCacheDirty(User.String(), m.cache.DirtyCount())
	}
}
