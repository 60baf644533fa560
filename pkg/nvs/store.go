package nvs

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dd0wney/cluso-nvs/pkg/logging"
	"github.com/dd0wney/cluso-nvs/pkg/metrics"
)

// Flash is the raw device an NVS partition lives on. Offsets are absolute
// byte offsets on the device. Write receives whole write blocks only.
type Flash interface {
	Read(off uint32, p []byte) error
	Write(off uint32, p []byte) error
	Erase(off, size uint32) error
}

// WriteProtector is implemented by devices that must be unlocked around
// every program or erase.
type WriteProtector interface {
	SetWriteProtection(enabled bool) error
}

// Config describes the flash region managed by a Store.
type Config struct {
	Offset         uint32 // first byte of the region on the device
	SectorSize     uint32 // erase unit, and the unit of rotation
	SectorCount    uint32
	WriteBlockSize uint32 // program granularity, a power of two up to 32
	EraseValue     byte
}

// ATESize is the space one allocation table entry occupies on flash.
func (c Config) ATESize() uint32 {
	return alignUp(ATERawSize, c.WriteBlockSize)
}

// Size is the byte length of the region.
func (c Config) Size() uint32 {
	return c.SectorSize * c.SectorCount
}

// MaxValueSize is the largest value a single write accepts.
func (c Config) MaxValueSize() int {
	return int(c.SectorSize) - 3*int(c.ATESize())
}

// Validate checks the geometry before any flash access happens.
func (c Config) Validate() error {
	wbs := c.WriteBlockSize
	if wbs == 0 || wbs > blockSize || wbs&(wbs-1) != 0 {
		return fmt.Errorf("%w: unsupported write block size %d", ErrInvalidConfig, wbs)
	}
	if c.SectorSize == 0 {
		return fmt.Errorf("%w: sector size is zero", ErrInvalidConfig)
	}
	if c.SectorSize > math.MaxUint16 {
		return fmt.Errorf("%w: sector size %d exceeds %d", ErrInvalidConfig, c.SectorSize, math.MaxUint16)
	}
	if c.SectorSize%wbs != 0 {
		return fmt.Errorf("%w: sector size %d is not a multiple of write block size %d", ErrInvalidConfig, c.SectorSize, wbs)
	}
	if c.SectorSize < 4*c.ATESize() {
		return fmt.Errorf("%w: sector size %d holds fewer than 4 entries", ErrInvalidConfig, c.SectorSize)
	}
	if c.SectorCount < 2 {
		return fmt.Errorf("%w: sector count %d, need at least 2", ErrInvalidConfig, c.SectorCount)
	}
	if c.SectorCount > math.MaxUint16 {
		return fmt.Errorf("%w: sector count %d exceeds %d", ErrInvalidConfig, c.SectorCount, math.MaxUint16)
	}
	if uint64(c.Offset)+uint64(c.SectorSize)*uint64(c.SectorCount) > math.MaxUint32 {
		return fmt.Errorf("%w: region does not fit a 32-bit device", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithMetrics records operation metrics under the given partition label.
func WithMetrics(r *metrics.Registry, partition string) Option {
	return func(s *Store) {
		s.metrics = r
		s.partition = partition
	}
}

// WithLocker replaces the internal read/write lock with an external one.
// Every operation, reads included, then runs exclusively.
func WithLocker(l sync.Locker) Option {
	return func(s *Store) {
		s.locker = l
	}
}

// Store is a mounted NVS partition: a ring of sectors holding a backward
// growing allocation table and a forward growing data area.
type Store struct {
	dev     Flash
	cfg     Config
	ateSize uint32

	// Write cursor. ateWra is the next free ATE slot, dataWra the next free
	// data byte, both in the active sector.
	ateWra  Address
	dataWra Address
	mounted bool

	mu     sync.RWMutex
	locker sync.Locker

	log       logging.Logger
	metrics   *metrics.Registry
	partition string
}

// New creates an unmounted store over dev. Call Mount before use.
func New(dev Flash, cfg Config, opts ...Option) *Store {
	s := &Store{
		dev:       dev,
		cfg:       cfg,
		ateSize:   cfg.ATESize(),
		log:       logging.NewNopLogger(),
		partition: "default",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logging.Component("nvs"), logging.Partition(s.partition))
	return s
}

// Config returns the geometry the store was created with.
func (s *Store) Config() Config {
	return s.cfg
}

// Mounted reports whether the last Mount succeeded.
func (s *Store) Mounted() bool {
	s.rlock()
	defer s.runlock()
	return s.mounted
}

func (s *Store) lock() {
	if s.locker != nil {
		s.locker.Lock()
		return
	}
	s.mu.Lock()
}

func (s *Store) unlock() {
	if s.locker != nil {
		s.locker.Unlock()
		return
	}
	s.mu.Unlock()
}

func (s *Store) rlock() {
	if s.locker != nil {
		s.locker.Lock()
		return
	}
	s.mu.RLock()
}

func (s *Store) runlock() {
	if s.locker != nil {
		s.locker.Unlock()
		return
	}
	s.mu.RUnlock()
}

func (s *Store) closeSlot() uint32 {
	return s.cfg.SectorSize - s.ateSize
}

// observe records the outcome of a public operation.
func (s *Store) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case IsNotFound(err):
		status = "not_found"
	default:
		status = "error"
	}
	s.metrics.RecordNVSOperation(s.partition, op, status, time.Since(start))
}
