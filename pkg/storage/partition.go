// Package storage carves the factory and user NVS partitions out of one
// flash device, mounts them, and fronts the user partition with a
// write-back cache that a background loop syncs to flash.
package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/dd0wney/cluso-nvs/pkg/logging"
	"github.com/dd0wney/cluso-nvs/pkg/metrics"
	"github.com/dd0wney/cluso-nvs/pkg/nvs"
)

// Partition selects one of the NVS partitions.
type Partition int

const (
	Factory Partition = iota
	User
)

// Partitions lists every partition in mount order.
var Partitions = []Partition{Factory, User}

func (p Partition) String() string {
	switch p {
	case Factory:
		return "factory"
	case User:
		return "user"
	default:
		return fmt.Sprintf("partition(%d)", int(p))
	}
}

// ParsePartition accepts the names String returns.
func ParsePartition(s string) (Partition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "factory", "fact":
		return Factory, nil
	case "user":
		return User, nil
	}
	return 0, fmt.Errorf("%w: unknown partition %q", ErrInvalidPartition, s)
}

func (p Partition) valid() bool {
	return p == Factory || p == User
}

// Layout places a partition on the device.
type Layout struct {
	Offset uint32
	Size   uint32
}

// Options configures a Manager.
type Options struct {
	SectorSize     uint32
	WriteBlockSize uint32
	EraseValue     byte

	Factory Layout
	User    Layout

	// CacheEntries and CacheValueSize bound the user partition cache.
	// Values longer than CacheValueSize bypass it. Zero entries disables
	// the cache.
	CacheEntries   int
	CacheValueSize int
	// SyncInterval is how often Run writes dirty entries back. Zero leaves
	// only TriggerSync and Flush.
	SyncInterval time.Duration

	// ReformatOnFailure erases a partition that fails to mount and mounts
	// it again.
	ReformatOnFailure bool

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// DefaultOptions is the firmware layout: 4 KiB sectors, a 32 KiB factory
// partition followed by a 32 KiB user partition, and a 32 entry cache of
// 128 byte values synced every five seconds.
func DefaultOptions() Options {
	return Options{
		SectorSize:        4096,
		WriteBlockSize:    4,
		EraseValue:        0xff,
		Factory:           Layout{Offset: 0, Size: 32 * 1024},
		User:              Layout{Offset: 32 * 1024, Size: 32 * 1024},
		CacheEntries:      32,
		CacheValueSize:    128,
		SyncInterval:      5 * time.Second,
		ReformatOnFailure: true,
	}
}

// DeviceSize is the smallest device holding both partitions.
func (o Options) DeviceSize() uint32 {
	return max(o.Factory.Offset+o.Factory.Size, o.User.Offset+o.User.Size)
}

func (o Options) layout(p Partition) Layout {
	if p == Factory {
		return o.Factory
	}
	return o.User
}

// NVSConfig returns the engine geometry of partition p.
func (o Options) NVSConfig(p Partition) nvs.Config {
	l := o.layout(p)
	var count uint32
	if o.SectorSize > 0 {
		count = l.Size / o.SectorSize
	}
	return nvs.Config{
		Offset:         l.Offset,
		SectorSize:     o.SectorSize,
		SectorCount:    count,
		WriteBlockSize: o.WriteBlockSize,
		EraseValue:     o.EraseValue,
	}
}

// Validate checks that both partitions are usable and do not overlap.
func (o Options) Validate() error {
	for _, p := range Partitions {
		l := o.layout(p)
		if o.SectorSize == 0 || l.Size%o.SectorSize != 0 || l.Offset%o.SectorSize != 0 {
			return fmt.Errorf("%w: %s partition [%#x, +%#x) is not sector aligned",
				ErrInvalidLayout, p, l.Offset, l.Size)
		}
		if err := o.NVSConfig(p).Validate(); err != nil {
			return fmt.Errorf("%w: %s partition: %v", ErrInvalidLayout, p, err)
		}
	}
	f, u := o.Factory, o.User
	if f.Offset < u.Offset+u.Size && u.Offset < f.Offset+f.Size {
		return fmt.Errorf("%w: factory and user partitions overlap", ErrInvalidLayout)
	}
	if o.CacheEntries < 0 || o.CacheValueSize < 0 {
		return fmt.Errorf("%w: negative cache bounds", ErrInvalidLayout)
	}
	return nil
}
