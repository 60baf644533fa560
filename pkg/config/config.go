// Package config loads the YAML description of a flash device and its NVS
// partitions.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-nvs/pkg/flash"
	"github.com/dd0wney/cluso-nvs/pkg/logging"
	"github.com/dd0wney/cluso-nvs/pkg/storage"
)

// Config is the on-disk configuration.
type Config struct {
	Flash      FlashConfig      `yaml:"flash"`
	Partitions PartitionsConfig `yaml:"partitions"`
	Cache      CacheConfig      `yaml:"cache"`
	Mount      MountConfig      `yaml:"mount"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// FlashConfig describes the device.
type FlashConfig struct {
	// Image is the flash image file used by the tools.
	Image string `yaml:"image"`
	// Size of the device; zero sizes it to the end of the last partition.
	Size           uint32 `yaml:"size"`
	SectorSize     uint32 `yaml:"sector_size" validate:"required,min=64,max=65535"`
	WriteBlockSize uint32 `yaml:"write_block_size" validate:"required,oneof=1 2 4 8 16 32"`
	EraseValue     uint8  `yaml:"erase_value" validate:"oneof=0 255"`
}

// PartitionConfig places one partition.
type PartitionConfig struct {
	Offset uint32 `yaml:"offset"`
	Size   uint32 `yaml:"size" validate:"required"`
}

type PartitionsConfig struct {
	Factory PartitionConfig `yaml:"factory"`
	User    PartitionConfig `yaml:"user"`
}

// CacheConfig bounds the user partition write-back cache.
type CacheConfig struct {
	Entries      int           `yaml:"entries" validate:"min=0,max=1024"`
	ValueSize    int           `yaml:"value_size" validate:"min=0,max=65535"`
	SyncInterval time.Duration `yaml:"sync_interval" validate:"min=0"`
}

type MountConfig struct {
	ReformatOnFailure bool `yaml:"reformat_on_failure"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
}

// Default returns the firmware layout.
func Default() Config {
	opts := storage.DefaultOptions()
	return Config{
		Flash: FlashConfig{
			Image:          "flash.img",
			SectorSize:     opts.SectorSize,
			WriteBlockSize: opts.WriteBlockSize,
			EraseValue:     opts.EraseValue,
		},
		Partitions: PartitionsConfig{
			Factory: PartitionConfig(opts.Factory),
			User:    PartitionConfig(opts.User),
		},
		Cache: CacheConfig{
			Entries:      opts.CacheEntries,
			ValueSize:    opts.CacheValueSize,
			SyncInterval: opts.SyncInterval,
		},
		Mount:   MountConfig{ReformatOnFailure: opts.ReformatOnFailure},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges, then the layout as a whole.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	opts := c.StorageOptions()
	ck := &checker{}
	ck.check("Partitions", opts.Validate())
	ck.when(c.Flash.Size > 0, func(ck *checker) {
		if c.Flash.Size%c.Flash.SectorSize != 0 {
			ck.check("Flash.Size", fmt.Errorf("%d is not a multiple of the sector size %d", c.Flash.Size, c.Flash.SectorSize))
		}
		if end := opts.DeviceSize(); end > c.Flash.Size {
			ck.check("Flash.Size", fmt.Errorf("%w: partitions end at %#x past the device size %#x",
				storage.ErrInvalidLayout, end, c.Flash.Size))
		}
	})
	ck.when(c.Cache.Entries > 0, func(ck *checker) {
		if c.Cache.ValueSize == 0 {
			ck.check("Cache.ValueSize", errors.New("must be set when the cache is enabled"))
		}
	})
	return ck.err()
}

// StorageOptions converts the configuration to storage manager options.
// Logger and metrics are left for the caller.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		SectorSize:        c.Flash.SectorSize,
		WriteBlockSize:    c.Flash.WriteBlockSize,
		EraseValue:        c.Flash.EraseValue,
		Factory:           storage.Layout(c.Partitions.Factory),
		User:              storage.Layout(c.Partitions.User),
		CacheEntries:      c.Cache.Entries,
		CacheValueSize:    c.Cache.ValueSize,
		SyncInterval:      c.Cache.SyncInterval,
		ReformatOnFailure: c.Mount.ReformatOnFailure,
	}
}

// DeviceSize is the configured device size, or the end of the last
// partition when none is set.
func (c Config) DeviceSize() uint32 {
	if c.Flash.Size > 0 {
		return c.Flash.Size
	}
	return c.StorageOptions().DeviceSize()
}

// Geometry returns the flash geometry of the device.
func (c Config) Geometry() flash.Geometry {
	return flash.Geometry{
		Size:           c.DeviceSize(),
		EraseBlockSize: c.Flash.SectorSize,
		WriteBlockSize: c.Flash.WriteBlockSize,
		EraseValue:     c.Flash.EraseValue,
	}
}

// Logger returns a JSON logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) logging.Logger {
	return logging.NewJSONLogger(w, logging.ParseLevel(c.Logging.Level))
}
