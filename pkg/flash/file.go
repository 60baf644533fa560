package flash

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/exp/mmap"
)

// File is a flash device stored in an image file. Reads go through a
// read-only memory map, programs and erases through the file descriptor.
// Programs keep NOR semantics, so an image behaves like the chip it was
// dumped from.
type File struct {
	mu   sync.Mutex
	geo  Geometry
	path string
	f    *os.File
	r    *mmap.ReaderAt
}

// OpenFile opens the image at path, creating an erased one when it does not
// exist. An existing image must match the geometry size.
func OpenFile(path string, g Geometry) (*File, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		f, err = createImage(path, g)
	}
	if err != nil {
		return nil, fmt.Errorf("flash: open image %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flash: stat image %s: %w", path, err)
	}
	if info.Size() != int64(g.Size) {
		f.Close()
		return nil, fmt.Errorf("flash: image %s is %d bytes, geometry says %d", path, info.Size(), g.Size)
	}

	r, err := mmap.Open(path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flash: map image %s: %w", path, err)
	}

	return &File{geo: g, path: path, f: f, r: r}, nil
}

func createImage(path string, g Geometry) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	block := bytes.Repeat([]byte{g.EraseValue}, int(g.EraseBlockSize))
	for off := uint32(0); off < g.Size; off += g.EraseBlockSize {
		if _, err := f.WriteAt(block, int64(off)); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Geometry returns the device geometry.
func (d *File) Geometry() Geometry {
	return d.geo
}

// Path returns the image file path.
func (d *File) Path() string {
	return d.path
}

// Read copies image contents at off into p.
func (d *File) Read(off uint32, p []byte) error {
	if err := d.geo.check(off, uint32(len(p)), 1); err != nil {
		return err
	}
	_, err := d.r.ReadAt(p, int64(off))
	return err
}

// Write programs whole write blocks at off.
func (d *File) Write(off uint32, p []byte) error {
	if err := d.geo.check(off, uint32(len(p)), d.geo.WriteBlockSize); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cur := make([]byte, len(p))
	if _, err := d.r.ReadAt(cur, int64(off)); err != nil {
		return err
	}
	program(cur, p, d.geo.EraseValue)
	_, err := d.f.WriteAt(cur, int64(off))
	return err
}

// Erase resets whole erase blocks to the erase value.
func (d *File) Erase(off, size uint32) error {
	if err := d.geo.check(off, size, d.geo.EraseBlockSize); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	block := bytes.Repeat([]byte{d.geo.EraseValue}, int(d.geo.EraseBlockSize))
	for o := off; o < off+size; o += d.geo.EraseBlockSize {
		if _, err := d.f.WriteAt(block, int64(o)); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes the image to stable storage.
func (d *File) Sync() error {
	return d.f.Sync()
}

// Close syncs and releases the image.
func (d *File) Close() error {
	serr := d.f.Sync()
	merr := d.r.Close()
	ferr := d.f.Close()
	return errors.Join(serr, merr, ferr)
}
