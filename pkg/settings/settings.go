// Package settings stores typed values in an NVS partition.
//
// Values use the firmware encoding: integers and floats are NUL-terminated
// decimal strings, booleans are "1" or "0", and strings carry a trailing
// NUL. Blobs are snappy-compressed bytes.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-nvs/pkg/nvs"
)

// ErrMalformed is returned when a stored value does not parse as the
// requested type.
var ErrMalformed = errors.New("malformed setting")

// Backend is the key/value surface settings are stored in. *nvs.Store
// implements it, and so does a storage.Manager partition view.
type Backend interface {
	Write(key string, data []byte) (int, error)
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// Settings reads and writes typed values.
type Settings struct {
	b Backend
}

// New returns settings stored in b.
func New(b Backend) *Settings {
	return &Settings{b: b}
}

// IndexedKey names element i of a keyed array, e.g. "timer_node_3".
func IndexedKey(prefix string, i int) (string, error) {
	key := prefix + strconv.Itoa(i)
	if err := nvs.ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// Delete removes key.
func (s *Settings) Delete(key string) error {
	return s.b.Delete(key)
}

// Has reports whether key holds a value.
func (s *Settings) Has(key string) (bool, error) {
	_, err := s.b.Get(key)
	if nvs.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *Settings) setText(key, text string) error {
	_, err := s.b.Write(key, append([]byte(text), 0))
	return err
}

func (s *Settings) text(key string) (string, error) {
	v, err := s.b.Get(key)
	if err != nil {
		return "", err
	}
	if i := strings.IndexByte(string(v), 0); i >= 0 {
		v = v[:i]
	}
	return string(v), nil
}

// SetString stores a string.
func (s *Settings) SetString(key, value string) error {
	if strings.IndexByte(value, 0) >= 0 {
		return fmt.Errorf("setting %q: string contains NUL: %w", key, nvs.ErrInvalidArgument)
	}
	return s.setText(key, value)
}

// String returns the string stored under key.
func (s *Settings) String(key string) (string, error) {
	return s.text(key)
}

// SetBool stores "1" or "0".
func (s *Settings) SetBool(key string, value bool) error {
	if value {
		return s.setText(key, "1")
	}
	return s.setText(key, "0")
}

// Bool returns true only when key holds "1".
func (s *Settings) Bool(key string) (bool, error) {
	t, err := s.text(key)
	if err != nil {
		return false, err
	}
	return t == "1", nil
}

// SetUint8 stores an 8-bit unsigned integer.
func (s *Settings) SetUint8(key string, value uint8) error {
	return s.setText(key, strconv.FormatUint(uint64(value), 10))
}

// Uint8 returns the 8-bit unsigned integer stored under key.
func (s *Settings) Uint8(key string) (uint8, error) {
	v, err := s.parseUint(key, 8)
	return uint8(v), err
}

// SetUint32 stores a 32-bit unsigned integer.
func (s *Settings) SetUint32(key string, value uint32) error {
	return s.setText(key, strconv.FormatUint(uint64(value), 10))
}

// Uint32 returns the 32-bit unsigned integer stored under key.
func (s *Settings) Uint32(key string) (uint32, error) {
	v, err := s.parseUint(key, 32)
	return uint32(v), err
}

// SetUint64 stores a 64-bit unsigned integer.
func (s *Settings) SetUint64(key string, value uint64) error {
	return s.setText(key, strconv.FormatUint(value, 10))
}

// Uint64 returns the 64-bit unsigned integer stored under key.
func (s *Settings) Uint64(key string) (uint64, error) {
	return s.parseUint(key, 64)
}

// SetInt32 stores a 32-bit signed integer.
func (s *Settings) SetInt32(key string, value int32) error {
	return s.setText(key, strconv.FormatInt(int64(value), 10))
}

// Int32 returns the 32-bit signed integer stored under key.
func (s *Settings) Int32(key string) (int32, error) {
	t, err := s.text(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(t), 10, 32)
	if err != nil {
		return 0, malformed(key, t)
	}
	return int32(v), nil
}

// SetFloat32 stores a float with six decimals.
func (s *Settings) SetFloat32(key string, value float32) error {
	return s.setText(key, strconv.FormatFloat(float64(value), 'f', 6, 32))
}

// Float32 returns the float stored under key.
func (s *Settings) Float32(key string) (float32, error) {
	t, err := s.text(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(t), 32)
	if err != nil {
		return 0, malformed(key, t)
	}
	return float32(v), nil
}

func (s *Settings) parseUint(key string, bits int) (uint64, error) {
	t, err := s.text(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(t), 10, bits)
	if err != nil {
		return 0, malformed(key, t)
	}
	return v, nil
}

func malformed(key, text string) error {
	return fmt.Errorf("setting %q = %q: %w", key, text, ErrMalformed)
}

// SetBlob stores data snappy-compressed.
func (s *Settings) SetBlob(key string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("setting %q: empty blob: %w", key, nvs.ErrInvalidArgument)
	}
	_, err := s.b.Write(key, snappy.Encode(nil, data))
	return err
}

// Blob returns the decompressed blob stored under key.
func (s *Settings) Blob(key string) ([]byte, error) {
	v, err := s.b.Get(key)
	if err != nil {
		return nil, err
	}
	data, err := snappy.Decode(nil, v)
	if err != nil {
		return nil, fmt.Errorf("setting %q: %w: %v", key, ErrMalformed, err)
	}
	return data, nil
}
