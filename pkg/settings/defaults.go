package settings

import (
	"errors"

	"github.com/dd0wney/cluso-nvs/pkg/nvs"
)

// loadOr reads key with get. A missing or malformed value is replaced by
// def, which is written back so the next boot finds it.
func loadOr[T any](key string, def T, get func(string) (T, error), set func(string, T) error) (T, error) {
	v, err := get(key)
	if err == nil {
		return v, nil
	}
	if !nvs.IsNotFound(err) && !errors.Is(err, ErrMalformed) {
		return def, err
	}
	if err := set(key, def); err != nil {
		return def, err
	}
	return def, nil
}

// StringOr returns the string under key, storing def when there is none.
func (s *Settings) StringOr(key, def string) (string, error) {
	return loadOr(key, def, s.String, s.SetString)
}

// BoolOr returns the bool under key, storing def when there is none.
func (s *Settings) BoolOr(key string, def bool) (bool, error) {
	return loadOr(key, def, s.Bool, s.SetBool)
}

// Uint8Or returns the uint8 under key, storing def when there is none.
func (s *Settings) Uint8Or(key string, def uint8) (uint8, error) {
	return loadOr(key, def, s.Uint8, s.SetUint8)
}

// Uint32Or returns the uint32 under key, storing def when there is none.
func (s *Settings) Uint32Or(key string, def uint32) (uint32, error) {
	return loadOr(key, def, s.Uint32, s.SetUint32)
}

// Uint64Or returns the uint64 under key, storing def when there is none.
func (s *Settings) Uint64Or(key string, def uint64) (uint64, error) {
	return loadOr(key, def, s.Uint64, s.SetUint64)
}

// Int32Or returns the int32 under key, storing def when there is none.
func (s *Settings) Int32Or(key string, def int32) (int32, error) {
	return loadOr(key, def, s.Int32, s.SetInt32)
}

// Float32Or returns the float under key, storing def when there is none.
func (s *Settings) Float32Or(key string, def float32) (float32, error) {
	return loadOr(key, def, s.Float32, s.SetFloat32)
}

// Uint32Array loads n elements stored under prefix0..prefix(n-1). Missing
// elements take the matching entry of defs, or zero, and are written back.
func (s *Settings) Uint32Array(prefix string, n int, defs []uint32) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		key, err := IndexedKey(prefix, i)
		if err != nil {
			return nil, err
		}
		var def uint32
		if i < len(defs) {
			def = defs[i]
		}
		if out[i], err = s.Uint32Or(key, def); err != nil {
			return nil, err
		}
	}
	return out, nil
}
