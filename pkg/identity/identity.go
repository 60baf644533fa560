// Package identity keeps the device identity record in the factory
// partition. The record is written once at provisioning and survives
// user partition resets.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-nvs/pkg/nvs"
	"github.com/dd0wney/cluso-nvs/pkg/settings"
)

// Factory partition keys.
const (
	KeyUUID          = "dev_uuid"
	KeySerial        = "dev_info_serial"
	KeyHardware      = "dev_info_hw_ver"
	KeyProvisionedAt = "dev_prov_time"
)

var (
	ErrNotProvisioned = errors.New("device not provisioned")
	ErrConflict       = errors.New("identity already provisioned with different values")
)

// Identity is the factory record of a device.
type Identity struct {
	UUID          uuid.UUID
	Serial        string
	Hardware      string
	ProvisionedAt time.Time
}

// Load reads the identity record from b.
func Load(b settings.Backend) (Identity, error) {
	s := settings.New(b)

	raw, err := s.String(KeyUUID)
	if nvs.IsNotFound(err) {
		return Identity{}, ErrNotProvisioned
	}
	if err != nil {
		return Identity{}, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("identity uuid %q: %w", raw, err)
	}

	ident := Identity{UUID: id}
	if ident.Serial, err = optionalString(s, KeySerial); err != nil {
		return Identity{}, err
	}
	if ident.Hardware, err = optionalString(s, KeyHardware); err != nil {
		return Identity{}, err
	}
	secs, err := s.Uint64(KeyProvisionedAt)
	switch {
	case err == nil:
		ident.ProvisionedAt = time.Unix(int64(secs), 0).UTC()
	case !nvs.IsNotFound(err):
		return Identity{}, err
	}
	return ident, nil
}

func optionalString(s *settings.Settings, key string) (string, error) {
	v, err := s.String(key)
	if nvs.IsNotFound(err) {
		return "", nil
	}
	return v, err
}

// Provision writes the identity record if the device has none and returns
// the stored record. A device that is already provisioned keeps its UUID;
// serial and hardware revision may be filled in when still empty, but
// changing a stored value fails with ErrConflict.
func Provision(b settings.Backend, serial, hardware string) (Identity, error) {
	s := settings.New(b)

	ident, err := Load(b)
	fresh := errors.Is(err, ErrNotProvisioned)
	if err != nil && !fresh {
		return Identity{}, err
	}
	if fresh {
		ident = Identity{
			UUID:          uuid.New(),
			ProvisionedAt: time.Now().UTC().Truncate(time.Second),
		}
		if err := s.SetUint64(KeyProvisionedAt, uint64(ident.ProvisionedAt.Unix())); err != nil {
			return Identity{}, err
		}
	}

	if ident.Serial, err = fill(s, KeySerial, ident.Serial, serial); err != nil {
		return Identity{}, err
	}
	if ident.Hardware, err = fill(s, KeyHardware, ident.Hardware, hardware); err != nil {
		return Identity{}, err
	}

	// The UUID goes last: its presence marks a complete record.
	if fresh {
		if err := s.SetString(KeyUUID, ident.UUID.String()); err != nil {
			return Identity{}, err
		}
	}
	return ident, nil
}

func fill(s *settings.Settings, key, stored, want string) (string, error) {
	switch {
	case want == "" || want == stored:
		return stored, nil
	case stored != "":
		return stored, fmt.Errorf("%s is %q, not %q: %w", key, stored, want, ErrConflict)
	}
	return want, s.SetString(key, want)
}
