package settings

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-nvs/pkg/flash"
	"github.com/dd0wney/cluso-nvs/pkg/nvs"
	"github.com/dd0wney/cluso-nvs/pkg/storage"
)

var (
	_ Backend = (*nvs.Store)(nil)
	_ Backend = (*storage.View)(nil)
)

func newTestStore(t *testing.T) *nvs.Store {
	t.Helper()
	cfg := nvs.Config{SectorSize: 4096, SectorCount: 4, WriteBlockSize: 4, EraseValue: 0xff}
	dev, err := flash.NewMem(flash.Geometry{
		Size:           cfg.Size(),
		EraseBlockSize: cfg.SectorSize,
		WriteBlockSize: cfg.WriteBlockSize,
		EraseValue:     cfg.EraseValue,
	})
	require.NoError(t, err)
	s := nvs.New(dev, cfg)
	require.NoError(t, s.Mount())
	return s
}

func raw(t *testing.T, s *nvs.Store, key string) string {
	t.Helper()
	v, err := s.Get(key)
	require.NoError(t, err)
	return string(v)
}

func TestSettings_FirmwareEncoding(t *testing.T) {
	store := newTestStore(t)
	s := New(store)

	require.NoError(t, s.SetString("net_ssid", "camera-ap"))
	require.NoError(t, s.SetBool("ai_enabled", true))
	require.NoError(t, s.SetBool("img_hflip", false))
	require.NoError(t, s.SetUint8("log_level", 3))
	require.NoError(t, s.SetUint32("power_timeout", 600))
	require.NoError(t, s.SetUint64("cfg_time", 1760486400123))
	require.NoError(t, s.SetInt32("img_bright", -7))
	require.NoError(t, s.SetFloat32("confidence", 0.5))

	assert.Equal(t, "camera-ap\x00", raw(t, store, "net_ssid"))
	assert.Equal(t, "1\x00", raw(t, store, "ai_enabled"))
	assert.Equal(t, "0\x00", raw(t, store, "img_hflip"))
	assert.Equal(t, "3\x00", raw(t, store, "log_level"))
	assert.Equal(t, "600\x00", raw(t, store, "power_timeout"))
	assert.Equal(t, "1760486400123\x00", raw(t, store, "cfg_time"))
	assert.Equal(t, "-7\x00", raw(t, store, "img_bright"))
	assert.Equal(t, "0.500000\x00", raw(t, store, "confidence"))
}

func TestSettings_RoundTrip(t *testing.T) {
	s := New(newTestStore(t))

	require.NoError(t, s.SetString("mqtt_host", "broker.local"))
	str, err := s.String("mqtt_host")
	require.NoError(t, err)
	assert.Equal(t, "broker.local", str)

	require.NoError(t, s.SetBool("mqtt_clean", true))
	b, err := s.Bool("mqtt_clean")
	require.NoError(t, err)
	assert.True(t, b)

	require.NoError(t, s.SetUint8("light_mode", 255))
	u8, err := s.Uint8("light_mode")
	require.NoError(t, err)
	assert.Equal(t, uint8(255), u8)

	require.NoError(t, s.SetUint32("mqtt_port", 1883))
	u32, err := s.Uint32("mqtt_port")
	require.NoError(t, err)
	assert.Equal(t, uint32(1883), u32)

	require.NoError(t, s.SetUint64("big", ^uint64(0)))
	u64, err := s.Uint64("big")
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), u64)

	require.NoError(t, s.SetInt32("img_contrast", -2147483648))
	i32, err := s.Int32("img_contrast")
	require.NoError(t, err)
	assert.Equal(t, int32(-2147483648), i32)

	require.NoError(t, s.SetFloat32("nms_thresh", 0.45))
	f, err := s.Float32("nms_thresh")
	require.NoError(t, err)
	assert.InDelta(t, 0.45, f, 1e-6)

	ok, err := s.Has("mqtt_port")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.Delete("mqtt_port"))
	ok, err = s.Has("mqtt_port")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Uint32("mqtt_port")
	assert.True(t, nvs.IsNotFound(err))
}

func TestSettings_ReadsFirmwareValues(t *testing.T) {
	store := newTestStore(t)
	s := New(store)

	// Strings written without a terminator, and with trailing garbage
	// after it, both read back cleanly.
	_, err := store.Write("dev_info_name", []byte("cam01"))
	require.NoError(t, err)
	_, err = store.Write("dev_info_fw_ver", []byte("1.2.0\x00\xff\xff"))
	require.NoError(t, err)

	name, err := s.String("dev_info_name")
	require.NoError(t, err)
	assert.Equal(t, "cam01", name)
	ver, err := s.String("dev_info_fw_ver")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", ver)

	// Anything but "1" is false.
	_, err = store.Write("light_auto", []byte("yes\x00"))
	require.NoError(t, err)
	b, err := s.Bool("light_auto")
	require.NoError(t, err)
	assert.False(t, b)
}

func TestSettings_Malformed(t *testing.T) {
	store := newTestStore(t)
	s := New(store)

	_, err := store.Write("light_brt", []byte("300\x00"))
	require.NoError(t, err)
	_, err = s.Uint8("light_brt")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = store.Write("mqtt_ka", []byte("sixty\x00"))
	require.NoError(t, err)
	_, err = s.Uint32("mqtt_ka")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = s.Int32("mqtt_ka")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = s.Float32("mqtt_ka")
	assert.ErrorIs(t, err, ErrMalformed)

	err = s.SetString("net_password", "a\x00b")
	assert.ErrorIs(t, err, nvs.ErrInvalidArgument)
}

func TestSettings_LoadOrDefault(t *testing.T) {
	store := newTestStore(t)
	s := New(store)

	level, err := s.Uint8Or("log_level", 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), level)
	assert.Equal(t, "2\x00", raw(t, store, "log_level"), "default is written back")

	require.NoError(t, s.SetUint8("log_level", 4))
	level, err = s.Uint8Or("log_level", 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), level, "stored value wins over the default")

	_, err = store.Write("power_timeout", []byte("never\x00"))
	require.NoError(t, err)
	timeout, err := s.Uint32Or("power_timeout", 300)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), timeout)
	assert.Equal(t, "300\x00", raw(t, store, "power_timeout"), "malformed value is replaced")

	ssid, err := s.StringOr("net_ssid", "AICAM-AP")
	require.NoError(t, err)
	assert.Equal(t, "AICAM-AP", ssid)

	enabled, err := s.BoolOr("ai_enabled", true)
	require.NoError(t, err)
	assert.True(t, enabled)

	ts, err := s.Uint64Or("cfg_time", 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), ts)

	bright, err := s.Int32Or("img_bright", -1)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), bright)

	conf, err := s.Float32Or("confidence", 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, conf, 1e-6)

	_, err = s.Uint8Or("", 1)
	assert.ErrorIs(t, err, nvs.ErrInvalidKey)
}

func TestSettings_IndexedKeys(t *testing.T) {
	key, err := IndexedKey("timer_node_", 3)
	require.NoError(t, err)
	assert.Equal(t, "timer_node_3", key)

	_, err = IndexedKey("a_prefix_that_is_too_long_", 0)
	assert.ErrorIs(t, err, nvs.ErrInvalidKey)

	s := New(newTestStore(t))
	nodes, err := s.Uint32Array("tn_", 3, []uint32{3600, 7200})
	require.NoError(t, err)
	assert.Equal(t, []uint32{3600, 7200, 0}, nodes)

	require.NoError(t, s.SetUint32("tn_1", 99))
	nodes, err = s.Uint32Array("tn_", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{3600, 99, 0}, nodes)
}

func TestSettings_Blob(t *testing.T) {
	store := newTestStore(t)
	s := New(store)

	cert := bytes.Repeat([]byte("-----BEGIN CERTIFICATE-----\n"), 40)
	require.NoError(t, s.SetBlob("mqtt_ca", cert))

	stored, err := store.Get("mqtt_ca")
	require.NoError(t, err)
	assert.Less(t, len(stored), len(cert))

	got, err := s.Blob("mqtt_ca")
	require.NoError(t, err)
	assert.Equal(t, cert, got)

	assert.ErrorIs(t, s.SetBlob("empty", nil), nvs.ErrInvalidArgument)

	_, err = store.Write("junk", []byte{0xff, 0xff})
	require.NoError(t, err)
	_, err = s.Blob("junk")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSettings_ThroughCachedPartition(t *testing.T) {
	opts := storage.DefaultOptions()
	dev, err := flash.NewMem(flash.Geometry{
		Size:           opts.DeviceSize(),
		EraseBlockSize: opts.SectorSize,
		WriteBlockSize: opts.WriteBlockSize,
		EraseValue:     opts.EraseValue,
	})
	require.NoError(t, err)
	m, err := storage.Open(dev, opts)
	require.NoError(t, err)

	view := m.View(storage.User)
	assert.Equal(t, storage.User, view.Partition())
	s := New(view)
	require.NoError(t, s.SetUint32("power_timeout", 120))

	user, err := m.Store(storage.User)
	require.NoError(t, err)
	_, err = user.Get("power_timeout")
	assert.True(t, nvs.IsNotFound(err), "cached write is not on flash yet")

	v, err := s.Uint32("power_timeout")
	require.NoError(t, err)
	assert.Equal(t, uint32(120), v)

	require.NoError(t, m.Flush(storage.User))
	assert.Equal(t, "120\x00", raw(t, user, "power_timeout"))

	require.NoError(t, s.Delete("power_timeout"))
	_, err = s.Uint32("power_timeout")
	assert.True(t, nvs.IsNotFound(err))

	fact := New(m.View(storage.Factory))
	require.NoError(t, fact.SetString("dev_info_serial", "SN0001"))
	factStore, err := m.Store(storage.Factory)
	require.NoError(t, err)
	assert.Equal(t, "SN0001\x00", raw(t, factStore, "dev_info_serial"))

	require.NoError(t, m.Close())
	_, err = s.Uint32("power_timeout")
	assert.True(t, errors.Is(err, storage.ErrClosed))
}
