package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-nvs/pkg/flash"
	"github.com/dd0wney/cluso-nvs/pkg/nvs"
	"github.com/dd0wney/cluso-nvs/pkg/storage"
)

func newTestStore(t *testing.T) *nvs.Store {
	t.Helper()
	cfg := nvs.Config{SectorSize: 4096, SectorCount: 2, WriteBlockSize: 4, EraseValue: 0xff}
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

func TestLoad_NotProvisioned(t *testing.T) {
	_, err := Load(newTestStore(t))
	assert.ErrorIs(t, err, ErrNotProvisioned)
}

func TestProvision_Once(t *testing.T) {
	store := newTestStore(t)

	before := time.Now().UTC().Add(-time.Second)
	first, err := Provision(store, "SN0001", "rev-b")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.UUID)
	assert.Equal(t, "SN0001", first.Serial)
	assert.Equal(t, "rev-b", first.Hardware)
	assert.False(t, first.ProvisionedAt.Before(before))

	loaded, err := Load(store)
	require.NoError(t, err)
	assert.Equal(t, first, loaded)

	again, err := Provision(store, "SN0001", "")
	require.NoError(t, err)
	assert.Equal(t, first.UUID, again.UUID, "UUID is never regenerated")
	assert.Equal(t, "rev-b", again.Hardware)

	_, err = Provision(store, "SN0002", "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestProvision_FillsMissingFields(t *testing.T) {
	store := newTestStore(t)

	first, err := Provision(store, "", "")
	require.NoError(t, err)
	assert.Empty(t, first.Serial)

	second, err := Provision(store, "SN0042", "rev-c")
	require.NoError(t, err)
	assert.Equal(t, first.UUID, second.UUID)
	assert.Equal(t, "SN0042", second.Serial)

	loaded, err := Load(store)
	require.NoError(t, err)
	assert.Equal(t, "rev-c", loaded.Hardware)
}

func TestLoad_BadUUID(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Write(KeyUUID, []byte("not-a-uuid\x00"))
	require.NoError(t, err)
	_, err = Load(store)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotProvisioned)
}

func TestProvision_SurvivesUserReset(t *testing.T) {
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

	ident, err := Provision(m.View(storage.Factory), "SN0007", "rev-a")
	require.NoError(t, err)
	require.NoError(t, m.Clear(storage.User))
	require.NoError(t, m.Close())

	m, err = storage.Open(dev, opts)
	require.NoError(t, err)
	loaded, err := Load(m.View(storage.Factory))
	require.NoError(t, err)
	assert.Equal(t, ident, loaded)
}
