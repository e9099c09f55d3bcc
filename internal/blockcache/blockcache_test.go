package blockcache_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reekid420/AegisFS/internal/blockcache"
	"github.com/reekid420/AegisFS/internal/blockdev"
)

func newTestDevice(t *testing.T) blockdev.Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.img")
	dev, err := blockdev.Create(path, 4096, 4096*64)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestWriteThenReadSeesFreshBytes(t *testing.T) {
	dev := newTestDevice(t)
	c := blockcache.New(dev, 4)

	data := bytes.Repeat([]byte{0x42}, 4096)
	require.NoError(t, c.WriteBlock(1, data))

	got, err := c.ReadBlock(1)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadPopulatesCacheAndSurvivesDeviceChangeBypassingCache(t *testing.T) {
	dev := newTestDevice(t)
	c := blockcache.New(dev, 4)

	first := bytes.Repeat([]byte{0x11}, 4096)
	require.NoError(t, dev.WriteBlock(2, first))

	got, err := c.ReadBlock(2)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	// Mutate the device directly, bypassing the cache; the cached copy is
	// now stale by design (callers must go through the cache for writes).
	second := bytes.Repeat([]byte{0x22}, 4096)
	require.NoError(t, dev.WriteBlock(2, second))

	got, err = c.ReadBlock(2)
	require.NoError(t, err)
	assert.Equal(t, first, got, "cache should still report the cached value")
}

func TestEvictForcesDeviceRereadOnNextLookup(t *testing.T) {
	dev := newTestDevice(t)
	c := blockcache.New(dev, 4)

	first := bytes.Repeat([]byte{0x11}, 4096)
	require.NoError(t, c.WriteBlock(2, first))

	second := bytes.Repeat([]byte{0x22}, 4096)
	require.NoError(t, dev.WriteBlock(2, second))

	c.Evict(2)

	got, err := c.ReadBlock(2)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestCacheEvictsLeastRecentlyUsedBlock(t *testing.T) {
	dev := newTestDevice(t)
	c := blockcache.New(dev, 2)

	a := bytes.Repeat([]byte{0xAA}, 4096)
	b := bytes.Repeat([]byte{0xBB}, 4096)
	cc := bytes.Repeat([]byte{0xCC}, 4096)

	require.NoError(t, c.WriteBlock(0, a))
	require.NoError(t, c.WriteBlock(1, b))
	// Touch block 0 so block 1 becomes the least-recently-used entry.
	_, err := c.ReadBlock(0)
	require.NoError(t, err)

	require.NoError(t, c.WriteBlock(2, cc))

	// Block 1 was evicted from the cache, but its data is still on disk,
	// so a read-through still returns the right bytes.
	got, err := c.ReadBlock(1)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}
