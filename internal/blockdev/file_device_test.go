package blockdev_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reekid420/AegisFS/internal/blockdev"
)

func TestCreateAndReadWriteBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.img")

	dev, err := blockdev.Create(path, 4096, 1<<20)
	require.NoError(t, err)
	defer dev.Close()

	assert.EqualValues(t, 4096, dev.BlockSize())
	assert.EqualValues(t, (1<<20)/4096, dev.NumBlocks())
	assert.False(t, dev.ReadOnly())

	data := bytes.Repeat([]byte{0xAB}, 4096)
	require.NoError(t, dev.WriteBlock(3, data))

	got, err := dev.ReadBlock(3)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, dev.Flush())
}

func TestReadUnwrittenBlockIsZeroed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.img")

	dev, err := blockdev.Create(path, 4096, 1<<20)
	require.NoError(t, err)
	defer dev.Close()

	got, err := dev.ReadBlock(10)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4096), got)
}

func TestWriteBlockRejectsOutOfRangeIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.img")

	dev, err := blockdev.Create(path, 4096, 4096*4)
	require.NoError(t, err)
	defer dev.Close()

	err = dev.WriteBlock(100, make([]byte, 4096))
	require.Error(t, err)
}

func TestWriteBlockRejectsWrongSizedBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.img")

	dev, err := blockdev.Create(path, 4096, 4096*4)
	require.NoError(t, err)
	defer dev.Close()

	err = dev.WriteBlock(0, make([]byte, 100))
	require.Error(t, err)
}

func TestOpenReadOnlyRejectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.img")

	dev, err := blockdev.Create(path, 4096, 4096*4)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	roDev, err := blockdev.Open(path, 4096, true)
	require.NoError(t, err)
	defer roDev.Close()

	assert.True(t, roDev.ReadOnly())
	err = roDev.WriteBlock(0, make([]byte, 4096))
	assert.Error(t, err)
}

func TestOpenDiscoversSizeFromRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.img")

	dev, err := blockdev.Create(path, 4096, 1<<20)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	reopened, err := blockdev.Open(path, 4096, false)
	require.NoError(t, err)
	defer reopened.Close()

	assert.EqualValues(t, 1<<20, reopened.SizeBytes())
}
