package layout_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reekid420/AegisFS/internal/layout"
)

// memBlocks is a trivial in-memory BlockReaderWriter used to test the
// bitmap and block-mapper logic without a real block device.
type memBlocks struct {
	blockSize uint32
	blocks    map[uint64][]byte
}

func newMemBlocks(blockSize uint32) *memBlocks {
	return &memBlocks{blockSize: blockSize, blocks: make(map[uint64][]byte)}
}

func (m *memBlocks) ReadBlock(idx uint64) ([]byte, error) {
	if b, ok := m.blocks[idx]; ok {
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
	return make([]byte, m.blockSize), nil
}

func (m *memBlocks) WriteBlock(idx uint64, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blocks[idx] = cp
	return nil
}

func TestBitmapAllocateLowestClearBit(t *testing.T) {
	b := layout.NewBitmap(64, 1)

	id, err := b.Allocate(errors.New("no free"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, id, "inode 0 is reserved, so the first allocation is bit 1")

	id2, err := b.Allocate(errors.New("no free"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, id2)
}

func TestBitmapFreeAllowsReuse(t *testing.T) {
	b := layout.NewBitmap(8, 0)

	first, err := b.Allocate(errors.New("no free"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, first)

	b.Free(first)
	assert.False(t, b.IsAllocated(first))

	second, err := b.Allocate(errors.New("no free"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBitmapExhaustion(t *testing.T) {
	b := layout.NewBitmap(2, 0)

	_, err := b.Allocate(errors.New("no free"))
	require.NoError(t, err)
	_, err = b.Allocate(errors.New("no free"))
	require.NoError(t, err)

	_, err = b.Allocate(errors.New("no free"))
	require.Error(t, err)
}

func TestBitmapSaveAndLoadRoundTrip(t *testing.T) {
	mem := newMemBlocks(4096)
	b := layout.NewBitmap(64, 1)

	a, err := b.Allocate(errors.New("no free"))
	require.NoError(t, err)
	c, err := b.Allocate(errors.New("no free"))
	require.NoError(t, err)

	require.NoError(t, b.SaveBitmap(mem, 0, 4096))

	reloaded, err := layout.LoadBitmap(mem, 0, 1, 4096, 64, 1)
	require.NoError(t, err)

	assert.True(t, reloaded.IsAllocated(a))
	assert.True(t, reloaded.IsAllocated(c))
	assert.Equal(t, b.FreeCount(), reloaded.FreeCount())
}

func TestBlockMapperDirectPointers(t *testing.T) {
	mem := newMemBlocks(4096)
	dataBitmap := layout.NewBitmap(1024, 0)
	m := layout.NewBlockMapper(dataBitmap, mem, 4096)

	ino := newTestInode()

	blk, err := m.Resolve(ino, 0, true)
	require.NoError(t, err)
	assert.NotZero(t, blk)
	assert.Equal(t, blk, ino.Pointers[0])

	again, err := m.Resolve(ino, 0, false)
	require.NoError(t, err)
	assert.Equal(t, blk, again)
}

func TestBlockMapperReadWithoutAllocateReturnsHole(t *testing.T) {
	mem := newMemBlocks(4096)
	dataBitmap := layout.NewBitmap(1024, 0)
	m := layout.NewBlockMapper(dataBitmap, mem, 4096)

	ino := newTestInode()

	blk, err := m.Resolve(ino, 3, false)
	require.NoError(t, err)
	assert.Zero(t, blk)
}

func TestBlockMapperSingleIndirect(t *testing.T) {
	mem := newMemBlocks(4096)
	dataBitmap := layout.NewBitmap(4096, 0)
	m := layout.NewBlockMapper(dataBitmap, mem, 4096)

	ino := newTestInode()

	// Logical block 8 is the first entry addressed via the single
	// indirect pointer (P = 4096/8 = 512 pointers per index block).
	blk, err := m.Resolve(ino, 8, true)
	require.NoError(t, err)
	assert.NotZero(t, blk)
	assert.NotZero(t, ino.Pointers[8]) // single-indirect slot now populated

	again, err := m.Resolve(ino, 8, false)
	require.NoError(t, err)
	assert.Equal(t, blk, again)
}

func TestBlockMapperDoubleIndirect(t *testing.T) {
	mem := newMemBlocks(4096)
	dataBitmap := layout.NewBitmap(1<<20, 0)
	m := layout.NewBlockMapper(dataBitmap, mem, 4096)

	ino := newTestInode()

	p := uint64(4096 / 8)
	doubleStart := uint64(8) + p

	blk, err := m.Resolve(ino, doubleStart, true)
	require.NoError(t, err)
	assert.NotZero(t, blk)
	assert.NotZero(t, ino.Pointers[9])

	again, err := m.Resolve(ino, doubleStart, false)
	require.NoError(t, err)
	assert.Equal(t, blk, again)

	// A different inner index within the same outer block should resolve
	// to a different data block.
	blk2, err := m.Resolve(ino, doubleStart+1, true)
	require.NoError(t, err)
	assert.NotZero(t, blk2)
	assert.NotEqual(t, blk, blk2)
}

func TestBlockMapperFreeAllReturnsBlocksToBitmap(t *testing.T) {
	mem := newMemBlocks(4096)
	dataBitmap := layout.NewBitmap(4096, 0)
	m := layout.NewBlockMapper(dataBitmap, mem, 4096)

	ino := newTestInode()
	_, err := m.Resolve(ino, 0, true)
	require.NoError(t, err)
	_, err = m.Resolve(ino, 8, true)
	require.NoError(t, err)

	freeBefore := dataBitmap.FreeCount()
	require.NoError(t, m.FreeAll(ino))
	assert.Greater(t, dataBitmap.FreeCount(), freeBefore)

	for _, p := range ino.Pointers {
		assert.Zero(t, p)
	}
}
