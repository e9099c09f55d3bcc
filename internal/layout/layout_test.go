package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reekid420/AegisFS/internal/layout"
)

func TestComputeLayoutRegionsAreContiguousAndOrdered(t *testing.T) {
	l, err := layout.ComputeLayout(1<<30, 4096)
	require.NoError(t, err)

	assert.EqualValues(t, 0, l.SuperblockStart)
	assert.Equal(t, l.SuperblockStart+1, l.InodeBitmapStart)
	assert.Equal(t, l.InodeBitmapStart+l.InodeBitmapBlocks, l.InodeTableStart)
	assert.Equal(t, l.InodeTableStart+l.InodeTableBlocks, l.DataBitmapStart)
	assert.Equal(t, l.DataBitmapStart+l.DataBitmapBlocks, l.DataStart)
	assert.Equal(t, l.TotalBlocks, l.DataStart+l.DataBlocks)
}

func TestComputeLayoutInodeCountFormula(t *testing.T) {
	size := uint64(64 << 20) // 64 MiB
	l, err := layout.ComputeLayout(size, 4096)
	require.NoError(t, err)

	assert.Equal(t, size/layout.BytesPerInode, l.TotalInodes)
}

func TestComputeLayoutIsDeterministic(t *testing.T) {
	a, err := layout.ComputeLayout(3<<30, 4096)
	require.NoError(t, err)
	b, err := layout.ComputeLayout(3<<30, 4096)
	require.NoError(t, err)

	assert.Equal(t, a, b, "format and mount must derive the same layout for the same size/block size")
}

func TestComputeLayoutRejectsNonPowerOfTwoBlockSize(t *testing.T) {
	_, err := layout.ComputeLayout(1<<20, 4097)
	require.Error(t, err)
}

func TestComputeLayoutRejectsDeviceTooSmall(t *testing.T) {
	_, err := layout.ComputeLayout(4096*4, 4096)
	require.Error(t, err)
}
