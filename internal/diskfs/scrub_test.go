package diskfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reekid420/AegisFS/internal/ondisk"
)

func TestScrubCleanVolumeReportsNoIssues(t *testing.T) {
	fs := formatTestVolume(t, 16<<20)

	report, err := fs.Scrub(true, false)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.EqualValues(t, 1, report.InodesChecked)
}

func TestScrubDetectsZeroLinkAllocatedInode(t *testing.T) {
	fs := formatTestVolume(t, 16<<20)

	id, err := fs.AllocateInode()
	require.NoError(t, err)
	ino, err := fs.ReadInode(id)
	require.NoError(t, err)
	ino.Mode = uint16(ondisk.TypeRegular) | 0644
	ino.Links = 0
	require.NoError(t, fs.WriteInode(id, ino))

	report, err := fs.Scrub(true, false)
	require.NoError(t, err)
	assert.False(t, report.Clean())

	fixed, err := fs.Scrub(true, true)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed.InodesRepaired)
}

func TestScrubShallowChecksOnlyCounters(t *testing.T) {
	fs := formatTestVolume(t, 16<<20)

	report, err := fs.Scrub(false, false)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Zero(t, report.InodesChecked)
}
