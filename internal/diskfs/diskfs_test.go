package diskfs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reekid420/AegisFS/internal/clock"
	"github.com/reekid420/AegisFS/internal/diskfs"
	"github.com/reekid420/AegisFS/internal/ondisk"
)

func fuseutilDTFile() fuseutil.DirentType {
	return fuseutil.DT_File
}

func rawZeroFile(path string, size int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func testClock() clock.Clock {
	return clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func formatTestVolume(t *testing.T, sizeBytes uint64) *diskfs.DiskFS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volume.img")

	fs, err := diskfs.Format(path, sizeBytes, 4096, "testvol", false, testClock())
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestFormatCreatesRootDirectory(t *testing.T) {
	fs := formatTestVolume(t, 16<<20)

	root, err := fs.ReadInode(ondisk.RootInodeID)
	require.NoError(t, err)
	assert.True(t, root.IsDir())

	entries, err := fs.ReadDirEntries(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".", entries[0].Name)
	assert.Equal(t, "..", entries[1].Name)
}

func TestFormatRefusesWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.img")

	fs, err := diskfs.Format(path, 16<<20, 4096, "testvol", false, testClock())
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	_, err = diskfs.Format(path, 16<<20, 4096, "testvol", false, testClock())
	require.Error(t, err)

	fs2, err := diskfs.Format(path, 16<<20, 4096, "testvol", true, testClock())
	require.NoError(t, err)
	require.NoError(t, fs2.Close())
}

func TestAllocateAndFreeInode(t *testing.T) {
	fs := formatTestVolume(t, 16<<20)

	require.NoError(t, fs.PersistBitmapsAndSuperblock())
	freeBefore := fs.Superblock().FreeInodes

	id, err := fs.AllocateInode()
	require.NoError(t, err)
	assert.NotZero(t, id)

	require.NoError(t, fs.PersistBitmapsAndSuperblock())
	assert.Equal(t, freeBefore-1, fs.Superblock().FreeInodes)

	require.NoError(t, fs.FreeInode(id))
	require.NoError(t, fs.PersistBitmapsAndSuperblock())
	assert.Equal(t, freeBefore, fs.Superblock().FreeInodes)
}

func TestWriteAndReadFileDataSmall(t *testing.T) {
	fs := formatTestVolume(t, 16<<20)

	id, err := fs.AllocateInode()
	require.NoError(t, err)
	ino, err := fs.ReadInode(id)
	require.NoError(t, err)
	ino.Mode = uint16(ondisk.TypeRegular) | 0644
	ino.Links = 1

	content := []byte("Hello AegisFS!")
	require.NoError(t, fs.WriteFileData(ino, 0, content))
	require.NoError(t, fs.WriteInode(id, ino))

	assert.EqualValues(t, len(content), ino.Size)

	reread, err := fs.ReadInode(id)
	require.NoError(t, err)
	got, err := fs.ReadFileData(reread, 0, reread.Size)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestWriteFileDataAcrossMultipleBlocks(t *testing.T) {
	fs := formatTestVolume(t, 16<<20)

	id, err := fs.AllocateInode()
	require.NoError(t, err)
	ino, err := fs.ReadInode(id)
	require.NoError(t, err)
	ino.Mode = uint16(ondisk.TypeRegular) | 0644
	ino.Links = 1

	data := make([]byte, 4096*3+100)
	for i := range data {
		data[i] = byte(i % 251)
	}

	require.NoError(t, fs.WriteFileData(ino, 0, data))
	require.NoError(t, fs.WriteInode(id, ino))

	got, err := fs.ReadFileData(ino, 0, ino.Size)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTruncateShrinksAndFreesBlocks(t *testing.T) {
	fs := formatTestVolume(t, 16<<20)

	id, err := fs.AllocateInode()
	require.NoError(t, err)
	ino, err := fs.ReadInode(id)
	require.NoError(t, err)
	ino.Mode = uint16(ondisk.TypeRegular) | 0644
	ino.Links = 1

	data := make([]byte, 4096*4)
	require.NoError(t, fs.WriteFileData(ino, 0, data))

	freeBefore := fs.Superblock().FreeBlocks
	require.NoError(t, fs.Truncate(ino, 4096))
	require.NoError(t, fs.WriteInode(id, ino))

	require.NoError(t, fs.PersistBitmapsAndSuperblock())
	assert.Greater(t, fs.Superblock().FreeBlocks, freeBefore)
	assert.EqualValues(t, 4096, ino.Size)
}

func TestDirEntryAppendAndRemove(t *testing.T) {
	fs := formatTestVolume(t, 16<<20)

	root, err := fs.ReadInode(ondisk.RootInodeID)
	require.NoError(t, err)

	childID, err := fs.AllocateInode()
	require.NoError(t, err)

	require.NoError(t, fs.AppendDirEntry(root, childID, fuseutilDTFile(), "hello.txt"))
	require.NoError(t, fs.WriteInode(ondisk.RootInodeID, root))

	entries, err := fs.ReadDirEntries(root)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "hello.txt", entries[2].Name)
	assert.Equal(t, childID, entries[2].InodeID)

	removedID, err := fs.RemoveDirEntry(root, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, childID, removedID)

	entries, err = fs.ReadDirEntries(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMountRejectsUnformattedDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.img")

	dev, err := rawZeroFile(path, 16<<20)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	_, err = diskfs.Mount(path, false, testClock())
	require.Error(t, err)
}

func TestFormatThenMountAgreeOnLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.img")

	fs, err := diskfs.Format(path, 16<<20, 4096, "testvol", false, testClock())
	require.NoError(t, err)
	formatLayout := *fs.Layout()
	require.NoError(t, fs.Close())

	mounted, err := diskfs.Mount(path, false, testClock())
	require.NoError(t, err)
	defer mounted.Close()

	assert.Equal(t, formatLayout, *mounted.Layout())
}
