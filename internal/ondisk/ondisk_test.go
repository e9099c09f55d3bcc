package ondisk_test

import (
	"testing"

	"github.com/jacobsa/fuse/fuseutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reekid420/AegisFS/internal/ondisk"
)

func TestSuperblockRoundTrip(t *testing.T) {
	var uuid [16]byte
	copy(uuid[:], "0123456789abcdef")

	sb := ondisk.NewSuperblock(4096, (1<<20)*4096, 1<<20, 1<<14, uuid, "myvolume")
	sb.FreeBlocks = 12345
	sb.FreeInodes = 6789
	sb.LastMountTime = 1700000000
	sb.LastWriteTime = 1700000500

	buf, err := sb.Encode(4096)
	require.NoError(t, err)
	require.Len(t, buf, 4096)

	got, err := ondisk.DecodeSuperblock(buf)
	require.NoError(t, err)

	assert.Equal(t, sb.Version, got.Version)
	assert.Equal(t, sb.BlockSize, got.BlockSize)
	assert.Equal(t, sb.TotalSize, got.TotalSize)
	assert.Equal(t, sb.TotalBlocks, got.TotalBlocks)
	assert.Equal(t, sb.FreeBlocks, got.FreeBlocks)
	assert.Equal(t, sb.TotalInodes, got.TotalInodes)
	assert.Equal(t, sb.FreeInodes, got.FreeInodes)
	assert.Equal(t, sb.RootInode, got.RootInode)
	assert.Equal(t, sb.LastMountTime, got.LastMountTime)
	assert.Equal(t, sb.LastWriteTime, got.LastWriteTime)
	assert.Equal(t, "myvolume", got.VolumeNameString())
}

func TestDecodeSuperblockRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 4096)
	copy(buf, "NOTAEGIS")

	_, err := ondisk.DecodeSuperblock(buf)
	require.Error(t, err)
}

func TestDecodeSuperblockRejectsShortBuffer(t *testing.T) {
	_, err := ondisk.DecodeSuperblock(make([]byte, 8))
	require.Error(t, err)
}

func TestInodeRoundTrip(t *testing.T) {
	ino := &ondisk.Inode{
		Mode:      uint16(ondisk.TypeRegular) | 0644,
		Links:     1,
		UID:       1000,
		GID:       1000,
		Size:      4096,
		Atime:     1700000000,
		Mtime:     1700000100,
		Ctime:     1700000200,
		Blocks512: 8,
		Flags:     0,
	}
	ino.Pointers[0] = 42
	ino.Pointers[ondisk.SingleIndirectSlot] = 99
	ino.Pointers[ondisk.DoubleIndirectSlot] = 7

	buf := ondisk.EncodeInode(ino)
	assert.Len(t, buf, ondisk.InodeSize)

	got, err := ondisk.DecodeInode(buf)
	require.NoError(t, err)

	assert.Equal(t, ino.Mode, got.Mode)
	assert.Equal(t, ino.Links, got.Links)
	assert.Equal(t, ino.UID, got.UID)
	assert.Equal(t, ino.GID, got.GID)
	assert.Equal(t, ino.Size, got.Size)
	assert.Equal(t, ino.Atime, got.Atime)
	assert.Equal(t, ino.Mtime, got.Mtime)
	assert.Equal(t, ino.Ctime, got.Ctime)
	assert.Equal(t, ino.Blocks512, got.Blocks512)
	assert.Equal(t, ino.Pointers, got.Pointers)
	assert.True(t, got.IsRegular())
	assert.False(t, got.IsDir())
}

func TestDirentRoundTrip(t *testing.T) {
	var buf []byte
	buf, err := ondisk.EncodeDirent(buf, 1, fuseutil.DT_Directory, ".")
	require.NoError(t, err)
	buf, err = ondisk.EncodeDirent(buf, 1, fuseutil.DT_Directory, "..")
	require.NoError(t, err)
	buf, err = ondisk.EncodeDirent(buf, 5, fuseutil.DT_File, "hello.txt")
	require.NoError(t, err)

	var got []ondisk.Dirent
	off := 0
	for off < len(buf) {
		d, next, ok, err := ondisk.DecodeDirent(buf, off)
		require.NoError(t, err)
		if next == off {
			break
		}
		if ok {
			got = append(got, d)
		}
		off = next
	}

	require.Len(t, got, 3)
	assert.Equal(t, ".", got[0].Name)
	assert.Equal(t, uint64(1), got[0].InodeID)
	assert.Equal(t, "..", got[1].Name)
	assert.Equal(t, "hello.txt", got[2].Name)
	assert.Equal(t, uint64(5), got[2].InodeID)
	assert.Equal(t, fuseutil.DT_File, got[2].Type)
}

func TestEncodeDirentRejectsLongName(t *testing.T) {
	name := make([]byte, ondisk.MaxNameLen+1)
	for i := range name {
		name[i] = 'a'
	}
	_, err := ondisk.EncodeDirent(nil, 1, fuseutil.DT_File, string(name))
	require.Error(t, err)
}

func TestFileTypeForMode(t *testing.T) {
	assert.Equal(t, fuseutil.DT_Directory, ondisk.FileTypeForMode(uint16(ondisk.TypeDirectory)|0755))
	assert.Equal(t, fuseutil.DT_Link, ondisk.FileTypeForMode(uint16(ondisk.TypeSymlink)|0777))
	assert.Equal(t, fuseutil.DT_File, ondisk.FileTypeForMode(uint16(ondisk.TypeRegular)|0644))
}
