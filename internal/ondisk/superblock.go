// Package ondisk implements the byte-level encoding of AegisFS's on-disk
// structures: the superblock, inode records, and directory entries. All
// encodings are little-endian and use encoding/binary directly rather than
// a reflection-based codec, matching the fixed-layout style of the unixv1
// driver this layout is grounded on.
package ondisk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
)

// Magic is the 8-byte marker stored at the start of every superblock.
var Magic = [8]byte{'A', 'E', 'G', 'I', 'S', 'F', 'S', 0}

// CurrentVersion is the only on-disk format version this build understands.
const CurrentVersion uint32 = 1

// SuperblockSize is the fixed encoded size of a Superblock, in bytes. The
// superblock always occupies one full block; any remaining bytes in that
// block are zero-padded.
const SuperblockSize = 160

// RootInodeID is the fixed identifier of the filesystem root directory.
const RootInodeID uint64 = 1

// NoInodeID is the reserved "none" inode identifier.
const NoInodeID uint64 = 0

// Superblock is the in-memory mirror of the first block of an AegisFS
// device. Every field here is persisted.
type Superblock struct {
	Magic         [8]byte
	Version       uint32
	BlockSize     uint32
	TotalSize     uint64
	TotalBlocks   uint64
	FreeBlocks    uint64
	TotalInodes   uint64
	FreeInodes    uint64
	RootInode     uint64
	LastMountTime int64
	LastWriteTime int64
	VolumeUUID    [16]byte
	VolumeName    [64]byte
}

// NewSuperblock builds a fresh, valid superblock for a device of the given
// total size and block size, with totalBlocks and totalInodes computed by
// the caller (the layout package). The free counters start equal to those
// totals; diskfs replaces them with the bitmaps' counts when it persists
// the superblock. totalSize
// is the exact byte size ComputeLayout was called with; it is persisted
// verbatim so a later mount can re-verify the layout against the same size
// format used, rather than reconstructing it from totalBlocks*blockSize.
func NewSuperblock(blockSize uint32, totalSize uint64, totalBlocks, totalInodes uint64, volumeUUID [16]byte, volumeName string) *Superblock {
	sb := &Superblock{
		Magic:       Magic,
		Version:     CurrentVersion,
		BlockSize:   blockSize,
		TotalSize:   totalSize,
		TotalBlocks: totalBlocks,
		FreeBlocks:  totalBlocks,
		TotalInodes: totalInodes,
		FreeInodes:  totalInodes,
		RootInode:   RootInodeID,
		VolumeUUID:  volumeUUID,
	}
	copy(sb.VolumeName[:], volumeName)
	return sb
}

// Encode serializes the superblock into a buffer of exactly blockSize
// bytes, zero-padding everything past SuperblockSize.
func (sb *Superblock) Encode(blockSize uint32) ([]byte, error) {
	if int(blockSize) < SuperblockSize {
		return nil, aegisfserr.New(aegisfserr.KindParameter, "block size %d too small for superblock", blockSize)
	}

	buf := make([]byte, blockSize)
	w := bytes.NewBuffer(buf[:0])

	fields := []interface{}{
		sb.Magic,
		sb.Version,
		sb.BlockSize,
		sb.TotalSize,
		sb.TotalBlocks,
		sb.FreeBlocks,
		sb.TotalInodes,
		sb.FreeInodes,
		sb.RootInode,
		sb.LastMountTime,
		sb.LastWriteTime,
		sb.VolumeUUID,
		sb.VolumeName,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return nil, aegisfserr.Wrap(aegisfserr.KindInputOutput, err, "encoding superblock")
		}
	}

	return buf, nil
}

// DecodeSuperblock parses a block-sized buffer into a Superblock, validating
// the magic marker and version.
func DecodeSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < SuperblockSize {
		return nil, aegisfserr.New(aegisfserr.KindCorruptSuperblock, "buffer too short for superblock: %d bytes", len(buf))
	}

	r := bytes.NewReader(buf)
	sb := &Superblock{}

	fields := []interface{}{
		&sb.Magic,
		&sb.Version,
		&sb.BlockSize,
		&sb.TotalSize,
		&sb.TotalBlocks,
		&sb.FreeBlocks,
		&sb.TotalInodes,
		&sb.FreeInodes,
		&sb.RootInode,
		&sb.LastMountTime,
		&sb.LastWriteTime,
		&sb.VolumeUUID,
		&sb.VolumeName,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, aegisfserr.Wrap(aegisfserr.KindCorruptSuperblock, err, "decoding superblock")
		}
	}

	if sb.Magic != Magic {
		return nil, aegisfserr.New(aegisfserr.KindCorruptSuperblock, "bad magic %q", sb.Magic)
	}
	if sb.Version != CurrentVersion {
		return nil, aegisfserr.New(aegisfserr.KindCorruptSuperblock, "unsupported version %d", sb.Version)
	}

	return sb, nil
}

// VolumeNameString returns the NUL-trimmed volume name.
func (sb *Superblock) VolumeNameString() string {
	n := bytes.IndexByte(sb.VolumeName[:], 0)
	if n < 0 {
		n = len(sb.VolumeName)
	}
	return string(sb.VolumeName[:n])
}

func (sb *Superblock) String() string {
	return fmt.Sprintf(
		"Superblock{version=%d blockSize=%d totalBlocks=%d freeBlocks=%d totalInodes=%d freeInodes=%d volume=%q}",
		sb.Version, sb.BlockSize, sb.TotalBlocks, sb.FreeBlocks, sb.TotalInodes, sb.FreeInodes, sb.VolumeNameString(),
	)
}
