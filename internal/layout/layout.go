// Package layout computes the on-disk region boundaries of an AegisFS
// volume and implements the bitmap-backed inode and data-block allocators
// that operate within those regions.
//
// ComputeLayout is the one function format and mount both call; the
// specification's design notes call out a historical bug where format and
// mount disagreed on how many inodes a given device size yields, so this
// formula must never be duplicated elsewhere.
package layout

import (
	"github.com/reekid420/AegisFS/internal/aegisfserr"
	"github.com/reekid420/AegisFS/internal/ondisk"
)

// BytesPerInode is the device-size-to-inode-count ratio: one inode per
// 32 KiB of device.
const BytesPerInode = 32768

// Layout describes the starting block and block-count of every region of
// an AegisFS device, in region order.
type Layout struct {
	BlockSize uint32
	TotalSize uint64

	TotalBlocks uint64
	TotalInodes uint64

	SuperblockStart uint64 // always 0, always 1 block

	InodeBitmapStart  uint64
	InodeBitmapBlocks uint64

	InodeTableStart  uint64
	InodeTableBlocks uint64

	DataBitmapStart  uint64
	DataBitmapBlocks uint64

	DataStart  uint64
	DataBlocks uint64
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// ComputeLayout is the single canonical layout formula. Given a device's
// total size and block size it returns the region boundaries; format uses
// it to lay out a fresh device, mount reruns it on the size and block size
// recorded in the superblock and checks the result against the superblock's
// recorded totals.
func ComputeLayout(totalSize uint64, blockSize uint32) (*Layout, error) {
	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		return nil, aegisfserr.New(aegisfserr.KindParameter, "block size %d is not a power of two", blockSize)
	}
	if int(blockSize) < ondisk.SuperblockSize {
		return nil, aegisfserr.New(aegisfserr.KindParameter, "block size %d too small for superblock", blockSize)
	}

	bs := uint64(blockSize)
	totalBlocks := totalSize / bs
	if totalBlocks < 16 {
		return nil, aegisfserr.New(aegisfserr.KindParameter, "device too small: %d blocks", totalBlocks)
	}

	// One canonical formula: N_inode = size / 32768. Both format and mount
	// call ComputeLayout, so there is no second place this can drift.
	totalInodes := totalSize / BytesPerInode
	if totalInodes == 0 {
		totalInodes = 1
	}

	inodeBitmapBlocks := ceilDiv(ceilDiv(totalInodes, 8), bs)
	inodeTableBlocks := ceilDiv(totalInodes*uint64(ondisk.InodeSize), bs)

	overhead := uint64(1) + inodeBitmapBlocks + inodeTableBlocks

	// The data bitmap's size depends on the number of data blocks, which
	// in turn depends on the data bitmap's size. Converge by iterating a
	// fixed handful of times; the quantity monotonically shrinks and
	// stabilizes well within 4 passes for any realistic block size.
	dataBitmapBlocks := ceilDiv(ceilDiv(totalBlocks, 8), bs)
	for i := 0; i < 8; i++ {
		if overhead+dataBitmapBlocks >= totalBlocks {
			return nil, aegisfserr.New(aegisfserr.KindParameter, "device too small to hold metadata regions")
		}
		dataBlocks := totalBlocks - overhead - dataBitmapBlocks
		next := ceilDiv(ceilDiv(dataBlocks, 8), bs)
		if next == dataBitmapBlocks {
			break
		}
		dataBitmapBlocks = next
	}

	if overhead+dataBitmapBlocks >= totalBlocks {
		return nil, aegisfserr.New(aegisfserr.KindParameter, "device too small to hold metadata regions")
	}
	dataBlocks := totalBlocks - overhead - dataBitmapBlocks

	l := &Layout{
		BlockSize:   blockSize,
		TotalSize:   totalSize,
		TotalBlocks: totalBlocks,
		TotalInodes: totalInodes,

		SuperblockStart: 0,

		InodeBitmapStart:  1,
		InodeBitmapBlocks: inodeBitmapBlocks,

		InodeTableStart:  1 + inodeBitmapBlocks,
		InodeTableBlocks: inodeTableBlocks,

		DataBitmapStart:  1 + inodeBitmapBlocks + inodeTableBlocks,
		DataBitmapBlocks: dataBitmapBlocks,

		DataStart:  1 + inodeBitmapBlocks + inodeTableBlocks + dataBitmapBlocks,
		DataBlocks: dataBlocks,
	}

	return l, nil
}

// VerifyAgainstSuperblock recomputes the layout from a superblock's recorded
// size/block-size and returns a LayoutMismatch error if its inode or block
// total disagrees with the totals the superblock records, the check mount
// performs before trusting a device.
func VerifyAgainstSuperblock(sb *ondisk.Superblock) (*Layout, error) {
	l, err := ComputeLayout(sb.TotalSize, sb.BlockSize)
	if err != nil {
		return nil, err
	}

	if l.TotalInodes != sb.TotalInodes || l.TotalBlocks != sb.TotalBlocks {
		return nil, aegisfserr.New(
			aegisfserr.KindLayoutMismatch,
			"layout mismatch: computed inodes=%d blocks=%d, superblock has inodes=%d blocks=%d",
			l.TotalInodes, l.TotalBlocks, sb.TotalInodes, sb.TotalBlocks,
		)
	}

	return l, nil
}
