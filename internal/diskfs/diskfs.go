// Package diskfs is the stateful owner of the block device, block cache,
// layout, superblock, and both bitmaps. It is the only component that
// talks to the on-disk format directly; the VFS engine (internal/vfs)
// calls into it for every durable read or write.
package diskfs

import (
	"sync"

	"github.com/google/uuid"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
	"github.com/reekid420/AegisFS/internal/blockcache"
	"github.com/reekid420/AegisFS/internal/blockdev"
	"github.com/reekid420/AegisFS/internal/clock"
	"github.com/reekid420/AegisFS/internal/layout"
	"github.com/reekid420/AegisFS/internal/ondisk"
)

// DiskFS owns every on-disk structure of one mounted AegisFS volume.
type DiskFS struct {
	dev   blockdev.Device
	cache *blockcache.Cache
	clk   clock.Clock

	layout *layout.Layout

	// sbMu guards the live superblock. Each bitmap carries its own lock
	// and its own free count; the superblock's stored free counters are
	// recomputed from the bitmaps at mount and in
	// PersistBitmapsAndSuperblock, and Superblock() reports the bitmaps'
	// current counts. No device I/O is issued while sbMu is held.
	sbMu sync.Mutex
	sb   *ondisk.Superblock

	inodeBitmap *layout.Bitmap
	dataBitmap  *layout.Bitmap
	blockMapper *layout.BlockMapper

	readOnly bool
}

// Format writes a fresh AegisFS layout to the device at path, sized to
// sizeBytes, and returns a DiskFS ready to serve the new (empty) volume.
// It refuses if the device already carries a valid superblock unless
// force is set.
func Format(path string, sizeBytes uint64, blockSize uint32, volumeName string, force bool, clk clock.Clock) (*DiskFS, error) {
	if existing, err := blockdev.Open(path, blockSize, true); err == nil {
		buf, readErr := existing.ReadBlock(0)
		existing.Close()
		if readErr == nil {
			if _, sbErr := ondisk.DecodeSuperblock(buf); sbErr == nil && !force {
				return nil, aegisfserr.New(aegisfserr.KindAlreadyFormatted, "device %q already has an AegisFS superblock", path)
			}
		}
	}

	l, err := layout.ComputeLayout(sizeBytes, blockSize)
	if err != nil {
		return nil, err
	}

	dev, err := blockdev.Create(path, blockSize, l.TotalBlocks*uint64(blockSize))
	if err != nil {
		return nil, err
	}

	cache := blockcache.New(dev, blockcache.DefaultCapacity)

	var volUUID [16]byte
	id, err := uuid.NewRandom()
	if err == nil {
		copy(volUUID[:], id[:])
	}

	sb := ondisk.NewSuperblock(blockSize, l.TotalSize, l.TotalBlocks, l.TotalInodes, volUUID, volumeName)

	inodeBitmap := layout.NewBitmap(l.TotalInodes, 1) // inode 0 reserved
	dataBitmap := layout.NewBitmap(l.DataBlocks, 0)
	blockMapper := layout.NewBlockMapper(dataBitmap, dataBlockAdapter{cache: cache, dataStart: l.DataStart}, blockSize)

	fs := &DiskFS{
		dev:         dev,
		cache:       cache,
		clk:         clk,
		layout:      l,
		sb:          sb,
		inodeBitmap: inodeBitmap,
		dataBitmap:  dataBitmap,
		blockMapper: blockMapper,
	}

	if err := fs.formatRoot(); err != nil {
		dev.Close()
		return nil, err
	}

	if err := fs.PersistBitmapsAndSuperblock(); err != nil {
		dev.Close()
		return nil, err
	}

	return fs, nil
}

// formatRoot allocates and writes the root directory inode, with "." and
// ".." entries pointing at itself.
func (fs *DiskFS) formatRoot() error {
	now := fs.clk.Now().Unix()

	root := &ondisk.Inode{
		Mode:  uint16(ondisk.TypeDirectory) | 0755,
		Links: 2, // "." plus the entry a parent would hold, conventionally pre-counted for root
		Atime: uint32(now),
		Mtime: uint32(now),
		Ctime: uint32(now),
	}

	fs.sbMu.Lock()
	fs.inodeBitmap.Free(ondisk.NoInodeID) // no-op, keeps invariant explicit
	fs.sbMu.Unlock()

	// Root is always inode 1; allocate forces the bitmap to mark it even
	// though we already know the id.
	id, err := fs.inodeBitmap.Allocate(aegisfserr.New(aegisfserr.KindNoFreeInodes, "no free inodes"))
	if err != nil {
		return err
	}
	if id != ondisk.RootInodeID {
		return aegisfserr.New(aegisfserr.KindInputOutput, "expected root to be inode %d, bitmap gave %d", ondisk.RootInodeID, id)
	}

	if err := fs.WriteInode(id, root); err != nil {
		return err
	}

	var entries []byte
	entries, err = ondisk.EncodeDirent(entries, ondisk.RootInodeID, ondisk.FileTypeForMode(root.Mode), ".")
	if err != nil {
		return err
	}
	entries, err = ondisk.EncodeDirent(entries, ondisk.RootInodeID, ondisk.FileTypeForMode(root.Mode), "..")
	if err != nil {
		return err
	}

	if err := fs.WriteFileData(root, 0, entries); err != nil {
		return err
	}

	return fs.WriteInode(id, root)
}

// Mount opens an existing AegisFS device at path, validates its
// superblock, and loads both bitmaps into memory.
func Mount(path string, readOnly bool, clk clock.Clock) (*DiskFS, error) {
	dev, err := blockdev.Open(path, 4096, readOnly)
	if err != nil {
		return nil, err
	}

	sbBlock, err := dev.ReadBlock(0)
	if err != nil {
		dev.Close()
		return nil, err
	}

	sb, err := ondisk.DecodeSuperblock(sbBlock)
	if err != nil {
		dev.Close()
		return nil, aegisfserr.Wrap(aegisfserr.KindNotFormatted, err, "reading superblock from %q", path)
	}

	dev.Close()

	// Re-open now that we know the real block size recorded in the
	// superblock; the probe above assumed 4096 only to read block 0.
	dev, err = blockdev.Open(path, sb.BlockSize, readOnly)
	if err != nil {
		return nil, err
	}

	cache := blockcache.New(dev, blockcache.DefaultCapacity)

	l, err := layout.VerifyAgainstSuperblock(sb)
	if err != nil {
		dev.Close()
		return nil, err
	}

	inodeBitmap, err := layout.LoadBitmap(cache, l.InodeBitmapStart, l.InodeBitmapBlocks, sb.BlockSize, l.TotalInodes, 1)
	if err != nil {
		dev.Close()
		return nil, err
	}

	dataBitmap, err := layout.LoadBitmap(cache, l.DataBitmapStart, l.DataBitmapBlocks, sb.BlockSize, l.DataBlocks, 0)
	if err != nil {
		dev.Close()
		return nil, err
	}

	// Recompute free counters from the bitmaps rather than trusting the
	// persisted counters, tolerating a crash between a bitmap update and
	// its counter update.
	sb.FreeInodes = inodeBitmap.FreeCount()
	sb.FreeBlocks = dataBitmap.FreeCount()
	sb.LastMountTime = clk.Now().Unix()

	blockMapper := layout.NewBlockMapper(dataBitmap, dataBlockAdapter{cache: cache, dataStart: l.DataStart}, sb.BlockSize)

	fs := &DiskFS{
		dev:         dev,
		cache:       cache,
		clk:         clk,
		layout:      l,
		sb:          sb,
		inodeBitmap: inodeBitmap,
		dataBitmap:  dataBitmap,
		blockMapper: blockMapper,
		readOnly:    readOnly,
	}

	if !readOnly {
		if err := fs.PersistBitmapsAndSuperblock(); err != nil {
			dev.Close()
			return nil, err
		}
	}

	return fs, nil
}

// Superblock returns a copy of the live superblock with its free counters
// taken from the in-memory bitmaps, safe for read access by callers such
// as statfs.
func (fs *DiskFS) Superblock() ondisk.Superblock {
	fs.sbMu.Lock()
	sb := *fs.sb
	fs.sbMu.Unlock()
	sb.FreeInodes = fs.inodeBitmap.FreeCount()
	sb.FreeBlocks = fs.dataBitmap.FreeCount()
	return sb
}

// Layout returns the volume's computed layout.
func (fs *DiskFS) Layout() *layout.Layout {
	return fs.layout
}

// BlockSize returns the volume's block size.
func (fs *DiskFS) BlockSize() uint32 {
	return fs.layout.BlockSize
}

// PersistBitmapsAndSuperblock writes both bitmaps and the superblock to
// disk and flushes the device. Free counters are refreshed from the
// bitmaps immediately before the write.
func (fs *DiskFS) PersistBitmapsAndSuperblock() error {
	if err := fs.inodeBitmap.SaveBitmap(fs.cache, fs.layout.InodeBitmapStart, fs.layout.BlockSize); err != nil {
		return err
	}
	if err := fs.dataBitmap.SaveBitmap(fs.cache, fs.layout.DataBitmapStart, fs.layout.BlockSize); err != nil {
		return err
	}

	fs.sbMu.Lock()
	fs.sb.FreeInodes = fs.inodeBitmap.FreeCount()
	fs.sb.FreeBlocks = fs.dataBitmap.FreeCount()
	fs.sb.LastWriteTime = fs.clk.Now().Unix()
	buf, err := fs.sb.Encode(fs.layout.BlockSize)
	fs.sbMu.Unlock()
	if err != nil {
		return err
	}

	if err := fs.cache.WriteBlock(0, buf); err != nil {
		return err
	}

	return fs.cache.Flush()
}

// Close flushes and releases the underlying device.
func (fs *DiskFS) Close() error {
	if !fs.readOnly {
		if err := fs.PersistBitmapsAndSuperblock(); err != nil {
			fs.dev.Close()
			return err
		}
	}
	return fs.dev.Close()
}

// dataBlockAdapter translates logical data-block numbers (0-based, within
// the data region returned by the bitmap allocator) into the absolute
// block numbers the block cache addresses, by adding DataStart.
type dataBlockAdapter struct {
	cache     *blockcache.Cache
	dataStart uint64
}

func (a dataBlockAdapter) ReadBlock(idx uint64) ([]byte, error) {
	return a.cache.ReadBlock(a.dataStart + idx)
}

func (a dataBlockAdapter) WriteBlock(idx uint64, data []byte) error {
	return a.cache.WriteBlock(a.dataStart+idx, data)
}
