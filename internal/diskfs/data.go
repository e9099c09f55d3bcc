package diskfs

import (
	"github.com/reekid420/AegisFS/internal/ondisk"
)

// ReadFileData reads length bytes starting at offset from ino's data
// blocks, clamped to ino.Size. Reads into unmapped holes return zero
// bytes.
func (fs *DiskFS) ReadFileData(ino *ondisk.Inode, offset uint64, length uint64) ([]byte, error) {
	if offset >= ino.Size {
		return nil, nil
	}
	if offset+length > ino.Size {
		length = ino.Size - offset
	}

	out := make([]byte, length)
	bs := uint64(fs.layout.BlockSize)

	for remaining := length; remaining > 0; {
		logicalIdx := offset / bs
		inBlockOff := offset % bs
		n := bs - inBlockOff
		if n > remaining {
			n = remaining
		}

		blockNum, err := fs.blockMapper.Resolve(ino, logicalIdx, false)
		if err != nil {
			return nil, err
		}

		destOff := length - remaining
		if blockNum != 0 {
			blk, err := fs.blockMapper.ReadDataBlock(blockNum)
			if err != nil {
				return nil, err
			}
			copy(out[destOff:destOff+n], blk[inBlockOff:inBlockOff+n])
		}

		offset += n
		remaining -= n
	}

	return out, nil
}

// WriteFileData writes data to ino starting at offset, allocating blocks
// as needed (zero-filling any hole created by writing past the current
// end of file) and updating ino.Size/Blocks512 in place. The caller is
// responsible for persisting ino via WriteInode.
func (fs *DiskFS) WriteFileData(ino *ondisk.Inode, offset uint64, data []byte) error {
	bs := uint64(fs.layout.BlockSize)

	for remaining := uint64(len(data)); remaining > 0; {
		logicalIdx := offset / bs
		inBlockOff := offset % bs
		n := bs - inBlockOff
		if n > remaining {
			n = remaining
		}

		blockNum, err := fs.blockMapper.Resolve(ino, logicalIdx, true)
		if err != nil {
			return err
		}

		blk, err := fs.blockMapper.ReadDataBlock(blockNum)
		if err != nil {
			return err
		}

		srcOff := uint64(len(data)) - remaining
		copy(blk[inBlockOff:inBlockOff+n], data[srcOff:srcOff+n])

		if err := fs.blockMapper.WriteDataBlock(blockNum, blk); err != nil {
			return err
		}

		offset += n
		remaining -= n
	}

	if offset > ino.Size {
		ino.Size = offset
	}
	ino.Blocks512 = uint32((ino.Size + 511) / 512)

	return nil
}

// Truncate resizes ino to newSize, freeing any data blocks that fall
// entirely past the new end of file. Index blocks are not freed here: a
// single- or double-indirect block stays allocated, with its emptied
// slots, until FreeAll releases the inode. Growing a file past its current
// size materializes no blocks; later reads of the new range return zero
// bytes until something is actually written there.
func (fs *DiskFS) Truncate(ino *ondisk.Inode, newSize uint64) error {
	bs := uint64(fs.layout.BlockSize)

	if newSize >= ino.Size {
		ino.Size = newSize
		ino.Blocks512 = uint32((ino.Size + 511) / 512)
		return nil
	}

	firstFreedBlock := (newSize + bs - 1) / bs
	lastBlock := (ino.Size + bs - 1) / bs

	for idx := firstFreedBlock; idx < lastBlock; idx++ {
		blockNum, err := fs.blockMapper.Resolve(ino, idx, false)
		if err != nil {
			return err
		}
		if blockNum != 0 {
			fs.dataBitmap.Free(blockNum)
			if err := fs.blockMapper.Unmap(ino, idx); err != nil {
				return err
			}
		}
	}

	// If the new size lands mid-block, zero the tail of the last
	// remaining block so a subsequent read doesn't see stale bytes beyond
	// the new logical end of file.
	if newSize%bs != 0 {
		logicalIdx := newSize / bs
		blockNum, err := fs.blockMapper.Resolve(ino, logicalIdx, false)
		if err != nil {
			return err
		}
		if blockNum != 0 {
			blk, err := fs.blockMapper.ReadDataBlock(blockNum)
			if err != nil {
				return err
			}
			for i := newSize % bs; i < bs; i++ {
				blk[i] = 0
			}
			if err := fs.blockMapper.WriteDataBlock(blockNum, blk); err != nil {
				return err
			}
		}
	}

	ino.Size = newSize
	ino.Blocks512 = uint32((ino.Size + 511) / 512)

	return nil
}
