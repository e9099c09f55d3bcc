package layout

import (
	"sync"

	"github.com/boljen/go-bitmap"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
)

// BlockReaderWriter is the narrow subset of blockcache.Cache an allocator
// needs to load and persist its bitmap region.
type BlockReaderWriter interface {
	ReadBlock(idx uint64) ([]byte, error)
	WriteBlock(idx uint64, data []byte) error
}

// Bitmap is an in-memory bit array mirroring an on-disk bitmap region
// (inode bitmap or data-block bitmap), backed by github.com/boljen/go-bitmap.
// It tracks the free-entry count alongside the bits themselves so callers
// never need to rescan the whole bitmap to answer "how many are free".
type Bitmap struct {
	mu        sync.Mutex
	bits      bitmap.Bitmap
	total     uint64
	free      uint64
	firstBit  uint64 // bit indices below this are never allocated (e.g. inode 0)
}

// NewBitmap creates an all-clear bitmap of total bits. firstBit is the
// lowest bit number that Allocate is allowed to hand out (1 for inodes,
// since inode 0 is reserved; 0 for data blocks).
func NewBitmap(total uint64, firstBit uint64) *Bitmap {
	b := &Bitmap{
		bits:     bitmap.New(int(total)),
		total:    total,
		firstBit: firstBit,
	}
	b.free = total - firstBit
	for i := uint64(0); i < firstBit; i++ {
		b.bits.Set(int(i), true)
	}
	return b
}

// LoadBitmap reconstructs a Bitmap from numBlocks worth of on-disk bitmap
// data starting at startBlock, recomputing the free count by scanning
// rather than trusting a persisted counter — tolerating the crash window
// the specification calls out between a bitmap update and its counter
// update.
func LoadBitmap(rw BlockReaderWriter, startBlock, numBlocks uint64, blockSize uint32, total uint64, firstBit uint64) (*Bitmap, error) {
	raw := make([]byte, 0, numBlocks*uint64(blockSize))
	for i := uint64(0); i < numBlocks; i++ {
		blk, err := rw.ReadBlock(startBlock + i)
		if err != nil {
			return nil, err
		}
		raw = append(raw, blk...)
	}

	nbytes := (total + 7) / 8
	if uint64(len(raw)) < nbytes {
		return nil, aegisfserr.New(aegisfserr.KindCorruptSuperblock, "bitmap region too short: have %d bytes, need %d", len(raw), nbytes)
	}

	b := &Bitmap{
		bits:     bitmap.NewSlice(raw[:nbytes], int(total)),
		total:    total,
		firstBit: firstBit,
	}

	var free uint64
	for i := firstBit; i < total; i++ {
		if !b.bits.Get(int(i)) {
			free++
		}
	}
	b.free = free

	return b, nil
}

// SaveBitmap persists the bitmap's bytes as consecutive blocks starting at
// startBlock, zero-padding the last block.
func (b *Bitmap) SaveBitmap(rw BlockReaderWriter, startBlock uint64, blockSize uint32) error {
	b.mu.Lock()
	raw := []byte(b.bits)
	b.mu.Unlock()

	for off := 0; off < len(raw); off += int(blockSize) {
		end := off + int(blockSize)
		chunk := make([]byte, blockSize)
		if end > len(raw) {
			copy(chunk, raw[off:])
		} else {
			copy(chunk, raw[off:end])
		}
		if err := rw.WriteBlock(startBlock+uint64(off)/uint64(blockSize), chunk); err != nil {
			return err
		}
	}
	return nil
}

// Allocate finds the lowest clear bit at or above firstBit, sets it, and
// returns its index. It fails with notFreeErr if no bit is clear.
func (b *Bitmap) Allocate(notFreeErr error) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.free == 0 {
		return 0, notFreeErr
	}

	for i := b.firstBit; i < b.total; i++ {
		if !b.bits.Get(int(i)) {
			b.bits.Set(int(i), true)
			b.free--
			return i, nil
		}
	}

	return 0, notFreeErr
}

// Free clears bit idx, if it was set. Bits below firstBit are reserved and
// stay set.
func (b *Bitmap) Free(idx uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx >= b.total || idx < b.firstBit {
		return
	}
	if b.bits.Get(int(idx)) {
		b.bits.Set(int(idx), false)
		b.free++
	}
}

// MarkAllocated sets bit idx directly, bypassing the lowest-clear-bit
// search Allocate performs. Used by the scrub tool to repair a bitmap bit
// that disagrees with actual on-disk reachability.
func (b *Bitmap) MarkAllocated(idx uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx >= b.total {
		return
	}
	if !b.bits.Get(int(idx)) {
		b.bits.Set(int(idx), true)
		b.free--
	}
}

// IsAllocated reports whether bit idx is set.
func (b *Bitmap) IsAllocated(idx uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx >= b.total {
		return false
	}
	return b.bits.Get(int(idx))
}

// FreeCount returns the number of clear bits at or above firstBit.
func (b *Bitmap) FreeCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.free
}

// Total returns the total number of bits the bitmap tracks.
func (b *Bitmap) Total() uint64 {
	return b.total
}
