package layout

import (
	"encoding/binary"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
	"github.com/reekid420/AegisFS/internal/ondisk"
)

// ErrNoFreeBlocks is returned by BlockMapper when the data-block bitmap has
// no clear bits left.
var ErrNoFreeBlocks = aegisfserr.New(aegisfserr.KindNoFreeBlocks, "no free data blocks")

// BlockMapper translates between an inode's logical block indices and
// physical data-block numbers, walking the direct, single-indirect, and
// double-indirect pointer tiers described in the specification. Allocation
// of new data and index blocks goes through dataBitmap; all block I/O goes
// through rw (ordinarily the block cache).
type BlockMapper struct {
	dataBitmap *Bitmap
	rw         BlockReaderWriter
	blockSize  uint32
}

// NewBlockMapper builds a BlockMapper over the given data-block bitmap and
// block reader/writer.
func NewBlockMapper(dataBitmap *Bitmap, rw BlockReaderWriter, blockSize uint32) *BlockMapper {
	return &BlockMapper{dataBitmap: dataBitmap, rw: rw, blockSize: blockSize}
}

// pointersPerBlock is P in the specification's range layout.
func (m *BlockMapper) pointersPerBlock() uint64 {
	return uint64(m.blockSize) / ondisk.PointerSize
}

// MaxLogicalBlocks returns one past the highest logical block index an
// inode's pointer tiers can address.
func (m *BlockMapper) MaxLogicalBlocks() uint64 {
	p := m.pointersPerBlock()
	return ondisk.NumDirect + p + p*p
}

func (m *BlockMapper) allocateBlock() (uint64, error) {
	idx, err := m.dataBitmap.Allocate(ErrNoFreeBlocks)
	if err == nil && idx == 0 {
		// Block number 0 marks an unmapped slot in pointer arrays, so it is
		// never handed out: its bit stays set and the next free one is used.
		idx, err = m.dataBitmap.Allocate(ErrNoFreeBlocks)
	}
	if err != nil {
		return 0, err
	}

	zero := make([]byte, m.blockSize)
	if err := m.rw.WriteBlock(idx, zero); err != nil {
		m.dataBitmap.Free(idx)
		return 0, err
	}

	return idx, nil
}

func (m *BlockMapper) readPointerBlock(blockNum uint64) ([]uint64, error) {
	raw, err := m.rw.ReadBlock(blockNum)
	if err != nil {
		return nil, err
	}

	n := m.pointersPerBlock()
	ptrs := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		ptrs[i] = binary.LittleEndian.Uint64(raw[i*ondisk.PointerSize:])
	}
	return ptrs, nil
}

func (m *BlockMapper) writePointerBlock(blockNum uint64, ptrs []uint64) error {
	raw := make([]byte, m.blockSize)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint64(raw[uint64(i)*ondisk.PointerSize:], p)
	}
	return m.rw.WriteBlock(blockNum, raw)
}

// ReadDataBlock reads the raw contents of data block number blockNum (as
// returned by Resolve) through the same reader/writer used internally, for
// callers that need actual file bytes rather than pointer-array contents.
func (m *BlockMapper) ReadDataBlock(blockNum uint64) ([]byte, error) {
	return m.rw.ReadBlock(blockNum)
}

// WriteDataBlock writes raw file bytes to data block number blockNum.
func (m *BlockMapper) WriteDataBlock(blockNum uint64, data []byte) error {
	return m.rw.WriteBlock(blockNum, data)
}

// Resolve returns the physical data-block number for logical block index
// idx within ino, allocating index and data blocks lazily if allocate is
// true. A zero return with no error means the logical block is an
// unallocated hole (only possible when allocate is false).
func (m *BlockMapper) Resolve(ino *ondisk.Inode, idx uint64, allocate bool) (uint64, error) {
	p := m.pointersPerBlock()

	switch {
	case idx < ondisk.NumDirect:
		return m.resolveDirect(ino, idx, allocate)

	case idx < ondisk.NumDirect+p:
		return m.resolveIndirect(&ino.Pointers[ondisk.SingleIndirectSlot], idx-ondisk.NumDirect, allocate)

	case idx < ondisk.NumDirect+p+p*p:
		rel := idx - ondisk.NumDirect - p
		outerIdx := rel / p
		innerIdx := rel % p
		return m.resolveDoubleIndirect(&ino.Pointers[ondisk.DoubleIndirectSlot], outerIdx, innerIdx, allocate)

	default:
		return 0, aegisfserr.New(aegisfserr.KindParameter, "logical block %d exceeds maximum file size", idx)
	}
}

func (m *BlockMapper) resolveDirect(ino *ondisk.Inode, idx uint64, allocate bool) (uint64, error) {
	if ino.Pointers[idx] != 0 {
		return ino.Pointers[idx], nil
	}
	if !allocate {
		return 0, nil
	}

	blk, err := m.allocateBlock()
	if err != nil {
		return 0, err
	}
	ino.Pointers[idx] = blk
	return blk, nil
}

// resolveIndirect walks a single level of indirection: *slot points at a
// block of pointers; pos indexes into that block.
func (m *BlockMapper) resolveIndirect(slot *uint64, pos uint64, allocate bool) (uint64, error) {
	if *slot == 0 {
		if !allocate {
			return 0, nil
		}
		blk, err := m.allocateBlock()
		if err != nil {
			return 0, err
		}
		*slot = blk
	}

	ptrs, err := m.readPointerBlock(*slot)
	if err != nil {
		return 0, err
	}

	if ptrs[pos] != 0 {
		return ptrs[pos], nil
	}
	if !allocate {
		return 0, nil
	}

	blk, err := m.allocateBlock()
	if err != nil {
		return 0, err
	}
	ptrs[pos] = blk
	if err := m.writePointerBlock(*slot, ptrs); err != nil {
		return 0, err
	}

	return blk, nil
}

func (m *BlockMapper) resolveDoubleIndirect(slot *uint64, outerIdx, innerIdx uint64, allocate bool) (uint64, error) {
	if *slot == 0 {
		if !allocate {
			return 0, nil
		}
		blk, err := m.allocateBlock()
		if err != nil {
			return 0, err
		}
		*slot = blk
	}

	outer, err := m.readPointerBlock(*slot)
	if err != nil {
		return 0, err
	}

	if outer[outerIdx] == 0 {
		if !allocate {
			return 0, nil
		}
		blk, err := m.allocateBlock()
		if err != nil {
			return 0, err
		}
		outer[outerIdx] = blk
		if err := m.writePointerBlock(*slot, outer); err != nil {
			return 0, err
		}
	}

	return m.resolveIndirect(&outer[outerIdx], innerIdx, allocate)
}

// Unmap zeroes the pointer for logical block idx within ino, without
// freeing anything in the data bitmap (the caller does that first). It
// leaves index blocks themselves in place even if this was their last
// live leaf, since they are reclaimed in bulk by FreeAll.
func (m *BlockMapper) Unmap(ino *ondisk.Inode, idx uint64) error {
	p := m.pointersPerBlock()

	switch {
	case idx < ondisk.NumDirect:
		ino.Pointers[idx] = 0
		return nil

	case idx < ondisk.NumDirect+p:
		return m.unmapIndirect(ino.Pointers[ondisk.SingleIndirectSlot], idx-ondisk.NumDirect)

	case idx < ondisk.NumDirect+p+p*p:
		rel := idx - ondisk.NumDirect - p
		outerIdx := rel / p
		innerIdx := rel % p

		slot := ino.Pointers[ondisk.DoubleIndirectSlot]
		if slot == 0 {
			return nil
		}
		outer, err := m.readPointerBlock(slot)
		if err != nil {
			return err
		}
		if outerIdx >= uint64(len(outer)) || outer[outerIdx] == 0 {
			return nil
		}
		return m.unmapIndirect(outer[outerIdx], innerIdx)

	default:
		return aegisfserr.New(aegisfserr.KindParameter, "logical block %d exceeds maximum file size", idx)
	}
}

func (m *BlockMapper) unmapIndirect(indexBlock uint64, pos uint64) error {
	if indexBlock == 0 {
		return nil
	}

	ptrs, err := m.readPointerBlock(indexBlock)
	if err != nil {
		return err
	}
	if pos >= uint64(len(ptrs)) || ptrs[pos] == 0 {
		return nil
	}

	ptrs[pos] = 0
	return m.writePointerBlock(indexBlock, ptrs)
}

// FreeAll walks every pointer tier of ino, returning all reachable data and
// index blocks to dataBitmap. Used when an inode is freed (unlink to
// link-count zero); truncation frees blocks one by one instead.
func (m *BlockMapper) FreeAll(ino *ondisk.Inode) error {
	for i := uint64(0); i < ondisk.NumDirect; i++ {
		if ino.Pointers[i] != 0 {
			m.dataBitmap.Free(ino.Pointers[i])
			ino.Pointers[i] = 0
		}
	}

	if err := m.freeIndirect(&ino.Pointers[ondisk.SingleIndirectSlot]); err != nil {
		return err
	}

	if slot := ino.Pointers[ondisk.DoubleIndirectSlot]; slot != 0 {
		outer, err := m.readPointerBlock(slot)
		if err != nil {
			return err
		}
		for i := range outer {
			if outer[i] != 0 {
				if err := m.freeIndirect(&outer[i]); err != nil {
					return err
				}
			}
		}
		m.dataBitmap.Free(slot)
		ino.Pointers[ondisk.DoubleIndirectSlot] = 0
	}

	return nil
}

// Walk calls visit once for every block number reachable from ino,
// including single- and double-indirect index blocks themselves, without
// mutating the inode or the bitmap. Used by the scrub tool to cross-check
// bitmap allocation against actual reachability.
func (m *BlockMapper) Walk(ino *ondisk.Inode, visit func(blockNum uint64) error) error {
	for i := uint64(0); i < ondisk.NumDirect; i++ {
		if ino.Pointers[i] != 0 {
			if err := visit(ino.Pointers[i]); err != nil {
				return err
			}
		}
	}

	if err := m.walkIndirect(ino.Pointers[ondisk.SingleIndirectSlot], visit); err != nil {
		return err
	}

	if slot := ino.Pointers[ondisk.DoubleIndirectSlot]; slot != 0 {
		if err := visit(slot); err != nil {
			return err
		}
		outer, err := m.readPointerBlock(slot)
		if err != nil {
			return err
		}
		for _, p := range outer {
			if err := m.walkIndirect(p, visit); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *BlockMapper) walkIndirect(slot uint64, visit func(blockNum uint64) error) error {
	if slot == 0 {
		return nil
	}
	if err := visit(slot); err != nil {
		return err
	}
	ptrs, err := m.readPointerBlock(slot)
	if err != nil {
		return err
	}
	for _, p := range ptrs {
		if p != 0 {
			if err := visit(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *BlockMapper) freeIndirect(slot *uint64) error {
	if *slot == 0 {
		return nil
	}

	ptrs, err := m.readPointerBlock(*slot)
	if err != nil {
		return err
	}
	for _, p := range ptrs {
		if p != 0 {
			m.dataBitmap.Free(p)
		}
	}

	m.dataBitmap.Free(*slot)
	*slot = 0
	return nil
}
