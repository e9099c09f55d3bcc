package ondisk

import (
	"bytes"
	"encoding/binary"
	"syscall"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
)

// InodeSize is the fixed on-disk size of one inode record.
const InodeSize = 128

// NumDirect is the number of direct block pointers in an inode.
const NumDirect = 8

// SingleIndirectSlot and DoubleIndirectSlot are the pointer-array indices of
// the indirect block pointers, immediately following the direct pointers.
const (
	SingleIndirectSlot = NumDirect
	DoubleIndirectSlot = NumDirect + 1
	NumPointers        = NumDirect + 2
)

// PointerSize is the on-disk width of one block pointer.
const PointerSize = 8

// Inode is the 128-byte on-disk and in-memory inode record.
type Inode struct {
	Mode       uint16
	Links      uint16
	UID        uint32
	GID        uint32
	Size       uint64
	Atime      uint32
	Mtime      uint32
	Ctime      uint32
	Blocks512  uint32
	Flags      uint32
	reserved   [8]byte
	Pointers   [NumPointers]uint64
}

// File-type bits mirror the standard POSIX S_IFMT encoding so that mode can
// be handed directly to fuseops.InodeAttributes.Mode conversions.
const (
	TypeMask      = syscall.S_IFMT
	TypeRegular   = syscall.S_IFREG
	TypeDirectory = syscall.S_IFDIR
	TypeSymlink   = syscall.S_IFLNK
)

// IsDir reports whether the inode's mode bits mark it as a directory.
func (ino *Inode) IsDir() bool {
	return ino.Mode&TypeMask == TypeDirectory
}

// IsRegular reports whether the inode's mode bits mark it as a regular file.
func (ino *Inode) IsRegular() bool {
	return ino.Mode&TypeMask == TypeRegular
}

// IsSymlink reports whether the inode's mode bits mark it as a symlink.
func (ino *Inode) IsSymlink() bool {
	return ino.Mode&TypeMask == TypeSymlink
}

// EncodeInode serializes ino into a fixed InodeSize-byte buffer.
func EncodeInode(ino *Inode) []byte {
	buf := make([]byte, InodeSize)
	w := bytes.NewBuffer(buf[:0])

	binary.Write(w, binary.LittleEndian, ino.Mode)
	binary.Write(w, binary.LittleEndian, ino.Links)
	binary.Write(w, binary.LittleEndian, ino.UID)
	binary.Write(w, binary.LittleEndian, ino.GID)
	binary.Write(w, binary.LittleEndian, ino.Size)
	binary.Write(w, binary.LittleEndian, ino.Atime)
	binary.Write(w, binary.LittleEndian, ino.Mtime)
	binary.Write(w, binary.LittleEndian, ino.Ctime)
	binary.Write(w, binary.LittleEndian, ino.Blocks512)
	binary.Write(w, binary.LittleEndian, ino.Flags)
	binary.Write(w, binary.LittleEndian, ino.reserved)
	binary.Write(w, binary.LittleEndian, ino.Pointers)

	return buf
}

// DecodeInode parses a fixed InodeSize-byte buffer into an Inode.
func DecodeInode(buf []byte) (*Inode, error) {
	if len(buf) < InodeSize {
		return nil, aegisfserr.New(aegisfserr.KindInputOutput, "inode buffer too short: %d bytes", len(buf))
	}

	r := bytes.NewReader(buf)
	ino := &Inode{}

	fields := []interface{}{
		&ino.Mode, &ino.Links, &ino.UID, &ino.GID, &ino.Size,
		&ino.Atime, &ino.Mtime, &ino.Ctime, &ino.Blocks512, &ino.Flags,
		&ino.reserved, &ino.Pointers,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, aegisfserr.Wrap(aegisfserr.KindInputOutput, err, "decoding inode")
		}
	}

	return ino, nil
}
