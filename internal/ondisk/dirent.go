package ondisk

import (
	"encoding/binary"

	"github.com/jacobsa/fuse/fuseutil"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
)

// direntAlignment is the padding boundary directory entries are rounded up
// to, so RecLen always lets a reader skip straight to the next entry.
const direntAlignment = 4

// direntHeaderSize is the fixed portion of an on-disk directory entry:
// inode number (8) + record length (2) + name length (1) + file type (1).
const direntHeaderSize = 8 + 2 + 1 + 1

// MaxNameLen is the longest name a directory entry can carry.
const MaxNameLen = 255

// Dirent is one on-disk directory entry. Directory contents are a flat
// sequence of these, read sequentially; RecLen always covers the full
// padded entry so iteration can skip unknown trailing fields.
type Dirent struct {
	InodeID uint64
	RecLen  uint16
	NameLen uint8
	Type    fuseutil.DirentType
	Name    string
}

// EncodedLen returns the padded on-disk length of a directory entry with
// the given name.
func EncodedLen(name string) int {
	raw := direntHeaderSize + len(name)
	if rem := raw % direntAlignment; rem != 0 {
		raw += direntAlignment - rem
	}
	return raw
}

// EncodeDirent appends the encoded entry to buf and returns the result.
func EncodeDirent(buf []byte, inodeID uint64, dt fuseutil.DirentType, name string) ([]byte, error) {
	if len(name) > MaxNameLen {
		return nil, aegisfserr.New(aegisfserr.KindParameter, "name %q exceeds %d bytes", name, MaxNameLen)
	}

	recLen := EncodedLen(name)
	start := len(buf)
	buf = append(buf, make([]byte, recLen)...)

	binary.LittleEndian.PutUint64(buf[start:], inodeID)
	binary.LittleEndian.PutUint16(buf[start+8:], uint16(recLen))
	buf[start+10] = uint8(len(name))
	buf[start+11] = uint8(dt)
	copy(buf[start+direntHeaderSize:], name)

	return buf, nil
}

// DecodeDirent parses one entry starting at offset off in buf, returning the
// entry and the offset of the next entry. It returns ok=false when off is at
// or past the end of valid data.
func DecodeDirent(buf []byte, off int) (d Dirent, next int, ok bool, err error) {
	if off+direntHeaderSize > len(buf) {
		return Dirent{}, off, false, nil
	}

	inodeID := binary.LittleEndian.Uint64(buf[off:])
	recLen := binary.LittleEndian.Uint16(buf[off+8:])
	nameLen := buf[off+10]
	dt := fuseutil.DirentType(buf[off+11])

	if recLen == 0 || off+int(recLen) > len(buf) {
		return Dirent{}, off, false, aegisfserr.New(aegisfserr.KindInputOutput, "corrupt directory entry at offset %d", off)
	}

	name := string(buf[off+direntHeaderSize : off+direntHeaderSize+int(nameLen)])

	d = Dirent{InodeID: inodeID, RecLen: recLen, NameLen: nameLen, Type: dt, Name: name}
	next = off + int(recLen)

	// A zero inode ID marks a tombstoned (removed) entry; callers should
	// skip it but still advance past it using next.
	if inodeID == NoInodeID {
		return d, next, false, nil
	}

	return d, next, true, nil
}

// FileTypeForMode maps an inode's mode bits to the fuseutil directory-entry
// type hint stored alongside its name in the parent directory.
func FileTypeForMode(mode uint16) fuseutil.DirentType {
	switch mode & TypeMask {
	case TypeDirectory:
		return fuseutil.DT_Directory
	case TypeSymlink:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}
