package vfs

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/reekid420/AegisFS/internal/ondisk"
)

// fileModeFromBits converts an on-disk 16-bit mode (type bits + unix
// permission bits) into an os.FileMode the way the kernel adapter expects
// to hand back to the kernel.
func fileModeFromBits(mode uint16) os.FileMode {
	perm := os.FileMode(mode & 0777)
	switch {
	case mode&uint16(ondisk.TypeDirectory) == uint16(ondisk.TypeDirectory):
		return perm | os.ModeDir
	case mode&uint16(ondisk.TypeSymlink) == uint16(ondisk.TypeSymlink):
		return perm | os.ModeSymlink
	default:
		return perm
	}
}

// modeBitsFromFileMode is the inverse of fileModeFromBits, used by SetAttr
// when the kernel supplies a new mode. The type bits of an existing inode
// are never altered by chmod, so callers pass in the original type bits to
// preserve alongside the new permission bits.
func modeBitsFromFileMode(typeBits uint16, perm os.FileMode) uint16 {
	return typeBits | uint16(perm.Perm())
}

// attrsFromInode builds the fuseops.InodeAttributes the kernel adapter
// returns for GetInodeAttributes, LookUpInode and friends.
func attrsFromInode(ino *ondisk.Inode) fuseops.InodeAttributes {
	mtime := time.Unix(int64(ino.Mtime), 0)
	return fuseops.InodeAttributes{
		Size:   ino.Size,
		Nlink:  uint64(ino.Links),
		Mode:   fileModeFromBits(ino.Mode),
		Atime:  time.Unix(int64(ino.Atime), 0),
		Mtime:  mtime,
		Ctime:  time.Unix(int64(ino.Ctime), 0),
		Crtime: mtime,
		Uid:    ino.UID,
		Gid:    ino.GID,
	}
}

// applySetAttr mutates ino in place from a SetInodeAttributes request,
// using now for any timestamp field the caller didn't explicitly set.
// It does not touch ino.Size; SetAttr shrinks a file through
// diskfs.Truncate and grows one by raising ino.Size alone, writing no
// zero bytes.
func applySetAttr(ino *ondisk.Inode, size *uint64, mode *os.FileMode, uid, gid *uint32, atime, mtime *time.Time, now time.Time) {
	if mode != nil {
		ino.Mode = modeBitsFromFileMode(ino.Mode&uint16(ondisk.TypeMask), *mode)
	}
	if uid != nil {
		ino.UID = *uid
	}
	if gid != nil {
		ino.GID = *gid
	}
	if atime != nil {
		ino.Atime = uint32(atime.Unix())
	}
	if mtime != nil {
		ino.Mtime = uint32(mtime.Unix())
	} else if size != nil {
		ino.Mtime = uint32(now.Unix())
	}
	ino.Ctime = uint32(now.Unix())
}
