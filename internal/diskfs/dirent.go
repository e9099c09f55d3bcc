package diskfs

import (
	"encoding/binary"

	"github.com/jacobsa/fuse/fuseutil"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
	"github.com/reekid420/AegisFS/internal/ondisk"
)

// ReadDirEntries returns every live directory entry in dir's data, in
// on-disk order. Removed entries (tombstoned by RemoveDirEntry) are
// skipped but still advance the scan past their reserved space.
func (fs *DiskFS) ReadDirEntries(dir *ondisk.Inode) ([]ondisk.Dirent, error) {
	raw, err := fs.ReadFileData(dir, 0, dir.Size)
	if err != nil {
		return nil, err
	}

	var out []ondisk.Dirent
	off := 0
	for off < len(raw) {
		d, next, ok, err := ondisk.DecodeDirent(raw, off)
		if err != nil {
			return nil, err
		}
		if next == off {
			break
		}
		if ok {
			out = append(out, d)
		}
		off = next
	}

	return out, nil
}

// AppendDirEntry adds a (name -> childInodeID) binding to dir's on-disk
// data, appended after the last existing entry. It does not check for a
// pre-existing entry with the same name; callers (the VFS engine) are
// expected to have already done the lookup that create/mkdir requires.
func (fs *DiskFS) AppendDirEntry(dir *ondisk.Inode, childInodeID uint64, dt fuseutil.DirentType, name string) error {
	var buf []byte
	buf, err := ondisk.EncodeDirent(buf, childInodeID, dt, name)
	if err != nil {
		return err
	}

	return fs.WriteFileData(dir, dir.Size, buf)
}

// RemoveDirEntry tombstones the entry named name in dir by zeroing its
// inode number in place, leaving its reserved record-length span intact
// for forward iteration. It returns aegisfserr NotFound if no such entry
// exists.
func (fs *DiskFS) RemoveDirEntry(dir *ondisk.Inode, name string) (removedInodeID uint64, err error) {
	raw, err := fs.ReadFileData(dir, 0, dir.Size)
	if err != nil {
		return 0, err
	}

	off := 0
	for off < len(raw) {
		d, next, ok, derr := ondisk.DecodeDirent(raw, off)
		if derr != nil {
			return 0, derr
		}
		if next == off {
			break
		}
		if ok && d.Name == name {
			zero := make([]byte, 8)
			if err := fs.WriteFileData(dir, uint64(off), zero); err != nil {
				return 0, err
			}
			return d.InodeID, nil
		}
		off = next
	}

	return 0, aegisfserr.New(aegisfserr.KindNotFound, "directory entry %q not found", name)
}

// RenameDirEntry renames the entry oldName in dir to newName, keeping the
// inode id it points at; used by the single-directory case of rename.
func (fs *DiskFS) RenameDirEntry(dir *ondisk.Inode, oldName, newName string) error {
	raw, err := fs.ReadFileData(dir, 0, dir.Size)
	if err != nil {
		return err
	}

	off := 0
	for off < len(raw) {
		d, next, ok, derr := ondisk.DecodeDirent(raw, off)
		if derr != nil {
			return derr
		}
		if next == off {
			break
		}
		if ok && d.Name == oldName {
			// A rename onto a different name can only be done in place
			// when the new name fits in the old record's reserved span;
			// otherwise tombstone the old entry and append a new one.
			if ondisk.EncodedLen(newName) <= int(d.RecLen) {
				var buf []byte
				buf, err = ondisk.EncodeDirent(buf, d.InodeID, d.Type, newName)
				if err != nil {
					return err
				}
				padded := make([]byte, d.RecLen)
				copy(padded, buf)
				// Keep the old record length so the scan still steps over
				// the whole reserved span.
				binary.LittleEndian.PutUint16(padded[8:], d.RecLen)
				return fs.WriteFileData(dir, uint64(off), padded)
			}

			if _, err := fs.RemoveDirEntry(dir, oldName); err != nil {
				return err
			}
			return fs.AppendDirEntry(dir, d.InodeID, d.Type, newName)
		}
		off = next
	}

	return aegisfserr.New(aegisfserr.KindNotFound, "directory entry %q not found", oldName)
}
