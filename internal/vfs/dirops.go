package vfs

import (
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
	"github.com/reekid420/AegisFS/internal/ondisk"
)

// loadChildren populates dir's children map from its on-disk directory
// data the first time it is needed. Callers must hold dir.mu.
func (e *Engine) loadChildren(dir *cachedInode) error {
	if dir.childrenLoaded {
		return nil
	}

	entries, err := e.disk.ReadDirEntries(dir.inode)
	if err != nil {
		return err
	}

	for _, d := range entries {
		if d.Name == "." || d.Name == ".." {
			continue
		}
		dir.children[d.Name] = d.InodeID
	}
	dir.childrenLoaded = true
	return nil
}

// Lookup resolves name within parentID, returning the child's inode id
// and attributes, or aegisfserr KindNotFound.
func (e *Engine) Lookup(parentID uint64, name string) (uint64, fuseops.InodeAttributes, error) {
	parent, err := e.loadInode(parentID)
	if err != nil {
		return 0, fuseops.InodeAttributes{}, err
	}

	parent.mu.Lock()
	if !parent.inode.IsDir() {
		parent.mu.Unlock()
		return 0, fuseops.InodeAttributes{}, aegisfserr.New(aegisfserr.KindNotADirectory, "inode %d is not a directory", parentID)
	}
	if err := e.loadChildren(parent); err != nil {
		parent.mu.Unlock()
		return 0, fuseops.InodeAttributes{}, err
	}
	childID, ok := parent.children[name]
	parent.mu.Unlock()

	if !ok {
		return 0, fuseops.InodeAttributes{}, aegisfserr.New(aegisfserr.KindNotFound, "no such entry %q", name)
	}

	child, err := e.loadInode(childID)
	if err != nil {
		return 0, fuseops.InodeAttributes{}, err
	}

	child.mu.Lock()
	child.lookupCount++
	attrs := attrsFromInode(child.inode)
	child.mu.Unlock()

	return childID, attrs, nil
}

// createChild is shared by Create, Mkdir and CreateSymlink: it allocates
// a new inode, binds it into parent, and appends the directory entry.
func (e *Engine) createChild(parentID uint64, name string, mode uint16, dt fuseutil.DirentType) (*cachedInode, error) {
	if err := e.checkWritable(); err != nil {
		return nil, err
	}

	parent, err := e.loadInode(parentID)
	if err != nil {
		return nil, err
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	if !parent.inode.IsDir() {
		return nil, aegisfserr.New(aegisfserr.KindNotADirectory, "inode %d is not a directory", parentID)
	}
	if err := e.loadChildren(parent); err != nil {
		return nil, err
	}
	if _, exists := parent.children[name]; exists {
		return nil, aegisfserr.New(aegisfserr.KindExist, "entry %q already exists", name)
	}

	id, err := e.disk.AllocateInode()
	if err != nil {
		return nil, err
	}

	now := uint32(e.clk.Now().Unix())
	ino := &ondisk.Inode{
		Mode:  mode,
		Links: 1,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	if dt == fuseutil.DT_Directory {
		ino.Links = 2 // self "." entry, conventionally pre-counted
	}

	if err := e.disk.WriteInode(id, ino); err != nil {
		e.disk.FreeInode(id)
		return nil, err
	}

	if dt == fuseutil.DT_Directory {
		var entries []byte
		entries, _ = ondisk.EncodeDirent(entries, id, fuseutil.DT_Directory, ".")
		entries, _ = ondisk.EncodeDirent(entries, id, fuseutil.DT_Directory, "..")
		if err := e.disk.WriteFileData(ino, 0, entries); err != nil {
			e.disk.FreeInode(id)
			return nil, err
		}
		if err := e.disk.WriteInode(id, ino); err != nil {
			e.disk.FreeInode(id)
			return nil, err
		}
		parent.inode.Links++
	}

	if err := e.disk.AppendDirEntry(parent.inode, id, dt, name); err != nil {
		e.disk.FreeInode(id)
		return nil, err
	}
	parent.children[name] = id
	parent.markDirty()

	c := newCachedInode(id, ino)
	c.childrenLoaded = dt == fuseutil.DT_Directory
	c.lookupCount = 1
	e.mu.Lock()
	e.inodes[id] = c
	e.mu.Unlock()

	e.scheduleDeferredFlush()
	return c, nil
}

// Create makes a new regular file named name inside parentID.
func (e *Engine) Create(parentID uint64, name string, perm uint16, uid, gid uint32) (uint64, fuseops.InodeAttributes, error) {
	c, err := e.createChild(parentID, name, uint16(ondisk.TypeRegular)|perm, fuseutil.DT_File)
	if err != nil {
		return 0, fuseops.InodeAttributes{}, err
	}
	c.mu.Lock()
	c.inode.UID, c.inode.GID = uid, gid
	attrs := attrsFromInode(c.inode)
	c.mu.Unlock()
	return c.id, attrs, nil
}

// Mkdir makes a new subdirectory named name inside parentID.
func (e *Engine) Mkdir(parentID uint64, name string, perm uint16, uid, gid uint32) (uint64, fuseops.InodeAttributes, error) {
	c, err := e.createChild(parentID, name, uint16(ondisk.TypeDirectory)|perm, fuseutil.DT_Directory)
	if err != nil {
		return 0, fuseops.InodeAttributes{}, err
	}
	c.mu.Lock()
	c.inode.UID, c.inode.GID = uid, gid
	attrs := attrsFromInode(c.inode)
	c.mu.Unlock()
	return c.id, attrs, nil
}

// CreateSymlink makes a new symlink named name inside parentID pointing
// at target.
func (e *Engine) CreateSymlink(parentID uint64, name, target string, uid, gid uint32) (uint64, fuseops.InodeAttributes, error) {
	c, err := e.createChild(parentID, name, uint16(ondisk.TypeSymlink)|0777, fuseutil.DT_Link)
	if err != nil {
		return 0, fuseops.InodeAttributes{}, err
	}

	c.mu.Lock()
	c.inode.UID, c.inode.GID = uid, gid
	c.symlinkTarget = target
	c.mu.Unlock()

	if err := e.disk.WriteFileData(c.inode, 0, []byte(target)); err != nil {
		return 0, fuseops.InodeAttributes{}, err
	}
	if err := e.disk.WriteInode(c.id, c.inode); err != nil {
		return 0, fuseops.InodeAttributes{}, err
	}

	c.mu.Lock()
	attrs := attrsFromInode(c.inode)
	c.mu.Unlock()
	return c.id, attrs, nil
}

// ReadSymlink returns a symlink inode's target path.
func (e *Engine) ReadSymlink(id uint64) (string, error) {
	c, err := e.loadInode(id)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inode.IsSymlink() {
		return "", aegisfserr.New(aegisfserr.KindParameter, "inode %d is not a symlink", id)
	}
	if c.symlinkTarget != "" {
		return c.symlinkTarget, nil
	}
	buf, err := e.disk.ReadFileData(c.inode, 0, c.inode.Size)
	if err != nil {
		return "", err
	}
	c.symlinkTarget = string(buf)
	return c.symlinkTarget, nil
}

// removeEntry is shared by Unlink and Rmdir.
func (e *Engine) removeEntry(parentID uint64, name string, requireDir bool) error {
	if err := e.checkWritable(); err != nil {
		return err
	}

	parent, err := e.loadInode(parentID)
	if err != nil {
		return err
	}

	parent.mu.Lock()
	if err := e.loadChildren(parent); err != nil {
		parent.mu.Unlock()
		return err
	}
	childID, ok := parent.children[name]
	if !ok {
		parent.mu.Unlock()
		return aegisfserr.New(aegisfserr.KindNotFound, "no such entry %q", name)
	}
	parent.mu.Unlock()

	child, err := e.loadInode(childID)
	if err != nil {
		return err
	}

	child.mu.Lock()
	isDir := child.inode.IsDir()
	if requireDir && !isDir {
		child.mu.Unlock()
		return aegisfserr.New(aegisfserr.KindNotADirectory, "%q is not a directory", name)
	}
	if !requireDir && isDir {
		child.mu.Unlock()
		return aegisfserr.New(aegisfserr.KindIsADirectory, "%q is a directory", name)
	}
	if isDir {
		if err := e.loadChildren(child); err != nil {
			child.mu.Unlock()
			return err
		}
		if len(child.children) > 0 {
			child.mu.Unlock()
			return aegisfserr.New(aegisfserr.KindNotEmpty, "directory %q is not empty", name)
		}
	}
	child.mu.Unlock()

	parent.mu.Lock()
	if _, err := e.disk.RemoveDirEntry(parent.inode, name); err != nil {
		parent.mu.Unlock()
		return err
	}
	delete(parent.children, name)
	if isDir {
		parent.inode.Links--
	}
	parent.markDirty()
	parent.mu.Unlock()

	child.mu.Lock()
	child.inode.Links--
	linksLeft := child.inode.Links
	if linksLeft == 0 {
		child.state = StatePendingFree
	} else {
		child.markDirty()
	}
	ino := child.inode
	child.mu.Unlock()

	if linksLeft == 0 {
		if err := e.disk.FreeInode(childID); err != nil {
			return err
		}
		e.mu.Lock()
		delete(e.inodes, childID)
		e.mu.Unlock()
	} else if err := e.disk.WriteInode(childID, ino); err != nil {
		return err
	}

	e.scheduleDeferredFlush()
	return nil
}

// Unlink removes a file or symlink entry.
func (e *Engine) Unlink(parentID uint64, name string) error {
	return e.removeEntry(parentID, name, false)
}

// Rmdir removes an empty subdirectory entry.
func (e *Engine) Rmdir(parentID uint64, name string) error {
	return e.removeEntry(parentID, name, true)
}

// Rename re-binds oldName in oldParentID to newName in newParentID.
func (e *Engine) Rename(oldParentID uint64, oldName string, newParentID uint64, newName string) error {
	if err := e.checkWritable(); err != nil {
		return err
	}

	oldParent, err := e.loadInode(oldParentID)
	if err != nil {
		return err
	}

	if oldParentID == newParentID {
		oldParent.mu.Lock()
		defer oldParent.mu.Unlock()
		if err := e.loadChildren(oldParent); err != nil {
			return err
		}
		childID, ok := oldParent.children[oldName]
		if !ok {
			return aegisfserr.New(aegisfserr.KindNotFound, "no such entry %q", oldName)
		}
		if err := e.disk.RenameDirEntry(oldParent.inode, oldName, newName); err != nil {
			return err
		}
		delete(oldParent.children, oldName)
		oldParent.children[newName] = childID
		oldParent.markDirty()
		e.scheduleDeferredFlush()
		return nil
	}

	newParent, err := e.loadInode(newParentID)
	if err != nil {
		return err
	}

	oldParent.mu.Lock()
	if err := e.loadChildren(oldParent); err != nil {
		oldParent.mu.Unlock()
		return err
	}
	childID, ok := oldParent.children[oldName]
	if !ok {
		oldParent.mu.Unlock()
		return aegisfserr.New(aegisfserr.KindNotFound, "no such entry %q", oldName)
	}
	if _, err := e.disk.RemoveDirEntry(oldParent.inode, oldName); err != nil {
		oldParent.mu.Unlock()
		return err
	}
	delete(oldParent.children, oldName)
	oldParent.markDirty()
	oldParent.mu.Unlock()

	child, err := e.loadInode(childID)
	if err != nil {
		return err
	}
	child.mu.Lock()
	dt := direntTypeForChild(child.inode)
	child.mu.Unlock()

	newParent.mu.Lock()
	if err := e.loadChildren(newParent); err != nil {
		newParent.mu.Unlock()
		return err
	}
	if err := e.disk.AppendDirEntry(newParent.inode, childID, dt, newName); err != nil {
		newParent.mu.Unlock()
		return err
	}
	newParent.children[newName] = childID
	newParent.markDirty()
	newParent.mu.Unlock()

	e.scheduleDeferredFlush()
	return nil
}

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	InodeID uint64
	Name    string
	Type    fuseutil.DirentType
}

// ReadDir returns dir's entries in on-disk order, "." and ".." first.
func (e *Engine) ReadDir(id uint64) ([]DirEntry, error) {
	c, err := e.loadInode(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inode.IsDir() {
		return nil, aegisfserr.New(aegisfserr.KindNotADirectory, "inode %d is not a directory", id)
	}

	raw, err := e.disk.ReadDirEntries(c.inode)
	if err != nil {
		return nil, err
	}

	out := make([]DirEntry, 0, len(raw))
	for _, d := range raw {
		out = append(out, DirEntry{InodeID: d.InodeID, Name: d.Name, Type: d.Type})
	}
	return out, nil
}
