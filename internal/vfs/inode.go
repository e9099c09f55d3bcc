// Package vfs implements the in-memory write-back caching engine that sits
// between the kernel adapter (internal/fuseadapter) and the durable disk
// layer (internal/diskfs). It owns the inode cache, the write-back buffer,
// and the deferred-flush scheduler described in the specification's
// concurrency design.
package vfs

import (
	"sync"
	"time"

	"github.com/jacobsa/fuse/fuseutil"

	"github.com/reekid420/AegisFS/internal/ondisk"
)

// State is the lifecycle state of a cached inode.
type State int

const (
	// StateClean means the cache entry agrees with what's on disk.
	StateClean State = iota
	// StateDirty means local changes have not yet been flushed.
	StateDirty
	// StatePendingFree means link count reached zero; removeEntry frees
	// the inode on disk right away and drops it from the cache.
	StatePendingFree
)

// cachedInode is the in-memory mirror of one on-disk inode, plus the
// bookkeeping the VFS engine needs on top of it.
type cachedInode struct {
	// mu guards inode and the fields below against the background
	// flusher racing a concurrent callback; the engine's own mu only
	// guards the cache map itself.
	mu    sync.Mutex
	id    uint64
	inode *ondisk.Inode

	// children is populated lazily from directory reads for directory
	// inodes; nil for non-directories. It is a cache over the on-disk
	// directory data, which remains authoritative.
	children map[string]uint64
	childrenLoaded bool

	// inline holds the full contents of small files (<= the small-file
	// threshold). Larger files are never inlined and always read through
	// diskfs.
	inline       []byte
	inlineLoaded bool

	symlinkTarget string

	state      State
	lastAccess time.Time
	lookupCount uint64
}

func newCachedInode(id uint64, ino *ondisk.Inode) *cachedInode {
	c := &cachedInode{id: id, inode: ino, state: StateClean}
	if ino.IsDir() {
		c.children = make(map[string]uint64)
	}
	return c
}

func (c *cachedInode) markDirty() {
	if c.state != StatePendingFree {
		c.state = StateDirty
	}
}

func direntTypeForChild(ino *ondisk.Inode) fuseutil.DirentType {
	return ondisk.FileTypeForMode(ino.Mode)
}
