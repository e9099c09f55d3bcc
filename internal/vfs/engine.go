package vfs

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"

	"github.com/reekid420/AegisFS/internal/clock"
	"github.com/reekid420/AegisFS/internal/diskfs"
	"github.com/reekid420/AegisFS/internal/ondisk"
)

// InlineThreshold is the file size, in bytes, below which a file's
// contents are held entirely in its cache entry's inline buffer.
const InlineThreshold = 4096

// Engine is the write-back VFS cache sitting between the kernel adapter
// and the durable disk layer. It owns the inode cache and the
// write-back buffer, and runs the background and deferred flushers.
type Engine struct {
	disk *diskfs.DiskFS
	clk  clock.Clock

	// mu guards inodes. Its invariant check walks the map on every
	// Unlock, in the style of gcsfuse's fs.fileSystem.mu.
	mu     syncutil.InvariantMutex
	inodes map[uint64]*cachedInode

	wb *writebackBuffer

	flushSignal chan struct{}
	stopCh      chan struct{}
	wg          sync.WaitGroup

	readOnly     atomic.Bool
	lastFlushErr atomic.Value
}

// NewEngine constructs an Engine over an already-mounted disk layer and
// starts its background and deferred flushers. Callers must call Close
// to stop them and flush anything still pending.
func NewEngine(disk *diskfs.DiskFS, clk clock.Clock) *Engine {
	e := &Engine{
		disk:        disk,
		clk:         clk,
		inodes:      make(map[uint64]*cachedInode),
		wb:          newWritebackBuffer(),
		flushSignal: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
	e.mu = syncutil.NewInvariantMutex(e.checkInvariants)

	e.wg.Add(2)
	go e.runDeferredFlusher()
	go e.runPeriodicFlusher(DefaultFlushInterval)

	return e
}

// Close stops the background flushers and performs one final synchronous
// flush, matching destroy's "final synchronous flush" requirement.
func (e *Engine) Close() error {
	close(e.stopCh)
	e.wg.Wait()
	return e.flushWrites()
}

// Fsync flushes any pending writes for id and returns only once they are
// durable, satisfying the deferred-flush liveness property: a caller
// that calls Fsync after a write observes that write on a subsequent
// mount even if the process is killed immediately afterward.
func (e *Engine) Fsync(id uint64) error {
	return e.flushWrites()
}

// checkInvariants is invoked by mu on every Unlock; it catches a cache
// entry drifting to a different key than the one it was stored under.
func (e *Engine) checkInvariants() {
	for id, c := range e.inodes {
		if c.id != id {
			panic("vfs: cachedInode.id does not match its map key")
		}
	}
}

func (e *Engine) getLocked(id uint64) (*cachedInode, bool) {
	e.mu.Lock()
	c, ok := e.inodes[id]
	e.mu.Unlock()
	return c, ok
}

// loadInode returns the cache entry for id, reading it from disk on a
// cache miss.
func (e *Engine) loadInode(id uint64) (*cachedInode, error) {
	if c, ok := e.getLocked(id); ok {
		return c, nil
	}

	ino, err := e.disk.ReadInode(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.inodes[id]; ok {
		return c, nil
	}
	c := newCachedInode(id, ino)
	e.inodes[id] = c
	return c, nil
}

// forgetIfUnused drops id from the cache once its lookup count reaches
// zero, unless it is pending-free (in which case diskfs.FreeInode has
// already run and there is nothing further to track) or dirty (in which
// case the flusher still needs to find it via e.inodes).
func (e *Engine) forgetIfUnused(c *cachedInode) {
	c.mu.Lock()
	unused := c.lookupCount == 0 && c.state == StateClean
	c.mu.Unlock()
	if !unused {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.inodes[c.id]; ok && cur == c {
		cur.mu.Lock()
		stillUnused := cur.lookupCount == 0 && cur.state == StateClean
		cur.mu.Unlock()
		if stillUnused {
			delete(e.inodes, c.id)
		}
	}
}

// Forget decrements id's kernel lookup count by n, dropping it from the
// cache if it reaches zero and there is nothing dirty to preserve it for.
func (e *Engine) Forget(id uint64, n uint64) {
	c, ok := e.getLocked(id)
	if !ok {
		return
	}
	c.mu.Lock()
	if n >= c.lookupCount {
		c.lookupCount = 0
	} else {
		c.lookupCount -= n
	}
	c.mu.Unlock()
	e.forgetIfUnused(c)
}

// GetAttr returns the cached attributes for id.
func (e *Engine) GetAttr(id uint64) (fuseops.InodeAttributes, error) {
	c, err := e.loadInode(id)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return attrsFromInode(c.inode), nil
}

// SetAttrRequest carries the optional fields a SetInodeAttributes call
// may set; nil fields are left unchanged.
type SetAttrRequest struct {
	Size  *uint64
	Mode  *os.FileMode
	Uid   *uint32
	Gid   *uint32
	Atime *time.Time
	Mtime *time.Time
}

// SetAttr applies req to id's cached inode, truncating via the disk
// layer on a size decrease and marking the inode dirty.
func (e *Engine) SetAttr(id uint64, req SetAttrRequest) (fuseops.InodeAttributes, error) {
	if err := e.checkWritable(); err != nil {
		return fuseops.InodeAttributes{}, err
	}

	c, err := e.loadInode(id)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}

	c.mu.Lock()
	now := e.clk.Now()
	applySetAttr(c.inode, req.Size, req.Mode, req.Uid, req.Gid, req.Atime, req.Mtime, now)
	if req.Size != nil {
		if *req.Size < c.inode.Size {
			if err := e.disk.Truncate(c.inode, *req.Size); err != nil {
				c.mu.Unlock()
				return fuseops.InodeAttributes{}, err
			}
		} else if *req.Size > c.inode.Size {
			c.inode.Size = *req.Size
		}
	}
	c.markDirty()
	attrs := attrsFromInode(c.inode)
	c.mu.Unlock()

	e.scheduleDeferredFlush()
	return attrs, nil
}

// StatFS returns a point-in-time snapshot of the volume's free-space
// counters for the statfs callback.
func (e *Engine) StatFS() ondisk.Superblock {
	return e.disk.Superblock()
}
