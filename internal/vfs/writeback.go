package vfs

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
	"github.com/reekid420/AegisFS/internal/common"
)

const (
	// DefaultFlushInterval is how often the background flusher drains the
	// write-back queue even if nothing has signalled it.
	DefaultFlushInterval = 5 * time.Second

	// deferredFlushDelay is how long the deferred-flush worker waits
	// after being signalled before it actually flushes, giving the
	// signalling callback time to release whatever cache lock it held.
	deferredFlushDelay = 10 * time.Millisecond

	// highWaterMarkBytes is the resident write-back byte count above
	// which new writes trigger a synchronous flush instead of relying on
	// the periodic or deferred flusher.
	highWaterMarkBytes = 64 << 20

	maxFlushRetries = 3
)

// writeEntry is one queued, not-yet-durable write.
type writeEntry struct {
	inodeID  uint64
	offset   uint64
	data     []byte
	queuedAt time.Time
}

// writebackBuffer is the ordered queue of pending writes described in the
// specification's VFS-engine section. All queue mutation happens under
// mu; flushing drains the queue and releases mu before doing any device
// I/O, so the flusher never holds the queue lock across a disk write.
type writebackBuffer struct {
	mu            sync.Mutex
	entries       common.Queue[*writeEntry]
	residentBytes uint64

	flushing atomic.Bool
}

func newWritebackBuffer() *writebackBuffer {
	return &writebackBuffer{entries: common.NewLinkedListQueue[*writeEntry]()}
}

// enqueue appends a write and reports whether the resident byte count has
// crossed the high-water mark, in which case the caller must flush
// synchronously before returning to the kernel.
func (w *writebackBuffer) enqueue(id uint64, offset uint64, data []byte) (overHighWaterMark bool) {
	cp := make([]byte, len(data))
	copy(cp, data)

	w.mu.Lock()
	w.entries.Push(&writeEntry{inodeID: id, offset: offset, data: cp, queuedAt: time.Now()})
	w.residentBytes += uint64(len(cp))
	over := w.residentBytes > highWaterMarkBytes
	w.mu.Unlock()

	return over
}

// drain removes and returns every currently-queued entry, in order.
func (w *writebackBuffer) drain() []*writeEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]*writeEntry, 0, w.entries.Len())
	for !w.entries.IsEmpty() {
		out = append(out, w.entries.Pop())
	}
	w.residentBytes = 0
	return out
}

// coalesceByInode groups a drained entry slice by inode id, preserving
// per-inode write order, matching the flusher's "coalesce contiguous
// writes to the same inode" requirement. Entries are not merged into
// fewer byte ranges here; diskfs.WriteFileData already handles arbitrary
// offsets efficiently, so coalescing here means "flush together and in
// order", not "byte-range merge".
func coalesceByInode(entries []*writeEntry) (order []uint64, byInode map[uint64][]*writeEntry) {
	byInode = make(map[uint64][]*writeEntry)
	for _, e := range entries {
		if _, ok := byInode[e.inodeID]; !ok {
			order = append(order, e.inodeID)
		}
		byInode[e.inodeID] = append(byInode[e.inodeID], e)
	}
	return order, byInode
}

// flushWrites drains the write-back buffer and delegates every entry to
// disk, retrying each inode's batch up to maxFlushRetries times with
// exponential backoff. It is idempotent (a no-op on an empty buffer) and
// never runs concurrently with itself: the wb.flushing flag admits one
// flush at a time, and a caller that finds a flush under way waits for it
// to finish before draining, so every write queued before the call has
// reached disk when it returns.
func (e *Engine) flushWrites() error {
	for !e.wb.flushing.CompareAndSwap(false, true) {
		time.Sleep(time.Millisecond)
	}
	defer e.wb.flushing.Store(false)

	entries := e.wb.drain()
	if len(entries) == 0 {
		return nil
	}

	order, byInode := coalesceByInode(entries)

	var firstErr error
	for _, id := range order {
		if err := e.flushInode(id, byInode[id]); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		e.enterReadOnly(firstErr)
		return firstErr
	}

	return nil
}

func (e *Engine) flushInode(id uint64, writes []*writeEntry) error {
	e.mu.Lock()
	c, ok := e.inodes[id]
	e.mu.Unlock()
	if !ok {
		// Forgotten before its writes drained; nothing left to flush to.
		return nil
	}

	backoff := 10 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxFlushRetries; attempt++ {
		lastErr = e.flushInodeOnce(c, writes)
		if lastErr == nil {
			return nil
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}

func (e *Engine) flushInodeOnce(c *cachedInode, writes []*writeEntry) error {
	c.mu.Lock()
	ino := c.inode
	c.mu.Unlock()

	for _, w := range writes {
		if err := e.disk.WriteFileData(ino, w.offset, w.data); err != nil {
			return err
		}
	}

	if err := e.disk.WriteInode(c.id, ino); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateDirty {
		c.state = StateClean
	}
	c.mu.Unlock()

	return nil
}

// enterReadOnly latches the filesystem read-only after a flush has
// exhausted its retries, matching the specification's failure policy.
func (e *Engine) enterReadOnly(cause error) {
	e.readOnly.Store(true)
	e.lastFlushErr.Store(&cause)
}

func (e *Engine) checkWritable() error {
	if e.readOnly.Load() {
		return aegisfserr.Wrap(aegisfserr.KindReadOnlyFilesystem, e.flushErr(), "filesystem latched read-only after a persistent flush failure")
	}
	return nil
}

func (e *Engine) flushErr() error {
	if p, ok := e.lastFlushErr.Load().(*error); ok && p != nil {
		return *p
	}
	return nil
}

// scheduleDeferredFlush signals the deferred-flush worker without
// blocking. It must be called only after the caller has released every
// cache lock it was holding: this is the deadlock-avoidance mechanism
// described for the VFS engine. A full channel means a flush is already
// pending, which is fine to coalesce.
func (e *Engine) scheduleDeferredFlush() {
	select {
	case e.flushSignal <- struct{}{}:
	default:
	}
}

// runDeferredFlusher waits deferredFlushDelay after each signal before
// flushing, then loops. It exits when stopCh is closed.
func (e *Engine) runDeferredFlusher() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.flushSignal:
			select {
			case <-e.stopCh:
				return
			case <-time.After(deferredFlushDelay):
			}
			_ = e.flushWrites()
		}
	}
}

// runPeriodicFlusher drains the write-back buffer on a fixed interval
// regardless of whether anything signalled it.
func (e *Engine) runPeriodicFlusher(interval time.Duration) {
	defer e.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			_ = e.flushWrites()
		}
	}
}
