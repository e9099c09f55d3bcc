// Package blockcache implements the bounded, read-through/write-through
// block cache that sits between the on-disk layout (C4/C5) and the raw
// block device (C1). It is deliberately write-through, not write-back:
// write-back buffering of file data lives one layer up, in the VFS engine,
// so that anything reading through the cache always sees the latest bytes.
package blockcache

import (
	"sync"

	"github.com/reekid420/AegisFS/internal/blockdev"
	"github.com/reekid420/AegisFS/internal/lrucache"
)

// DefaultCapacity is the default number of cached blocks (1024 entries of
// 4 KiB blocks is ~4 MiB resident).
const DefaultCapacity = 1024

type cachedBlock struct {
	data []byte
}

// numStripes bounds the number of per-block locks, mirroring blockdev's
// striping so that concurrent readers/writers of distinct blocks do not
// contend on the same lock.
const numStripes = 256

// Cache wraps a blockdev.Device with a bounded LRU of recently-used blocks.
// Reads populate the cache; writes update the cache entry and synchronously
// write through to the device, so a reader never observes stale bytes.
type Cache struct {
	dev      blockdev.Device
	mu       sync.Mutex
	lru      *lrucache.Cache[uint64, cachedBlock]
	stripes  [numStripes]sync.Mutex
}

// New wraps dev with an LRU cache bounded to capacity entries.
func New(dev blockdev.Device, capacity uint64) *Cache {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		dev: dev,
		lru: lrucache.New[uint64, cachedBlock](capacity),
	}
}

func (c *Cache) stripeFor(idx uint64) *sync.Mutex {
	return &c.stripes[idx%numStripes]
}

// ReadBlock returns the contents of block idx, populating the cache on a
// miss.
func (c *Cache) ReadBlock(idx uint64) ([]byte, error) {
	stripe := c.stripeFor(idx)
	stripe.Lock()
	defer stripe.Unlock()

	c.mu.Lock()
	if cb, ok := c.lru.LookUp(idx); ok {
		c.mu.Unlock()
		out := make([]byte, len(cb.data))
		copy(out, cb.data)
		return out, nil
	}
	c.mu.Unlock()

	data, err := c.dev.ReadBlock(idx)
	if err != nil {
		return nil, err
	}

	cached := make([]byte, len(data))
	copy(cached, data)

	c.mu.Lock()
	c.lru.Insert(idx, cachedBlock{data: cached})
	c.mu.Unlock()

	return data, nil
}

// WriteBlock writes data for block idx through to the device and updates
// the cache entry so subsequent reads (including concurrent ones on other
// blocks) see the new bytes immediately.
func (c *Cache) WriteBlock(idx uint64, data []byte) error {
	stripe := c.stripeFor(idx)
	stripe.Lock()
	defer stripe.Unlock()

	if err := c.dev.WriteBlock(idx, data); err != nil {
		return err
	}

	cached := make([]byte, len(data))
	copy(cached, data)

	c.mu.Lock()
	c.lru.Insert(idx, cachedBlock{data: cached})
	c.mu.Unlock()

	return nil
}

// Flush delegates to the underlying device; the cache itself has nothing
// to flush since it is write-through.
func (c *Cache) Flush() error {
	return c.dev.Flush()
}

// Evict drops idx from the cache without touching the device, used by
// callers (the allocator, on free) that know a block's previous contents
// are no longer meaningful.
func (c *Cache) Evict(idx uint64) {
	stripe := c.stripeFor(idx)
	stripe.Lock()
	defer stripe.Unlock()

	c.mu.Lock()
	c.lru.Erase(idx)
	c.mu.Unlock()
}

// BlockSize, NumBlocks and Device expose the underlying device's
// properties/handle to higher layers that need them (e.g. layout
// computation, Close on unmount).
func (c *Cache) BlockSize() uint32        { return c.dev.BlockSize() }
func (c *Cache) NumBlocks() uint64        { return c.dev.NumBlocks() }
func (c *Cache) Device() blockdev.Device  { return c.dev }
