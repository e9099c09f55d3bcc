package lrucache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reekid420/AegisFS/internal/lrucache"
)

type sizedValue struct {
	val  int64
	size uint64
}

func (s sizedValue) Size() uint64 { return s.size }

func TestLookUpInEmptyCache(t *testing.T) {
	c := lrucache.New[string, sizedValue](50)

	_, ok := c.LookUp("taco")
	assert.False(t, ok)
}

func TestFillUpToCapacity(t *testing.T) {
	c := lrucache.New[string, sizedValue](50)

	c.Insert("burrito", sizedValue{val: 23, size: 4})
	c.Insert("taco", sizedValue{val: 26, size: 20})
	c.Insert("enchilada", sizedValue{val: 28, size: 26})

	v, ok := c.LookUp("burrito")
	assert.True(t, ok)
	assert.EqualValues(t, 23, v.val)
}

func TestExpiresLeastRecentlyUsed(t *testing.T) {
	c := lrucache.New[string, sizedValue](50)

	c.Insert("burrito", sizedValue{val: 23, size: 4})
	c.Insert("taco", sizedValue{val: 26, size: 20})      // Least recently used.
	c.Insert("enchilada", sizedValue{val: 28, size: 26}) // Second most recent.

	_, ok := c.LookUp("burrito") // Most recent now.
	assert.True(t, ok)

	c.Insert("queso", sizedValue{val: 34, size: 5})

	_, ok = c.LookUp("taco")
	assert.False(t, ok)

	_, ok = c.LookUp("burrito")
	assert.True(t, ok)
	_, ok = c.LookUp("enchilada")
	assert.True(t, ok)
	_, ok = c.LookUp("queso")
	assert.True(t, ok)
}

func TestOverwriteReplacesValueAndSize(t *testing.T) {
	c := lrucache.New[string, sizedValue](50)

	evicted := c.Insert("burrito", sizedValue{val: 23, size: 4})
	assert.Empty(t, evicted)

	evicted = c.Insert("burrito", sizedValue{val: 33, size: 6})
	assert.Empty(t, evicted)

	v, ok := c.LookUp("burrito")
	assert.True(t, ok)
	assert.EqualValues(t, 33, v.val)

	c.CheckInvariants()
}

func TestEraseRemovesEntry(t *testing.T) {
	c := lrucache.New[string, sizedValue](50)
	c.Insert("burrito", sizedValue{val: 23, size: 4})

	v, ok := c.Erase("burrito")
	assert.True(t, ok)
	assert.EqualValues(t, 23, v.val)

	_, ok = c.LookUp("burrito")
	assert.False(t, ok)
}

func TestInsertEvictsUntilWithinCapacity(t *testing.T) {
	c := lrucache.New[int, sizedValue](10)

	evicted := c.Insert(1, sizedValue{val: 1, size: 4})
	assert.Empty(t, evicted)
	evicted = c.Insert(2, sizedValue{val: 2, size: 4})
	assert.Empty(t, evicted)
	evicted = c.Insert(3, sizedValue{val: 3, size: 4})
	assert.Len(t, evicted, 1)

	_, ok := c.LookUp(1)
	assert.False(t, ok, "oldest entry should have been evicted")

	c.CheckInvariants()
}

func TestEntryCountCapacityForUnsizedValues(t *testing.T) {
	c := lrucache.New[int, int](3)

	assert.Empty(t, c.Insert(1, 100))
	assert.Empty(t, c.Insert(2, 200))
	assert.Empty(t, c.Insert(3, 300))
	evicted := c.Insert(4, 400)
	assert.Equal(t, []int{100}, evicted)
	assert.Equal(t, 3, c.Len())
}
