package common_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reekid420/AegisFS/internal/common"
)

func TestQueuePushPopOrder(t *testing.T) {
	q := common.NewLinkedListQueue[int]()

	assert.True(t, q.IsEmpty())
	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.False(t, q.IsEmpty())
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, 1, q.PeekStart())
	assert.Equal(t, 3, q.PeekEnd())

	assert.Equal(t, 1, q.Pop())
	assert.Equal(t, 2, q.Pop())
	assert.Equal(t, 3, q.Pop())
	assert.True(t, q.IsEmpty())
}

func TestQueuePopEmptyPanics(t *testing.T) {
	q := common.NewLinkedListQueue[int]()
	require.Panics(t, func() { q.Pop() })
}
