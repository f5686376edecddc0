package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	q := Queue[int]{}
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, q.Len())
}

func TestQueueDequeueEmpty(t *testing.T) {
	q := Queue[string]{}
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestQueueRemove(t *testing.T) {
	q := Queue[int]{}
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	removed := q.Remove(func(v int) bool { return v == 2 })
	assert.True(t, removed)
	assert.Equal(t, 2, q.Len())

	remaining := q.Drain()
	assert.Equal(t, []int{1, 3}, remaining)
	assert.Equal(t, 0, q.Len())
}

func TestQueueRemoveMissing(t *testing.T) {
	q := Queue[int]{}
	q.Enqueue(1)
	assert.False(t, q.Remove(func(v int) bool { return v == 99 }))
}

func TestNewWithCapacityStartsEmpty(t *testing.T) {
	q := NewWithCapacity[int](8)
	assert.Equal(t, 0, q.Len())

	q.Enqueue(1)
	q.Enqueue(2)
	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, q.Len())
}

func TestNewWithCapacityNonPositive(t *testing.T) {
	q := NewWithCapacity[int](0)
	assert.Equal(t, 0, q.Len())
	q.Enqueue(1)
	assert.Equal(t, 1, q.Len())
}
