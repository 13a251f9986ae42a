package tree

import (
	"container/heap"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestMinHeap(t *testing.T) {
	minHeap := NewMinHeap(10)

	for i := 9; i >= 0; i-- {
		heap.Push(minHeap, &HeapItem{Key: int64(i / 2), Rank: i % 2, Value: i})
	}

	first := heap.Pop(minHeap).(*HeapItem)
	assert.Equal(t, 0, first.Value)
	assert.Equal(t, -1, first.Index)

	expected := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	for _, value := range expected {
		item := heap.Pop(minHeap).(*HeapItem)
		assert.Equal(t, value, item.Value)
	}
	assert.Equal(t, 0, minHeap.Len())
}

func TestMinHeap_RankBreaksTies(t *testing.T) {
	minHeap := NewMinHeap(4)
	heap.Push(minHeap, &HeapItem{Key: 5, Rank: 1, Value: 1})
	heap.Push(minHeap, &HeapItem{Key: 5, Rank: 0, Value: 2})
	heap.Push(minHeap, &HeapItem{Key: 4, Rank: 1, Value: 3})

	assert.Equal(t, 3, heap.Pop(minHeap).(*HeapItem).Value)
	assert.Equal(t, 2, heap.Pop(minHeap).(*HeapItem).Value)
	assert.Equal(t, 1, heap.Pop(minHeap).(*HeapItem).Value)
}
