package hnsw

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Some items and their priorities.
var queueDistances = []float32{0.4, 9, 0.001, 0.0534, 0.234, 2.03, 2.042, 2.532, 1.0009, 0.329, 0.193, 0.999, 0.020391, 2.0991, 1.203, 10.03, 1.039, 1.0008, 5.029, 0.789}

func fillQueue(pq *PriorityQueue) {
	heap.Init(pq)

	for k, d := range queueDistances {
		heap.Push(pq, &PriorityQueueItem{
			Node:     uint32(k),
			Distance: d,
		})
	}
}

func TestPriorityQueueMaxOrder(t *testing.T) {
	pq := &PriorityQueue{Order: true}
	fillQueue(pq)

	top, _ := pq.Top().(*PriorityQueueItem)

	assert.Equal(t, float32(10.03), top.Distance)
	assert.Equal(t, uint32(15), top.Node)
	assert.Equal(t, 20, pq.Len())

	// Pruning a max-heap drops the furthest candidates first.
	for pq.Len() > 10 {
		heap.Pop(pq)
	}

	top, _ = pq.Top().(*PriorityQueueItem)

	assert.Equal(t, float32(1.0008), top.Distance)
	assert.Equal(t, uint32(17), top.Node)

	// The last remaining element is the closest one.
	for pq.Len() > 1 {
		heap.Pop(pq)
	}

	top, _ = pq.Top().(*PriorityQueueItem)

	assert.Equal(t, float32(0.001), top.Distance)
	assert.Equal(t, uint32(2), top.Node)

	heap.Pop(pq)
	assert.Equal(t, 0, pq.Len())
}

func TestPriorityQueueMinOrder(t *testing.T) {
	pq := &PriorityQueue{Order: false}
	fillQueue(pq)

	top, _ := pq.Top().(*PriorityQueueItem)

	assert.Equal(t, float32(0.001), top.Distance)
	assert.Equal(t, uint32(2), top.Node)
	assert.Equal(t, 20, pq.Len())

	// Pruning a min-heap drops the closest candidates first.
	for pq.Len() > 10 {
		heap.Pop(pq)
	}

	top, _ = pq.Top().(*PriorityQueueItem)

	assert.Equal(t, float32(1.0009), top.Distance)
	assert.Equal(t, uint32(8), top.Node)

	for pq.Len() > 1 {
		heap.Pop(pq)
	}

	top, _ = pq.Top().(*PriorityQueueItem)

	assert.Equal(t, float32(10.03), top.Distance)
	assert.Equal(t, uint32(15), top.Node)
}

func TestPriorityQueuePopEmpty(t *testing.T) {
	pq := &PriorityQueue{}
	heap.Init(pq)

	assert.Nil(t, pq.Pop())
}
