package hnsw

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem pairs a node ID with its distance to the query vector.
type PriorityQueueItem struct {
	Node     uint32  // Node is the graph-assigned element ID.
	Distance float32 // Distance is the priority of the item in the queue.
	Index    int     // Index is maintained by the heap.Interface methods.
}

// PriorityQueue implements heap.Interface over candidate nodes. With Order
// false the closest candidate is on top (min-heap), with Order true the
// furthest (max-heap). Search keeps its working set in a max-heap so the
// worst candidate can be evicted cheaply when a closer one turns up.
type PriorityQueue struct {
	Order bool
	Items []*PriorityQueueItem
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	if pq.Order {
		return pq.Items[i].Distance > pq.Items[j].Distance
	}

	return pq.Items[i].Distance < pq.Items[j].Distance
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j
}

// Push adds x to the priority queue.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*PriorityQueueItem)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the top element from the priority queue.
func (pq *PriorityQueue) Pop() any {
	if len(pq.Items) == 0 {
		return nil
	}

	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.Index = -1
	pq.Items = old[:n-1]

	return item
}

// Top returns the top element without removing it.
func (pq *PriorityQueue) Top() any {
	return pq.Items[0]
}
