// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate nearest neighbour search.
//
// The graph is built once per loaded collection and then serves reads for
// its whole cache lifetime. Insert takes an exclusive lock while searches
// share a read lock, so a finished graph never blocks readers against each
// other.
package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/quillon/vecport/metric"
)

// DimensionError reports a vector whose length does not match the graph.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("hnsw: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// DistanceFunc represents a function for calculating the distance between two vectors.
type DistanceFunc func(v1, v2 []float32) (float32, error)

// Node represents a single element of the graph. Connections holds the
// neighbour IDs per layer, index 0 being the base layer that contains every
// node.
type Node struct {
	Connections [][]uint32 // Links to other nodes
	Vector      []float32  // Vector (X dimensions)
	Layer       int        // Highest layer the node exists in
	ID          uint32     // Unique identifier
}

// Options represents the options for configuring the graph.
type Options struct {
	// M specifies the number of established connections for every new element during construction.
	// Reasonable range for M is 2-100. Higher M works better on datasets with high intrinsic
	// dimensionality and/or high recall, while low M works better for datasets with low intrinsic
	// dimensionality and/or low recalls. The range M=12-48 works for most embedding workloads.
	M int

	// EFConstruction specifies the size of the dynamic candidate list during insertion.
	// Larger values build a better connected graph at the cost of build time.
	EFConstruction int

	// Heuristic indicates whether to use the heuristic neighbour selection (true) or the
	// naive closest-M selection (false). The heuristic keeps links spread across clusters,
	// which preserves recall on clustered data.
	Heuristic bool

	// DistanceFunc is the metric the graph is built and searched with.
	DistanceFunc DistanceFunc

	// Capacity pre-allocates node storage for the expected element count.
	// A known capacity also caps the level draw at ceil(ln(n)/ln(M)), the
	// expected tallest tower for n elements.
	Capacity int
}

var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	Heuristic:      true,
	DistanceFunc:   metric.SquaredL2,
}

// HNSW represents the Hierarchical Navigable Small World graph.
type HNSW struct {
	dimension int
	mmax      int     // Max number of connections per element/per layer
	mmax0     int     // Max for the 0 layer
	ml        float64 // Normalization factor for level generation
	levelCap  int     // Upper bound for the level draw, -1 when unbounded
	ep        uint32  // Entry point, the node on the highest occupied layer
	maxLevel  int     // Highest occupied layer

	nodes []*Node

	opts Options

	mu sync.RWMutex
}

// New creates an empty graph for vectors of the given dimension.
func New(dimension int, optFns ...func(o *Options)) *HNSW {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M < 2 {
		// The level normalization divides by log(M).
		opts.M = 2
	}

	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}

	// With a known element count the tallest useful tower is
	// ceil(ln(n)/ln(M)); without one the draw stays unbounded.
	levelCap := -1
	if opts.Capacity > 0 {
		levelCap = int(math.Ceil(math.Log(float64(opts.Capacity)) / math.Log(float64(opts.M))))
	}

	return &HNSW{
		dimension: dimension,
		mmax:      opts.M,
		mmax0:     2 * opts.M,
		ml:        1 / math.Log(float64(opts.M)),
		levelCap:  levelCap,
		nodes:     make([]*Node, 0, opts.Capacity),
		opts:      opts,
	}
}

// Len returns the number of elements in the graph.
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.nodes)
}

// Dimension returns the vector dimensionality the graph was created with.
func (h *HNSW) Dimension() int {
	return h.dimension
}

// Vector returns the stored vector for id, or nil when id is out of range.
// The returned slice is the graph's own storage and must not be mutated.
func (h *HNSW) Vector(id uint32) []float32 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if int(id) >= len(h.nodes) {
		return nil
	}

	return h.nodes[id].Vector
}

// Insert adds a vector to the graph and returns its assigned ID. IDs are
// dense and follow insertion order, starting at zero.
func (h *HNSW) Insert(v []float32) (uint32, error) {
	if len(v) != h.dimension {
		return 0, &DimensionError{Expected: h.dimension, Actual: len(v)}
	}

	// The graph keeps its own copy so callers may reuse the slice.
	vectorCopy := make([]float32, len(v))
	copy(vectorCopy, v)

	h.mu.Lock()
	defer h.mu.Unlock()

	id := uint32(len(h.nodes))
	layer := h.randomLayer()

	node := &Node{
		ID:          id,
		Vector:      vectorCopy,
		Layer:       layer,
		Connections: make([][]uint32, layer+1),
	}

	// The first element becomes the entry point of the empty graph.
	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, node)
		h.ep = id
		h.maxLevel = layer

		return id, nil
	}

	// Greedy descent through the layers above the new node yields the entry
	// point for the candidate search below.
	currObj, currDist, err := h.descend(vectorCopy, h.nodes[h.ep], node.Layer)
	if err != nil {
		return 0, err
	}

	entry := &PriorityQueueItem{Distance: currDist, Node: currObj.ID}

	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		topCandidates := &PriorityQueue{}

		if err := h.searchLayer(vectorCopy, entry, topCandidates, h.opts.EFConstruction, level); err != nil {
			return 0, err
		}

		// Switch type, naive closest-M or heuristic selection for linking nearest neighbours
		if h.opts.Heuristic {
			if err := h.selectNeighboursHeuristic(topCandidates, h.opts.M, false); err != nil {
				return 0, err
			}
		} else {
			h.selectNeighboursSimple(topCandidates, h.opts.M)
		}

		node.Connections[level] = make([]uint32, topCandidates.Len())

		var closest *PriorityQueueItem

		for i := topCandidates.Len() - 1; i >= 0; i-- {
			candidate, _ := heap.Pop(topCandidates).(*PriorityQueueItem)
			node.Connections[level][i] = candidate.Node
			closest = candidate
		}

		// The best match on this level seeds the search one level down.
		if closest != nil {
			entry = closest
		}
	}

	h.nodes = append(h.nodes, node)

	// Next link the neighbour nodes back to our new node, making it visible
	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		for _, neighbour := range node.Connections[level] {
			if err := h.link(neighbour, id, level); err != nil {
				return 0, err
			}
		}
	}

	if node.Layer > h.maxLevel {
		h.ep = id
		h.maxLevel = node.Layer
	}

	return id, nil
}

// randomLayer draws the layer for a new node from the exponentially decaying
// distribution that gives the graph its logarithmic layer structure.
func (h *HNSW) randomLayer() int {
	// 1-Float64() keeps the log argument strictly positive.
	layer := int(math.Floor(-math.Log(1-rand.Float64()) * h.ml)) // nolint gosec

	if h.levelCap >= 0 && layer > h.levelCap {
		layer = h.levelCap
	}

	return layer
}

// descend walks greedily from start towards q, one layer at a time, until
// stopLayer (exclusive). It returns the closest node found and its distance.
func (h *HNSW) descend(q []float32, start *Node, stopLayer int) (*Node, float32, error) {
	currObj := start

	currDist, err := h.opts.DistanceFunc(currObj.Vector, q)
	if err != nil {
		return nil, 0, err
	}

	for level := start.Layer; level > stopLayer; level-- {
		changed := true
		for changed {
			changed = false

			if level >= len(currObj.Connections) {
				break
			}

			for _, nodeID := range currObj.Connections[level] {
				newObj := h.nodes[nodeID]

				newDist, err := h.opts.DistanceFunc(newObj.Vector, q)
				if err != nil {
					return nil, 0, err
				}

				if newDist < currDist {
					// Update the starting point to our new node
					currObj = newObj
					currDist = newDist
					changed = true
				}
			}
		}
	}

	return currObj, currDist, nil
}

// KNNSearch performs a k-nearest neighbour search and returns the results as
// a max-heap keyed by distance: popping yields the furthest candidate first
// and the closest last. efSearch widens the candidate list and is clamped to
// at least k.
func (h *HNSW) KNNSearch(q []float32, k int, efSearch int) (*PriorityQueue, error) {
	if len(q) != h.dimension {
		return nil, &DimensionError{Expected: h.dimension, Actual: len(q)}
	}

	if efSearch < k {
		efSearch = k
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	topCandidates := &PriorityQueue{Order: true}
	heap.Init(topCandidates)

	if len(h.nodes) == 0 {
		return topCandidates, nil
	}

	currObj, currDist, err := h.descend(q, h.nodes[h.ep], 0)
	if err != nil {
		return nil, err
	}

	if err := h.searchLayer(q, &PriorityQueueItem{Distance: currDist, Node: currObj.ID}, topCandidates, efSearch, 0); err != nil {
		return nil, err
	}

	for topCandidates.Len() > k {
		_ = heap.Pop(topCandidates)
	}

	return topCandidates, nil
}

// BruteSearch scans every node and returns the exact k nearest neighbours in
// the same max-heap shape KNNSearch uses. Useful for small collections and
// as a recall baseline.
func (h *HNSW) BruteSearch(q []float32, k int) (*PriorityQueue, error) {
	if len(q) != h.dimension {
		return nil, &DimensionError{Expected: h.dimension, Actual: len(q)}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	topCandidates := &PriorityQueue{Order: true}
	heap.Init(topCandidates)

	for _, node := range h.nodes {
		nodeDist, err := h.opts.DistanceFunc(q, node.Vector)
		if err != nil {
			return nil, err
		}

		if topCandidates.Len() < k {
			heap.Push(topCandidates, &PriorityQueueItem{
				Node:     node.ID,
				Distance: nodeDist,
			})

			continue
		}

		largestDist, _ := topCandidates.Top().(*PriorityQueueItem)

		if nodeDist < largestDist.Distance {
			heap.Pop(topCandidates)

			heap.Push(topCandidates, &PriorityQueueItem{
				Node:     node.ID,
				Distance: nodeDist,
			})
		}
	}

	return topCandidates, nil
}

// link creates an edge from nodeID to target on the given level, trimming
// the node's neighbour list when it exceeds the per-level capacity.
func (h *HNSW) link(nodeID uint32, target uint32, level int) error {
	maxConnections := h.mmax
	// The bottom layer allows double the connections
	if level == 0 {
		maxConnections = h.mmax0
	}

	node := h.nodes[nodeID]

	// A node can acquire links above its own layer after serving as an
	// entry point; grow the per-layer slots on demand.
	for len(node.Connections) <= level {
		node.Connections = append(node.Connections, nil)
	}

	node.Connections[level] = append(node.Connections[level], target)

	if len(node.Connections[level]) <= maxConnections {
		return nil
	}

	// Over capacity, re-select the best neighbours among the current links.
	topCandidates := &PriorityQueue{Order: false}
	heap.Init(topCandidates)

	for _, id := range node.Connections[level] {
		distance, err := h.opts.DistanceFunc(node.Vector, h.nodes[id].Vector)
		if err != nil {
			return err
		}

		heap.Push(topCandidates, &PriorityQueueItem{Node: id, Distance: distance})
	}

	if h.opts.Heuristic {
		if err := h.selectNeighboursHeuristic(topCandidates, maxConnections, true); err != nil {
			return err
		}
	} else {
		h.selectNeighboursSimple(topCandidates, maxConnections)
	}

	// Reorder the connected nodes, best performing match at index 0.
	selected := topCandidates.Len()
	node.Connections[level] = make([]uint32, selected)

	for i := selected - 1; i >= 0; i-- {
		item, _ := heap.Pop(topCandidates).(*PriorityQueueItem)
		node.Connections[level][i] = item.Node
	}

	return nil
}

// searchLayer performs a search in a specified layer of the graph.
func (h *HNSW) searchLayer(q []float32, ep *PriorityQueueItem, topCandidates *PriorityQueue, ef int, level int) error {
	var visited bitset.BitSet

	visited.Set(uint(ep.Node))

	candidates := &PriorityQueue{Order: false}
	heap.Init(candidates)
	heap.Push(candidates, ep)

	topCandidates.Order = true // max-heap
	heap.Init(topCandidates)
	heap.Push(topCandidates, ep)

	for candidates.Len() > 0 {
		lowerBound := topCandidates.Top().(*PriorityQueueItem).Distance

		candidate, _ := heap.Pop(candidates).(*PriorityQueueItem)
		if candidate.Distance > lowerBound {
			break
		}

		node := h.nodes[candidate.Node]

		if len(node.Connections) > level { // Check if level is within bounds
			conns := node.Connections[level]

			for _, n := range conns {
				if !visited.Test(uint(n)) {
					visited.Set(uint(n))

					distance, err := h.opts.DistanceFunc(q, h.nodes[n].Vector)
					if err != nil {
						return err
					}

					topDistance := topCandidates.Top().(*PriorityQueueItem).Distance

					item := &PriorityQueueItem{
						Distance: distance,
						Node:     n,
					}

					// Admit while the working set is below ef, then only improvements
					if topCandidates.Len() < ef {
						heap.Push(topCandidates, item)
						heap.Push(candidates, item)
					} else if topDistance > distance {
						heap.Pop(topCandidates)
						heap.Push(topCandidates, item)
						heap.Push(candidates, item)
					}
				}
			}
		}
	}

	return nil
}

// selectNeighboursSimple keeps the M closest candidates.
func (h *HNSW) selectNeighboursSimple(topCandidates *PriorityQueue, M int) {
	for topCandidates.Len() > M {
		_ = heap.Pop(topCandidates)
	}
}

// selectNeighboursHeuristic selects up to M neighbours, preferring candidates
// that are closer to the base node than to any already selected neighbour.
// This spreads links across clusters instead of saturating the nearest one.
func (h *HNSW) selectNeighboursHeuristic(topCandidates *PriorityQueue, M int, order bool) error {
	if topCandidates.Len() < M {
		return nil
	}

	newCandidates := &PriorityQueue{}

	tmpCandidates := &PriorityQueue{Order: order}
	heap.Init(tmpCandidates)

	items := make([]*PriorityQueueItem, 0, M)

	if !order {
		newCandidates.Order = order
		heap.Init(newCandidates)

		// Reheap the existing candidates closest-first
		for topCandidates.Len() > 0 {
			item, _ := heap.Pop(topCandidates).(*PriorityQueueItem)
			heap.Push(newCandidates, item)
		}
	} else {
		newCandidates = topCandidates
	}

	for newCandidates.Len() > 0 {
		if len(items) >= M {
			break
		}

		item, _ := heap.Pop(newCandidates).(*PriorityQueueItem)

		keep := true

		// A candidate is kept only if no already selected neighbour sits closer
		// to it than the base node does.
		for _, v := range items {
			distance, err := h.opts.DistanceFunc(h.nodes[v.Node].Vector, h.nodes[item.Node].Vector)
			if err != nil {
				return err
			}

			if distance < item.Distance {
				keep = false
				break
			}
		}

		if keep {
			items = append(items, item)
		} else {
			heap.Push(tmpCandidates, item)
		}
	}

	// Backfill from the rejected candidates if the spread pass came up short
	for len(items) < M && tmpCandidates.Len() > 0 {
		item, _ := heap.Pop(tmpCandidates).(*PriorityQueueItem)
		items = append(items, item)
	}

	for _, item := range items {
		heap.Push(topCandidates, item)
	}

	return nil
}
