package index

import (
	"container/heap"
	"errors"
	"sort"
	"sync/atomic"

	"github.com/quillon/vecport/hnsw"
	"github.com/quillon/vecport/metric"
	"github.com/quillon/vecport/model"
)

// ErrZeroQueryVector is returned for query vectors with zero magnitude.
var ErrZeroQueryVector = errors.New("index: query vector has zero magnitude")

// entry maps a graph ID back to the record it was built from. Vectors live
// only inside the graph, normalized; the entry keeps what searches return.
type entry struct {
	id       string
	metadata map[string]any
}

// Handle is an immutable, reference-counted view of a built index.
//
// The cache owns one reference and every in-flight search holds another, so
// an eviction never tears the index away under a reader. When the last
// reference drops, the handle fires its release hook, which returns the
// load's memory reservation.
type Handle struct {
	graph   *hnsw.HNSW
	entries []entry
	filters *invertedIndex

	dimensions     int
	efSearch       int
	estimatedBytes int64

	onRelease func()
	refs      atomic.Int32
}

// Acquire takes an additional reference. It reports false when the handle is
// already fully released, in which case the caller must treat it as gone.
func (h *Handle) Acquire() bool {
	for {
		n := h.refs.Load()
		if n <= 0 {
			return false
		}

		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops one reference, firing the release hook when the last one
// goes.
func (h *Handle) Release() {
	if h.refs.Add(-1) == 0 && h.onRelease != nil {
		h.onRelease()
	}
}

// Len returns the number of indexed records.
func (h *Handle) Len() int {
	return len(h.entries)
}

// Dimensions returns the vector dimensionality of the index.
func (h *Handle) Dimensions() int {
	return h.dimensions
}

// EstimatedBytes returns the estimated in-memory footprint, the same figure
// the load was admitted under.
func (h *Handle) EstimatedBytes() int64 {
	return h.estimatedBytes
}

// GraphStats exposes the shape of the underlying graph for diagnostics.
func (h *Handle) GraphStats() hnsw.GraphStats {
	return h.graph.Stats()
}

// Search returns up to k records nearest to query, best first, scored by
// cosine similarity in [-1, 1]. A non-empty filter restricts candidates to
// records whose metadata matches every constraint; filtered queries scan the
// matching posting set exactly instead of traversing the graph.
func (h *Handle) Search(query []float32, k int, f Filter) ([]model.SearchResult, error) {
	if len(query) != h.dimensions {
		return nil, &hnsw.DimensionError{Expected: h.dimensions, Actual: len(query)}
	}

	if k < 1 {
		return nil, nil
	}

	q, ok := metric.NormalizeCopy(query)
	if !ok {
		return nil, ErrZeroQueryVector
	}

	if len(f) > 0 {
		return h.searchFiltered(q, k, f)
	}

	pq, err := h.graph.KNNSearch(q, k, h.efSearch)
	if err != nil {
		return nil, err
	}

	return h.collect(pq), nil
}

// searchFiltered scores every record matching the filter. Eligible sets are
// typically small compared to the collection, and an exact scan sidesteps
// the recall collapse graph traversal suffers when most neighbours are
// filtered away.
func (h *Handle) searchFiltered(q []float32, k int, f Filter) ([]model.SearchResult, error) {
	eligible := h.filters.eligible(f)

	topCandidates := &hnsw.PriorityQueue{Order: true}
	heap.Init(topCandidates)

	it := eligible.Iterator()
	for it.HasNext() {
		id := it.Next()

		distance, err := metric.SquaredL2(q, h.graph.Vector(id))
		if err != nil {
			return nil, err
		}

		if topCandidates.Len() < k {
			heap.Push(topCandidates, &hnsw.PriorityQueueItem{Node: id, Distance: distance})
			continue
		}

		furthest, _ := topCandidates.Top().(*hnsw.PriorityQueueItem)

		if distance < furthest.Distance {
			heap.Pop(topCandidates)
			heap.Push(topCandidates, &hnsw.PriorityQueueItem{Node: id, Distance: distance})
		}
	}

	return h.collect(topCandidates), nil
}

// collect drains a result queue into scored results, best first.
func (h *Handle) collect(pq *hnsw.PriorityQueue) []model.SearchResult {
	results := make([]model.SearchResult, pq.Len())

	for i := pq.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(pq).(*hnsw.PriorityQueueItem)
		e := h.entries[item.Node]

		results[i] = model.SearchResult{
			ID:       e.id,
			Score:    metric.CosineFromSquaredL2(item.Distance),
			Metadata: e.metadata,
		}
	}

	// Equal distances pop in heap order; keep the final ordering stable.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}
