package hnsw

import (
	"container/heap"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(num, dimensions int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed))

	vectors := make([][]float32, num)
	for i := range vectors {
		vectors[i] = make([]float32, dimensions)
		for j := range vectors[i] {
			vectors[i][j] = r.Float32()
		}
	}

	return vectors
}

// popIDs drains a result queue into closest-first order.
func popIDs(pq *PriorityQueue) []uint32 {
	ids := make([]uint32, pq.Len())
	for i := pq.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(pq).(*PriorityQueueItem)
		ids[i] = item.Node
	}

	return ids
}

func TestInsert(t *testing.T) {
	t.Run("AssignsDenseIDs", func(t *testing.T) {
		h := New(4)

		for i, v := range randomVectors(16, 4, 42) {
			id, err := h.Insert(v)
			require.NoError(t, err)
			assert.Equal(t, uint32(i), id)
		}

		assert.Equal(t, 16, h.Len())
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		h := New(4)

		_, err := h.Insert([]float32{1, 2, 3})

		var dimErr *DimensionError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 4, dimErr.Expected)
		assert.Equal(t, 3, dimErr.Actual)
	})

	t.Run("CopiesTheVector", func(t *testing.T) {
		h := New(2)

		v := []float32{1, 0}
		_, err := h.Insert(v)
		require.NoError(t, err)

		// Mutating the caller's slice must not disturb the stored vector.
		v[0] = 99

		res, err := h.KNNSearch([]float32{1, 0}, 1, 8)
		require.NoError(t, err)

		top, _ := res.Top().(*PriorityQueueItem)
		assert.Equal(t, float32(0), top.Distance)
	})
}

func TestLevelCap(t *testing.T) {
	t.Run("BoundsLayersByCapacity", func(t *testing.T) {
		// ceil(ln(100)/ln(16)) = 2, so no tower may exceed layer 2.
		h := New(4, func(o *Options) {
			o.M = 16
			o.Capacity = 100
		})

		for _, v := range randomVectors(100, 4, 17) {
			_, err := h.Insert(v)
			require.NoError(t, err)
		}

		assert.LessOrEqual(t, h.Stats().MaxLayer, 2)
	})

	t.Run("SingleElementStaysOnBaseLayer", func(t *testing.T) {
		h := New(4, func(o *Options) {
			o.Capacity = 1
		})

		_, err := h.Insert([]float32{1, 2, 3, 4})
		require.NoError(t, err)

		assert.Equal(t, 0, h.Stats().MaxLayer)
	})
}

func TestKNNSearch(t *testing.T) {
	t.Run("FindsExactMatch", func(t *testing.T) {
		h := New(8)

		vectors := randomVectors(100, 8, 7)
		for _, v := range vectors {
			_, err := h.Insert(v)
			require.NoError(t, err)
		}

		res, err := h.KNNSearch(vectors[37], 1, len(vectors))
		require.NoError(t, err)
		require.Equal(t, 1, res.Len())

		top, _ := res.Top().(*PriorityQueueItem)
		assert.Equal(t, uint32(37), top.Node)
		assert.Equal(t, float32(0), top.Distance)
	})

	t.Run("EmptyGraph", func(t *testing.T) {
		h := New(4)

		res, err := h.KNNSearch([]float32{1, 2, 3, 4}, 5, 16)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Len())
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		h := New(4)

		_, err := h.KNNSearch([]float32{1, 2}, 1, 16)

		var dimErr *DimensionError
		require.ErrorAs(t, err, &dimErr)
	})

	t.Run("KLargerThanGraph", func(t *testing.T) {
		h := New(4)

		for _, v := range randomVectors(3, 4, 11) {
			_, err := h.Insert(v)
			require.NoError(t, err)
		}

		res, err := h.KNNSearch([]float32{0.5, 0.5, 0.5, 0.5}, 10, 16)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Len())
	})

	t.Run("ResultsOrderedByDistance", func(t *testing.T) {
		h := New(2)

		// Points on a line, query at the origin end.
		for i := 0; i < 8; i++ {
			_, err := h.Insert([]float32{float32(i), 0})
			require.NoError(t, err)
		}

		res, err := h.KNNSearch([]float32{0, 0}, 4, 16)
		require.NoError(t, err)

		assert.Equal(t, []uint32{0, 1, 2, 3}, popIDs(res))
	})
}

func TestBruteSearch(t *testing.T) {
	h := New(2)

	for i := 0; i < 10; i++ {
		_, err := h.Insert([]float32{float32(i), float32(i)})
		require.NoError(t, err)
	}

	res, err := h.BruteSearch([]float32{4, 4}, 3)
	require.NoError(t, err)

	assert.Equal(t, []uint32{4, 3, 5}, popIDs(res))
}

func TestRecallAgainstBruteForce(t *testing.T) {
	const (
		numVectors = 500
		dimensions = 32
		numQueries = 50
		k          = 10
	)

	h := New(dimensions, func(o *Options) {
		o.M = 16
		o.EFConstruction = 200
		o.Capacity = numVectors
	})

	for _, v := range randomVectors(numVectors, dimensions, 1234) {
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	queries := randomVectors(numQueries, dimensions, 5678)

	var hits, total int

	for _, q := range queries {
		exact, err := h.BruteSearch(q, k)
		require.NoError(t, err)

		approx, err := h.KNNSearch(q, k, 100)
		require.NoError(t, err)

		want := make(map[uint32]struct{}, k)
		for _, id := range popIDs(exact) {
			want[id] = struct{}{}
		}

		for _, id := range popIDs(approx) {
			if _, ok := want[id]; ok {
				hits++
			}
		}

		total += k
	}

	recall := float64(hits) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.9, "recall@%d = %.3f", k, recall)
}

func TestSimpleNeighbourSelection(t *testing.T) {
	h := New(8, func(o *Options) {
		o.Heuristic = false
	})

	vectors := randomVectors(100, 8, 99)
	for _, v := range vectors {
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	res, err := h.KNNSearch(vectors[12], 1, len(vectors))
	require.NoError(t, err)

	top, _ := res.Top().(*PriorityQueueItem)
	assert.Equal(t, uint32(12), top.Node)
}

func TestConcurrentSearch(t *testing.T) {
	const dimensions = 16

	h := New(dimensions)

	vectors := randomVectors(200, dimensions, 3)
	for _, v := range vectors {
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func(seed int64) {
			defer wg.Done()

			for _, q := range randomVectors(20, dimensions, seed) {
				res, err := h.KNNSearch(q, 5, 50)
				assert.NoError(t, err)
				assert.Equal(t, 5, res.Len())
			}
		}(int64(i))
	}

	wg.Wait()
}

func TestStats(t *testing.T) {
	h := New(4)

	for _, v := range randomVectors(64, 4, 21) {
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	s := h.Stats()

	assert.Equal(t, 64, s.Nodes)
	assert.Equal(t, s.MaxLayer+1, len(s.NodesPerLayer))

	var counted int
	for _, n := range s.NodesPerLayer {
		counted += n
	}
	assert.Equal(t, 64, counted)

	// Every node except possibly the entry point has at least one link.
	assert.Greater(t, s.LinksPerLayer[0], 0)
}
