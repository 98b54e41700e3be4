package index

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/quillon/vecport/guard"
	"github.com/quillon/vecport/hnsw"
	"github.com/quillon/vecport/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRecords builds a deterministic record set with alternating language
// metadata and a page counter.
func testRecords(num, dimensions int, seed int64) []model.Record {
	r := rand.New(rand.NewSource(seed))

	records := make([]model.Record, num)
	for i := range records {
		vector := make([]float32, dimensions)
		for j := range vector {
			vector[j] = r.Float32()
		}

		lang := "en"
		if i%2 == 1 {
			lang = "de"
		}

		records[i] = model.Record{
			ID:     fmt.Sprintf("rec-%04d", i),
			Vector: vector,
			Metadata: map[string]any{
				"lang": lang,
				"page": float64(i / 10),
			},
		}
	}

	return records
}

func TestBuild(t *testing.T) {
	t.Run("EmptyRecords", func(t *testing.T) {
		_, err := Build(nil, 8)
		require.ErrorIs(t, err, ErrNoRecords)
	})

	t.Run("ZeroVectorRejected", func(t *testing.T) {
		records := testRecords(4, 8, 1)
		records[2].Vector = make([]float32, 8)

		_, err := Build(records, 8)

		var zeroErr *ZeroVectorError
		require.ErrorAs(t, err, &zeroErr)
		assert.Equal(t, "rec-0002", zeroErr.ID)
	})

	t.Run("DimensionMismatchWrapped", func(t *testing.T) {
		records := testRecords(4, 8, 1)
		records[1].Vector = records[1].Vector[:5]

		_, err := Build(records, 8)

		var buildErr *BuildError
		require.ErrorAs(t, err, &buildErr)

		var dimErr *hnsw.DimensionError
		require.ErrorAs(t, err, &dimErr)
	})

	t.Run("HandleShape", func(t *testing.T) {
		records := testRecords(32, 16, 2)

		h, err := Build(records, 16)
		require.NoError(t, err)
		defer h.Release()

		assert.Equal(t, 32, h.Len())
		assert.Equal(t, 16, h.Dimensions())
		assert.Equal(t, guard.EstimateBytes(32, 16), h.EstimatedBytes())
		assert.Equal(t, 32, h.GraphStats().Nodes)
	})
}

func TestSearch(t *testing.T) {
	records := testRecords(50, 8, 3)

	h, err := Build(records, 8)
	require.NoError(t, err)
	defer h.Release()

	t.Run("SelfQueryScoresOne", func(t *testing.T) {
		results, err := h.Search(records[17].Vector, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)

		assert.Equal(t, "rec-0017", results[0].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	})

	t.Run("ScoresDescend", func(t *testing.T) {
		results, err := h.Search(records[0].Vector, 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 10)

		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
	})

	t.Run("MetadataCarried", func(t *testing.T) {
		results, err := h.Search(records[4].Vector, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)

		assert.Equal(t, "en", results[0].Metadata["lang"])
	})

	t.Run("KLargerThanCollection", func(t *testing.T) {
		results, err := h.Search(records[0].Vector, 500, nil)
		require.NoError(t, err)
		assert.Len(t, results, 50)
	})

	t.Run("KBelowOne", func(t *testing.T) {
		results, err := h.Search(records[0].Vector, 0, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("ZeroQueryVector", func(t *testing.T) {
		_, err := h.Search(make([]float32, 8), 5, nil)
		require.ErrorIs(t, err, ErrZeroQueryVector)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := h.Search([]float32{1, 2, 3}, 5, nil)

		var dimErr *hnsw.DimensionError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 8, dimErr.Expected)
		assert.Equal(t, 3, dimErr.Actual)
	})
}

func TestFilteredSearch(t *testing.T) {
	records := testRecords(40, 8, 4)

	h, err := Build(records, 8)
	require.NoError(t, err)
	defer h.Release()

	t.Run("SingleField", func(t *testing.T) {
		results, err := h.Search(records[0].Vector, 40, Filter{"lang": "de"})
		require.NoError(t, err)
		require.Len(t, results, 20)

		for _, res := range results {
			assert.Equal(t, "de", res.Metadata["lang"])
		}
	})

	t.Run("TwoFieldsIntersect", func(t *testing.T) {
		// page 1 covers rec-0010..rec-0019; half of those are "en".
		results, err := h.Search(records[0].Vector, 40, Filter{"lang": "en", "page": 1})
		require.NoError(t, err)
		require.Len(t, results, 5)

		for _, res := range results {
			assert.Equal(t, "en", res.Metadata["lang"])
			assert.Equal(t, float64(1), res.Metadata["page"])
		}
	})

	t.Run("IntFilterMatchesFloatMetadata", func(t *testing.T) {
		resultsInt, err := h.Search(records[0].Vector, 40, Filter{"page": 2})
		require.NoError(t, err)

		resultsFloat, err := h.Search(records[0].Vector, 40, Filter{"page": float64(2)})
		require.NoError(t, err)

		assert.Equal(t, resultsFloat, resultsInt)
		assert.Len(t, resultsInt, 10)
	})

	t.Run("NoMatches", func(t *testing.T) {
		results, err := h.Search(records[0].Vector, 10, Filter{"lang": "fr"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("UnknownField", func(t *testing.T) {
		results, err := h.Search(records[0].Vector, 10, Filter{"missing": "x"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("FilteredScoresMatchUnfiltered", func(t *testing.T) {
		// The top filtered hit for a record's own vector is the record
		// itself whenever it satisfies the filter.
		results, err := h.Search(records[6].Vector, 1, Filter{"lang": "en"})
		require.NoError(t, err)
		require.Len(t, results, 1)

		assert.Equal(t, "rec-0006", results[0].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	})
}

func TestHandleReferences(t *testing.T) {
	t.Run("ReleaseHookFiresOnce", func(t *testing.T) {
		var released atomic.Int32

		h, err := Build(testRecords(8, 4, 5), 4, func(o *Options) {
			o.OnRelease = func() { released.Add(1) }
		})
		require.NoError(t, err)

		require.True(t, h.Acquire())

		h.Release()
		assert.Equal(t, int32(0), released.Load())

		h.Release()
		assert.Equal(t, int32(1), released.Load())
	})

	t.Run("AcquireFailsAfterFullRelease", func(t *testing.T) {
		h, err := Build(testRecords(8, 4, 6), 4)
		require.NoError(t, err)

		h.Release()

		assert.False(t, h.Acquire())
	})

	t.Run("SearchWhileSecondReferenceHeld", func(t *testing.T) {
		records := testRecords(8, 4, 7)

		h, err := Build(records, 4)
		require.NoError(t, err)

		require.True(t, h.Acquire())

		// Dropping the original reference must not disturb the holder.
		h.Release()

		results, err := h.Search(records[3].Vector, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "rec-0003", results[0].ID)

		h.Release()
	})
}
