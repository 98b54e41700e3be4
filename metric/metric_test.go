package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	t.Run("Distance", func(t *testing.T) {
		d, err := SquaredL2([]float32{1, 2, 3}, []float32{4, 6, 8})
		require.NoError(t, err)
		assert.Equal(t, float32(50), d)
	})

	t.Run("Identical", func(t *testing.T) {
		d, err := SquaredL2([]float32{0.5, 0.5}, []float32{0.5, 0.5})
		require.NoError(t, err)
		assert.Equal(t, float32(0), d)
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		_, err := SquaredL2([]float32{1, 2}, []float32{1, 2, 3})
		require.ErrorIs(t, err, ErrSizeMismatch)
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("Orthogonal", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.Equal(t, float32(0), s)
	})

	t.Run("Parallel", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s, 1e-6)
	})

	t.Run("ZeroVector", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
		require.NoError(t, err)
		assert.Equal(t, float32(0), s)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("InPlace", func(t *testing.T) {
		v := []float32{3, 4}
		require.True(t, NormalizeInPlace(v))
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
		assert.InDelta(t, 1.0, Magnitude(v), 1e-6)
	})

	t.Run("ZeroNorm", func(t *testing.T) {
		assert.False(t, NormalizeInPlace([]float32{0, 0, 0}))
		assert.False(t, NormalizeInPlace(nil))
	})

	t.Run("CopyLeavesSourceUntouched", func(t *testing.T) {
		src := []float32{3, 4}
		dst, ok := NormalizeCopy(src)
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, src)
		assert.InDelta(t, 1.0, Magnitude(dst), 1e-6)
	})
}

func TestCosineFromSquaredL2(t *testing.T) {
	a, ok := NormalizeCopy([]float32{0.2, 0.7, 0.1})
	require.True(t, ok)
	b, ok := NormalizeCopy([]float32{0.9, 0.1, 0.4})
	require.True(t, ok)

	d, err := SquaredL2(a, b)
	require.NoError(t, err)

	want, err := CosineSimilarity(a, b)
	require.NoError(t, err)

	assert.InDelta(t, float64(want), float64(CosineFromSquaredL2(d)), 1e-5)

	// Identical unit vectors map to a perfect score.
	assert.Equal(t, float32(1), CosineFromSquaredL2(0))

	// Clamped against rounding below zero distance.
	assert.Equal(t, float32(1), CosineFromSquaredL2(float32(math.Nextafter32(0, -1))))
}
