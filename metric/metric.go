// Package metric provides the float32 vector math used during index
// construction and search.
//
// All kernels are plain Go. Queries and stored vectors are expected to be
// L2-normalized before they reach the graph, which lets cosine similarity be
// recovered from squared L2 distance without touching magnitudes at search
// time.
package metric

import (
	"errors"
	"math"
)

// ErrSizeMismatch is returned when two vectors of different lengths are
// compared.
var ErrSizeMismatch = errors.New("vector sizes do not match")

// Dot calculates the dot product of two float32 slices.
// Assumes both slices have the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// Magnitude calculates the magnitude (length) of a float32 slice.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// SquaredL2 calculates the squared L2 distance between two float32 slices.
func SquaredL2(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	var distance float32
	for i := range v1 {
		d := v1[i] - v2[i]
		distance += d * d
	}

	return distance, nil
}

// CosineSimilarity calculates the cosine similarity between two float32 slices.
func CosineSimilarity(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	magnitudeA := Magnitude(v1)
	magnitudeB := Magnitude(v2)

	// Avoid division by zero
	if magnitudeA == 0 || magnitudeB == 0 {
		return 0, nil
	}

	return Dot(v1, v2) / (magnitudeA * magnitudeB), nil
}

// NormalizeInPlace L2-normalizes v in place.
// Returns false if v is empty or has zero L2 norm.
func NormalizeInPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}

	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}

	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}

	return true
}

// NormalizeCopy returns an L2-normalized copy of src.
// Returns false if src is empty or has zero L2 norm.
func NormalizeCopy(src []float32) ([]float32, bool) {
	dst := make([]float32, len(src))
	copy(dst, src)

	if !NormalizeInPlace(dst) {
		return nil, false
	}

	return dst, true
}

// CosineFromSquaredL2 recovers the cosine similarity of two unit vectors from
// their squared L2 distance: for |a| = |b| = 1, d² = 2 - 2·cos(a,b).
// The result is clamped to [-1, 1] to absorb float32 rounding.
func CosineFromSquaredL2(d float32) float32 {
	score := 1 - d/2

	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}

	return score
}
