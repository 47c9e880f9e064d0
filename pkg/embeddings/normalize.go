// Package embeddings provides pure vector utilities: L2 normalization and cosine similarity.
package embeddings

import "math"

// Norm returns the Euclidean length of v, accumulated in float64.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	return math.Sqrt(sum)
}

// NormalizeL2 scales v to unit length in place and reports whether it could.
// An all-zero (or empty) vector has no direction: it is left unchanged and false is returned.
func NormalizeL2(v []float32) bool {
	norm := Norm(v)
	if norm == 0 {
		return false
	}

	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}

	return true
}
