package embeddings

import (
	"fmt"
	"math"

	"github.com/filmgrid/hub/internal/huberrors"
)

// CosineSimilarity returns dot(a,b) / (||a|| * ||b||).
// It returns 0 when either vector has zero norm and an InvalidArgumentError when the lengths differ.
// Accumulation is done in float64 so that similarity(v, v) is 1 within float rounding.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, huberrors.NewInvalidArgumentError("vector",
			fmt.Sprintf("vector length mismatch: %d != %d", len(a), len(b)))
	}

	var dot, normA, normB float64

	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Clamp rounding drift so callers can rely on [-1, 1].
	return math.Max(-1, math.Min(1, sim)), nil
}
