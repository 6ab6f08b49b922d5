package index

import (
	"fmt"
	"math"

	"github.com/orbis-search/orbis/internal/domain"
)

// normalize returns an L2-normalized copy of v. A zero-norm vector cannot
// participate in cosine similarity and is rejected as degenerate input.
func normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: zero-norm vector", domain.ErrDegenerateInput)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// dot computes the dot product of two equal-length vectors. Both sides are
// unit-normalized, so the result is the cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// clampSimilarity maps a cosine value onto the [0,1] similarity scale.
func clampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
