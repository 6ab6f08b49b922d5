package retrieval

import "github.com/orbis-search/orbis/internal/domain"

// Confidence blends mean and max similarity over the chosen result set.
// With few results the mean is statistically weak, so the blend skews
// toward the max; from three results on it settles at 60/40 mean/max.
const (
	confidenceFloor = 0.1 // empty set: low but non-zero, distinguishable from hard failure
	confidenceCap   = 0.99

	smallSetSize    = 3
	smallMeanWeight = 0.3
	smallMaxWeight  = 0.7
	meanWeight      = 0.6
	maxWeight       = 0.4
)

// confidenceScore summarizes retrieval trustworthiness as a scalar in
// (0, confidenceCap].
func confidenceScore(results []domain.SearchResult) float64 {
	if len(results) == 0 {
		return confidenceFloor
	}

	var sum, best float64
	for _, r := range results {
		sum += r.Similarity
		if r.Similarity > best {
			best = r.Similarity
		}
	}
	mean := sum / float64(len(results))

	var score float64
	if len(results) < smallSetSize {
		score = smallMeanWeight*mean + smallMaxWeight*best
	} else {
		score = meanWeight*mean + maxWeight*best
	}

	if score > confidenceCap {
		return confidenceCap
	}
	if score < confidenceFloor {
		return confidenceFloor
	}
	return score
}

// maxSimilarity returns the best similarity in a result set, 0 when empty.
func maxSimilarity(results []domain.SearchResult) float64 {
	var best float64
	for _, r := range results {
		if r.Similarity > best {
			best = r.Similarity
		}
	}
	return best
}
