package recognition

import (
	"math"

	"github.com/jsvoboda/faceguard/internal/constants"
)

// MatchResult is the outcome of matching a probe embedding against the store.
type MatchResult struct {
	Recognized bool    `json:"recognized"`
	IdentityID string  `json:"identity_id,omitempty"`
	Name       string  `json:"name,omitempty"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}

// EuclideanDistance computes the Euclidean distance between two embeddings.
// Returns +Inf for mismatched or empty inputs.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match finds the enrolled identity nearest to the probe embedding.
//
// Every entry in the current snapshot is compared; the lowest distance wins.
// A probe is recognized only when that distance is strictly below the 0.6
// contract threshold, with confidence 1 - distance. Confidence is a
// monotonic proxy for distance, not a calibrated probability. An empty
// store yields an unrecognized result, not an error.
func (s *Store) Match(embedding []float32) (MatchResult, error) {
	if len(embedding) != constants.EmbeddingDim {
		return MatchResult{}, &ErrInvalidEmbedding{Got: len(embedding)}
	}

	entries := s.current.Load().entries
	if len(entries) == 0 {
		return MatchResult{Distance: math.Inf(1)}, nil
	}

	best := 0
	bestDist := EuclideanDistance(embedding, entries[0].Embedding)
	for i := 1; i < len(entries); i++ {
		if d := EuclideanDistance(embedding, entries[i].Embedding); d < bestDist {
			best = i
			bestDist = d
		}
	}

	if bestDist < constants.MatchDistanceThreshold {
		return MatchResult{
			Recognized: true,
			IdentityID: entries[best].IdentityID,
			Name:       entries[best].Name,
			Confidence: 1 - bestDist,
			Distance:   bestDist,
		}, nil
	}

	return MatchResult{Distance: bestDist}, nil
}
