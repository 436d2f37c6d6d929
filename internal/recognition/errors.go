package recognition

import (
	"fmt"

	"github.com/jsvoboda/faceguard/internal/constants"
)

// ErrInvalidEmbedding reports an embedding with the wrong dimensionality.
// It violates the basic data contract and is surfaced to the caller rather
// than degraded, unlike per-frame geometric failures.
type ErrInvalidEmbedding struct {
	Got int
}

func (e *ErrInvalidEmbedding) Error() string {
	return fmt.Sprintf("invalid embedding: got %d dimensions, want %d", e.Got, constants.EmbeddingDim)
}
