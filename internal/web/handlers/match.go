package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/jsvoboda/faceguard/internal/recognition"
)

// MatchHandler handles one-shot identity matching.
type MatchHandler struct {
	store  *recognition.Store
	vision EmbeddingComputer
}

// NewMatchHandler creates a handler for the /match endpoint.
func NewMatchHandler(store *recognition.Store, vision EmbeddingComputer) *MatchHandler {
	return &MatchHandler{store: store, vision: vision}
}

// MatchEmbeddingRequest is the JSON body for embedding-based matching.
type MatchEmbeddingRequest struct {
	Embedding []float32 `json:"embedding"`
}

// Match compares a probe embedding (JSON) or photo (multipart) against the
// enrolled identities and returns the nearest-match verdict.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var embedding []float32

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		photo, err := readUploadedFile(r, "photo")
		if err != nil {
			respondError(w, http.StatusBadRequest, "photo upload missing or too large")
			return
		}
		embedding, err = h.vision.ComputeEmbedding(r.Context(), photo)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("embedding extraction failed: %v", err))
			return
		}
	} else {
		var req MatchEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		embedding = req.Embedding
	}

	result, err := h.store.Match(embedding)
	if err != nil {
		var invalid *recognition.ErrInvalidEmbedding
		if errors.As(err, &invalid) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "match failed")
		return
	}

	// An empty store reports an infinite distance, which JSON cannot encode.
	if math.IsInf(result.Distance, 1) {
		result.Distance = -1
	}

	respondJSON(w, http.StatusOK, result)
}
