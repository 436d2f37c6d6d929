package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/database"
	"github.com/jsvoboda/faceguard/internal/recognition"
)

// IdentityStore is the persistence surface the identities API needs.
type IdentityStore interface {
	database.IdentityWriter

	// FindDuplicate returns an existing identity whose embedding is
	// suspiciously close to the given one, or nil.
	FindDuplicate(ctx context.Context, embedding []float32) (*database.StoredIdentity, float64, error)
}

// EmbeddingComputer computes a face embedding from an uploaded photo.
type EmbeddingComputer interface {
	ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error)
}

// IdentitiesHandler handles identity enrollment and management endpoints.
type IdentitiesHandler struct {
	repo   IdentityStore
	store  *recognition.Store
	vision EmbeddingComputer
}

// NewIdentitiesHandler creates a handler for the /identities endpoints.
func NewIdentitiesHandler(repo IdentityStore, store *recognition.Store, vision EmbeddingComputer) *IdentitiesHandler {
	return &IdentitiesHandler{
		repo:   repo,
		store:  store,
		vision: vision,
	}
}

// EnrollRequest is the JSON body for embedding-based enrollment.
type EnrollRequest struct {
	Name       string    `json:"name"`
	EmployeeID string    `json:"employee_id"`
	Embedding  []float32 `json:"embedding"`
}

// IdentityResponse is the public view of an enrolled identity.
// Embeddings are never returned.
type IdentityResponse struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id,omitempty"`
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

func identityResponse(id *database.StoredIdentity) IdentityResponse {
	return IdentityResponse{
		ID:         id.ID,
		EmployeeID: id.EmployeeID,
		Name:       id.Name,
		Active:     id.Active,
		CreatedAt:  id.CreatedAt,
	}
}

// parseEnrollRequest accepts either a JSON body with a precomputed embedding
// or a multipart form with a photo to run through the vision service.
func (h *IdentitiesHandler) parseEnrollRequest(r *http.Request) (EnrollRequest, string) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		photo, err := readUploadedFile(r, "photo")
		if err != nil {
			return EnrollRequest{}, "photo upload missing or too large"
		}
		embedding, err := h.vision.ComputeEmbedding(r.Context(), photo)
		if err != nil {
			return EnrollRequest{}, fmt.Sprintf("embedding extraction failed: %v", err)
		}
		return EnrollRequest{
			Name:       r.FormValue("name"),
			EmployeeID: r.FormValue("employee_id"),
			Embedding:  embedding,
		}, ""
	}

	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errInvalidRequestBody
	}
	return req, ""
}

// Enroll registers a new identity from a photo or a precomputed embedding.
// A near-duplicate embedding of an existing identity is rejected with 409.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	req, errMsg := h.parseEnrollRequest(r)
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Embedding) != constants.EmbeddingDim {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("embedding must have %d dimensions, got %d", constants.EmbeddingDim, len(req.Embedding)))
		return
	}

	ctx := r.Context()
	if dup, distance, err := h.repo.FindDuplicate(ctx, req.Embedding); err != nil {
		respondError(w, http.StatusInternalServerError, "duplicate check failed")
		return
	} else if dup != nil {
		log.Printf("enrollment rejected: embedding within %.4f of identity %s", distance, dup.ID)
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":       "embedding duplicates an existing identity",
			"identity_id": dup.ID,
			"distance":    distance,
		})
		return
	}

	now := time.Now()
	identity := &database.StoredIdentity{
		ID:         uuid.New().String(),
		EmployeeID: req.EmployeeID,
		Name:       req.Name,
		Embedding:  req.Embedding,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.repo.Save(ctx, identity); err != nil {
		log.Printf("failed to save identity %s: %v", identity.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to save identity")
		return
	}

	if err := h.store.Enroll(identity.ID, identity.Name, identity.Embedding); err != nil {
		// Row is persisted; the store catches up on the next reload.
		log.Printf("failed to publish identity %s to match store: %v", identity.ID, err)
	}

	respondJSON(w, http.StatusCreated, identityResponse(identity))
}

// List returns all active identities, without embeddings.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.repo.GetAllActive(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list identities")
		return
	}

	out := make([]IdentityResponse, 0, len(identities))
	for i := range identities {
		out = append(out, identityResponse(&identities[i]))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":      len(out),
		"identities": out,
	})
}

// Delete deactivates an identity and removes it from the match store.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "identity id is required")
		return
	}

	ok, err := h.repo.Deactivate(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to deactivate identity")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	h.store.Remove(id)
	log.Printf("identity %s deactivated", sanitizeForLog(id))
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// Reload republishes the match store from persistence in one atomic swap.
func (h *IdentitiesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	identities, err := h.repo.GetAllActive(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load identities")
		return
	}

	entries := make([]recognition.Entry, 0, len(identities))
	for i := range identities {
		entries = append(entries, recognition.Entry{
			IdentityID: identities[i].ID,
			Name:       identities[i].Name,
			Embedding:  identities[i].Embedding,
		})
	}

	if err := h.store.BulkReload(entries); err != nil {
		respondError(w, http.StatusInternalServerError, "reload rejected: "+err.Error())
		return
	}

	log.Printf("match store reloaded with %d identities", len(entries))
	respondJSON(w, http.StatusOK, map[string]int{"reloaded": len(entries)})
}
