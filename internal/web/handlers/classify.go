package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/jsvoboda/faceguard/internal/anomaly"
	"github.com/jsvoboda/faceguard/internal/database"
	"github.com/jsvoboda/faceguard/internal/liveness"
	"github.com/jsvoboda/faceguard/internal/recognition"
)

// defaultRecentAnomalies is the event count returned when no limit is given.
const defaultRecentAnomalies = 50

// ClassifyHandler exposes anomaly classification over precomputed results
// and access to the recorded event log.
type ClassifyHandler struct {
	anomalies database.AnomalyWriter
}

// NewClassifyHandler creates a handler for the /classify and /anomalies endpoints.
func NewClassifyHandler(anomalies database.AnomalyWriter) *ClassifyHandler {
	return &ClassifyHandler{anomalies: anomalies}
}

// ClassifyRequest carries match and liveness outcomes produced elsewhere,
// typically by an edge device running its own pipeline.
type ClassifyRequest struct {
	Match       recognition.MatchResult  `json:"match"`
	Liveness    *liveness.LivenessResult `json:"liveness"`
	MaskPresent bool                     `json:"mask_present"`
}

// ClassifyResponse wraps the verdict; Anomaly is null when nothing is wrong.
type ClassifyResponse struct {
	Anomaly *anomaly.Anomaly `json:"anomaly"`
}

// Classify maps a match/liveness pair to an anomaly verdict and records it.
func (h *ClassifyHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	anom := anomaly.Classify(req.Match, req.Liveness, req.MaskPresent)
	if anom != nil && h.anomalies != nil {
		if _, err := recordAnomalyEvent(r.Context(), h.anomalies, anom); err != nil {
			log.Printf("failed to record %s anomaly: %v", anom.Category, err)
		}
	}

	respondJSON(w, http.StatusOK, ClassifyResponse{Anomaly: anom})
}

// Recent returns the most recent recorded anomaly events, newest first.
func (h *ClassifyHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.anomalies == nil {
		respondError(w, http.StatusServiceUnavailable, "anomaly log not available")
		return
	}

	limit := defaultRecentAnomalies
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.anomalies.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load anomaly events")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

// recordAnomalyEvent converts a classified anomaly to its storage form and
// appends it to the event log.
func recordAnomalyEvent(ctx context.Context, repo database.AnomalyWriter, anom *anomaly.Anomaly) (int64, error) {
	detail, err := json.Marshal(anom.Detail)
	if err != nil {
		return 0, err
	}

	return repo.Record(ctx, &database.StoredAnomalyEvent{
		Category:   string(anom.Category),
		Severity:   string(anom.Severity),
		IdentityID: anom.IdentityID,
		Detail:     detail,
	})
}
