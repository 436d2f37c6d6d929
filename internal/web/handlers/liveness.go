package handlers

import (
	"bytes"
	"context"
	"image"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jsvoboda/faceguard/internal/anomaly"
	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/database"
	"github.com/jsvoboda/faceguard/internal/landmarks"
	"github.com/jsvoboda/faceguard/internal/liveness"
	"github.com/jsvoboda/faceguard/internal/recognition"
	"github.com/jsvoboda/faceguard/internal/vision"
)

// FrameAnalyzer detects faces, landmarks and embeddings in a frame.
type FrameAnalyzer interface {
	AnalyzeFrame(ctx context.Context, imageData []byte) ([]vision.Face, error)
}

// LivenessHandler runs the per-frame liveness pipeline for camera sessions.
type LivenessHandler struct {
	registry  *liveness.Registry
	store     *recognition.Store
	vision    FrameAnalyzer
	anomalies database.AnomalyWriter
}

// NewLivenessHandler creates a handler for the /liveness endpoints.
// The anomaly writer may be nil; events are then not persisted.
func NewLivenessHandler(registry *liveness.Registry, store *recognition.Store, vision FrameAnalyzer, anomalies database.AnomalyWriter) *LivenessHandler {
	return &LivenessHandler{
		registry:  registry,
		store:     store,
		vision:    vision,
		anomalies: anomalies,
	}
}

// FrameResponse is the verdict for one submitted frame.
type FrameResponse struct {
	FacesCount  int                      `json:"faces_count"`
	Match       *recognition.MatchResult `json:"match,omitempty"`
	Liveness    *liveness.LivenessResult `json:"liveness,omitempty"`
	MaskPresent bool                     `json:"mask_present"`
	StaticRun   int                      `json:"static_frames"`
	Anomaly     *anomaly.Anomaly         `json:"anomaly,omitempty"`
}

// Frame processes one camera frame within a liveness session: face
// detection, identity match, blink/pose fusion, mask check and anomaly
// classification.
func (h *LivenessHandler) Frame(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session id is required")
		return
	}

	data, err := readUploadedFile(r, "frame")
	if err != nil {
		respondError(w, http.StatusBadRequest, "frame upload missing or too large")
		return
	}

	prepared, err := vision.PrepareFrame(data, constants.MaxFrameDimension)
	if err != nil {
		respondError(w, http.StatusBadRequest, "frame is not a decodable image")
		return
	}
	width, height, err := vision.FrameSize(prepared)
	if err != nil {
		respondError(w, http.StatusBadRequest, "frame is not a decodable image")
		return
	}

	ctx := r.Context()
	faces, err := h.vision.AnalyzeFrame(ctx, prepared)
	if err != nil {
		log.Printf("face analysis failed for session %s: %v", sanitizeForLog(sessionID), err)
		respondError(w, http.StatusServiceUnavailable, "face analysis unavailable")
		return
	}

	if len(faces) != 1 {
		var region *landmarks.Region
		if len(faces) > 0 {
			region = &faces[0].Region
		}
		anom := anomaly.FromFaceCount(len(faces), region)
		h.recordAnomaly(ctx, anom)
		respondJSON(w, http.StatusOK, FrameResponse{FacesCount: len(faces), Anomaly: anom})
		return
	}

	face := faces[0]

	var match recognition.MatchResult
	if len(face.Embedding) > 0 {
		if match, err = h.store.Match(face.Embedding); err != nil {
			// Bad embedding from the vision service; treat as unrecognized.
			log.Printf("match skipped for session %s: %v", sanitizeForLog(sessionID), err)
			match = recognition.MatchResult{}
		}
	}

	live := h.registry.CheckLiveness(sessionID, face.Landmarks, width, height, 0)

	staticRun := 0
	if hash, herr := liveness.HashFrame(prepared); herr == nil {
		staticRun = h.registry.TrackStatic(sessionID, hash)
	}

	maskPresent := false
	if img, _, derr := image.Decode(bytes.NewReader(prepared)); derr == nil {
		maskPresent = vision.DetectMask(img, face.Region)
	}

	anom := anomaly.Classify(match, &live, maskPresent)
	h.recordAnomaly(ctx, anom)

	respondJSON(w, http.StatusOK, FrameResponse{
		FacesCount:  1,
		Match:       &match,
		Liveness:    &live,
		MaskPresent: maskPresent,
		StaticRun:   staticRun,
		Anomaly:     anom,
	})
}

// Reset discards a session's liveness state.
func (h *LivenessHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session id is required")
		return
	}

	h.registry.Reset(sessionID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset", "session": sessionID})
}

// recordAnomaly persists an anomaly event, best effort.
func (h *LivenessHandler) recordAnomaly(ctx context.Context, anom *anomaly.Anomaly) {
	if anom == nil || h.anomalies == nil {
		return
	}
	if _, err := recordAnomalyEvent(ctx, h.anomalies, anom); err != nil {
		log.Printf("failed to record %s anomaly: %v", anom.Category, err)
	}
}
