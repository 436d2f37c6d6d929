package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jsvoboda/faceguard/internal/anomaly"
	"github.com/jsvoboda/faceguard/internal/landmarks"
	"github.com/jsvoboda/faceguard/internal/liveness"
	"github.com/jsvoboda/faceguard/internal/recognition"
	"github.com/jsvoboda/faceguard/internal/vision"
)

func newTestRegistry() *liveness.Registry {
	return liveness.NewRegistry(liveness.NewPoseEstimator(0), 0.5)
}

// neutralLandmarks builds a 68-point set with open eyes at plausible
// positions inside a 640x480 frame.
func neutralLandmarks() *landmarks.Set {
	set := &landmarks.Set{Points: make([]landmarks.Point, landmarks.NumPoints)}
	for i := range set.Points {
		set.Points[i] = landmarks.Point{X: 320, Y: 240}
	}

	// Pose correspondence points roughly matching a frontal face.
	set.Points[landmarks.NoseTip] = landmarks.Point{X: 320, Y: 240}
	set.Points[landmarks.Chin] = landmarks.Point{X: 320, Y: 330}
	set.Points[landmarks.LeftEyeOuter] = landmarks.Point{X: 260, Y: 210}
	set.Points[landmarks.RightEyeOuter] = landmarks.Point{X: 380, Y: 210}
	set.Points[landmarks.MouthLeft] = landmarks.Point{X: 285, Y: 290}
	set.Points[landmarks.MouthRight] = landmarks.Point{X: 355, Y: 290}

	// Open eyes: width 40px, opening 14px (EAR 0.35).
	openEye := func(corner landmarks.Point) []landmarks.Point {
		return []landmarks.Point{
			corner,
			{X: corner.X + 13, Y: corner.Y - 7},
			{X: corner.X + 27, Y: corner.Y - 7},
			{X: corner.X + 40, Y: corner.Y},
			{X: corner.X + 27, Y: corner.Y + 7},
			{X: corner.X + 13, Y: corner.Y + 7},
		}
	}
	copy(set.Points[landmarks.LeftEyeStart:landmarks.LeftEyeEnd],
		openEye(set.Points[landmarks.LeftEyeOuter]))
	copy(set.Points[landmarks.RightEyeStart:landmarks.RightEyeEnd],
		openEye(landmarks.Point{X: set.Points[landmarks.RightEyeOuter].X - 40, Y: set.Points[landmarks.RightEyeOuter].Y}))
	return set
}

func testFace(embedding []float32) vision.Face {
	return vision.Face{
		Region:    landmarks.Region{Top: 150, Right: 420, Bottom: 360, Left: 220},
		Landmarks: neutralLandmarks(),
		Embedding: embedding,
		DetScore:  0.99,
	}
}

func postFrame(t *testing.T, h *LivenessHandler, session string) *httptest.ResponseRecorder {
	t.Helper()
	req := requestWithChiParams(
		multipartRequest(t, http.MethodPost, "/api/v1/liveness/"+session+"/frames", "frame",
			makeJPEG(t, 640, 480), nil),
		map[string]string{"session": session},
	)
	rec := httptest.NewRecorder()
	h.Frame(rec, req)
	return rec
}

func TestFrame_RecognizedFace(t *testing.T) {
	store := recognition.NewStore()
	store.Enroll("a", "Alice", testEmbedding(0.1))

	events := &fakeAnomalyWriter{}
	h := NewLivenessHandler(newTestRegistry(), store,
		&fakeVision{faces: []vision.Face{testFace(testEmbedding(0.1))}}, events)

	rec := postFrame(t, h, "kiosk-1")
	assertStatusCode(t, rec, http.StatusOK)

	var resp FrameResponse
	parseJSONResponse(t, rec, &resp)
	if resp.FacesCount != 1 {
		t.Fatalf("faces_count = %d, want 1", resp.FacesCount)
	}
	if resp.Match == nil || !resp.Match.Recognized || resp.Match.IdentityID != "a" {
		t.Errorf("unexpected match: %+v", resp.Match)
	}
	if resp.Liveness == nil {
		t.Fatal("expected a liveness result")
	}
	if resp.Liveness.Blink.Degraded {
		t.Errorf("blink signal degraded: %s", resp.Liveness.Blink.Reason)
	}
}

func TestFrame_NoFace(t *testing.T) {
	events := &fakeAnomalyWriter{}
	h := NewLivenessHandler(newTestRegistry(), recognition.NewStore(),
		&fakeVision{faces: nil}, events)

	rec := postFrame(t, h, "kiosk-1")
	assertStatusCode(t, rec, http.StatusOK)

	var resp FrameResponse
	parseJSONResponse(t, rec, &resp)
	if resp.FacesCount != 0 {
		t.Errorf("faces_count = %d, want 0", resp.FacesCount)
	}
	if resp.Anomaly == nil || resp.Anomaly.Category != anomaly.NoFace {
		t.Errorf("expected no_face anomaly, got %+v", resp.Anomaly)
	}
	if len(events.events) != 1 || events.events[0].Category != string(anomaly.NoFace) {
		t.Errorf("expected one recorded no_face event, got %+v", events.events)
	}
}

func TestFrame_MultipleFaces(t *testing.T) {
	faces := []vision.Face{testFace(testEmbedding(0.1)), testFace(testEmbedding(0.5))}
	h := NewLivenessHandler(newTestRegistry(), recognition.NewStore(),
		&fakeVision{faces: faces}, nil)

	rec := postFrame(t, h, "kiosk-1")
	assertStatusCode(t, rec, http.StatusOK)

	var resp FrameResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Anomaly == nil || resp.Anomaly.Category != anomaly.MultipleFaces {
		t.Errorf("expected multiple_faces anomaly, got %+v", resp.Anomaly)
	}
	if resp.Anomaly != nil && resp.Anomaly.Detail.FaceCount != 2 {
		t.Errorf("face_count = %d, want 2", resp.Anomaly.Detail.FaceCount)
	}
}

func TestFrame_UnknownPerson(t *testing.T) {
	events := &fakeAnomalyWriter{}
	h := NewLivenessHandler(newTestRegistry(), recognition.NewStore(),
		&fakeVision{faces: []vision.Face{testFace(testEmbedding(0.1))}}, events)

	rec := postFrame(t, h, "kiosk-1")
	assertStatusCode(t, rec, http.StatusOK)

	var resp FrameResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Anomaly == nil || resp.Anomaly.Category != anomaly.UnknownPerson {
		t.Errorf("expected unknown_person anomaly, got %+v", resp.Anomaly)
	}
	if len(events.events) != 1 {
		t.Errorf("expected one recorded event, got %d", len(events.events))
	}
}

func TestFrame_SessionsAreIsolated(t *testing.T) {
	store := recognition.NewStore()
	store.Enroll("a", "Alice", testEmbedding(0.1))

	registry := newTestRegistry()
	h := NewLivenessHandler(registry, store,
		&fakeVision{faces: []vision.Face{testFace(testEmbedding(0.1))}}, nil)

	postFrame(t, h, "kiosk-1")
	postFrame(t, h, "kiosk-2")

	if registry.Active() != 2 {
		t.Errorf("active sessions = %d, want 2", registry.Active())
	}
}

func TestFrame_BadUpload(t *testing.T) {
	h := NewLivenessHandler(newTestRegistry(), recognition.NewStore(), &fakeVision{}, nil)

	// Not an image at all.
	req := requestWithChiParams(
		multipartRequest(t, http.MethodPost, "/api/v1/liveness/kiosk-1/frames", "frame",
			[]byte("not an image"), nil),
		map[string]string{"session": "kiosk-1"},
	)
	rec := httptest.NewRecorder()
	h.Frame(rec, req)
	assertStatusCode(t, rec, http.StatusBadRequest)

	// Wrong field name.
	req = requestWithChiParams(
		multipartRequest(t, http.MethodPost, "/api/v1/liveness/kiosk-1/frames", "image",
			makeJPEG(t, 64, 64), nil),
		map[string]string{"session": "kiosk-1"},
	)
	rec = httptest.NewRecorder()
	h.Frame(rec, req)
	assertStatusCode(t, rec, http.StatusBadRequest)
}

func TestFrame_VisionUnavailable(t *testing.T) {
	h := NewLivenessHandler(newTestRegistry(), recognition.NewStore(),
		&fakeVision{err: errVisionDown}, nil)

	rec := postFrame(t, h, "kiosk-1")
	assertStatusCode(t, rec, http.StatusServiceUnavailable)
}

func TestReset(t *testing.T) {
	registry := newTestRegistry()
	h := NewLivenessHandler(registry, recognition.NewStore(),
		&fakeVision{faces: []vision.Face{testFace(testEmbedding(0.1))}}, nil)

	postFrame(t, h, "kiosk-1")
	if registry.Active() != 1 {
		t.Fatalf("active sessions = %d, want 1", registry.Active())
	}

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodDelete, "/api/v1/liveness/kiosk-1", nil),
		map[string]string{"session": "kiosk-1"},
	)
	rec := httptest.NewRecorder()
	h.Reset(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	if registry.Active() != 0 {
		t.Errorf("active sessions = %d after reset, want 0", registry.Active())
	}
}
