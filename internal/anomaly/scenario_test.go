package anomaly

import (
	"testing"

	"github.com/jsvoboda/faceguard/internal/landmarks"
	"github.com/jsvoboda/faceguard/internal/liveness"
	"github.com/jsvoboda/faceguard/internal/recognition"
)

// frameWithEAR builds a full 68-point set with both eye sextets at the
// given eye aspect ratio and frontal pose correspondence points.
func frameWithEAR(ear float64) *landmarks.Set {
	set := &landmarks.Set{Points: make([]landmarks.Point, landmarks.NumPoints)}
	for i := range set.Points {
		set.Points[i] = landmarks.Point{X: 320, Y: 240}
	}

	set.Points[landmarks.NoseTip] = landmarks.Point{X: 320, Y: 240}
	set.Points[landmarks.Chin] = landmarks.Point{X: 320, Y: 330}
	set.Points[landmarks.MouthLeft] = landmarks.Point{X: 285, Y: 290}
	set.Points[landmarks.MouthRight] = landmarks.Point{X: 355, Y: 290}

	// Eye width 40px; opening scaled to hit the requested EAR.
	eye := func(corner landmarks.Point) []landmarks.Point {
		h := ear * 40 / 2
		return []landmarks.Point{
			corner,
			{X: corner.X + 13, Y: corner.Y - h},
			{X: corner.X + 27, Y: corner.Y - h},
			{X: corner.X + 40, Y: corner.Y},
			{X: corner.X + 27, Y: corner.Y + h},
			{X: corner.X + 13, Y: corner.Y + h},
		}
	}
	copy(set.Points[landmarks.LeftEyeStart:landmarks.LeftEyeEnd],
		eye(landmarks.Point{X: 260, Y: 210}))
	copy(set.Points[landmarks.RightEyeStart:landmarks.RightEyeEnd],
		eye(landmarks.Point{X: 340, Y: 210}))
	return set
}

// TestAttendanceScenario walks one full verification: an enrolled person
// presents at a kiosk, blinks three times without large head movement, and
// their probe embedding lands close to the enrolled one. The outcome must
// be a confident recognized match, a live verdict, and no anomaly.
func TestAttendanceScenario(t *testing.T) {
	store := recognition.NewStore()

	enrolled := make([]float32, 128)
	for i := range enrolled {
		enrolled[i] = 0.2
	}
	if err := store.Enroll("emp-42", "Alice Novak", enrolled); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	// Probe at Euclidean distance 0.1 from the enrolled embedding.
	probe := make([]float32, 128)
	copy(probe, enrolled)
	probe[0] += 0.1

	match, err := store.Match(probe)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if !match.Recognized || match.IdentityID != "emp-42" {
		t.Fatalf("expected recognized match for emp-42, got %+v", match)
	}
	if match.Confidence < 0.89 || match.Confidence > 0.91 {
		t.Errorf("confidence = %f, want ~0.9", match.Confidence)
	}

	registry := liveness.NewRegistry(liveness.NewPoseEstimator(15), 0.5)

	// Three blink cycles: three closed frames, then an open frame each.
	var live liveness.LivenessResult
	for range 3 {
		for _, ear := range []float64{0.3, 0.2, 0.2, 0.2} {
			live = registry.CheckLiveness("kiosk-1", frameWithEAR(ear), 640, 480, 0.5)
		}
	}
	live = registry.CheckLiveness("kiosk-1", frameWithEAR(0.3), 640, 480, 0.5)

	if live.Blink.TotalBlinks != 3 {
		t.Fatalf("TotalBlinks = %d, want 3", live.Blink.TotalBlinks)
	}
	if !live.IsLive {
		t.Fatalf("three blinks must make the session live: %+v", live)
	}
	if live.Score < 0.6 {
		t.Errorf("fused score = %f, want >= 0.6 with saturated blink confidence", live.Score)
	}

	if anom := Classify(match, &live, false); anom != nil {
		t.Errorf("expected no anomaly, got %+v", anom)
	}
}
