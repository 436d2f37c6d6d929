package liveness

import (
	"math"
	"testing"

	"github.com/jsvoboda/faceguard/internal/landmarks"
)

// eyeWithEAR builds a six-point eye of width 10 anchored at the given
// corner whose aspect ratio equals the requested value.
func eyeWithEAR(corner landmarks.Point, ear float64) []landmarks.Point {
	opening := ear * 10 // EAR = (opening + opening) / (2 * width)
	return []landmarks.Point{
		{X: corner.X, Y: corner.Y},
		{X: corner.X + 2.5, Y: corner.Y - opening/2},
		{X: corner.X + 7.5, Y: corner.Y - opening/2},
		{X: corner.X + 10, Y: corner.Y},
		{X: corner.X + 7.5, Y: corner.Y + opening/2},
		{X: corner.X + 2.5, Y: corner.Y + opening/2},
	}
}

// setWithEAR builds a full landmark set whose two-eye average EAR equals
// the given value.
func setWithEAR(ear float64) *landmarks.Set {
	s := &landmarks.Set{Points: make([]landmarks.Point, landmarks.NumPoints)}
	copy(s.Points[landmarks.LeftEyeStart:landmarks.LeftEyeEnd], eyeWithEAR(landmarks.Point{X: 100, Y: 100}, ear))
	copy(s.Points[landmarks.RightEyeStart:landmarks.RightEyeEnd], eyeWithEAR(landmarks.Point{X: 140, Y: 100}, ear))
	return s
}

func TestBlinkTracker_SingleBlink(t *testing.T) {
	// Threshold 0.25, k=3: one blink, confirmed at the recovery frame.
	sequence := []float64{0.3, 0.2, 0.2, 0.2, 0.3}
	tracker := NewBlinkTracker()

	var results []BlinkResult
	for _, ear := range sequence {
		results = append(results, tracker.Track(setWithEAR(ear)))
	}

	for i, r := range results[:4] {
		if r.BlinkDetected {
			t.Errorf("frame %d: blink must not be confirmed before EAR recovers", i)
		}
	}
	last := results[4]
	if !last.BlinkDetected {
		t.Error("blink must be confirmed at the recovery frame")
	}
	if last.TotalBlinks != 1 {
		t.Errorf("TotalBlinks = %d, want 1", last.TotalBlinks)
	}
}

func TestBlinkTracker_TooFewLowFrames(t *testing.T) {
	// Only 2 consecutive low frames: below k=3, no blink.
	sequence := []float64{0.3, 0.2, 0.2, 0.3}
	tracker := NewBlinkTracker()

	var last BlinkResult
	for _, ear := range sequence {
		last = tracker.Track(setWithEAR(ear))
	}

	if last.BlinkDetected || last.TotalBlinks != 0 {
		t.Errorf("short closure must not count as blink: %+v", last)
	}
}

func TestBlinkTracker_ConfidenceSaturation(t *testing.T) {
	expected := []float64{0, 1.0 / 3, 2.0 / 3, 1, 1}
	tracker := NewBlinkTracker()

	check := func(blinks int) {
		got := blinkConfidence(tracker.TotalBlinks())
		if math.Abs(got-expected[blinks]) > 0.0001 {
			t.Errorf("after %d blinks: confidence = %v, want %v", blinks, got, expected[blinks])
		}
	}

	check(0)
	for i := 1; i <= 4; i++ {
		for _, ear := range []float64{0.2, 0.2, 0.2, 0.3} {
			tracker.Track(setWithEAR(ear))
		}
		if tracker.TotalBlinks() != i {
			t.Fatalf("TotalBlinks = %d, want %d", tracker.TotalBlinks(), i)
		}
		check(min(i, 4))
	}
}

func TestBlinkTracker_HistoryBounded(t *testing.T) {
	tracker := NewBlinkTracker()
	for i := 0; i < 25; i++ {
		tracker.Track(setWithEAR(0.3))
	}

	if len(tracker.History()) != 10 {
		t.Errorf("history length = %d, want 10", len(tracker.History()))
	}
}

func TestBlinkTracker_HistoryEvictsOldest(t *testing.T) {
	tracker := NewBlinkTracker()
	tracker.Track(setWithEAR(0.9))
	for i := 0; i < 10; i++ {
		tracker.Track(setWithEAR(0.3))
	}

	for i, ear := range tracker.History() {
		if math.Abs(ear-0.3) > 0.01 {
			t.Errorf("history[%d] = %v; the 0.9 frame should have been evicted", i, ear)
		}
	}
}

func TestBlinkTracker_MissingLandmarks(t *testing.T) {
	tracker := NewBlinkTracker()
	// Build up mid-blink state.
	tracker.Track(setWithEAR(0.2))
	tracker.Track(setWithEAR(0.2))
	tracker.Track(setWithEAR(0.2))

	tests := []struct {
		name string
		set  *landmarks.Set
	}{
		{"nil landmarks", nil},
		{"empty landmarks", &landmarks.Set{}},
		{"missing eye range", &landmarks.Set{Points: make([]landmarks.Point, 40)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tracker.Track(tt.set)
			if !r.Degraded {
				t.Error("expected degraded result for missing landmarks")
			}
			if r.BlinkDetected || r.Confidence != 0 {
				t.Errorf("degraded frame must be zero-confidence: %+v", r)
			}
		})
	}

	// State untouched: the next good recovery frame still completes the blink.
	r := tracker.Track(setWithEAR(0.3))
	if !r.BlinkDetected || r.TotalBlinks != 1 {
		t.Errorf("degraded frames must not disturb the state machine: %+v", r)
	}
}

func TestBlinkTracker_Reset(t *testing.T) {
	tracker := NewBlinkTracker()
	for _, ear := range []float64{0.2, 0.2, 0.2, 0.3} {
		tracker.Track(setWithEAR(ear))
	}
	if tracker.TotalBlinks() != 1 {
		t.Fatalf("TotalBlinks = %d, want 1", tracker.TotalBlinks())
	}

	tracker.Reset()
	if tracker.TotalBlinks() != 0 || len(tracker.History()) != 0 {
		t.Error("Reset must clear all state")
	}
}
