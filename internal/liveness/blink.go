// Package liveness decides whether a presented face belongs to a live
// person. It fuses two weak per-frame signals, eye blinks (EAR state
// machine) and head pose (perspective-n-point geometry), into a single
// score and verdict. All state is per session; nothing here is shared
// between concurrent checks.
package liveness

import (
	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/landmarks"
)

// BlinkResult is the per-frame output of the blink tracker.
//
// Degraded marks frames where the signal could not be computed at all
// (missing eye landmarks) as opposed to a genuinely low signal; callers
// that need to tell "no evidence" from "computation failed" check it.
type BlinkResult struct {
	BlinkDetected bool    `json:"blink_detected"`
	EAR           float64 `json:"ear"`
	TotalBlinks   int     `json:"total_blinks"`
	Confidence    float64 `json:"confidence"`
	Degraded      bool    `json:"degraded,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// BlinkTracker counts completed blinks across the frames of one liveness
// session. Frames must be fed in camera order, and a tracker must never be
// shared between sessions; the Registry enforces both.
type BlinkTracker struct {
	counter     int
	totalBlinks int
	earHistory  []float64
}

// NewBlinkTracker creates a tracker with empty state.
func NewBlinkTracker() *BlinkTracker {
	return &BlinkTracker{}
}

// Track applies one frame's landmarks to the blink state machine.
//
// A blink completes when the EAR recovers above the threshold after at
// least BlinkConsecFrames consecutive frames below it. Frames without eye
// landmarks contribute nothing: the state machine is untouched and a
// degraded zero-confidence result is returned for that frame only.
func (t *BlinkTracker) Track(set *landmarks.Set) BlinkResult {
	ear, ok := landmarks.AverageEAR(set)
	if !ok {
		return BlinkResult{
			TotalBlinks: t.totalBlinks,
			Degraded:    true,
			Reason:      "missing eye landmarks",
		}
	}

	t.earHistory = append(t.earHistory, ear)
	if len(t.earHistory) > constants.EARHistorySize {
		t.earHistory = t.earHistory[1:]
	}

	blinkDetected := false
	if ear < constants.EARThreshold {
		t.counter++
	} else {
		if t.counter >= constants.BlinkConsecFrames {
			t.totalBlinks++
			blinkDetected = true
		}
		t.counter = 0
	}

	return BlinkResult{
		BlinkDetected: blinkDetected,
		EAR:           ear,
		TotalBlinks:   t.totalBlinks,
		Confidence:    blinkConfidence(t.totalBlinks),
	}
}

// TotalBlinks returns the number of completed blinks so far.
func (t *BlinkTracker) TotalBlinks() int {
	return t.totalBlinks
}

// History returns the rolling EAR history, oldest first.
func (t *BlinkTracker) History() []float64 {
	return t.earHistory
}

// Reset clears all tracker state.
func (t *BlinkTracker) Reset() {
	t.counter = 0
	t.totalBlinks = 0
	t.earHistory = nil
}

// blinkConfidence saturates at 1.0 after three completed blinks.
func blinkConfidence(totalBlinks int) float64 {
	c := float64(totalBlinks) / constants.BlinkConfidenceSaturation
	if c > 1 {
		return 1
	}
	return c
}
