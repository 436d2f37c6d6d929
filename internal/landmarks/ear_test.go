package landmarks

import (
	"math"
	"testing"
)

// eyePoints builds a symmetric six-point eye with the given width and the
// given vertical opening between the upper and lower lid pairs.
func eyePoints(width, opening float64) []Point {
	return []Point{
		{X: 0, Y: 0},                          // p1 outer corner
		{X: width * 0.25, Y: -opening / 2},    // p2 upper
		{X: width * 0.75, Y: -opening / 2},    // p3 upper
		{X: width, Y: 0},                      // p4 inner corner
		{X: width * 0.75, Y: opening / 2},     // p5 lower
		{X: width * 0.25, Y: opening / 2},     // p6 lower
	}
}

func TestEyeAspectRatio(t *testing.T) {
	tests := []struct {
		name     string
		eye      []Point
		expected float64
	}{
		{
			name:     "open eye",
			eye:      eyePoints(10, 6),
			expected: 0.6, // (6 + 6) / (2 * 10)
		},
		{
			name:     "closed eye",
			eye:      eyePoints(10, 0),
			expected: 0,
		},
		{
			name:     "narrow opening",
			eye:      eyePoints(10, 2),
			expected: 0.2,
		},
		{
			name:     "wrong point count",
			eye:      eyePoints(10, 6)[:5],
			expected: 0,
		},
		{
			name:     "degenerate zero width",
			eye:      []Point{{}, {}, {}, {}, {}, {}},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EyeAspectRatio(tt.eye)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("EyeAspectRatio() = %v, want %v", result, tt.expected)
			}
		})
	}
}

// The EAR formula pairs p2/p6 and p3/p5, which are mirror images across the
// horizontal eye axis. Swapping the upper and lower lids must not change the value.
func TestEyeAspectRatio_Symmetry(t *testing.T) {
	eye := eyePoints(12, 5)
	flipped := make([]Point, 6)
	copy(flipped, eye)
	flipped[1], flipped[5] = eye[5], eye[1]
	flipped[2], flipped[4] = eye[4], eye[2]

	a := EyeAspectRatio(eye)
	b := EyeAspectRatio(flipped)
	if math.Abs(a-b) > 1e-12 {
		t.Errorf("EAR not symmetric under lid swap: %v vs %v", a, b)
	}
}

func TestAverageEAR(t *testing.T) {
	set := &Set{Points: make([]Point, NumPoints)}
	copy(set.Points[LeftEyeStart:LeftEyeEnd], eyePoints(10, 6))   // EAR 0.6
	copy(set.Points[RightEyeStart:RightEyeEnd], eyePoints(10, 2)) // EAR 0.2

	ear, ok := AverageEAR(set)
	if !ok {
		t.Fatal("expected eye landmarks to be present")
	}
	if math.Abs(ear-0.4) > 0.0001 {
		t.Errorf("AverageEAR() = %v, want 0.4", ear)
	}
}

func TestAverageEAR_MissingLandmarks(t *testing.T) {
	tests := []struct {
		name string
		set  *Set
	}{
		{"nil set", nil},
		{"empty set", &Set{}},
		{"too few points", &Set{Points: make([]Point, RightEyeEnd-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ear, ok := AverageEAR(tt.set)
			if ok {
				t.Error("expected ok = false for missing eye landmarks")
			}
			if ear != 0 {
				t.Errorf("expected zero EAR, got %v", ear)
			}
		})
	}
}

func TestRegionDimensions(t *testing.T) {
	r := Region{Top: 10, Right: 110, Bottom: 130, Left: 30}
	if r.Width() != 80 {
		t.Errorf("Width() = %d, want 80", r.Width())
	}
	if r.Height() != 120 {
		t.Errorf("Height() = %d, want 120", r.Height())
	}
}
