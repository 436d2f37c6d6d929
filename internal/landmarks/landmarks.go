// Package landmarks defines the 68-point facial landmark model and the
// geometric primitives derived from it. Landmark extraction itself happens
// in an external vision service; this package only consumes its output.
package landmarks

import "math"

// Landmark indices following the dlib 68-point annotation convention.
const (
	Chin          = 8
	NoseTip       = 30
	LeftEyeOuter  = 36
	RightEyeOuter = 45
	MouthLeft     = 48
	MouthRight    = 54

	// Eye landmark ranges, half-open [start, end)
	LeftEyeStart  = 36
	LeftEyeEnd    = 42
	RightEyeStart = 42
	RightEyeEnd   = 48

	NumPoints = 68
)

// Point is a 2D landmark coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Set holds the 68 facial landmarks for a single detected face.
type Set struct {
	Points []Point `json:"points"`
}

// Region is a face bounding box in pixel coordinates (top, right, bottom, left),
// matching the order produced by the detection service.
type Region struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Width returns the region width in pixels.
func (r Region) Width() int {
	return r.Right - r.Left
}

// Height returns the region height in pixels.
func (r Region) Height() int {
	return r.Bottom - r.Top
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Complete reports whether the set carries all 68 points.
func (s *Set) Complete() bool {
	return s != nil && len(s.Points) == NumPoints
}

// HasEyes reports whether both eye index ranges are present.
func (s *Set) HasEyes() bool {
	return s != nil && len(s.Points) >= RightEyeEnd
}

// HasPosePoints reports whether the six pose correspondence points are present.
func (s *Set) HasPosePoints() bool {
	return s != nil && len(s.Points) > MouthRight
}

// LeftEye returns the six left-eye landmarks, or nil if absent.
func (s *Set) LeftEye() []Point {
	if !s.HasEyes() {
		return nil
	}
	return s.Points[LeftEyeStart:LeftEyeEnd]
}

// RightEye returns the six right-eye landmarks, or nil if absent.
func (s *Set) RightEye() []Point {
	if !s.HasEyes() {
		return nil
	}
	return s.Points[RightEyeStart:RightEyeEnd]
}
