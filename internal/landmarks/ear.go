package landmarks

// EyeAspectRatio computes the EAR for a single eye given its six landmarks
// (p1..p6 in annotation order). The ratio of vertical to horizontal eyelid
// distances drops sharply while the eye is closed:
//
//	EAR = (|p2-p6| + |p3-p5|) / (2 * |p1-p4|)
//
// Returns 0 when the input is malformed or the eye width is degenerate.
func EyeAspectRatio(eye []Point) float64 {
	if len(eye) != 6 {
		return 0
	}

	a := Distance(eye[1], eye[5])
	b := Distance(eye[2], eye[4])
	c := Distance(eye[0], eye[3])

	if c == 0 {
		return 0
	}
	return (a + b) / (2 * c)
}

// AverageEAR computes the two-eye average EAR for a landmark set.
// The boolean is false when the eye landmarks are missing.
func AverageEAR(s *Set) (float64, bool) {
	if !s.HasEyes() {
		return 0, false
	}
	left := EyeAspectRatio(s.LeftEye())
	right := EyeAspectRatio(s.RightEye())
	return (left + right) / 2, true
}
