package liveness

import (
	"math"

	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/landmarks"
)

// PoseEstimate is the per-frame head pose in degrees. It carries no history;
// fusion only needs the current frame.
type PoseEstimate struct {
	Yaw              float64 `json:"yaw"`
	Pitch            float64 `json:"pitch"`
	Roll             float64 `json:"roll"`
	MovementDetected bool    `json:"movement_detected"`
	Confidence       float64 `json:"confidence"`
	Degraded         bool    `json:"degraded,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// faceModel is the generic 3D face model in millimeters, anchored at the
// nose tip. The points pair positionally with poseImagePoints below.
var faceModel = []vec3{
	{0, 0, 0},            // nose tip
	{0, -330, -65},       // chin
	{-225, 170, -135},    // left eye outer corner
	{225, 170, -135},     // right eye outer corner
	{-150, -150, -125},   // left mouth corner
	{150, -150, -125},    // right mouth corner
}

// poseImagePoints selects the six landmark indices corresponding to faceModel.
var poseImagePoints = []int{
	landmarks.NoseTip,
	landmarks.Chin,
	landmarks.LeftEyeOuter,
	landmarks.RightEyeOuter,
	landmarks.MouthLeft,
	landmarks.MouthRight,
}

// PoseEstimator derives head orientation from landmark correspondences.
// It is stateless and safe for concurrent use.
type PoseEstimator struct {
	// MovementThresholdDeg is the per-axis angle beyond which head
	// movement is reported.
	MovementThresholdDeg float64
}

// NewPoseEstimator creates an estimator with the given movement threshold
// in degrees; zero or negative falls back to the default.
func NewPoseEstimator(movementThresholdDeg float64) *PoseEstimator {
	if movementThresholdDeg <= 0 {
		movementThresholdDeg = constants.DefaultHeadPoseThreshold
	}
	return &PoseEstimator{MovementThresholdDeg: movementThresholdDeg}
}

// Estimate computes yaw/pitch/roll for one frame.
//
// Any failure - missing landmarks or a diverging solve - degrades to a
// zero estimate instead of erroring so that one bad frame cannot abort a
// multi-frame liveness check.
func (e *PoseEstimator) Estimate(set *landmarks.Set, frameWidth, frameHeight int) PoseEstimate {
	if !set.HasPosePoints() {
		return PoseEstimate{Degraded: true, Reason: "missing pose landmarks"}
	}
	if frameWidth <= 0 || frameHeight <= 0 {
		return PoseEstimate{Degraded: true, Reason: "invalid frame size"}
	}

	image := make([]vec2, len(poseImagePoints))
	for i, idx := range poseImagePoints {
		p := set.Points[idx]
		image[i] = vec2{x: p.X, y: p.Y}
	}

	cam := camera{
		focal: float64(frameWidth),
		cx:    float64(frameWidth) / 2,
		cy:    float64(frameHeight) / 2,
	}

	rot, err := solvePnP(faceModel, image, cam)
	if err != nil {
		return PoseEstimate{Degraded: true, Reason: "pose solve did not converge"}
	}

	yaw, pitch, roll := eulerAngles(rot)
	yaw, pitch, roll = degrees(yaw), degrees(pitch), degrees(roll)

	movement := math.Abs(yaw) > e.MovementThresholdDeg ||
		math.Abs(pitch) > e.MovementThresholdDeg ||
		math.Abs(roll) > e.MovementThresholdDeg

	variation := (math.Abs(yaw) + math.Abs(pitch) + math.Abs(roll)) / 3
	confidence := variation / constants.PoseConfidenceSaturationDeg
	if confidence > 1 {
		confidence = 1
	}

	return PoseEstimate{
		Yaw:              yaw,
		Pitch:            pitch,
		Roll:             roll,
		MovementDetected: movement,
		Confidence:       confidence,
	}
}

// eulerAngles decomposes a rotation matrix into yaw/pitch/roll radians.
// Near the gimbal-lock singularity (sy < 1e-6) the roll axis becomes
// indistinguishable from yaw, so roll is forced to zero and the degenerate
// extraction is used for the other two axes.
func eulerAngles(r [3][3]float64) (yaw, pitch, roll float64) {
	sy := math.Sqrt(r[0][0]*r[0][0] + r[1][0]*r[1][0])

	if sy >= 1e-6 {
		yaw = math.Atan2(r[2][1], r[2][2])
		pitch = math.Atan2(-r[2][0], sy)
		roll = math.Atan2(r[1][0], r[0][0])
		return yaw, pitch, roll
	}

	yaw = math.Atan2(-r[1][2], r[1][1])
	pitch = math.Atan2(-r[2][0], sy)
	roll = 0
	return yaw, pitch, roll
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
