package liveness

import "github.com/jsvoboda/faceguard/internal/constants"

// LivenessResult is the fused verdict for one frame within a session.
type LivenessResult struct {
	IsLive bool         `json:"is_live"`
	Score  float64      `json:"liveness_score"`
	Blink  BlinkResult  `json:"blink_result"`
	Pose   PoseEstimate `json:"pose_result"`
}

// Fuse combines the blink and pose signals into a liveness verdict.
//
// The score is a fixed weighted sum (0.6 blink, 0.4 pose). The verdict is
// a deliberately permissive OR of weak signals: any completed blink, any
// head movement, or a score strictly above the threshold is sufficient.
// This trades spoof sensitivity for a low false-rejection rate.
func Fuse(blink BlinkResult, pose PoseEstimate, threshold float64) LivenessResult {
	score := constants.BlinkWeight*blink.Confidence + constants.PoseWeight*pose.Confidence

	isLive := blink.TotalBlinks > 0 ||
		pose.MovementDetected ||
		score > threshold

	return LivenessResult{
		IsLive: isLive,
		Score:  score,
		Blink:  blink,
		Pose:   pose,
	}
}
