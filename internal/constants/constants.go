// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Embedding constants
const (
	// EmbeddingDim is the required dimensionality of identity embeddings
	EmbeddingDim = 128

	// MatchDistanceThreshold is the maximum Euclidean distance for a probe
	// to be considered a match. The comparison is strict (<), and the
	// resulting confidence is 1 - distance. This value is part of the
	// matching contract, not a per-call tunable.
	MatchDistanceThreshold = 0.6

	// MinMatchConfidence is the confidence below which a recognized match
	// is still flagged as a low-confidence anomaly
	MinMatchConfidence = 0.7
)

// Blink detection constants
const (
	// EARThreshold is the eye aspect ratio below which the eye counts as closed
	EARThreshold = 0.25

	// BlinkConsecFrames is the number of consecutive low-EAR frames required
	// before an EAR recovery counts as a completed blink
	BlinkConsecFrames = 3

	// EARHistorySize is the number of recent EAR values kept per session
	EARHistorySize = 10

	// BlinkConfidenceSaturation is the blink count at which confidence reaches 1.0
	BlinkConfidenceSaturation = 3
)

// Head pose constants
const (
	// DefaultHeadPoseThreshold is the default angle in degrees beyond which
	// head movement is reported on any axis
	DefaultHeadPoseThreshold = 15.0

	// PoseConfidenceSaturationDeg is the average absolute deviation in
	// degrees at which pose confidence reaches 1.0
	PoseConfidenceSaturationDeg = 45.0
)

// Liveness fusion constants
const (
	// BlinkWeight is the blink confidence weight in the fused liveness score
	BlinkWeight = 0.6

	// PoseWeight is the pose confidence weight in the fused liveness score
	PoseWeight = 0.4

	// DefaultLivenessThreshold is the default fused score above which a
	// session is considered live even without a blink or head movement
	DefaultLivenessThreshold = 0.5
)

// Static frame detection constants
const (
	// StaticFrameHammingThreshold is the maximum Hamming distance between
	// consecutive frame hashes for the frames to count as near-identical
	StaticFrameHammingThreshold = 5
)

// Mask detection constants
const (
	// MaskSkinRatioThreshold is the skin-pixel ratio in the lower face below
	// which a mask is assumed to be present
	MaskSkinRatioThreshold = 0.3
)

// Enrollment constants
const (
	// DuplicateDistanceThreshold is the maximum Euclidean distance at which a
	// new enrollment is flagged as a likely duplicate of an existing identity
	DuplicateDistanceThreshold = 0.05

	// DuplicateCheckLimit is the number of ANN candidates examined during
	// the duplicate-enrollment check
	DuplicateCheckLimit = 5
)

// HNSW index parameters for the enrollment screening index
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16
)

// Web constants
const (
	// MaxUploadSize is the maximum frame upload size in bytes (20MB)
	MaxUploadSize = 20 << 20

	// MaxFrameDimension is the maximum width or height sent to the vision
	// service; larger frames are downscaled first
	MaxFrameDimension = 1280
)
