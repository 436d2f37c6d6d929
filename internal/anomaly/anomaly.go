// Package anomaly maps match and liveness outcomes to typed anomaly
// verdicts consumed by the alerting collaborator.
package anomaly

import (
	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/landmarks"
	"github.com/jsvoboda/faceguard/internal/liveness"
	"github.com/jsvoboda/faceguard/internal/recognition"
)

type Category string

const (
	SpoofAttempt  Category = "spoof_attempt"
	MultipleFaces Category = "multiple_faces"
	NoFace        Category = "no_face"
	LowConfidence Category = "low_confidence"
	MaskViolation Category = "mask_violation"
	UnknownPerson Category = "unknown_person"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Anomaly is a single classified incident. IdentityID is empty when the
// face was not recognized.
type Anomaly struct {
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	IdentityID string   `json:"identity_id,omitempty"`
	Detail     Detail   `json:"detail"`
}

// Detail carries the numeric evidence behind the verdict.
type Detail struct {
	MatchConfidence float64           `json:"match_confidence"`
	LivenessScore   float64           `json:"liveness_score,omitempty"`
	FaceCount       int               `json:"face_count,omitempty"`
	FaceRegion      *landmarks.Region `json:"face_region,omitempty"`
}

// severityFor is the fixed severity table. Spoof attempts are the only
// high-severity category; everything else is medium.
func severityFor(c Category) Severity {
	if c == SpoofAttempt {
		return SeverityHigh
	}
	return SeverityMedium
}

func newAnomaly(c Category, identityID string, detail Detail) *Anomaly {
	return &Anomaly{
		Category:   c,
		Severity:   severityFor(c),
		IdentityID: identityID,
		Detail:     detail,
	}
}

// Classify decides whether a match/liveness pair constitutes an anomaly.
// A nil liveness result means no liveness check was requested, so spoof
// detection does not apply. Returns nil when nothing is wrong.
//
// Order matters: an unrecognized face carries no reliable confidence or
// identity, so it is classified first, before low confidence or spoofing
// can be considered.
func Classify(match recognition.MatchResult, live *liveness.LivenessResult, maskPresent bool) *Anomaly {
	detail := Detail{MatchConfidence: match.Confidence}
	if live != nil {
		detail.LivenessScore = live.Score
	}

	switch {
	case !match.Recognized:
		return newAnomaly(UnknownPerson, "", detail)
	case match.Confidence < constants.MinMatchConfidence:
		return newAnomaly(LowConfidence, match.IdentityID, detail)
	case live != nil && !live.IsLive:
		return newAnomaly(SpoofAttempt, match.IdentityID, detail)
	case maskPresent:
		return newAnomaly(MaskViolation, match.IdentityID, detail)
	}

	return nil
}

// FromFaceCount classifies a frame by the number of faces the upstream
// detector found in it. Exactly one face is the expected case.
func FromFaceCount(count int, region *landmarks.Region) *Anomaly {
	detail := Detail{FaceCount: count, FaceRegion: region}
	switch {
	case count == 0:
		return newAnomaly(NoFace, "", detail)
	case count > 1:
		return newAnomaly(MultipleFaces, "", detail)
	}
	return nil
}
