package liveness

import (
	"sync"
	"time"

	"github.com/jsvoboda/faceguard/internal/landmarks"
)

// session owns the mutable state of one in-progress liveness check. Frames
// for a session are serialized by its mutex so the blink state machine
// always sees them in order even if the caller overlaps requests.
type session struct {
	blink    *BlinkTracker
	static   *StaticTracker
	mu       sync.Mutex
	lastSeen time.Time
}

// Registry keys liveness sessions by an explicit session identifier, one
// state instance per camera stream or attendance attempt. A process-wide
// shared tracker would leak blink counts between concurrent checks.
type Registry struct {
	estimator *PoseEstimator
	threshold float64

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewRegistry creates a session registry using the given pose estimator
// and default fused-score threshold.
func NewRegistry(estimator *PoseEstimator, threshold float64) *Registry {
	return &Registry{
		estimator: estimator,
		threshold: threshold,
		sessions:  make(map[string]*session),
	}
}

// get returns the session for the given ID, creating it on first use.
func (r *Registry) get(sessionID string) *session {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.sessions[sessionID]; ok {
		return s
	}
	s = &session{blink: NewBlinkTracker(), static: &StaticTracker{}}
	r.sessions[sessionID] = s
	return s
}

// TrackBlink feeds one frame's landmarks to the session's blink tracker.
func (r *Registry) TrackBlink(sessionID string, set *landmarks.Set) BlinkResult {
	s := r.get(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.blink.Track(set)
}

// CheckLiveness runs the full per-frame pipeline for a session: blink
// tracking, pose estimation, and fusion. A threshold <= 0 uses the
// registry default.
func (r *Registry) CheckLiveness(sessionID string, set *landmarks.Set, frameWidth, frameHeight int, threshold float64) LivenessResult {
	if threshold <= 0 {
		threshold = r.threshold
	}

	s := r.get(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	blink := s.blink.Track(set)
	pose := r.estimator.Estimate(set, frameWidth, frameHeight)
	return Fuse(blink, pose, threshold)
}

// TrackStatic feeds one frame's hash to the session's static tracker and
// returns the consecutive near-duplicate run length.
func (r *Registry) TrackStatic(sessionID string, hash uint64) int {
	s := r.get(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.static.Observe(hash)
}

// Reset discards a session's state. The next frame for the same ID starts
// a fresh check.
func (r *Registry) Reset(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Active returns the number of sessions currently held.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Expire drops sessions that have not seen a frame within maxAge. The
// caller controls cadence; this exists so abandoned checks do not pin
// their (bounded) state forever.
func (r *Registry) Expire(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
