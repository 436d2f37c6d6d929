package liveness

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/jsvoboda/faceguard/internal/constants"
)

// HashFrame computes a 64-bit difference hash of a frame. Near-identical
// frames (a photo held in front of the camera, a paused video) produce
// hashes within a few bits of each other, which the static tracker uses as
// a replay hint.
func HashFrame(imageData []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return 0, fmt.Errorf("failed to decode frame: %w", err)
	}

	// Resize to 9x8: 9 columns give 8 horizontal differences per row.
	resized := image.NewRGBA(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Over, nil)
	gray := toGrayscale(resized)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash, nil
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Clear lowest set bit
	}
	return distance
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

// StaticTracker counts consecutive near-duplicate frames within a session.
// A long run of static frames suggests a replayed photo rather than a
// camera pointed at a person; the count is reported alongside the fused
// liveness verdict but does not alter it.
type StaticTracker struct {
	lastHash uint64
	hasLast  bool
	run      int
}

// Observe feeds one frame hash and returns the current static run length.
// The first frame of a session always resets the run to zero.
func (t *StaticTracker) Observe(hash uint64) int {
	if t.hasLast && HammingDistance(t.lastHash, hash) <= constants.StaticFrameHammingThreshold {
		t.run++
	} else {
		t.run = 0
	}
	t.lastHash = hash
	t.hasLast = true
	return t.run
}

// Run returns the current consecutive near-duplicate count.
func (t *StaticTracker) Run() int {
	return t.run
}
