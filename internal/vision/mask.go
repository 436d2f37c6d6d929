package vision

import (
	"image"
	"image/color"

	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/landmarks"
)

// DetectMask reports whether the lower half of the face region looks
// covered. It classifies pixels as skin in YCbCr space and flags a mask
// when the skin ratio drops below the threshold. Heuristic only: fabric
// close to skin tone will slip through.
func DetectMask(img image.Image, region landmarks.Region) bool {
	bounds := img.Bounds()

	// Lower half of the face: mouth and chin area, where a mask sits.
	top := region.Top + region.Height()/2
	left := max(region.Left, bounds.Min.X)
	right := min(region.Right, bounds.Max.X)
	bottom := min(region.Bottom, bounds.Max.Y)
	top = max(top, bounds.Min.Y)

	if right <= left || bottom <= top {
		return false
	}

	var skin, total int
	for y := top; y < bottom; y++ {
		for x := left; x < right; x++ {
			if isSkin(img.At(x, y)) {
				skin++
			}
			total++
		}
	}

	if total == 0 {
		return false
	}
	ratio := float64(skin) / float64(total)
	return ratio < constants.MaskSkinRatioThreshold
}

// isSkin classifies a pixel as skin tone using the common YCbCr ranges
// (Cb in [77,127], Cr in [133,173]).
func isSkin(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	y, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(b>>8))
	return y > 80 && cb >= 77 && cb <= 127 && cr >= 133 && cr <= 173
}
