package normalize

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ScaledSize computes the largest size that fits within maxW x maxH while
// keeping the w:h ratio. A zero bound means the original dimension. The
// result never exceeds w x h, so images are only ever shrunk.
func ScaledSize(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	if maxW <= 0 {
		maxW = w
	}
	if maxH <= 0 {
		maxH = h
	}
	newW := math.Min(float64(w), float64(maxW))
	newH := float64(h) * newW / float64(w)
	if newH > float64(maxH) {
		newW = float64(w) * float64(maxH) / float64(h)
		newH = float64(maxH)
	}
	return atLeastOne(math.Round(newW)), atLeastOne(math.Round(newH))
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}

// Resize scales img to fit maxW x maxH preserving aspect ratio. When no
// scaling is needed img is returned as is.
func Resize(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
