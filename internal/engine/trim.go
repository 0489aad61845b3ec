package engine

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/tpyo/shrinkray/internal/options"
)

// trimTolerance is the per-channel distance within which a pixel counts as
// border colour.
const trimTolerance = 40

// applyTrim removes uniform borders from the image. In auto mode the border
// colour is taken from the corner pixels; if the corners disagree beyond the
// tolerance the trim is a no-op. A trim that would remove the whole image is
// also a no-op.
func applyTrim(img *image.NRGBA, t *options.Trim) *image.NRGBA {
	var ref color.NRGBA
	if t.Mode == options.TrimColour {
		ref = color.NRGBA{R: t.Colour.R, G: t.Colour.G, B: t.Colour.B, A: 255}
	} else {
		c, ok := cornerConsensus(img)
		if !ok {
			return img
		}
		ref = c
	}

	rect, ok := trimRect(img, ref)
	if !ok || rect == img.Bounds() {
		return img
	}
	return imaging.Crop(img, rect)
}

// cornerConsensus samples the four corner pixels; they must agree within the
// tolerance for auto-trim to proceed.
func cornerConsensus(img *image.NRGBA) (color.NRGBA, bool) {
	b := img.Bounds()
	corners := []color.NRGBA{
		img.NRGBAAt(b.Min.X, b.Min.Y),
		img.NRGBAAt(b.Max.X-1, b.Min.Y),
		img.NRGBAAt(b.Min.X, b.Max.Y-1),
		img.NRGBAAt(b.Max.X-1, b.Max.Y-1),
	}
	for _, c := range corners[1:] {
		if !matchesBorder(c, corners[0]) {
			return color.NRGBA{}, false
		}
	}
	return corners[0], true
}

// trimRect scans inward from each edge, dropping rows and columns whose
// pixels all match the border colour. Returns false when everything matches.
func trimRect(img *image.NRGBA, ref color.NRGBA) (image.Rectangle, bool) {
	b := img.Bounds()
	top, bottom := b.Min.Y, b.Max.Y
	left, right := b.Min.X, b.Max.X

	for top < bottom && rowMatches(img, top, left, right, ref) {
		top++
	}
	if top == bottom {
		return image.Rectangle{}, false
	}
	for bottom > top && rowMatches(img, bottom-1, left, right, ref) {
		bottom--
	}
	for left < right && colMatches(img, left, top, bottom, ref) {
		left++
	}
	for right > left && colMatches(img, right-1, top, bottom, ref) {
		right--
	}

	return image.Rect(left, top, right, bottom), true
}

func rowMatches(img *image.NRGBA, y, left, right int, ref color.NRGBA) bool {
	for x := left; x < right; x++ {
		if !matchesBorder(img.NRGBAAt(x, y), ref) {
			return false
		}
	}
	return true
}

func colMatches(img *image.NRGBA, x, top, bottom int, ref color.NRGBA) bool {
	for y := top; y < bottom; y++ {
		if !matchesBorder(img.NRGBAAt(x, y), ref) {
			return false
		}
	}
	return true
}

func matchesBorder(c, ref color.NRGBA) bool {
	return absDiff(c.R, ref.R) <= trimTolerance &&
		absDiff(c.G, ref.G) <= trimTolerance &&
		absDiff(c.B, ref.B) <= trimTolerance
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a) - int(b)
	}
	return int(b) - int(a)
}
