package options

import "math"

// Plan is the resolved geometry for one request: scale the source to
// ResizeWidth x ResizeHeight, optionally center-crop to CropWidth x
// CropHeight, optionally pad onto a CanvasWidth x CanvasHeight canvas.
// Zero fields mean the step is skipped.
type Plan struct {
	ResizeWidth  int
	ResizeHeight int
	CropWidth    int
	CropHeight   int
	CanvasWidth  int
	CanvasHeight int
}

// IsZero reports whether the plan requires no geometry work.
func (p Plan) IsZero() bool {
	return p == Plan{}
}

// MaxPixels returns the largest pixel count the plan materialises, including
// the resize intermediate, so callers can bound allocation before any step
// runs.
func (p Plan) MaxPixels() int64 {
	px := int64(p.ResizeWidth) * int64(p.ResizeHeight)
	if c := int64(p.CropWidth) * int64(p.CropHeight); c > px {
		px = c
	}
	if c := int64(p.CanvasWidth) * int64(p.CanvasHeight); c > px {
		px = c
	}
	return px
}

// ResolveGeometry turns the requested dimensions, aspect ratio, device pixel
// ratio and fit mode into a concrete Plan for a source of the given size.
//
// When exactly one of w/h is present the other is derived from the requested
// aspect ratio, or the source aspect ratio if none was given. When both are
// present they are taken literally and ar is ignored. The device pixel ratio
// multiplies both dimensions before the fit-mode math runs.
func (s *Spec) ResolveGeometry(srcW, srcH int) Plan {
	if srcW <= 0 || srcH <= 0 {
		return Plan{}
	}

	w, h := s.Width, s.Height
	if w == 0 && h == 0 {
		return Plan{}
	}

	ratio := float64(srcW) / float64(srcH)
	if s.AspectRatio != nil {
		ratio = s.AspectRatio.Ratio()
	}
	switch {
	case w == 0:
		w = roundDim(float64(h) * ratio)
	case h == 0:
		h = roundDim(float64(w) / ratio)
	}

	targetW := roundDim(float64(w) * s.DevicePixelRatio)
	targetH := roundDim(float64(h) * s.DevicePixelRatio)

	switch s.Fit {
	case FitCrop:
		rw, rh := scaleToCover(srcW, srcH, targetW, targetH)
		return Plan{
			ResizeWidth:  rw,
			ResizeHeight: rh,
			CropWidth:    targetW,
			CropHeight:   targetH,
		}
	case FitMax:
		rw, rh := scaleToFit(srcW, srcH, targetW, targetH)
		if rw >= srcW && rh >= srcH {
			// Never upscale: keep the source size.
			return Plan{ResizeWidth: srcW, ResizeHeight: srcH}
		}
		return Plan{ResizeWidth: rw, ResizeHeight: rh}
	case FitClamp:
		rw, rh := scaleToFit(srcW, srcH, targetW, targetH)
		return Plan{
			ResizeWidth:  rw,
			ResizeHeight: rh,
			CanvasWidth:  targetW,
			CanvasHeight: targetH,
		}
	default: // FitClip
		rw, rh := scaleToFit(srcW, srcH, targetW, targetH)
		plan := Plan{ResizeWidth: rw, ResizeHeight: rh}
		if s.Background != nil {
			plan.CanvasWidth = targetW
			plan.CanvasHeight = targetH
		}
		return plan
	}
}

// scaleToFit scales (srcW, srcH) so it fits entirely within (boxW, boxH)
// preserving aspect ratio, with equality on the limiting axis.
func scaleToFit(srcW, srcH, boxW, boxH int) (int, int) {
	scaleX := float64(boxW) / float64(srcW)
	scaleY := float64(boxH) / float64(srcH)
	if scaleX <= scaleY {
		return boxW, roundDim(float64(srcH) * scaleX)
	}
	return roundDim(float64(srcW) * scaleY), boxH
}

// scaleToCover scales (srcW, srcH) so it covers (boxW, boxH) entirely,
// preserving aspect ratio.
func scaleToCover(srcW, srcH, boxW, boxH int) (int, int) {
	scaleX := float64(boxW) / float64(srcW)
	scaleY := float64(boxH) / float64(srcH)
	if scaleX >= scaleY {
		return boxW, maxInt(boxH, roundDim(float64(srcH)*scaleX))
	}
	return maxInt(boxW, roundDim(float64(srcW)*scaleY)), boxH
}

func roundDim(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
