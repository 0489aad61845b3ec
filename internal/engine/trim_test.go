package engine

import (
	"image"
	"image/color"
	"testing"

	"github.com/tpyo/shrinkray/internal/options"
)

// borderedImage builds an inner block of the given colour surrounded by a
// uniform border.
func borderedImage(w, h, border int, inner, frame color.NRGBA) *image.NRGBA {
	img := solidImage(w, h, frame)
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			img.SetNRGBA(x, y, inner)
		}
	}
	return img
}

func TestAutoTrimRemovesUniformBorder(t *testing.T) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red := color.NRGBA{R: 200, A: 255}
	img := borderedImage(140, 100, 20, red, white)

	out := applyTrim(img, &options.Trim{Mode: options.TrimAuto})
	if got, want := out.Bounds().Size(), image.Pt(100, 60); got != want {
		t.Fatalf("trimmed size = %v, want %v", got, want)
	}
	if c := out.NRGBAAt(0, 0); c != red {
		t.Fatalf("corner after trim = %v, want inner colour", c)
	}
}

func TestAutoTrimTolerance(t *testing.T) {
	// Border pixels within the tolerance of white still count as border.
	nearWhite := color.NRGBA{R: 230, G: 230, B: 230, A: 255}
	red := color.NRGBA{R: 200, A: 255}
	img := borderedImage(60, 60, 10, red, nearWhite)
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	out := applyTrim(img, &options.Trim{Mode: options.TrimAuto})
	if got, want := out.Bounds().Size(), image.Pt(40, 40); got != want {
		t.Fatalf("trimmed size = %v, want %v", got, want)
	}
}

func TestAutoTrimDisagreeingCornersIsNoOp(t *testing.T) {
	img := borderedImage(60, 60, 10, color.NRGBA{R: 200, A: 255}, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(0, 0, color.NRGBA{B: 255, A: 255})

	out := applyTrim(img, &options.Trim{Mode: options.TrimAuto})
	if out != img {
		t.Fatal("expected trim no-op when corner pixels disagree")
	}
}

func TestAutoTrimUniformImageIsNoOp(t *testing.T) {
	img := solidImage(30, 30, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	out := applyTrim(img, &options.Trim{Mode: options.TrimAuto})
	if out != img {
		t.Fatal("expected trim no-op for an all-border image")
	}
}

func TestColourTrimUsesSuppliedColour(t *testing.T) {
	frame := color.NRGBA{R: 10, G: 20, B: 30, A: 255}
	inner := color.NRGBA{R: 250, G: 250, B: 250, A: 255}
	img := borderedImage(80, 80, 15, inner, frame)

	out := applyTrim(img, &options.Trim{
		Mode:   options.TrimColour,
		Colour: &options.Colour{R: 10, G: 20, B: 30},
	})
	if got, want := out.Bounds().Size(), image.Pt(50, 50); got != want {
		t.Fatalf("trimmed size = %v, want %v", got, want)
	}
}

func TestColourTrimUnmatchedColourIsNoOp(t *testing.T) {
	img := borderedImage(40, 40, 8, color.NRGBA{R: 200, A: 255}, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	out := applyTrim(img, &options.Trim{
		Mode:   options.TrimColour,
		Colour: &options.Colour{B: 255},
	})
	if out != img {
		t.Fatal("expected no-op when the border does not match the trim colour")
	}
}
