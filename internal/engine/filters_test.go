package engine

import (
	"bytes"
	"image/color"
	"testing"

	"github.com/tpyo/shrinkray/internal/options"
)

func TestMonochromeIsIdempotentAtFullIntensity(t *testing.T) {
	img := solidImage(16, 16, color.NRGBA{R: 180, G: 90, B: 40, A: 255})
	op := options.FilterOp{Kind: options.FilterMonochrome, Intensity: 100}

	once := applyFilter(img, op)
	twice := applyFilter(once, op)
	if !bytes.Equal(once.Pix, twice.Pix) {
		t.Fatal("monochrome at full intensity changed pixels on re-application")
	}

	c := once.NRGBAAt(0, 0)
	if c.R != c.G || c.G != c.B {
		t.Fatalf("monochrome output is not grey: %v", c)
	}
}

func TestSepiaLeavesBlackAlone(t *testing.T) {
	img := solidImage(8, 8, color.NRGBA{A: 255})
	out := applyFilter(img, options.FilterOp{Kind: options.FilterSepia, Intensity: 100})
	if c := out.NRGBAAt(4, 4); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Fatalf("sepia on black = %v, want black", c)
	}
}

// Sepia is a tone shift, not a projection: its rows sum past 1.0, so
// running it again deepens the cast. The exact values pin the matrix.
func TestSepiaReapplicationDeepensTone(t *testing.T) {
	img := solidImage(4, 4, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	op := options.FilterOp{Kind: options.FilterSepia, Intensity: 100}

	once := applyFilter(img, op)
	if c := once.NRGBAAt(0, 0); c != (color.NRGBA{R: 135, G: 120, B: 94, A: 255}) {
		t.Fatalf("sepia once on grey 100 = %v, want {135 120 94 255}", c)
	}

	twice := applyFilter(once, op)
	if c := twice.NRGBAAt(0, 0); c != (color.NRGBA{R: 163, G: 145, B: 113, A: 255}) {
		t.Fatalf("sepia twice on grey 100 = %v, want {163 145 113 255}", c)
	}
}

func TestColourMatrixPreservesAlpha(t *testing.T) {
	img := solidImage(8, 8, color.NRGBA{R: 120, G: 60, B: 30, A: 77})
	out := applyFilter(img, options.FilterOp{Kind: options.FilterVintage, Intensity: 100})
	if a := out.NRGBAAt(0, 0).A; a != 77 {
		t.Fatalf("alpha = %d, want 77", a)
	}
}

func TestBlendMatrixEndpoints(t *testing.T) {
	full := blendMatrix(sepiaMatrix, 100)
	if full != sepiaMatrix {
		t.Fatalf("intensity 100 blend = %v, want the matrix unchanged", full)
	}

	identity := blendMatrix(sepiaMatrix, 0)
	want := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	if identity != want {
		t.Fatalf("intensity 0 blend = %v, want identity", identity)
	}
}

func TestBlendMatrixHalfway(t *testing.T) {
	img := solidImage(4, 4, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	full := applyFilter(img, options.FilterOp{Kind: options.FilterSepia, Intensity: 100}).NRGBAAt(0, 0)
	half := applyFilter(img, options.FilterOp{Kind: options.FilterSepia, Intensity: 50}).NRGBAAt(0, 0)

	wantR := uint8((int(full.R) + 100 + 1) / 2)
	if diff := absDiff(half.R, wantR); diff > 1 {
		t.Fatalf("half-intensity red = %d, want ~%d", half.R, wantR)
	}
}

func TestIntensityToSigma(t *testing.T) {
	if got := intensityToSigma(0, 0.2, 20); got != 0.2 {
		t.Fatalf("sigma at 0 = %v, want 0.2", got)
	}
	if got := intensityToSigma(100, 0.2, 20); got != 20 {
		t.Fatalf("sigma at 100 = %v, want 20", got)
	}
	if intensityToSigma(30, 0.2, 20) >= intensityToSigma(60, 0.2, 20) {
		t.Fatal("sigma is not monotonic in intensity")
	}
}

func TestSharpenAndBlurKeepDimensions(t *testing.T) {
	img := solidImage(32, 24, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	for _, kind := range []options.FilterKind{options.FilterSharpen, options.FilterBlur} {
		out := applyFilter(img, options.FilterOp{Kind: kind, Intensity: 50})
		if got, want := out.Bounds().Size(), img.Bounds().Size(); got != want {
			t.Fatalf("%s output size = %v, want %v", kind, got, want)
		}
	}
}
