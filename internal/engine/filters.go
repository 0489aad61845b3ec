package engine

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/tpyo/shrinkray/internal/options"
)

// Colour-matrix coefficients for the photometric filters, row-major RGB.
var (
	kodachromeMatrix = [9]float64{
		1.12855, -0.39673, -0.03992, -0.16404, 1.08352, -0.05498, -0.16786, -0.56034, 1.60148,
	}
	vintageMatrix = [9]float64{
		0.62793, 0.32021, -0.03965, 0.02578, 0.64411, 0.03259, 0.0466, -0.08512, 0.52416,
	}
	polaroidMatrix = [9]float64{
		1.438, -0.062, -0.062, -0.122, 1.378, -0.122, -0.016, -0.016, 1.483,
	}
	technicolorMatrix = [9]float64{
		1.91252, -0.85453, -0.09155, -0.30878, 1.76589, -0.10601, -0.2311, -0.75018, 1.84759,
	}
	sepiaMatrix = [9]float64{
		0.393, 0.769, 0.189, 0.349, 0.686, 0.168, 0.272, 0.534, 0.131,
	}
	monochromeMatrix = [9]float64{
		0.299, 0.587, 0.114, 0.299, 0.587, 0.114, 0.299, 0.587, 0.114,
	}
)

func applyFilter(img *image.NRGBA, op options.FilterOp) *image.NRGBA {
	switch op.Kind {
	case options.FilterSharpen:
		return imaging.Sharpen(img, intensityToSigma(op.Intensity, 0.2, 5))
	case options.FilterBlur:
		return imaging.Blur(img, intensityToSigma(op.Intensity, 0.2, 20))
	case options.FilterKodachrome:
		return applyColourMatrix(img, blendMatrix(kodachromeMatrix, op.Intensity))
	case options.FilterVintage:
		return applyColourMatrix(img, blendMatrix(vintageMatrix, op.Intensity))
	case options.FilterPolaroid:
		return applyColourMatrix(img, blendMatrix(polaroidMatrix, op.Intensity))
	case options.FilterTechnicolor:
		return applyColourMatrix(img, blendMatrix(technicolorMatrix, op.Intensity))
	case options.FilterSepia:
		return applyColourMatrix(img, blendMatrix(sepiaMatrix, op.Intensity))
	case options.FilterMonochrome:
		return applyColourMatrix(img, blendMatrix(monochromeMatrix, op.Intensity))
	default:
		return img
	}
}

// intensityToSigma maps a 0-100 intensity onto a kernel sigma
// monotonically.
func intensityToSigma(intensity int, min, max float64) float64 {
	return min + (max-min)*float64(intensity)/100
}

// blendMatrix scales the filter matrix toward identity so the output equals
// a linear blend of filtered and original pixels: ((1-a)I + aM)x is
// (1-a)x + a(Mx).
func blendMatrix(m [9]float64, intensity int) [9]float64 {
	a := float64(intensity) / 100
	var out [9]float64
	for i, v := range m {
		out[i] = v * a
	}
	out[0] += 1 - a
	out[4] += 1 - a
	out[8] += 1 - a
	return out
}

// applyColourMatrix multiplies each pixel's RGB by the matrix, clamping to
// the byte range. Alpha is preserved.
func applyColourMatrix(img *image.NRGBA, m [9]float64) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 0; i < len(dst.Pix); i += 4 {
		r := float64(dst.Pix[i])
		g := float64(dst.Pix[i+1])
		b := float64(dst.Pix[i+2])
		dst.Pix[i] = clampByte(m[0]*r + m[1]*g + m[2]*b)
		dst.Pix[i+1] = clampByte(m[3]*r + m[4]*g + m[5]*b)
		dst.Pix[i+2] = clampByte(m[6]*r + m[7]*g + m[8]*b)
	}
	return dst
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}
