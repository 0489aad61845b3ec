//go:build govips && cgo

package engine

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/tpyo/shrinkray/internal/options"
)

// govipsEngine is the libvips-backed engine. It supports the full format
// matrix including webp and avif export.
type govipsEngine struct{}

type vipsRaster struct {
	ref    *vips.ImageRef
	source options.Format
}

func (r *vipsRaster) Width() int             { return r.ref.Width() }
func (r *vipsRaster) Height() int            { return r.ref.Height() }
func (r *vipsRaster) Source() options.Format { return r.source }
func (r *vipsRaster) Close()                 { r.ref.Close() }

func (govipsEngine) Decode(ctx context.Context, data []byte, limits Limits) (Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limits = limits.withDefaults()

	imageType := vips.DetermineImageType(data)
	if imageType == vips.ImageTypeUnknown {
		return nil, fmt.Errorf("%w: unrecognised image bytes", ErrUnsupportedFormat)
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if int64(ref.Width())*int64(ref.Height()) > limits.MaxPixels {
		ref.Close()
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, ref.Width(), ref.Height())
	}

	// Bake the EXIF orientation into the pixels before any geometry runs.
	if err := ref.AutoRotate(); err != nil {
		ref.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &vipsRaster{ref: ref, source: formatFromImageType(imageType)}, nil
}

func (govipsEngine) Transform(ctx context.Context, r Raster, spec *options.Spec, limits Limits) (Raster, error) {
	vr, ok := r.(*vipsRaster)
	if !ok {
		return nil, fmt.Errorf("raster is not a vips raster: %T", r)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limits = limits.withDefaults()

	ref := vr.ref

	if spec.Trim != nil {
		if err := applyVipsTrim(ref, spec.Trim); err != nil {
			return nil, fmt.Errorf("trim: %w", err)
		}
	}

	switch spec.Rotation {
	case 90:
		if err := ref.Rotate(vips.Angle90); err != nil {
			return nil, fmt.Errorf("rotate: %w", err)
		}
	case 180:
		if err := ref.Rotate(vips.Angle180); err != nil {
			return nil, fmt.Errorf("rotate: %w", err)
		}
	case 270:
		if err := ref.Rotate(vips.Angle270); err != nil {
			return nil, fmt.Errorf("rotate: %w", err)
		}
	}

	if plan := spec.ResolveGeometry(ref.Width(), ref.Height()); !plan.IsZero() {
		if err := checkPlanPixels(plan, limits); err != nil {
			return nil, err
		}
		if err := applyVipsGeometry(ref, plan, spec.Background); err != nil {
			return nil, fmt.Errorf("resize: %w", err)
		}
	}

	for _, op := range spec.Filters {
		if err := applyVipsFilter(ref, op); err != nil {
			return nil, fmt.Errorf("filter %s: %w", op.Kind, err)
		}
	}

	out := spec.OutputFormat(vr.source)
	if spec.Background != nil || (ref.HasAlpha() && !out.SupportsAlpha()) {
		if err := ref.Flatten(vipsColour(spec.Background)); err != nil {
			return nil, fmt.Errorf("flatten: %w", err)
		}
	}

	return vr, nil
}

func (govipsEngine) Encode(ctx context.Context, r Raster, spec *options.Spec) ([]byte, options.Format, error) {
	vr, ok := r.(*vipsRaster)
	if !ok {
		return nil, options.FormatAuto, fmt.Errorf("raster is not a vips raster: %T", r)
	}
	if err := ctx.Err(); err != nil {
		return nil, options.FormatAuto, err
	}

	format := spec.OutputFormat(vr.source)
	switch format {
	case options.FormatJpeg:
		params := vips.NewJpegExportParams()
		params.Quality = spec.Quality
		data, _, err := vr.ref.ExportJpeg(params)
		if err != nil {
			return nil, format, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, format, nil
	case options.FormatPng:
		params := vips.NewPngExportParams()
		params.Quality = spec.Quality
		data, _, err := vr.ref.ExportPng(params)
		if err != nil {
			return nil, format, fmt.Errorf("encode png: %w", err)
		}
		return data, format, nil
	case options.FormatWebp:
		params := vips.NewWebpExportParams()
		params.Quality = spec.Quality
		params.Lossless = spec.Lossless
		data, _, err := vr.ref.ExportWebp(params)
		if err != nil {
			return nil, format, fmt.Errorf("encode webp: %w", err)
		}
		return data, format, nil
	case options.FormatAvif:
		params := vips.NewAvifExportParams()
		params.Quality = spec.Quality
		params.Lossless = spec.Lossless
		data, _, err := vr.ref.ExportAvif(params)
		if err != nil {
			return nil, format, fmt.Errorf("encode avif: %w", err)
		}
		return data, format, nil
	default:
		return nil, format, fmt.Errorf("%w: %s", ErrUnsupportedOutput, format)
	}
}

func applyVipsTrim(ref *vips.ImageRef, t *options.Trim) error {
	background := &vips.Color{R: 255, G: 255, B: 255}
	if t.Mode == options.TrimColour {
		background = vipsColour(t.Colour)
	}

	left, top, width, height, err := ref.FindTrim(trimTolerance, background)
	if err != nil || width <= 0 || height <= 0 {
		// An untrimmable image is left as-is.
		return nil
	}
	return ref.ExtractArea(left, top, width, height)
}

func applyVipsGeometry(ref *vips.ImageRef, plan options.Plan, bg *options.Colour) error {
	if err := ref.Thumbnail(plan.ResizeWidth, plan.ResizeHeight, vips.InterestingNone); err != nil {
		return err
	}
	if plan.CropWidth > 0 {
		left := (ref.Width() - plan.CropWidth) / 2
		top := (ref.Height() - plan.CropHeight) / 2
		if err := ref.ExtractArea(left, top, plan.CropWidth, plan.CropHeight); err != nil {
			return err
		}
	}
	if plan.CanvasWidth > 0 {
		left := (plan.CanvasWidth - ref.Width()) / 2
		top := (plan.CanvasHeight - ref.Height()) / 2
		if err := ref.EmbedBackground(left, top, plan.CanvasWidth, plan.CanvasHeight, vipsColour(bg)); err != nil {
			return err
		}
	}
	return nil
}

func applyVipsFilter(ref *vips.ImageRef, op options.FilterOp) error {
	switch op.Kind {
	case options.FilterSharpen:
		return ref.Sharpen(intensityToSigma(op.Intensity, 0.2, 5), 2, 3)
	case options.FilterBlur:
		return ref.GaussianBlur(intensityToSigma(op.Intensity, 0.2, 20))
	case options.FilterKodachrome:
		return recombMatrix(ref, kodachromeMatrix, op.Intensity)
	case options.FilterVintage:
		return recombMatrix(ref, vintageMatrix, op.Intensity)
	case options.FilterPolaroid:
		return recombMatrix(ref, polaroidMatrix, op.Intensity)
	case options.FilterTechnicolor:
		return recombMatrix(ref, technicolorMatrix, op.Intensity)
	case options.FilterSepia:
		return recombMatrix(ref, sepiaMatrix, op.Intensity)
	case options.FilterMonochrome:
		return recombMatrix(ref, monochromeMatrix, op.Intensity)
	default:
		return nil
	}
}

func recombMatrix(ref *vips.ImageRef, m [9]float64, intensity int) error {
	blended := blendMatrix(m, intensity)
	matrix := [][]float64{
		{blended[0], blended[1], blended[2]},
		{blended[3], blended[4], blended[5]},
		{blended[6], blended[7], blended[8]},
	}
	return ref.Recomb(matrix)
}

func vipsColour(c *options.Colour) *vips.Color {
	if c == nil {
		return &vips.Color{R: 255, G: 255, B: 255}
	}
	return &vips.Color{R: c.R, G: c.G, B: c.B}
}

func formatFromImageType(t vips.ImageType) options.Format {
	switch t {
	case vips.ImageTypeJPEG:
		return options.FormatJpeg
	case vips.ImageTypePNG:
		return options.FormatPng
	case vips.ImageTypeWEBP:
		return options.FormatWebp
	case vips.ImageTypeAVIF, vips.ImageTypeHEIF:
		return options.FormatAvif
	case vips.ImageTypeGIF:
		return options.FormatGif
	default:
		return options.FormatAuto
	}
}
