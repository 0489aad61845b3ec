package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/tpyo/shrinkray/internal/options"
)

// stdEngine is the pure-Go engine. It handles jpeg, png, gif and webp
// sources and encodes jpeg and png; webp and avif output require the govips
// build.
type stdEngine struct{}

type stdRaster struct {
	img    *image.NRGBA
	source options.Format
}

func (r *stdRaster) Width() int             { return r.img.Bounds().Dx() }
func (r *stdRaster) Height() int            { return r.img.Bounds().Dy() }
func (r *stdRaster) Source() options.Format { return r.source }
func (r *stdRaster) Close()                 {}

func (stdEngine) Decode(ctx context.Context, data []byte, limits Limits) (Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limits = limits.withDefaults()

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	// Guard on the declared header dimensions before decoding pixels.
	if int64(cfg.Width)*int64(cfg.Height) > limits.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	// AutoOrientation bakes the EXIF orientation into the pixels so later
	// geometry works on what the camera saw.
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &stdRaster{
		img:    imaging.Clone(img),
		source: formatFromName(name),
	}, nil
}

func (stdEngine) Transform(ctx context.Context, r Raster, spec *options.Spec, limits Limits) (Raster, error) {
	sr, ok := r.(*stdRaster)
	if !ok {
		return nil, fmt.Errorf("raster is not a std raster: %T", r)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limits = limits.withDefaults()

	img := sr.img

	if spec.Trim != nil {
		img = applyTrim(img, spec.Trim)
	}

	// Rotation is clockwise; imaging rotates counter-clockwise.
	switch spec.Rotation {
	case 90:
		img = imaging.Rotate270(img)
	case 180:
		img = imaging.Rotate180(img)
	case 270:
		img = imaging.Rotate90(img)
	}

	if plan := spec.ResolveGeometry(img.Bounds().Dx(), img.Bounds().Dy()); !plan.IsZero() {
		if err := checkPlanPixels(plan, limits); err != nil {
			return nil, err
		}
		img = applyGeometry(img, plan, spec.Background)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, op := range spec.Filters {
		img = applyFilter(img, op)
	}

	out := spec.OutputFormat(sr.source)
	if spec.Background != nil || (hasAlpha(img) && !out.SupportsAlpha()) {
		img = flatten(img, spec.Background)
	}

	return &stdRaster{img: img, source: sr.source}, nil
}

// Encode serialises the raster. The lossless flag is inherent for png and
// accepted-but-ignored for jpeg, which has no lossless mode.
func (stdEngine) Encode(ctx context.Context, r Raster, spec *options.Spec) ([]byte, options.Format, error) {
	sr, ok := r.(*stdRaster)
	if !ok {
		return nil, options.FormatAuto, fmt.Errorf("raster is not a std raster: %T", r)
	}
	if err := ctx.Err(); err != nil {
		return nil, options.FormatAuto, err
	}

	format := spec.OutputFormat(sr.source)
	var buf bytes.Buffer

	switch format {
	case options.FormatJpeg:
		quality := spec.Quality
		if quality < 1 {
			quality = 1
		}
		if err := jpeg.Encode(&buf, sr.img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, format, fmt.Errorf("encode jpeg: %w", err)
		}
	case options.FormatPng:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, sr.img); err != nil {
			return nil, format, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, format, fmt.Errorf("%w: %s requires the govips build", ErrUnsupportedOutput, format)
	}

	return buf.Bytes(), format, nil
}

func applyGeometry(img *image.NRGBA, plan options.Plan, bg *options.Colour) *image.NRGBA {
	if plan.ResizeWidth != img.Bounds().Dx() || plan.ResizeHeight != img.Bounds().Dy() {
		img = imaging.Resize(img, plan.ResizeWidth, plan.ResizeHeight, imaging.Lanczos)
	}
	if plan.CropWidth > 0 {
		img = imaging.CropCenter(img, plan.CropWidth, plan.CropHeight)
	}
	if plan.CanvasWidth > 0 {
		fill := color.NRGBA{}
		if bg != nil {
			fill = color.NRGBA{R: bg.R, G: bg.G, B: bg.B, A: 255}
		}
		canvas := imaging.New(plan.CanvasWidth, plan.CanvasHeight, fill)
		img = imaging.PasteCenter(canvas, img)
	}
	return img
}

func hasAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}

// flatten composites the image over an opaque background, white by default.
func flatten(img *image.NRGBA, bg *options.Colour) *image.NRGBA {
	fill := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if bg != nil {
		fill = color.NRGBA{R: bg.R, G: bg.G, B: bg.B, A: 255}
	}
	dst := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), fill)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}
