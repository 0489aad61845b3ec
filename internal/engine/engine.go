package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tpyo/shrinkray/internal/options"
)

var (
	// ErrUnsupportedFormat means the source bytes are not a decodable
	// image format.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrCorrupt means the source looked like a known format but failed
	// to decode.
	ErrCorrupt = errors.New("corrupt image data")
	// ErrTooManyPixels means the source header or the resolved output
	// geometry exceeds the pixel guard, before any pixel data is
	// allocated.
	ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")
	// ErrUnsupportedOutput means the requested output format is not
	// available in this build.
	ErrUnsupportedOutput = errors.New("output format not supported by this build")
)

// Limits guard the decoder against decompression bombs.
type Limits struct {
	MaxPixels int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxPixels <= 0 {
		l.MaxPixels = 64 << 20 // 64 megapixels
	}
	return l
}

// Raster is a decoded pixel buffer owned by a single request. It is never
// shared across requests; Close releases any native resources.
type Raster interface {
	Width() int
	Height() int
	// Source is the detected format of the bytes the raster was decoded
	// from.
	Source() options.Format
	Close()
}

// Engine decodes, transforms and encodes rasters. Implementations must be
// safe for concurrent use; the rasters they produce are not. The limits
// bound both the decoded source and the transformed output.
type Engine interface {
	Decode(ctx context.Context, data []byte, limits Limits) (Raster, error)
	Transform(ctx context.Context, r Raster, spec *options.Spec, limits Limits) (Raster, error)
	Encode(ctx context.Context, r Raster, spec *options.Spec) ([]byte, options.Format, error)
}

// checkPlanPixels guards the resolved geometry the same way Decode guards
// the source header, so a small source cannot be inflated past the limit.
func checkPlanPixels(plan options.Plan, limits Limits) error {
	if px := plan.MaxPixels(); px > limits.MaxPixels {
		return fmt.Errorf("%w: plan requires %d pixels", ErrTooManyPixels, px)
	}
	return nil
}

func formatFromName(name string) options.Format {
	switch name {
	case "jpeg":
		return options.FormatJpeg
	case "png":
		return options.FormatPng
	case "webp":
		return options.FormatWebp
	case "gif":
		return options.FormatGif
	default:
		return options.FormatAuto
	}
}
