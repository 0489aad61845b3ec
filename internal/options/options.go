package options

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Fit controls how a source image is reconciled with the requested box.
type Fit int

const (
	// FitClip scales the image to fit within the box, preserving aspect
	// ratio. No cropping; the result may be smaller than the box on one
	// axis unless a background is given, in which case the canvas is
	// padded to the exact box.
	FitClip Fit = iota
	// FitCrop scales the image to cover the box and center-crops the
	// excess.
	FitCrop
	// FitMax behaves like clip but never upscales beyond the source.
	FitMax
	// FitClamp behaves like clip and always pads the canvas to the exact
	// box, using the background colour or transparency.
	FitClamp
)

func (f Fit) String() string {
	switch f {
	case FitCrop:
		return "crop"
	case FitMax:
		return "max"
	case FitClamp:
		return "clamp"
	default:
		return "clip"
	}
}

// Format identifies an image codec. FormatAuto means "preserve the source
// format" on output.
type Format int

const (
	FormatAuto Format = iota
	FormatJpeg
	FormatPng
	FormatWebp
	FormatAvif
	FormatGif
)

func (f Format) String() string {
	switch f {
	case FormatJpeg:
		return "jpeg"
	case FormatPng:
		return "png"
	case FormatWebp:
		return "webp"
	case FormatAvif:
		return "avif"
	case FormatGif:
		return "gif"
	default:
		return "auto"
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJpeg:
		return "image/jpeg"
	case FormatPng:
		return "image/png"
	case FormatWebp:
		return "image/webp"
	case FormatAvif:
		return "image/avif"
	case FormatGif:
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// SupportsAlpha reports whether the format can carry transparency.
func (f Format) SupportsAlpha() bool {
	switch f {
	case FormatPng, FormatWebp, FormatAvif, FormatGif:
		return true
	default:
		return false
	}
}

// SupportsLossless reports whether the lossless flag is honoured for the
// format. JPEG has no lossless mode; requesting lossless on JPEG is accepted
// and ignored.
func (f Format) SupportsLossless() bool {
	switch f {
	case FormatPng, FormatWebp, FormatAvif:
		return true
	default:
		return false
	}
}

// Colour is an opaque RGB colour.
type Colour struct {
	R, G, B uint8
}

func (c Colour) Hex() string {
	return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
}

// ParseColour parses a six-digit hex RGB value, e.g. "ff00aa".
func ParseColour(value string) (Colour, error) {
	if len(value) != 6 {
		return Colour{}, fmt.Errorf("expected 6 hex digits, got %q", value)
	}
	n, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return Colour{}, fmt.Errorf("invalid hex colour %q", value)
	}
	return Colour{
		R: uint8(n >> 16),
		G: uint8(n >> 8),
		B: uint8(n),
	}, nil
}

// AspectRatio is a rational width:height ratio.
type AspectRatio struct {
	X, Y int
}

func (ar AspectRatio) Ratio() float64 {
	return float64(ar.X) / float64(ar.Y)
}

func (ar AspectRatio) String() string {
	return fmt.Sprintf("%d:%d", ar.X, ar.Y)
}

// TrimMode selects how border detection picks its reference colour.
type TrimMode int

const (
	// TrimAuto samples the four corner pixels; if they disagree beyond
	// the tolerance the trim is a no-op.
	TrimAuto TrimMode = iota
	// TrimColour trims borders matching an explicitly supplied colour.
	TrimColour
)

// Trim describes a border-trim request.
type Trim struct {
	Mode   TrimMode
	Colour *Colour
}

// FilterKind identifies one of the photometric filters. The numeric order is
// the fixed application order; requests cannot reorder filters.
type FilterKind int

const (
	FilterSharpen FilterKind = iota
	FilterBlur
	FilterKodachrome
	FilterVintage
	FilterPolaroid
	FilterTechnicolor
	FilterSepia
	FilterMonochrome
)

func (k FilterKind) String() string {
	switch k {
	case FilterSharpen:
		return "sharpen"
	case FilterBlur:
		return "blur"
	case FilterKodachrome:
		return "kodachrome"
	case FilterVintage:
		return "vintage"
	case FilterPolaroid:
		return "polaroid"
	case FilterTechnicolor:
		return "technicolor"
	case FilterSepia:
		return "sepia"
	default:
		return "monochrome"
	}
}

// FilterOp is a filter plus its intensity (0-100). Intensity 0 is a no-op.
type FilterOp struct {
	Kind      FilterKind
	Intensity int
}

// DefaultQuality is used when no q parameter is supplied.
const DefaultQuality = 75

// Spec is a fully validated transformation request. A Spec is only ever
// produced by Parse; there is no partially valid state.
type Spec struct {
	Width            int
	Height           int
	AspectRatio      *AspectRatio
	DevicePixelRatio float64
	Fit              Fit
	Rotation         int
	Background       *Colour
	Quality          int
	Lossless         bool
	Format           Format
	Trim             *Trim
	Filters          []FilterOp
	DownloadFilename string
	Signature        string
}

// ParseError identifies the parameter that failed validation.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Field, e.Reason)
}

func parseErrorf(field, format string, args ...any) *ParseError {
	return &ParseError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Parse validates a query-parameter map into a Spec. Unknown parameters are
// ignored for forward compatibility; known parameters that fail validation
// produce a field-identified ParseError.
func Parse(params url.Values) (*Spec, error) {
	spec := &Spec{
		DevicePixelRatio: 1,
		Quality:          DefaultQuality,
	}

	if v := params.Get("w"); v != "" {
		n, err := parseDimension("w", v)
		if err != nil {
			return nil, err
		}
		spec.Width = n
	}
	if v := params.Get("h"); v != "" {
		n, err := parseDimension("h", v)
		if err != nil {
			return nil, err
		}
		spec.Height = n
	}
	if v := params.Get("ar"); v != "" {
		ar, err := parseAspectRatio(v)
		if err != nil {
			return nil, err
		}
		spec.AspectRatio = ar
	}
	if v := params.Get("dpr"); v != "" {
		dpr, err := strconv.ParseFloat(v, 64)
		if err != nil || dpr <= 0 {
			return nil, parseErrorf("dpr", "must be a positive number")
		}
		spec.DevicePixelRatio = dpr
	}
	if v := params.Get("fit"); v != "" {
		switch strings.ToLower(v) {
		case "clip":
			spec.Fit = FitClip
		case "crop":
			spec.Fit = FitCrop
		case "max":
			spec.Fit = FitMax
		case "clamp":
			spec.Fit = FitClamp
		default:
			return nil, parseErrorf("fit", "must be one of clip, crop, max, clamp")
		}
	}
	if v := params.Get("rot"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || (n != 90 && n != 180 && n != 270) {
			return nil, parseErrorf("rot", "must be one of 90, 180, 270")
		}
		spec.Rotation = n
	}
	if v := params.Get("bg"); v != "" {
		c, err := ParseColour(v)
		if err != nil {
			return nil, parseErrorf("bg", "%v", err)
		}
		spec.Background = &c
	}
	if v := params.Get("q"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return nil, parseErrorf("q", "must be an integer between 0 and 100")
		}
		spec.Quality = n
	}
	if v := params.Get("lossless"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, parseErrorf("lossless", "must be a boolean")
		}
		spec.Lossless = b
	}
	if v := params.Get("fm"); v != "" {
		switch strings.ToLower(v) {
		case "jpeg", "jpg":
			spec.Format = FormatJpeg
		case "png":
			spec.Format = FormatPng
		case "webp":
			spec.Format = FormatWebp
		case "avif":
			spec.Format = FormatAvif
		default:
			return nil, parseErrorf("fm", "must be one of jpeg, png, webp, avif")
		}
	}
	if v := params.Get("dl"); v != "" {
		spec.DownloadFilename = v
	}
	if v := params.Get("sig"); v != "" {
		spec.Signature = v
	}

	trim, err := parseTrim(params)
	if err != nil {
		return nil, err
	}
	spec.Trim = trim

	filters, err := parseFilters(params)
	if err != nil {
		return nil, err
	}
	spec.Filters = filters

	return spec, nil
}

func parseDimension(field, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, parseErrorf(field, "must be a positive integer")
	}
	return n, nil
}

func parseAspectRatio(value string) (*AspectRatio, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return nil, parseErrorf("ar", "must have the form w:h")
	}
	x, errX := strconv.Atoi(parts[0])
	y, errY := strconv.Atoi(parts[1])
	if errX != nil || errY != nil || x <= 0 || y <= 0 {
		return nil, parseErrorf("ar", "numerator and denominator must be positive integers")
	}
	return &AspectRatio{X: x, Y: y}, nil
}

func parseTrim(params url.Values) (*Trim, error) {
	mode := params.Get("trim")
	colour := params.Get("trim-colour")

	if mode == "" {
		if colour != "" {
			return nil, parseErrorf("trim-colour", "requires trim=colour")
		}
		return nil, nil
	}

	switch strings.ToLower(mode) {
	case "auto":
		if colour != "" {
			return nil, parseErrorf("trim-colour", "not allowed with trim=auto")
		}
		return &Trim{Mode: TrimAuto}, nil
	case "colour":
		if colour == "" {
			return nil, parseErrorf("trim-colour", "required when trim=colour")
		}
		c, err := ParseColour(colour)
		if err != nil {
			return nil, parseErrorf("trim-colour", "%v", err)
		}
		return &Trim{Mode: TrimColour, Colour: &c}, nil
	default:
		return nil, parseErrorf("trim", "must be auto or colour")
	}
}

// filterParams is the fixed application order; request order is irrelevant.
var filterParams = []FilterKind{
	FilterSharpen,
	FilterBlur,
	FilterKodachrome,
	FilterVintage,
	FilterPolaroid,
	FilterTechnicolor,
	FilterSepia,
	FilterMonochrome,
}

func parseFilters(params url.Values) ([]FilterOp, error) {
	var ops []FilterOp
	for _, kind := range filterParams {
		v := params.Get(kind.String())
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return nil, parseErrorf(kind.String(), "must be an integer between 0 and 100")
		}
		if n == 0 {
			// Intensity 0 is documented as a strict no-op.
			continue
		}
		ops = append(ops, FilterOp{Kind: kind, Intensity: n})
	}
	return ops, nil
}

// Identity reports whether the spec requests no pixel-level work, allowing
// the fetched source bytes to be returned untouched. The download filename
// and signature do not affect pixels.
func (s *Spec) Identity() bool {
	return s.Width == 0 &&
		s.Height == 0 &&
		s.AspectRatio == nil &&
		s.DevicePixelRatio == 1 &&
		s.Fit == FitClip &&
		s.Rotation == 0 &&
		s.Background == nil &&
		s.Quality == DefaultQuality &&
		!s.Lossless &&
		s.Format == FormatAuto &&
		s.Trim == nil &&
		len(s.Filters) == 0
}

// OutputFormat resolves the encoding format given the detected source
// format. GIF sources are re-encoded as PNG since GIF is not an output
// format.
func (s *Spec) OutputFormat(source Format) Format {
	if s.Format != FormatAuto {
		return s.Format
	}
	switch source {
	case FormatJpeg, FormatPng, FormatWebp, FormatAvif:
		return source
	case FormatGif:
		return FormatPng
	default:
		return FormatJpeg
	}
}
