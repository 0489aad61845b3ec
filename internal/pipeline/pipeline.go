package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tpyo/shrinkray/internal/backend"
	"github.com/tpyo/shrinkray/internal/cache"
	"github.com/tpyo/shrinkray/internal/engine"
	"github.com/tpyo/shrinkray/internal/options"
)

// Fetcher produces the source bytes for a request path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Cache stores finished variants keyed by the canonical request string. The
// lookup happens after the signature gate so cached variants are no easier to
// reach than uncached ones.
type Cache interface {
	Get(ctx context.Context, canonical string) (cache.Variant, bool, error)
	Set(ctx context.Context, canonical string, v cache.Variant) error
}

// NewBackendFetcher adapts the route resolver into a single-call fetcher.
func NewBackendFetcher(resolver *backend.Resolver) Fetcher {
	return resolverFetcher{resolver: resolver}
}

type resolverFetcher struct {
	resolver *backend.Resolver
}

func (f resolverFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	ref, err := f.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	return ref.Fetch(ctx)
}

// StageObserver receives the duration of each completed pipeline stage.
type StageObserver func(stage string, d time.Duration)

// Config assembles a Processor.
type Config struct {
	Fetcher Fetcher
	Engine  engine.Engine
	Limits  engine.Limits
	// SignatureSecret enables the HMAC gate. When empty, requests are not
	// signature-checked.
	SignatureSecret string
	// Cache may be nil to disable variant caching.
	Cache    Cache
	Observer StageObserver
}

// Processor runs the transformation pipeline for one request at a time. It is
// safe for concurrent use.
type Processor struct {
	fetcher Fetcher
	engine  engine.Engine
	limits  engine.Limits
	secret  string
	cache   Cache
	observe StageObserver
	tracer  trace.Tracer
}

func New(cfg Config) (*Processor, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("a fetcher is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("an engine is required")
	}

	observe := cfg.Observer
	if observe == nil {
		observe = func(string, time.Duration) {}
	}

	return &Processor{
		fetcher: cfg.Fetcher,
		engine:  cfg.Engine,
		limits:  cfg.Limits,
		secret:  cfg.SignatureSecret,
		cache:   cfg.Cache,
		observe: observe,
		tracer:  otel.Tracer("shrinkray/pipeline"),
	}, nil
}

// Result is a finished response body.
type Result struct {
	Data        []byte
	ContentType string
	Format      options.Format
	// Passthrough is set when the request carried no transformation options
	// and the source bytes were returned untouched.
	Passthrough bool
	// Cached is set when the body came from the variant cache.
	Cached bool
	Spec   *options.Spec

	// Accounting figures for the usage log. Zero for cached responses.
	SourceBytes     int64
	PixelsProcessed int64
}

// Process runs a request through the pipeline: signature gate, parameter
// validation, source fetch, then decode/transform/encode. The signature is
// checked before anything else so that unsigned requests never reach a
// backend.
func (p *Processor) Process(ctx context.Context, path string, params url.Values) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("request.path", path))
	defer span.End()

	result, err := p.process(ctx, path, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Classify(err).String())
		return nil, err
	}
	span.SetStatus(codes.Ok, "processed")
	return result, nil
}

func (p *Processor) process(ctx context.Context, path string, params url.Values) (*Result, error) {
	canonical := options.Canonical(path, params)

	if p.secret != "" {
		if !options.VerifySignature(canonical, params.Get("sig"), p.secret) {
			return nil, failure(KindSignature, ErrBadSignature)
		}
	}

	spec, err := options.Parse(params)
	if err != nil {
		return nil, classifyParse(err)
	}

	if p.cache != nil && !spec.Identity() {
		// Cache read failures degrade to a normal miss.
		if variant, ok, err := p.cache.Get(ctx, canonical); err == nil && ok {
			p.observe("cache_hit", 0)
			return &Result{
				Data:        variant.Data,
				ContentType: variant.ContentType,
				Cached:      true,
				Spec:        spec,
			}, nil
		}
	}

	data, err := p.fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	if spec.Identity() {
		return &Result{
			Data:        data,
			ContentType: http.DetectContentType(data),
			Passthrough: true,
			Spec:        spec,
			SourceBytes: int64(len(data)),
		}, nil
	}

	raster, err := p.decode(ctx, data)
	if err != nil {
		return nil, err
	}
	defer raster.Close()
	pixels := int64(raster.Width()) * int64(raster.Height())

	transformed, err := p.transform(ctx, raster, spec)
	if err != nil {
		return nil, err
	}
	if transformed != raster {
		defer transformed.Close()
	}

	encoded, format, err := p.encode(ctx, transformed, spec)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		// Best effort; a failed write only costs the next request a miss.
		_ = p.cache.Set(ctx, canonical, cache.Variant{
			ContentType: format.ContentType(),
			Data:        encoded,
		})
	}

	return &Result{
		Data:            encoded,
		ContentType:     format.ContentType(),
		Format:          format,
		Spec:            spec,
		SourceBytes:     int64(len(data)),
		PixelsProcessed: pixels,
	}, nil
}

func (p *Processor) fetch(ctx context.Context, path string) ([]byte, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.fetch")
	defer span.End()
	start := time.Now()

	data, err := p.fetcher.Fetch(ctx, path)
	p.observe("fetch", time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, classifyFetch(err)
	}
	span.SetAttributes(attribute.Int("source.bytes", len(data)))
	return data, nil
}

func (p *Processor) decode(ctx context.Context, data []byte) (engine.Raster, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.decode")
	defer span.End()
	start := time.Now()

	raster, err := p.engine.Decode(ctx, data, p.limits)
	p.observe("decode", time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, classifyDecode(err)
	}
	span.SetAttributes(
		attribute.Int("source.width", raster.Width()),
		attribute.Int("source.height", raster.Height()),
		attribute.String("source.format", raster.Source().String()),
	)
	return raster, nil
}

func (p *Processor) transform(ctx context.Context, raster engine.Raster, spec *options.Spec) (engine.Raster, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.transform")
	defer span.End()
	start := time.Now()

	out, err := p.engine.Transform(ctx, raster, spec, p.limits)
	p.observe("transform", time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, classifyTransform(err)
	}
	return out, nil
}

func (p *Processor) encode(ctx context.Context, raster engine.Raster, spec *options.Spec) ([]byte, options.Format, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.encode")
	defer span.End()
	start := time.Now()

	data, format, err := p.engine.Encode(ctx, raster, spec)
	p.observe("encode", time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, format, failure(KindEncode, err)
	}
	span.SetAttributes(
		attribute.String("output.format", format.String()),
		attribute.Int("output.bytes", len(data)),
	)
	return data, format, nil
}
