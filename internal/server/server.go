package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tpyo/shrinkray/internal/domain"
	"github.com/tpyo/shrinkray/internal/engine"
	"github.com/tpyo/shrinkray/internal/id"
	"github.com/tpyo/shrinkray/internal/pipeline"
	"github.com/tpyo/shrinkray/internal/store"
)

// Config assembles the serving surface around a transformation pipeline.
type Config struct {
	Logger  *log.Logger
	Fetcher pipeline.Fetcher
	Engine  engine.Engine
	Limits  engine.Limits

	// SignatureSecret enables the HMAC gate when non-empty.
	SignatureSecret string
	// Cache may be nil to disable variant caching.
	Cache pipeline.Cache
	// Usage may be nil to disable accounting.
	Usage store.UsageStore
	// RateLimiter may be nil to disable rate limiting.
	RateLimiter RateLimiter
}

// Server handles image transformation requests. Management endpoints
// (metrics, health) are served separately via ManagementHandler.
type Server struct {
	logger      *log.Logger
	processor   *pipeline.Processor
	usage       store.UsageStore
	rateLimiter RateLimiter
	metrics     *metrics
	mux         *http.ServeMux
}

func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	m := newMetrics()
	processor, err := pipeline.New(pipeline.Config{
		Fetcher:         cfg.Fetcher,
		Engine:          cfg.Engine,
		Limits:          cfg.Limits,
		SignatureSecret: cfg.SignatureSecret,
		Cache:           cfg.Cache,
		Observer:        m.observeStage,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	s := &Server{
		logger:      logger,
		processor:   processor,
		usage:       cfg.Usage,
		rateLimiter: cfg.RateLimiter,
		metrics:     m,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	s.mux.HandleFunc("GET /{path...}", s.handleImage)
}

// Handler returns the full middleware chain for the image endpoint.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	h = s.withTracing(h)
	h = s.metrics.withHTTPMetrics(h)
	return h
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path
	params := r.URL.Query()

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = id.New()
	}
	w.Header().Set("X-Request-Id", requestID)

	result, err := s.processor.Process(r.Context(), path, params)
	if err != nil {
		kind := pipeline.Classify(err)
		status := kind.HTTPStatus()
		s.logger.Printf("process failed request_id=%s path=%s kind=%s status=%d err=%v", requestID, path, kind, status, err)
		s.metrics.errorsTotal.WithLabelValues(kind.String()).Inc()
		s.recordUsage(r, domain.Usage{
			Path:          path,
			Route:         routeLabel(path),
			ComputeTimeMS: time.Since(start).Milliseconds(),
			Status:        status,
		})
		writeError(w, status, publicMessage(kind))
		return
	}

	if result.Cached {
		s.metrics.cacheHitsTotal.Inc()
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	if name := result.Spec.DownloadFilename; name != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}
	if _, err := w.Write(result.Data); err != nil {
		s.logger.Printf("write response failed path=%s err=%v", path, err)
	}

	s.recordUsage(r, domain.Usage{
		Path:            path,
		Route:           routeLabel(path),
		SourceBytes:     result.SourceBytes,
		OutputBytes:     int64(len(result.Data)),
		PixelsProcessed: result.PixelsProcessed,
		ComputeTimeMS:   time.Since(start).Milliseconds(),
		Status:          http.StatusOK,
	})
}

func (s *Server) recordUsage(r *http.Request, usage domain.Usage) {
	if s.usage == nil {
		return
	}
	usage.CreatedAt = time.Now().UTC()
	if err := s.usage.Record(r.Context(), usage); err != nil {
		s.logger.Printf("record usage failed path=%s err=%v", usage.Path, err)
	}
}

// publicMessage keeps backend and pipeline internals out of responses.
func publicMessage(kind pipeline.Kind) string {
	switch kind {
	case pipeline.KindParse:
		return "invalid transformation parameters"
	case pipeline.KindSignature:
		return "invalid request signature"
	case pipeline.KindRouting, pipeline.KindFetchNotFound:
		return "source image not found"
	case pipeline.KindFetchTimeout:
		return "source fetch timed out"
	case pipeline.KindFetchUpstream:
		return "source fetch failed"
	case pipeline.KindDecode:
		return "source image could not be decoded"
	case pipeline.KindTooLarge:
		return "source image is too large"
	default:
		return "image processing failed"
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}\n", message)
}

// clientIP extracts the caller address, preferring the first hop recorded by
// a fronting proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
