package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tpyo/shrinkray/internal/backend"
	"github.com/tpyo/shrinkray/internal/engine"
	"github.com/tpyo/shrinkray/internal/options"
	"github.com/tpyo/shrinkray/internal/pipeline"
	"github.com/tpyo/shrinkray/internal/ratelimit"
	"github.com/tpyo/shrinkray/internal/store"
)

func writeFixture(t *testing.T, dir, name string, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 100, G: 150, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Engine == nil {
		cfg.Engine = engine.New()
	}
	if cfg.Fetcher == nil {
		dir := t.TempDir()
		writeFixture(t, dir, "cat.png", 100, 80)
		resolver, err := backend.NewResolver([]backend.Route{
			{Prefix: "/photos", Endpoint: "file://" + dir},
		}, backend.Options{})
		if err != nil {
			t.Fatalf("build resolver: %v", err)
		}
		cfg.Fetcher = pipeline.NewBackendFetcher(resolver)
	}

	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServeTransformedImage(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := get(t, s.Handler(), "/photos/cat.png?w=50")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type = %s, want image/png", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=31536000" {
		t.Fatalf("cache control = %q", got)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cfg.Width != 50 || cfg.Height != 40 {
		t.Fatalf("output = %dx%d, want 50x40", cfg.Width, cfg.Height)
	}
}

func TestServePassthrough(t *testing.T) {
	dir := t.TempDir()
	source := writeFixture(t, dir, "cat.png", 40, 40)
	resolver, err := backend.NewResolver([]backend.Route{
		{Prefix: "/photos", Endpoint: "file://" + dir},
	}, backend.Options{})
	if err != nil {
		t.Fatalf("build resolver: %v", err)
	}

	s := newTestServer(t, Config{Fetcher: pipeline.NewBackendFetcher(resolver)})
	rec := get(t, s.Handler(), "/photos/cat.png")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), source) {
		t.Fatal("passthrough body differs from the source file")
	}
}

func TestServeDownloadDisposition(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := get(t, s.Handler(), "/photos/cat.png?w=50&dl=kitten.png")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="kitten.png"` {
		t.Fatalf("content disposition = %q", got)
	}
}

func TestServeRejectsBadSignature(t *testing.T) {
	s := newTestServer(t, Config{SignatureSecret: "s3cret"})
	rec := get(t, s.Handler(), "/photos/cat.png?w=50&sig=deadbeef")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestServeAcceptsValidSignature(t *testing.T) {
	s := newTestServer(t, Config{SignatureSecret: "s3cret"})

	params := url.Values{"w": {"50"}}
	canonical := options.Canonical("/photos/cat.png", params)
	params.Set("sig", options.Sign(canonical, "s3cret"))

	rec := get(t, s.Handler(), "/photos/cat.png?"+params.Encode())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestServeErrorStatuses(t *testing.T) {
	s := newTestServer(t, Config{})

	cases := []struct {
		name   string
		target string
		status int
	}{
		{"unrouted prefix", "/videos/cat.mp4?w=50", http.StatusNotFound},
		{"missing object", "/photos/missing.png?w=50", http.StatusNotFound},
		{"invalid width", "/photos/cat.png?w=banana", http.StatusBadRequest},
		{"invalid fit", "/photos/cat.png?fit=stretch", http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, s.Handler(), tc.target)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(_ context.Context, _ string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: 30 * time.Second}, nil
}

type failingLimiter struct{}

func (failingLimiter) Allow(_ context.Context, _ string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, context.DeadlineExceeded
}

func TestServeRateLimited(t *testing.T) {
	s := newTestServer(t, Config{RateLimiter: denyAllLimiter{}})
	rec := get(t, s.Handler(), "/photos/cat.png?w=50")

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("retry-after = %q, want 30", got)
	}
}

func TestServeFailsOpenWhenLimiterBreaks(t *testing.T) {
	s := newTestServer(t, Config{RateLimiter: failingLimiter{}})
	rec := get(t, s.Handler(), "/photos/cat.png?w=50")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when the limiter is unavailable", rec.Code)
	}
}

func TestServeRecordsUsage(t *testing.T) {
	usage := store.NewMemoryUsageStore()
	s := newTestServer(t, Config{Usage: usage})

	rec := get(t, s.Handler(), "/photos/cat.png?w=50")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rows := usage.Rows()
	if len(rows) != 1 {
		t.Fatalf("usage rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Route != "/photos" {
		t.Fatalf("route = %s, want /photos", row.Route)
	}
	if row.PixelsProcessed != 100*80 {
		t.Fatalf("pixels = %d, want %d", row.PixelsProcessed, 100*80)
	}
	if row.OutputBytes == 0 || row.SourceBytes == 0 {
		t.Fatalf("byte accounting missing: %+v", row)
	}
}

func TestManagementEndpoints(t *testing.T) {
	s := newTestServer(t, Config{})
	mgmt := s.ManagementHandler()

	rec := get(t, mgmt, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}

	get(t, s.Handler(), "/photos/cat.png?w=50")

	rec = get(t, mgmt, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("shrinkray_requests_total")) {
		t.Fatal("metrics output is missing the request counter")
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/photos/cat.png":      "/photos",
		"/photos/deep/a/b.png": "/photos",
		"/":                    "/",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
