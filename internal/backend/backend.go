package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

var (
	// ErrNoRoute means no configured route matches the request path.
	ErrNoRoute = errors.New("no backend route matches path")
	// ErrNotFound means the backend has no object at the location.
	ErrNotFound = errors.New("source not found")
	// ErrTooLarge means the source exceeds the configured fetch limit.
	ErrTooLarge = errors.New("source exceeds maximum fetch size")
	// ErrTimeout means the fetch did not complete within the deadline.
	ErrTimeout = errors.New("fetch timed out")
	// ErrTransport covers transport-level fetch failures.
	ErrTransport = errors.New("fetch transport failure")
)

// Limits bound every fetch regardless of backend kind.
type Limits struct {
	MaxBytes int64
	Timeout  time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = 32 << 20
	}
	if l.Timeout <= 0 {
		l.Timeout = 10 * time.Second
	}
	return l
}

// Adapter produces bytes for a resolved location. Implementations are
// stateless beyond configuration and safe for concurrent use.
type Adapter interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Route maps a request-path prefix to a backend endpoint URL. The endpoint
// scheme selects the adapter: file://, http(s)://, or s3://.
type Route struct {
	Prefix   string
	Endpoint string
}

// Ref is a resolved (adapter, location) pair for one request.
type Ref struct {
	Scheme   string
	Location string
	adapter  Adapter
}

// Fetch retrieves the source bytes for the reference.
func (r Ref) Fetch(ctx context.Context) ([]byte, error) {
	return r.adapter.Fetch(ctx, r.Location)
}

type route struct {
	prefix  string
	scheme  string
	base    string
	adapter Adapter
}

// Resolver matches request paths against configured routes. It is built once
// at startup and is safe for concurrent reads.
type Resolver struct {
	routes []route
	limits Limits
}

// Options carries the shared fetch limits and the object-store client used
// by s3 routes. ObjectStore may be nil when no s3 route is configured.
type Options struct {
	Limits      Limits
	ObjectStore *minio.Client
}

// NewResolver validates the route table and constructs one adapter per
// route. Longer prefixes win when several match.
func NewResolver(routes []Route, opts Options) (*Resolver, error) {
	if len(routes) == 0 {
		return nil, errors.New("at least one route is required")
	}

	limits := opts.Limits.withDefaults()
	r := &Resolver{limits: limits}

	for _, rt := range routes {
		prefix := "/" + strings.Trim(rt.Prefix, "/")
		if prefix == "/" {
			return nil, fmt.Errorf("route prefix must not be empty")
		}

		endpoint, err := url.Parse(rt.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse route endpoint %q: %w", rt.Endpoint, err)
		}

		var (
			adapter Adapter
			base    string
		)
		switch endpoint.Scheme {
		case "file":
			adapter = &fileAdapter{root: endpoint.Path, limits: limits}
			base = ""
		case "http", "https":
			adapter = newHTTPAdapter(limits)
			base = strings.TrimSuffix(endpoint.String(), "/")
		case "s3":
			if opts.ObjectStore == nil {
				return nil, fmt.Errorf("route %q requires an object-store client", rt.Prefix)
			}
			adapter = &objectStoreAdapter{
				client: opts.ObjectStore,
				bucket: endpoint.Host,
				limits: limits,
			}
			base = strings.Trim(endpoint.Path, "/")
		default:
			return nil, fmt.Errorf("unsupported backend scheme %q", endpoint.Scheme)
		}

		r.routes = append(r.routes, route{
			prefix:  prefix,
			scheme:  endpoint.Scheme,
			base:    base,
			adapter: adapter,
		})
	}

	sort.Slice(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})

	return r, nil
}

// Resolve maps a request path to a backend reference, or ErrNoRoute.
func (r *Resolver) Resolve(requestPath string) (Ref, error) {
	cleaned := path.Clean("/" + requestPath)

	for _, rt := range r.routes {
		rel, ok := matchPrefix(cleaned, rt.prefix)
		if !ok {
			continue
		}

		location := rel
		switch rt.scheme {
		case "http", "https":
			location = rt.base + "/" + rel
		case "s3":
			location = path.Join(rt.base, rel)
		}

		return Ref{
			Scheme:   rt.scheme,
			Location: location,
			adapter:  rt.adapter,
		}, nil
	}

	return Ref{}, ErrNoRoute
}

func matchPrefix(cleaned, prefix string) (string, bool) {
	if !strings.HasPrefix(cleaned, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(cleaned, prefix)
	if rel == "" || rel[0] != '/' {
		return "", false
	}
	return strings.TrimPrefix(rel, "/"), true
}
