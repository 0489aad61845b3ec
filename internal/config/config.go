package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tpyo/shrinkray/internal/backend"
)

type Config struct {
	Server    ServerConfig
	Routes    []backend.Route
	Fetch     FetchConfig
	Engine    EngineConfig
	Signature SignatureConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Trace     TraceConfig
}

type ServerConfig struct {
	Addr           string
	ManagementAddr string
}

type FetchConfig struct {
	MaxBytes int64
	Timeout  time.Duration
}

type EngineConfig struct {
	MaxPixels int64
}

type SignatureConfig struct {
	// Secret enables the HMAC signature gate when non-empty.
	Secret string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// RateLimit requests per window per client; zero disables limiting.
	RateLimit       int
	RateLimitWindow time.Duration

	// CacheTTL for encoded variants; zero disables the cache.
	CacheTTL time.Duration
}

// Enabled reports whether anything needs a redis connection.
func (r RedisConfig) Enabled() bool {
	return r.RateLimit > 0 || r.CacheTTL > 0
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type DatabaseConfig struct {
	// DSN for the usage log; empty keeps accounting in memory.
	DSN string
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRatio  float64
}

func Load() (Config, error) {
	routes, err := loadRoutes()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server: ServerConfig{
			Addr:           env("SHRINKRAY_ADDR", ":8080"),
			ManagementAddr: env("SHRINKRAY_MGMT_ADDR", ":9090"),
		},
		Routes: routes,
		Fetch: FetchConfig{
			MaxBytes: envInt64("SHRINKRAY_FETCH_MAX_BYTES", 32<<20),
			Timeout:  envDuration("SHRINKRAY_FETCH_TIMEOUT", 10*time.Second),
		},
		Engine: EngineConfig{
			MaxPixels: envInt64("SHRINKRAY_MAX_PIXELS", 64<<20),
		},
		Signature: SignatureConfig{
			Secret: env("SHRINKRAY_SIGNATURE_SECRET", ""),
		},
		Redis: RedisConfig{
			Addr:            env("REDIS_ADDR", "localhost:6379"),
			Password:        env("REDIS_PASSWORD", ""),
			DB:              envInt("REDIS_DB", 0),
			RateLimit:       envInt("SHRINKRAY_RATE_LIMIT", 0),
			RateLimitWindow: envDuration("SHRINKRAY_RATE_LIMIT_WINDOW", time.Minute),
			CacheTTL:        envDuration("SHRINKRAY_CACHE_TTL", 0),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", ""),
			SecretKey: env("MINIO_SECRET_KEY", ""),
			Region:    env("MINIO_REGION", ""),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Trace: TraceConfig{
			Exporter:     env("TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("TRACE_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("TRACE_OTLP_INSECURE", false),
			SampleRatio:  envFloat("TRACE_SAMPLE_RATIO", 1),
		},
	}, nil
}

// routeEntry is the wire form of one route in SHRINKRAY_ROUTES: a JSON array
// of {"path": "/prefix", "endpoint": "scheme://..."} objects.
type routeEntry struct {
	Path     string `json:"path"`
	Endpoint string `json:"endpoint"`
}

func loadRoutes() ([]backend.Route, error) {
	raw := strings.TrimSpace(env("SHRINKRAY_ROUTES", ""))
	if file := env("SHRINKRAY_ROUTES_FILE", ""); raw == "" && file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read routes file: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return nil, nil
	}
	return ParseRoutes([]byte(raw))
}

// ParseRoutes decodes the JSON route table.
func ParseRoutes(data []byte) ([]backend.Route, error) {
	var entries []routeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}

	routes := make([]backend.Route, 0, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(entry.Path) == "" {
			return nil, fmt.Errorf("route %d: path is required", i)
		}
		if strings.TrimSpace(entry.Endpoint) == "" {
			return nil, fmt.Errorf("route %d: endpoint is required", i)
		}
		routes = append(routes, backend.Route{
			Prefix:   entry.Path,
			Endpoint: entry.Endpoint,
		})
	}
	return routes, nil
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
