package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tpyo/shrinkray/internal/backend"
	"github.com/tpyo/shrinkray/internal/cache"
	"github.com/tpyo/shrinkray/internal/config"
	"github.com/tpyo/shrinkray/internal/engine"
	"github.com/tpyo/shrinkray/internal/pipeline"
	"github.com/tpyo/shrinkray/internal/ratelimit"
	"github.com/tpyo/shrinkray/internal/server"
	"github.com/tpyo/shrinkray/internal/store"
	"github.com/tpyo/shrinkray/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := log.New(os.Stdout, "[shrinkray] ", log.LstdFlags|log.Lmsgprefix)

	if len(cfg.Routes) == 0 {
		logger.Fatal("no routes configured; set SHRINKRAY_ROUTES or SHRINKRAY_ROUTES_FILE")
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "shrinkray",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
		SampleRatio:  cfg.Trace.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatalf("setup tracing: %v", err)
	}

	if err := engine.Startup(); err != nil {
		logger.Fatalf("start image engine: %v", err)
	}
	defer engine.Shutdown()

	resolverOpts := backend.Options{
		Limits: backend.Limits{
			MaxBytes: cfg.Fetch.MaxBytes,
			Timeout:  cfg.Fetch.Timeout,
		},
	}
	if hasObjectStoreRoute(cfg.Routes) {
		client, err := backend.NewObjectStoreClient(backend.ObjectStoreConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatalf("object store client: %v", err)
		}
		resolverOpts.ObjectStore = client
	}

	resolver, err := backend.NewResolver(cfg.Routes, resolverOpts)
	if err != nil {
		logger.Fatalf("build route resolver: %v", err)
	}

	var (
		rateLimiter  server.RateLimiter
		variantCache pipeline.Cache
	)
	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Printf("redis close error: %v", err)
			}
		}()

		if cfg.Redis.RateLimit > 0 {
			limiter, err := ratelimit.NewRedisFixedWindow(redisClient, cfg.Redis.RateLimit, cfg.Redis.RateLimitWindow, "")
			if err != nil {
				logger.Fatalf("build rate limiter: %v", err)
			}
			rateLimiter = limiter
		}
		if cfg.Redis.CacheTTL > 0 {
			vc, err := cache.NewRedisVariantCache(redisClient, cfg.Redis.CacheTTL, "")
			if err != nil {
				logger.Fatalf("build variant cache: %v", err)
			}
			variantCache = vc
		}
	}

	var usage store.UsageStore = store.NewMemoryUsageStore()
	if cfg.Database.DSN != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pg, err := store.NewPostgresUsageStore(dbCtx, cfg.Database.DSN)
		cancel()
		if err != nil {
			logger.Fatalf("connect usage database: %v", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Printf("usage database close error: %v", err)
			}
		}()
		usage = pg
	}

	app, err := server.NewServer(server.Config{
		Logger:          logger,
		Fetcher:         pipeline.NewBackendFetcher(resolver),
		Engine:          engine.New(),
		Limits:          engine.Limits{MaxPixels: cfg.Engine.MaxPixels},
		SignatureSecret: cfg.Signature.Secret,
		Cache:           variantCache,
		Usage:           usage,
		RateLimiter:     rateLimiter,
	})
	if err != nil {
		logger.Fatalf("build server: %v", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	mgmtServer := &http.Server{
		Addr:         cfg.Server.ManagementAddr,
		Handler:      app.ManagementHandler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()
	go func() {
		logger.Printf("management endpoints on %s", cfg.Server.ManagementAddr)
		if err := mgmtServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("management server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := mgmtServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("management shutdown failed: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

func hasObjectStoreRoute(routes []backend.Route) bool {
	for _, route := range routes {
		if strings.HasPrefix(route.Endpoint, "s3://") {
			return true
		}
	}
	return false
}
