package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"referlut-marketplace/internal/cache"
	"referlut-marketplace/internal/config"
	"referlut-marketplace/internal/database"
	"referlut-marketplace/internal/enrich"
	"referlut-marketplace/internal/events"
	"referlut-marketplace/internal/features"
	"referlut-marketplace/internal/handler"
	"referlut-marketplace/internal/marketplace"
	"referlut-marketplace/internal/middleware"
	"referlut-marketplace/internal/service"
	"referlut-marketplace/internal/source"
	"referlut-marketplace/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file (optional)")
	flag.Parse()

	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	flags := features.NewManager()
	flags.Register(features.FeatureRedisCache, cfg.Cache.RedisAddr != "", "back listing snapshots with Redis")
	flags.Register(features.FeatureEnrichment, cfg.AI.Enabled, "background title/total enrichment")
	flags.Register(features.FeatureCookieMirror, true, "mirror user offers and conversations into cookies")
	flags.Register(features.FeatureEventHooksEnabled, true, "event-driven hooks")
	defer flags.Shutdown()

	eventManager := events.NewManager(flags.IsEnabled(features.FeatureEventHooksEnabled))
	defer eventManager.Shutdown()

	var snapshots cache.Cache
	if flags.IsEnabled(features.FeatureRedisCache) {
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable, falling back to in-memory snapshots", "error", err)
			snapshots = cache.NewInMemoryCache()
		} else {
			logger.Info("listing snapshots backed by redis", "addr", cfg.Cache.RedisAddr)
			snapshots = redisCache
			defer redisCache.Close()
		}
	} else {
		snapshots = cache.NewInMemoryCache()
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	src := source.NewClient(cfg.Upstream.Endpoint, cfg.Upstream.Nonce, logger,
		source.WithPageSize(cfg.Upstream.PageSize),
		source.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		}),
		source.WithSnapshotCache(snapshots),
	)

	var enricher *enrich.Enricher
	if flags.IsEnabled(features.FeatureEnrichment) {
		completer := enrich.NewAnthropicCompleter(cfg.AI.APIKey, cfg.AI.Model)
		enricher = enrich.New(completer, logger)
	} else {
		logger.Info("enrichment disabled, offers keep placeholder titles and totals")
	}

	ctrl := marketplace.New(src, enricher, eventManager, logger)
	defer ctrl.Close()

	svc := service.NewService(db, ctrl, enricher, eventManager, logger)

	h := handler.NewHandlerWithOptions(ctrl, svc, flags, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
	}

	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())

	if rateLimiter != nil {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/marketplace", func(r chi.Router) {
		r.Get("/pages/{page}", h.GetPage)
		r.Get("/offers/{type}", h.GetOffersByType)
		r.Get("/brands", h.GetBrands)
	})

	r.Route("/offers", func(r chi.Router) {
		r.Post("/", h.CreateOffer)
		r.Get("/", h.ListUserOffers)
	})

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/messages", h.SendMessage)
		r.Get("/", h.ListConversations)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		"addr", addr,
		"database", cfg.Database.Path,
		"upstream", cfg.Upstream.Endpoint,
		"page_size", cfg.Upstream.PageSize,
		"enrichment", flags.IsEnabled(features.FeatureEnrichment),
		"redis_cache", flags.IsEnabled(features.FeatureRedisCache))

	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down server", "error", err)
		}
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down tracing", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
