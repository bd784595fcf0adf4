package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/frontdoorrr/hotly-app-sub001/internal/cache"
	"github.com/frontdoorrr/hotly-app-sub001/internal/config"
	"github.com/frontdoorrr/hotly-app-sub001/internal/database"
	"github.com/frontdoorrr/hotly-app-sub001/internal/handlers"
	"github.com/frontdoorrr/hotly-app-sub001/internal/middleware"
	"github.com/frontdoorrr/hotly-app-sub001/internal/search"
	"github.com/frontdoorrr/hotly-app-sub001/internal/services"
	"github.com/frontdoorrr/hotly-app-sub001/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/frontdoorrr/hotly-app-sub001/internal/analyzer"
	applogger "github.com/frontdoorrr/hotly-app-sub001/internal/logger"
)

// @title Hotly Search API
// @version 1.0.0
// @description 장소 검색/자동완성 API
// @BasePath /v1
// @schemes https
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Structured logger
	applogger.Init(cfg.ServerEnv)
	defer applogger.Sync()

	// Initialize OpenTelemetry Tracer
	ctx := context.Background()
	tracerShutdown, err := telemetry.InitTracer(ctx, "hotly-search-api", cfg.SigNozEndpoint)
	if err != nil {
		log.Printf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	// Initialize OpenTelemetry Metrics
	meterShutdown, err := telemetry.InitMeter(ctx, "hotly-search-api", cfg.SigNozEndpoint)
	if err != nil {
		log.Printf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		if err := meterShutdown(ctx); err != nil {
			log.Printf("Error shutting down metrics: %v", err)
		}
	}()

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Cache store (없어도 기동: 전 연산이 miss/no-op으로 degrade)
	store := cache.New(cfg.RedisURL, cfg.Search.CacheTimeout)
	defer store.Close()

	// Language analyzer (shared by index client and aggregator)
	an := analyzer.New()

	// Primary index client (없어도 기동: fallback 전용으로 동작)
	var index *search.IndexClient
	if client, err := search.NewIndexClient(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, cfg.Search.IndexTimeout, an); err != nil {
		log.Printf("Search index disabled: %v", err)
	} else {
		index = client
		if err := index.EnsureIndex(ctx); err != nil {
			log.Printf("Failed to ensure search index (non-fatal): %v", err)
		}
	}

	// Search core wiring
	places := services.NewPlaceService(db)
	fallback := search.NewFallback(places, cfg.Search.SimilarityFloor)

	var primary search.Searcher
	var completer search.Completer
	if index != nil {
		primary = index
		completer = index
	}

	orchestrator := search.NewOrchestrator(primary, fallback, store, cfg.Search)
	aggregator := search.NewAggregator(store, places, completer, an, cfg.Search)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Hotly Search API",
		ErrorHandler: handlers.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	// JSON 구조화 액세스 로깅
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     `{"time":"${time}","status":${status},"latency":"${latency}","ip":"${ip}","method":"${method}","path":"${path}","user_agent":"${ua}","error":"${error}"}` + "\n",
		TimeFormat: "2006-01-02T15:04:05Z07:00",
		TimeZone:   "Asia/Seoul",
	}))
	app.Use(middleware.PrometheusMiddleware())
	app.Use(telemetry.New(telemetry.Config{
		ServiceName: "hotly-search-api",
	}))
	// Mobile app (Android/iOS)에서 API 호출을 위해 모든 origin 허용
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowHeaders:     "Accept, Accept-Encoding, Authorization, Content-Type, DNT, Origin, User-Agent, X-Requested-With, X-API-Key, X-User-ID",
		AllowCredentials: false, // AllowOrigins가 "*"일 때는 false여야 함
		ExposeHeaders:    "Content-Length, Content-Type",
		MaxAge:           86400, // Preflight 캐시 24시간
	}))

	// Setup routes
	setupRoutes(app, db, cfg, store, index, orchestrator, aggregator)

	// Start server
	port := cfg.ServerPort
	if port == "" {
		port = "3000"
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupRoutes(
	app *fiber.App,
	db *database.DB,
	cfg *config.Config,
	store *cache.Store,
	index *search.IndexClient,
	orchestrator *search.Orchestrator,
	aggregator *search.Aggregator,
) {
	// Prometheus scrape endpoint
	app.Get("/metrics", middleware.PrometheusHandler())

	// Health check endpoints for k8s probes
	app.Get("/healthz", handlers.HealthCheck)
	app.Get("/v1/healthz", handlers.HealthCheck)
	app.Get("/v1/health", handlers.HealthCheck)
	app.Get("/v1/readiness", handlers.ReadinessCheck(db, store, index != nil))
	app.Get("/v1/liveness", handlers.LivenessCheck)

	// API v1 group
	v1 := app.Group("/v1")

	// Search routes (public)
	handlers.SetupSearchRoutes(v1, orchestrator, aggregator, cfg)

	// Categories routes (public)
	categories := v1.Group("/categories")
	handlers.SetupCategoryRoutes(categories, db)

	// Internal routes (API key required)
	internal := v1.Group("/internal")
	handlers.SetupInternalRoutes(internal, db, cfg, index)
}
