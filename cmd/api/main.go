package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lohitverma/hoteltracking/internal/application/aggregator"
	"github.com/lohitverma/hoteltracking/internal/application/cache"
	"github.com/lohitverma/hoteltracking/internal/application/ratelimit"
	"github.com/lohitverma/hoteltracking/internal/application/tracker"
	"github.com/lohitverma/hoteltracking/internal/domain/hotel"
	"github.com/lohitverma/hoteltracking/internal/entities"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/adapter"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/handler"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/scheduler"
	"github.com/lohitverma/hoteltracking/internal/logger"
)

type Application struct {
	config *config.Config
	db     *gorm.DB
	redis  *redis.Client
	logger *slog.Logger
	server *http.Server

	fastCache    *adapter.RedisCacheAdapter
	durableCache *adapter.PostgresCacheAdapter
	priceRepo    *adapter.PostgresPriceRepository

	cacheService   *cache.Service
	limitService   *ratelimit.Service
	aggregatorSvc  *aggregator.Service
	trackerService *tracker.Service
	scheduler      *scheduler.Scheduler

	hotelHandler *handler.HotelHandler
	wsHandler    *handler.WSHandler

	trackerCancel context.CancelFunc
}

func main() {
	applicationLogger := logger.SetupLogger("info", "json")

	cfg, err := config.LoadConfig()
	if err != nil {
		applicationLogger.Error(fmt.Sprintf("Failed to load configuration: %s", err.Error()))
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	applicationLogger = logger.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	app, err := NewApplication(cfg, applicationLogger)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Start(); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func NewApplication(cfg *config.Config, applicationLogger *slog.Logger) (*Application, error) {
	db, err := connectDatabase(cfg.Database, applicationLogger)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&entities.Hotel{}, &entities.PriceSample{}, &entities.CacheEntry{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient := initRedis(cfg.Redis, applicationLogger)

	fastCache := adapter.NewRedisCacheAdapter(redisClient, cfg.Cache.Prefix, applicationLogger)
	durableCache := adapter.NewPostgresCacheAdapter(db, applicationLogger)
	priceRepo := adapter.NewPostgresPriceRepository(db, applicationLogger)
	windowStore := adapter.NewRedisWindowStore(redisClient, cfg.Cache.Prefix, applicationLogger)

	cacheService := cache.NewService(fastCache, durableCache, applicationLogger)
	limitService := ratelimit.NewService(windowStore, cfg.RateLimit, applicationLogger)

	providers, err := buildProviders(cfg, applicationLogger)
	if err != nil {
		return nil, err
	}

	aggregatorSvc := aggregator.NewService(providers, priceRepo, priceRepo, applicationLogger)
	trackerService := tracker.NewService(priceRepo, priceRepo, cacheService, cfg.Tracking, applicationLogger)
	jobScheduler := scheduler.NewScheduler(aggregatorSvc, durableCache, cfg.Tracking, cfg.Cache, applicationLogger)

	hotelHandler := handler.NewHotelHandler(aggregatorSvc, trackerService, cacheService, limitService, cfg.Cache, applicationLogger)
	wsHandler := handler.NewWSHandler(trackerService, applicationLogger)

	server := initServer(cfg.Server, hotelHandler, wsHandler, limitService, applicationLogger)

	return &Application{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		logger:         applicationLogger,
		server:         server,
		fastCache:      fastCache,
		durableCache:   durableCache,
		priceRepo:      priceRepo,
		cacheService:   cacheService,
		limitService:   limitService,
		aggregatorSvc:  aggregatorSvc,
		trackerService: trackerService,
		scheduler:      jobScheduler,
		hotelHandler:   hotelHandler,
		wsHandler:      wsHandler,
	}, nil
}

// buildProviders wires one adapter per enabled provider, in the fixed order
// the aggregator's merge tie-breaks rely on.
func buildProviders(cfg *config.Config, applicationLogger *slog.Logger) ([]hotel.Provider, error) {
	var providers []hotel.Provider

	for _, name := range cfg.EnabledProviders() {
		providerCfg := cfg.Providers[name]

		switch name {
		case "expedia":
			providers = append(providers, adapter.NewExpediaAdapter(providerCfg, applicationLogger))
		case "booking":
			providers = append(providers, adapter.NewBookingAdapter(providerCfg, applicationLogger))
		case "hotels":
			providers = append(providers, adapter.NewHotelsComAdapter(providerCfg, applicationLogger))
		case "amadeus":
			providers = append(providers, adapter.NewAmadeusAdapter(providerCfg, applicationLogger))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}
	return providers, nil
}

func (app *Application) Start() error {
	ctx := context.Background()

	app.logger.Info("Starting hotel tracking service",
		"version", "1.0.0",
		"address", app.config.Server.Address())

	if err := app.performHealthChecks(ctx); err != nil {
		app.logger.Error("Health checks failed", "error", err)
		return err
	}

	trackerCtx, cancel := context.WithCancel(ctx)
	app.trackerCancel = cancel
	go app.trackerService.Run(trackerCtx)

	app.scheduler.Start()

	go func() {
		figure.NewFigure("TRACKER", "", true).Print()
		fmt.Println("")
		fmt.Println("Hotel tracking service started at " + app.config.Server.Address())
		fmt.Println("")
		if err := app.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server failed", "error", err)
		}
	}()

	app.waitForShutdown()

	return nil
}

func (app *Application) performHealthChecks(ctx context.Context) error {
	app.logger.Info("Performing health checks")

	if sqlDB, err := app.db.DB(); err == nil {
		if err := sqlDB.PingContext(ctx); err != nil {
			return err
		}
	}

	if err := app.fastCache.Ping(ctx); err != nil {
		app.logger.Warn("Redis health check failed", "error", err)
	}

	return nil
}

func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	app.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("Server forced to shutdown", "error", err)
	}

	app.scheduler.Stop()

	if app.trackerCancel != nil {
		app.trackerCancel()
	}

	if err := app.aggregatorSvc.Close(); err != nil {
		app.logger.Error("Error closing providers", "error", err)
	}

	if sqlDB, err := app.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			app.logger.Error("Error closing database", "error", err)
		}
	}

	if err := app.redis.Close(); err != nil {
		app.logger.Error("Error closing Redis", "error", err)
	}

	app.logger.Info("Server stopped gracefully")
}

// connectDatabase opens the pool with bounded retries so a slow database at
// startup does not kill the service.
func connectDatabase(cfg config.DatabaseConfig, applicationLogger *slog.Logger) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for attempt := 0; attempt <= cfg.ConnectRetries; attempt++ {
		if attempt > 0 {
			applicationLogger.Warn("Retrying database connection",
				"attempt", attempt,
				"max_attempts", cfg.ConnectRetries,
				"backoff", cfg.ConnectBackoff)
			time.Sleep(cfg.ConnectBackoff)
		}

		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)

	applicationLogger.Info("Database connected", "host", cfg.Host, "database", cfg.Database)
	return db, nil
}

func initRedis(cfg config.RedisConfig, applicationLogger *slog.Logger) *redis.Client {
	applicationLogger.Info("Connecting to Redis", "address", cfg.Address())

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	applicationLogger.Info("Redis client created")
	return client
}

func initServer(cfg config.ServerConfig, hotelHandler *handler.HotelHandler, wsHandler *handler.WSHandler, limitService *ratelimit.Service, applicationLogger *slog.Logger) *http.Server {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()

	search := api.PathPrefix("/search").Subrouter()
	search.HandleFunc("", hotelHandler.SearchHotels).Methods("GET")
	search.Use(handler.RateLimitMiddleware(limitService, "search", applicationLogger))

	prices := api.PathPrefix("/prices").Subrouter()
	prices.HandleFunc("/{hotelID}", hotelHandler.GetPrices).Methods("GET")
	prices.Use(handler.RateLimitMiddleware(limitService, "price_check", applicationLogger))

	tracking := api.PathPrefix("/tracking").Subrouter()
	tracking.HandleFunc("/{city}", hotelHandler.GetCitySnapshot).Methods("GET")
	tracking.Use(handler.RateLimitMiddleware(limitService, "tracking", applicationLogger))

	rest := api.NewRoute().Subrouter()
	rest.HandleFunc("/hotels/{id}", hotelHandler.GetHotelDetails).Methods("GET")
	rest.HandleFunc("/stats/{city}", hotelHandler.GetCityStats).Methods("GET")
	rest.HandleFunc("/cache/stats", hotelHandler.GetCacheStats).Methods("GET")
	rest.HandleFunc("/limits", hotelHandler.GetLimits).Methods("GET")
	rest.Use(handler.RateLimitMiddleware(limitService, "default", applicationLogger))

	router.HandleFunc("/ws/prices/{city}", wsHandler.StreamCityPrices)
	router.HandleFunc("/health", hotelHandler.HealthCheck).Methods("GET")

	router.Use(handler.LoggingMiddleware(applicationLogger))
	if cfg.EnableCORS {
		router.Use(handler.CORSMiddleware)
	}

	printRoutes(router, applicationLogger)

	return &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func printRoutes(router *mux.Router, applicationLogger *slog.Logger) {
	fmt.Println("API Routes Overview")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	var routes []string

	err := router.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"ALL"}
		}

		methodStr := strings.Join(methods, ", ")
		routeDesc := fmt.Sprintf("  %-8s %s", methodStr, pathTemplate)

		switch {
		case strings.Contains(pathTemplate, "/health"):
			routeDesc += " - Health check endpoint"
		case strings.Contains(pathTemplate, "/ws/prices"):
			routeDesc += " - Live price stream (WebSocket)"
		case strings.Contains(pathTemplate, "/search"):
			routeDesc += " - Search hotels across providers"
		case strings.Contains(pathTemplate, "/prices/{hotelID}"):
			routeDesc += " - Best current price for a hotel"
		case strings.Contains(pathTemplate, "/tracking/{city}"):
			routeDesc += " - Current tracking snapshot for a city"
		case strings.Contains(pathTemplate, "/hotels/{id}"):
			routeDesc += " - Get specific hotel by ID"
		case strings.Contains(pathTemplate, "/stats/{city}"):
			routeDesc += " - Price statistics for a city"
		case strings.Contains(pathTemplate, "/cache/stats"):
			routeDesc += " - Cache hit/miss statistics"
		case strings.Contains(pathTemplate, "/limits"):
			routeDesc += " - Rate limit usage for the caller"
		default:
			routeDesc += " - API endpoint"
		}

		routes = append(routes, routeDesc)
		return nil
	})

	if err != nil {
		applicationLogger.Error("Error walking routes", "error", err)
		return
	}

	for _, route := range routes {
		fmt.Println(route)
	}

	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("Total registered routes: %d\n", len(routes))
}
