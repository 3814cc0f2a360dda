package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/scentflow/scentflow-backend/internal/inventory/consumers"
	"github.com/scentflow/scentflow-backend/internal/inventory/events"
	"github.com/scentflow/scentflow-backend/internal/inventory/handler"
	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/migrations"
	"github.com/scentflow/scentflow-backend/pkg/auth"
	"github.com/scentflow/scentflow-backend/pkg/cache"
	"github.com/scentflow/scentflow-backend/pkg/config"
	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/httputil"
	"github.com/scentflow/scentflow-backend/pkg/logger"
	"github.com/scentflow/scentflow-backend/pkg/messaging"
)

const serviceName = "inventory-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		all, err := migrations.All()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load migrations")
		}
		if err := db.Migrate(ctx, all); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, serviceName, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
		log.Fatal().Err(err).Msg("failed to declare dead letter queue")
	}

	publisher, err := events.NewInventoryEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Redis only backs the sales-history cache, so the service runs without it.
	var cacheClient *cache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = cache.New(&cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, sales history will not be cached")
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	// Repositories
	locationRepo := repository.NewLocationRepository(db)
	productRepo := repository.NewProductRepository(db)
	materialRepo := repository.NewRawMaterialRepository(db)
	recipeRepo := repository.NewRecipeRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	transferRepo := repository.NewTransferRepository(db)
	productionRepo := repository.NewProductionRepository(db)
	salesRepo := repository.NewSalesRepository(db)
	sequenceRepo := repository.NewSequenceRepository()

	// Services
	ledgerService := service.NewLedgerService(db, ledgerRepo, locationRepo, publisher, log)
	catalogService := service.NewCatalogService(locationRepo, productRepo, materialRepo, recipeRepo, cfg.Stock, log)
	transferService := service.NewTransferService(db, transferRepo, locationRepo, ledgerRepo, sequenceRepo, ledgerService, publisher, log)
	productionService := service.NewProductionService(db, productionRepo, recipeRepo, locationRepo, materialRepo, ledgerRepo, sequenceRepo, ledgerService, publisher, log)

	var salesHistory service.SalesHistoryProvider = salesRepo
	var invalidator service.SalesCacheInvalidator
	if cacheClient != nil {
		cached := service.NewCachedSalesHistory(salesRepo, cacheClient, cfg.Redis.SalesCacheTTL, log)
		salesHistory = cached
		invalidator = cached
	}
	salesService := service.NewSalesService(db, ledgerService, ledgerRepo, salesRepo, invalidator, log)
	replenishmentService := service.NewReplenishmentService(productRepo, locationRepo, ledgerRepo, salesHistory, service.PlannerConfigFrom(&cfg.Stock), log)

	// Handlers
	locationHandler := handler.NewLocationHandler(catalogService, log)
	catalogHandler := handler.NewCatalogHandler(catalogService, log)
	stockHandler := handler.NewStockHandler(ledgerService, log)
	transferHandler := handler.NewTransferHandler(transferService, log)
	productionHandler := handler.NewProductionHandler(productionService, log)
	replenishmentHandler := handler.NewReplenishmentHandler(replenishmentService, log)

	// Start sale event consumer
	salesConsumer, err := consumers.NewSalesEventConsumer(rmq, salesService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sales event consumer")
	}
	if err := salesConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sales event consumer")
	}

	// Periodic low-stock and ledger consistency scan
	scanner := service.NewStockScanner(locationRepo, ledgerRepo, publisher, log)
	scheduler := service.NewScanScheduler(scanner, cfg.Stock.ScanInterval, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Create router
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.Identity(auth.NewTokenVerifier(&cfg.JWT), cfg.JWT.TrustGatewayHeaders))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		}
		if cacheClient != nil {
			health["redis"] = cacheClient.Health(r.Context())
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", locationHandler.List)
			r.Post("/", locationHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", locationHandler.Get)
				r.Post("/deactivate", locationHandler.Deactivate)
				r.Get("/stock", stockHandler.ListByLocation)
				r.Get("/low-stock", stockHandler.LowStock)
				r.Get("/low-materials", productionHandler.LowStockMaterials)
				r.Route("/stock/{catalog}/{itemId}", func(r chi.Router) {
					r.Get("/", stockHandler.Get)
					r.Get("/movements", stockHandler.Movements)
					r.Get("/verify", stockHandler.Verify)
				})
			})
		})

		// Catalog routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", catalogHandler.ListProducts)
			r.Post("/", catalogHandler.CreateProduct)
			r.Get("/{id}", catalogHandler.GetProduct)
		})
		r.Route("/raw-materials", func(r chi.Router) {
			r.Get("/", catalogHandler.ListRawMaterials)
			r.Post("/", catalogHandler.CreateRawMaterial)
			r.Get("/{id}", catalogHandler.GetRawMaterial)
		})
		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", catalogHandler.ListRecipes)
			r.Post("/", catalogHandler.CreateRecipe)
			r.Get("/{id}", catalogHandler.GetRecipe)
		})

		// Stock ledger routes
		r.Route("/stock", func(r chi.Router) {
			r.Post("/adjust", stockHandler.Adjust)
			r.Post("/reserve", stockHandler.Reserve)
			r.Post("/release", stockHandler.Release)
		})
		r.Get("/movements", stockHandler.MovementsByReference)

		// Transfer routes
		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", transferHandler.List)
			r.Post("/", transferHandler.Create)
			r.Get("/discrepancies", transferHandler.Discrepancies)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", transferHandler.Get)
				r.Post("/approve", transferHandler.Approve)
				r.Post("/reject", transferHandler.Reject)
				r.Post("/dispatch", transferHandler.Dispatch)
				r.Post("/receive", transferHandler.Receive)
				r.Post("/cancel", transferHandler.Cancel)
			})
		})

		// Production routes
		r.Route("/production", func(r chi.Router) {
			r.Post("/requirements", productionHandler.Requirements)
			r.Post("/availability", productionHandler.Availability)
			r.Get("/stats", productionHandler.Stats)
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", productionHandler.List)
				r.Post("/", productionHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", productionHandler.Get)
					r.Post("/submit", productionHandler.Submit)
					r.Post("/approve", productionHandler.Approve)
					r.Post("/reject", productionHandler.Reject)
					r.Post("/start", productionHandler.Start)
					r.Post("/execute", productionHandler.Execute)
					r.Post("/cancel", productionHandler.Cancel)
				})
			})
		})

		// Replenishment routes
		r.Route("/replenishment/locations/{id}", func(r chi.Router) {
			r.Get("/alerts", replenishmentHandler.Alerts)
			r.Get("/summary", replenishmentHandler.Summary)
			r.Get("/products/{productId}", replenishmentHandler.Analyze)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop the consumer and the scheduler
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
