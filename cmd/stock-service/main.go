package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmacia/farmacia-backend/internal/inventory/consumers"
	"github.com/farmacia/farmacia-backend/internal/inventory/events"
	"github.com/farmacia/farmacia-backend/internal/inventory/feed"
	"github.com/farmacia/farmacia-backend/internal/inventory/handler"
	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/internal/inventory/repository/memory"
	"github.com/farmacia/farmacia-backend/internal/inventory/service"
	"github.com/farmacia/farmacia-backend/pkg/config"
	"github.com/farmacia/farmacia-backend/pkg/database"
	"github.com/farmacia/farmacia-backend/pkg/httputil"
	"github.com/farmacia/farmacia-backend/pkg/jwt"
	"github.com/farmacia/farmacia-backend/pkg/keylock"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/farmacia/farmacia-backend/pkg/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

const serviceName = "stock-service"

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(serviceName, cfg.Server.Environment, cfg.Server.LogLevel)
	log.Info().Str("driver", cfg.Database.Driver).Msg("starting Stock Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := map[string]func(context.Context) interface{}{}

	// Storage
	var stores service.Stores
	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		mem := memory.New()
		stores = service.Stores{
			Tx:       mem,
			Products: mem.Products(),
			Batches:  mem.Batches(),
			Alerts:   mem.Alerts(),
			Orders:   mem.Orders(),
		}
	default:
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx, repository.Schema); err != nil {
				log.Fatal().Err(err).Msg("failed to apply schema")
			}
		}

		stores = service.Stores{
			Tx:       db,
			Products: repository.NewProductRepository(db),
			Batches:  repository.NewBatchRepository(db),
			Alerts:   repository.NewAlertRepository(db),
			Orders:   repository.NewOrderRepository(db),
		}
		health["database"] = func(ctx context.Context) interface{} { return db.Health(ctx) }
	}

	// Live feed
	hub := feed.NewHub(log)
	go hub.Run(ctx)

	// Messaging is optional; without it alert events go straight to the hub
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		alertConsumer, err := consumers.NewAlertFeedConsumer(rmq, hub, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create alert feed consumer")
		}
		if err := alertConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start alert feed consumer")
		}
		health["rabbitmq"] = func(context.Context) interface{} { return rmq.Health() }
	}

	publisher, err := events.NewStockEventPublisher(rmq, hub, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Services
	locks := keylock.New()
	policy := service.NewPolicy(cfg.Alerts)
	engine := service.NewAlertEngine(stores, policy, locks, publisher, log)
	ledger := service.NewLedger(stores, engine, locks, publisher, log)
	orders := service.NewOrderMachine(stores, ledger, publisher, log)

	if rmq != nil {
		catalogConsumer, err := consumers.NewCatalogConsumer(rmq, serviceName, ledger, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create catalog consumer")
		}
		if err := catalogConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start catalog consumer")
		}
	}

	scheduler := service.NewAlertScheduler(engine, cfg.Alerts.ScanInterval, log)
	scheduler.Start(ctx)

	handlers := &handler.Handlers{
		Products: handler.NewProductHandler(ledger, log),
		Alerts:   handler.NewAlertHandler(engine, log),
		Stream:   handler.NewStreamHandler(hub, jwt.NewVerifier(&cfg.JWT), cfg.JWT.StreamAuth, log),
		Orders:   handler.NewOrderHandler(orders, log),
	}

	// Create router
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.UserHeader)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":      "healthy",
			"service":     serviceName,
			"subscribers": hub.ClientCount(),
		}
		for name, check := range health {
			body[name] = check(r.Context())
		}
		httputil.JSON(w, http.StatusOK, body)
	})

	r.Route("/api/v1", handlers.Register)

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
