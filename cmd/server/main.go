package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/paris-agenda/service-promotion/internal/adapter"
	"github.com/paris-agenda/service-promotion/internal/application"
	"github.com/paris-agenda/service-promotion/internal/config"
	activationDomain "github.com/paris-agenda/service-promotion/internal/domain/activation"
	scheduleDomain "github.com/paris-agenda/service-promotion/internal/domain/schedule"
	"github.com/paris-agenda/service-promotion/internal/events"
	"github.com/paris-agenda/service-promotion/internal/handler"
	"github.com/paris-agenda/service-promotion/internal/health"
	"github.com/paris-agenda/service-promotion/internal/logger"
	"github.com/paris-agenda/service-promotion/internal/middleware"
	"github.com/paris-agenda/service-promotion/internal/repository"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, "service-promotion")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting service-promotion",
		zap.String("port", cfg.Port),
		zap.String("timezone", cfg.DefaultTimezone),
	)

	// Select repositories at the single composition point: durable when a
	// database is configured, in-memory only for local development. Call
	// sites never branch on repository presence.
	var (
		db             *gorm.DB
		scheduleRepo   scheduleDomain.Repository
		activationRepo activationDomain.Repository
	)
	if cfg.DBConfig.Configured() {
		db, err = gorm.Open(postgres.Open(cfg.DBConfig.DSN()), &gorm.Config{TranslateError: true})
		if err != nil {
			zapLogger.Fatal("failed to connect to database", zap.Error(err))
		}
		if cfg.AppEnv == "development" {
			if err := db.AutoMigrate(&repository.ActivationModel{}, &repository.ScheduleEntryModel{}); err != nil {
				zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
			}
			zapLogger.Info("database migration completed (dev auto-migrate)")
		}
		scheduleRepo = repository.NewGormScheduleRepository(db)
		activationRepo = repository.NewGormActivationRepository(db)
	} else {
		zapLogger.Warn("no database configured, using in-memory stores; idempotency and capacity do not survive restarts")
		scheduleRepo = repository.NewMemoryScheduleRepository()
		activationRepo = repository.NewMemoryActivationRepository()
	}

	// Initialize event publisher
	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, zapLogger)
	} else {
		publisher = events.NewNoopPublisher()
	}
	defer publisher.Close()

	// External collaborators
	var catalog adapter.EventCatalog
	if cfg.CatalogBaseURL != "" {
		catalog = adapter.NewHTTPEventCatalog(cfg.CatalogBaseURL, zapLogger)
	} else if cfg.AppEnv == "development" {
		catalog = adapter.NewStaticEventCatalog(
			adapter.CatalogEvent{Key: "demo-vernissage", Name: "Vernissage de quartier"},
		)
	} else {
		zapLogger.Fatal("CATALOG_BASE_URL is required outside development")
	}

	var engagement adapter.EngagementSource
	if cfg.EngagementBaseURL != "" {
		engagement = adapter.NewHTTPEngagementSource(cfg.EngagementBaseURL, zapLogger)
	} else if cfg.AppEnv == "development" {
		engagement = adapter.NewStaticEngagementSource()
	} else {
		zapLogger.Fatal("ENGAGEMENT_BASE_URL is required outside development")
	}

	authorizer := adapter.NewAPIKeyAuthorizer(cfg.AdminAPIKey)

	// One scheduler per tier
	schedulers := make(map[string]*application.SchedulerService, len(cfg.Tiers))
	for _, tier := range cfg.Tiers {
		schedulers[tier.Name] = application.NewSchedulerService(tier, cfg.Location, scheduleRepo, catalog, publisher, zapLogger)
	}

	// Application services
	ingestionService := application.NewIngestionService(activationRepo, cfg.PackageLinks, publisher, zapLogger)
	fulfillmentService := application.NewFulfillmentService(activationRepo, schedulers, cfg.PublicBaseURL, publisher, zapLogger)
	statsService := application.NewStatsService(activationRepo, catalog, engagement, zapLogger)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	healthHandler := health.NewHandler(db, "service-promotion")
	healthHandler.RegisterRoutes(router)

	webhookHandler := handler.NewWebhookHandler(ingestionService, cfg.WebhookSecret, zapLogger)
	webhookHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	handler.NewAdminHandler(fulfillmentService, schedulers).RegisterRoutes(apiV1, authorizer)
	handler.NewPartnerHandler(statsService).RegisterRoutes(apiV1)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down service-promotion...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("service-promotion stopped")
}
