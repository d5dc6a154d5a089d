package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales-reconciler/config"
	"sales-reconciler/internal/api"
	"sales-reconciler/internal/broker"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/platform/eventbrite"
	"sales-reconciler/internal/platform/square"
	"sales-reconciler/internal/platform/woocommerce"
	"sales-reconciler/internal/redisclient"
	"sales-reconciler/internal/service"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"
	"sales-reconciler/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// repository is satisfied by both ledger backends.
type repository interface {
	service.MappingRepository
	service.SalesRepository
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting sales reconciler")

	tp, err := util.InitTracer("sales-reconciler", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	loc := cfg.Business.Location()

	var (
		repo  repository
		ready []api.Pinger
	)
	if cfg.Database.URL != "" {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		repo = db
		ready = append(ready, db)
		logger.Info("Database connected")
	} else {
		repo = store.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, keeping the sales ledger in memory")
	}

	// The cache and lock are optional; without Redis the event listing is
	// read through and live syncs only throttle in-process.
	var (
		cache  service.JSONCache
		locker service.Locker
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without cache and lock", zap.Error(err))
	} else {
		defer redisClient.Close()
		cache, locker = redisClient, redisClient
		ready = append(ready, redisClient)
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	mappings := service.NewMappingService(repo)

	biz := cfg.Business
	pc := cfg.Platforms
	registry := platform.NewRegistry(
		woocommerce.NewAdapter(woocommerce.Config{
			BaseURL:        pc.WooCommerce.BaseURL,
			ConsumerKey:    pc.WooCommerce.ConsumerKey,
			ConsumerSecret: pc.WooCommerce.ConsumerSecret,
			Statuses:       pc.WooCommerce.Statuses,
			DateMetaKeys:   pc.WooCommerce.DateMetaKeys,
			TimeMetaKeys:   pc.WooCommerce.TimeMetaKeys,
			Location:       loc,
			Timeout:        biz.HTTPTimeout,
			MaxRetries:     biz.MaxRetries,
			RetryDelay:     biz.RetryDelay,
		}),
		eventbrite.NewAdapter(eventbrite.Config{
			BaseURL:        pc.Eventbrite.BaseURL,
			Token:          pc.Eventbrite.Token,
			OrganizationID: pc.Eventbrite.OrganizationID,
			Location:       loc,
			Timeout:        biz.HTTPTimeout,
			MaxRetries:     biz.MaxRetries,
			RetryDelay:     biz.RetryDelay,
		}, mappings),
		square.NewAdapter(square.Config{
			Environment: pc.Square.Environment,
			BaseURL:     pc.Square.BaseURL,
			AccessToken: pc.Square.AccessToken,
			LocationID:  pc.Square.LocationID,
			APIVersion:  pc.Square.APIVersion,
			Location:    loc,
			Timeout:     biz.HTTPTimeout,
			MaxRetries:  biz.MaxRetries,
			RetryDelay:  biz.RetryDelay,
		}, mappings),
	)
	for _, p := range registry.Platforms() {
		if _, err := registry.Get(string(p)); err != nil {
			logger.Warn("Platform not configured", zap.String("platform", string(p)))
		}
	}

	recorder := service.NewRecorder(repo, eventPublisher, loc)
	imports := service.NewImportOrchestrator(registry, recorder, eventPublisher, biz.ImportBatchSize)
	syncService := service.NewSyncService(registry, recorder, mappings, locker, service.SyncConfig{
		Interval:     biz.SyncInterval,
		LookbackDays: biz.LookbackDays,
		BatchSize:    biz.SyncBatchSize,
		Location:     loc,
	})
	reports := service.NewReportService(repo)
	attendees := service.NewAttendeeService(repo, mappings, registry)
	events := service.NewEventCache(cache, registry, biz.EventCacheTTL, biz.EventCacheErrTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	syncConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSync, cfg.Kafka.ConsumerGroup)
	syncWorker := worker.NewSyncWorker(syncConsumer, syncService)
	go func() {
		if err := syncWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Sync worker error", zap.Error(err))
		}
	}()

	scheduler := worker.NewScheduler(syncService, biz.SyncInterval)
	go func() {
		if err := scheduler.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Sync scheduler error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Mappings:  mappings,
		Recorder:  recorder,
		Imports:   imports,
		Sync:      syncService,
		Reports:   reports,
		Attendees: attendees,
		Events:    events,
		Registry:  registry,
		Ready:     ready,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := syncWorker.Stop(); err != nil {
		logger.Warn("Error stopping sync worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
