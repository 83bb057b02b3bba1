package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/config"
	"github.com/alligator-inc/alligator-engine/pkg/database"
	"github.com/alligator-inc/alligator-engine/pkg/handlers"
	"github.com/alligator-inc/alligator-engine/pkg/lamapi"
	"github.com/alligator-inc/alligator-engine/pkg/middleware"
	"github.com/alligator-inc/alligator-engine/pkg/ml"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
	"github.com/alligator-inc/alligator-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize zap logger
	var logger *zap.Logger
	if cfg.Env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("addr", cfg.Addr()),
		zap.String("mongo", cfg.Mongo.Endpoint),
		zap.String("redis", cfg.Redis.Endpoint),
		zap.Int("max_concurrent_requests", cfg.LamAPI.MaxConcurrentRequests),
	)

	// Load the scoring models (fail fast on invalid model files)
	pnModel, err := ml.Load(cfg.Worker.PNModelPath)
	if err != nil {
		logger.Fatal("Failed to load initial scoring model", zap.Error(err))
	}
	rnModel, err := ml.Load(cfg.Worker.RNModelPath)
	if err != nil {
		logger.Fatal("Failed to load final scoring model", zap.Error(err))
	}

	// Connect to the document store
	ctx := context.Background()
	db, err := database.NewConnection(ctx, &cfg.Mongo)
	if err != nil {
		logger.Fatal("Failed to connect to document store", zap.Error(err))
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			logger.Error("Failed to close document store", zap.Error(err))
		}
	}()

	// Connect to the job-signal store
	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to job-signal store", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	// Create repositories
	logRepo := repositories.NewLogRepository(db, logger)
	datasetRepo := repositories.NewDatasetRepository(db)
	tableRepo := repositories.NewTableRepository(db)
	pageRepo := repositories.NewPageRepository(db)
	annotationRepo := repositories.NewAnnotationRepository(db)

	// KG lookup-service client
	kgClient := lamapi.NewClient(&lamapi.Config{
		BaseURL:               cfg.LamAPI.Endpoint,
		Token:                 cfg.LamAPI.Token,
		MaxConcurrentRequests: cfg.LamAPI.MaxConcurrentRequests,
		Timeout:               time.Duration(cfg.LamAPI.RequestTimeoutSeconds) * time.Second,
	}, logRepo, logger)

	// Pipeline stages
	revision := services.NewRevision()
	pipeline := services.NewPipeline(
		services.NewDataPreparation(kgClient, logger),
		services.NewLookup(kgClient, logRepo, logger),
		services.NewFeatureExtraction(kgClient, logger),
		revision,
		services.NewPrediction(pnModel),
		services.NewPrediction(rnModel),
		services.NewDecision(annotationRepo, revision),
		pageRepo,
		logRepo,
		logger,
	)

	// Ingress services and worker
	jobSignal := services.NewJobSignal(redisClient)
	ingestService := services.NewIngestService(datasetRepo, tableRepo, pageRepo, jobSignal,
		cfg.Worker.RowsPerPage, cfg.Worker.LookupLimit, logger)
	tableService := services.NewTableService(datasetRepo, tableRepo, pageRepo, annotationRepo, logger)
	worker := services.NewWorker(pageRepo, pipeline, jobSignal,
		time.Duration(cfg.Worker.PollIntervalSeconds)*time.Second, logger)

	// HTTP surface
	mux := http.NewServeMux()
	datasetHandler := handlers.NewDatasetHandler(ingestService, tableService, datasetRepo, tableRepo, logger)
	datasetHandler.RegisterRoutes(mux, cfg.APIToken)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(runCtx)
	}()

	go func() {
		logger.Info("Server listening", zap.String("addr", cfg.Addr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-runCtx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	wg.Wait()
}
