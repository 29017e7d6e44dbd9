package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/insushim/iswvideoedit-sub000/internal/api"
	"github.com/insushim/iswvideoedit-sub000/internal/config"
	"github.com/insushim/iswvideoedit-sub000/internal/db"
	"github.com/insushim/iswvideoedit-sub000/internal/encoder"
	"github.com/insushim/iswvideoedit-sub000/internal/queue"
	"github.com/insushim/iswvideoedit-sub000/internal/services"
	"github.com/insushim/iswvideoedit-sub000/internal/storage"
	"github.com/insushim/iswvideoedit-sub000/internal/worker"
)

func main() {
	log.Println("Starting slideshow render service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
	log.Println("Initialized object storage")

	// Create API handler
	handler := api.NewHandler(database, q)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		WorkerSharedSecret: cfg.WorkerSharedSecret,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting render pool...")

		if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
			log.Fatalf("Failed to create temp dir: %v", err)
		}

		themes := services.NewStaticCatalog()
		assets := func(uuid.UUID) worker.AssetSource {
			return services.NewAssetStore(stor, cfg.TempDir)
		}
		startEncoder := func(ctx context.Context, path string, s encoder.Settings) (worker.EncodeSession, error) {
			return encoder.Start(ctx, path, s)
		}

		w := worker.New(database, q, stor, themes, assets, startEncoder, cfg.FontPath, worker.Config{
			Concurrency:      cfg.MaxConcurrentJobs,
			TempDir:          cfg.TempDir,
			MaxAttempts:      cfg.MaxJobAttempts,
			BackoffBase:      cfg.RetryBackoffBase,
			StartBurst:       cfg.StartBurst,
			StartWindow:      cfg.StartWindow,
			JobTimeout:       cfg.JobTimeout,
			WatchdogInterval: cfg.WatchdogInterval,
		})

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
