package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	WorkerSharedSecret string // guards the internal worker reporting endpoints
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Object storage
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string

	// Rendering
	TempDir  string
	FontPath string // TTF used for titles and subtitles (empty = builtin bitmap face)

	// Worker
	MaxConcurrentJobs int
	MaxJobAttempts    int
	RetryBackoffBase  time.Duration
	StartBurst        int // max render starts per StartWindow
	StartWindow       time.Duration
	JobTimeout        time.Duration
	WatchdogInterval  time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		WorkerSharedSecret: getEnv("WORKER_SHARED_SECRET", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		StorageURL:         getEnv("STORAGE_URL", ""),
		StorageServiceKey:  getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:      getEnv("STORAGE_BUCKET", "slideshow-media"),
		TempDir:            getEnv("RENDER_TEMP_DIR", os.TempDir()),
		FontPath:           getEnv("RENDER_FONT_PATH", ""),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 2),
		MaxJobAttempts:     getEnvInt("MAX_JOB_ATTEMPTS", 3),
		RetryBackoffBase:   getEnvDuration("RETRY_BACKOFF_BASE", 2*time.Second),
		StartBurst:         getEnvInt("RENDER_START_BURST", 4),
		StartWindow:        getEnvDuration("RENDER_START_WINDOW", time.Minute),
		JobTimeout:         getEnvDuration("JOB_TIMEOUT", 20*time.Minute),
		WatchdogInterval:   getEnvDuration("WATCHDOG_INTERVAL", time.Minute),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
