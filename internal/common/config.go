package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	OCR      OCRConfig
	Worker   WorkerConfig
	Ingest   IngestConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "pgx" or "sqlite"
	DSN              string
	MaxConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// RedisConfig holds the job queue connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	QueueKey string
}

// StorageConfig selects the document store backend
type StorageConfig struct {
	Backend   string // "local" or "gcs"
	BasePath  string // local backend root
	Bucket    string // gcs backend bucket
}

// OCRConfig holds OCR provider settings
type OCRConfig struct {
	Provider       string
	VisionAPIKey   string
	ScratchBucket  string // required for PDF/TIFF inputs
	LanguageHints  string // comma separated, e.g. "pt,en"
	MaxPages       int
	TimeoutSeconds int
	Retries        int
}

// WorkerConfig holds worker pool sizing and the queue backend
type WorkerConfig struct {
	Backend   string // "inprocess" or "redis"
	Workers   int
	QueueSize int
}

// IngestConfig enables the drop-directory watcher when WatchDir is set.
type IngestConfig struct {
	WatchDir    string
	InitialScan bool
	Debounce    time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "pgx"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			QueueKey: getEnv("OCR_QUEUE_KEY", "fichas:ocr:jobs"),
		},
		Storage: StorageConfig{
			Backend:  getEnv("STORAGE_BACKEND", "local"),
			BasePath: getEnv("OCR_UPLOAD_DIR", "./data/ocr_uploads"),
			Bucket:   getEnv("GCS_BUCKET", ""),
		},
		OCR: OCRConfig{
			Provider:       getEnv("OCR_PROVIDER", "google_vision"),
			VisionAPIKey:   getEnv("GOOGLE_VISION_API_KEY", ""),
			ScratchBucket:  getEnv("GCS_OCR_BUCKET", ""),
			LanguageHints:  getEnv("OCR_LANGUAGE_HINTS", "pt"),
			MaxPages:       getEnvAsInt("OCR_MAX_PAGES", 10),
			TimeoutSeconds: getEnvAsInt("OCR_TIMEOUT_SECONDS", 180),
			Retries:        getEnvAsInt("OCR_RETRY", 2),
		},
		Worker: WorkerConfig{
			Backend:   getEnv("QUEUE_BACKEND", "inprocess"),
			Workers:   getEnvAsInt("OCR_WORKERS", 4),
			QueueSize: getEnvAsInt("OCR_QUEUE_SIZE", 256),
		},
		Ingest: IngestConfig{
			WatchDir:    getEnv("OCR_WATCH_DIR", ""),
			InitialScan: getEnvAsBool("OCR_WATCH_INITIAL_SCAN", true),
			Debounce:    getEnvAsDuration("OCR_WATCH_DEBOUNCE", 500*time.Millisecond),
		},
	}
}

// ProviderTimeout returns the provider call budget as a duration.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.OCR.TimeoutSeconds) * time.Second
}

// JobTimeout is the queue-level execution budget for one job:
// at least 600s, or the provider timeout plus slack when that is larger.
func (c *Config) JobTimeout() time.Duration {
	t := time.Duration(c.OCR.TimeoutSeconds+120) * time.Second
	if t < 600*time.Second {
		return 600 * time.Second
	}
	return t
}

// StaleAfter is the watchdog threshold: a job still "processing" this long
// after started_at is considered abandoned.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.OCR.TimeoutSeconds+120) * time.Second
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return ConfigurationError("DB_URL is required")
	}
	if c.Database.Driver != "pgx" && c.Database.Driver != "sqlite" {
		return ConfigurationError("DB_DRIVER must be pgx or sqlite")
	}
	if c.Storage.Backend != "local" && c.Storage.Backend != "gcs" {
		return ConfigurationError("STORAGE_BACKEND must be local or gcs")
	}
	if c.Storage.Backend == "gcs" && c.Storage.Bucket == "" {
		return ConfigurationError("GCS_BUCKET is required for the gcs backend")
	}
	if strings.TrimSpace(c.OCR.Provider) == "" {
		return ConfigurationError("OCR_PROVIDER is required")
	}
	if c.Worker.Backend != "inprocess" && c.Worker.Backend != "redis" {
		return ConfigurationError("QUEUE_BACKEND must be inprocess or redis")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
