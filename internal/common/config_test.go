package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		Storage:  StorageConfig{Backend: "local", BasePath: "./data"},
		OCR:      OCRConfig{Provider: "google_vision", TimeoutSeconds: 180},
		Worker:   WorkerConfig{Backend: "inprocess"},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/fichas")
	cfg := LoadConfig()

	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "google_vision", cfg.OCR.Provider)
	assert.Equal(t, "pt", cfg.OCR.LanguageHints)
	assert.Equal(t, 180, cfg.OCR.TimeoutSeconds)
	assert.Equal(t, "inprocess", cfg.Worker.Backend)
	assert.Equal(t, "fichas:ocr:jobs", cfg.Redis.QueueKey)
	assert.Empty(t, cfg.Ingest.WatchDir)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.Debounce)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("OCR_TIMEOUT_SECONDS", "60")
	t.Setenv("OCR_WATCH_DIR", "/srv/fichas/entrada")
	t.Setenv("OCR_WATCH_INITIAL_SCAN", "false")
	cfg := LoadConfig()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 60, cfg.OCR.TimeoutSeconds)
	assert.Equal(t, "/srv/fichas/entrada", cfg.Ingest.WatchDir)
	assert.False(t, cfg.Ingest.InitialScan)
}

func TestJobTimeoutFloor(t *testing.T) {
	cfg := validTestConfig()

	// 180+120 = 300s is under the floor
	assert.Equal(t, 600*time.Second, cfg.JobTimeout())

	cfg.OCR.TimeoutSeconds = 600
	assert.Equal(t, 720*time.Second, cfg.JobTimeout())
}

func TestStaleAfter(t *testing.T) {
	cfg := validTestConfig()
	assert.Equal(t, 300*time.Second, cfg.StaleAfter())
}

func TestValidate(t *testing.T) {
	require.NoError(t, validTestConfig().Validate())

	cfg := validTestConfig()
	cfg.Database.DSN = ""
	assert.Error(t, cfg.Validate())

	cfg = validTestConfig()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = validTestConfig()
	cfg.Storage.Backend = "gcs"
	assert.Error(t, cfg.Validate())
	cfg.Storage.Bucket = "bucket"
	assert.NoError(t, cfg.Validate())

	cfg = validTestConfig()
	cfg.Worker.Backend = "kafka"
	assert.Error(t, cfg.Validate())
}
