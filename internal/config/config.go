package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all externally supplied settings. Nothing here is hardcoded;
// every value comes from the environment at startup.
type Config struct {
	ProjectID     string // GCP project holding the BigQuery dataset
	DatasetID     string
	TableID       string
	BucketName    string // GCS bucket holding the BigQuery service account key
	DriveFolderID string // Drive folder containing per-tenant OAuth tokens

	MaxWorkers int           // outer tenant worker pool width
	BatchSize  int           // BigQuery insert batch size
	CacheTTL   time.Duration // existing-id cache TTL
	NatsURL    string        // optional; empty disables event publishing
	Port       int
}

// FromEnv reads configuration from environment variables, applying defaults
// for the optional knobs and rejecting missing required identifiers.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ProjectID:     os.Getenv("PROJECT_ID"),
		DatasetID:     os.Getenv("DATASET_ID"),
		TableID:       os.Getenv("TABLE_ID"),
		BucketName:    os.Getenv("BUCKET_NAME"),
		DriveFolderID: os.Getenv("DRIVE_FOLDER_ID"),
		NatsURL:       os.Getenv("NATS_URL"),
		MaxWorkers:    intEnv("MAX_WORKERS", 3),
		BatchSize:     intEnv("BATCH_SIZE", 1000),
		CacheTTL:      time.Duration(intEnv("CACHE_TTL_SECONDS", 3600)) * time.Second,
		Port:          intEnv("PORT", 8080),
	}

	for _, v := range []struct{ name, val string }{
		{"PROJECT_ID", cfg.ProjectID},
		{"DATASET_ID", cfg.DatasetID},
		{"TABLE_ID", cfg.TableID},
		{"BUCKET_NAME", cfg.BucketName},
		{"DRIVE_FOLDER_ID", cfg.DriveFolderID},
	} {
		if v.val == "" {
			return nil, fmt.Errorf("missing required environment variable %s", v.name)
		}
	}

	if cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("MAX_WORKERS must be >= 1, got %d", cfg.MaxWorkers)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("BATCH_SIZE must be >= 1, got %d", cfg.BatchSize)
	}

	return cfg, nil
}

// Table returns the fully qualified table reference.
func (c *Config) Table() string {
	return fmt.Sprintf("%s.%s.%s", c.ProjectID, c.DatasetID, c.TableID)
}

func intEnv(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
