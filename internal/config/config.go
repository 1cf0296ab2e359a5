// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir string // Base directory for the snapshot database (always absolute)
	Port    int
	DevMode bool

	// Upstream IB Client Portal Gateway
	GatewayURL            string // e.g. "https://localhost:5000/v1/api"
	GatewayTimeoutSeconds int    // per-call timeout for upstream requests

	// Snapshot pipeline
	ReportingTimezone  string   // timezone for statement period/generated fields
	Watchlist          []string // optional inclusion filter; empty = all positions
	HistoryPeriod      string   // upstream history period, e.g. "60d"
	HistoryConcurrency int      // bounded workers for per-instrument history fetches
	SnapshotSchedule   string   // cron spec for scheduled runs; empty = manual only
	FieldTablePath     string   // optional JSON override for the market-data field table

	// API auth (bearer tokens issued against these credentials)
	AuthUsername    string
	AuthPassword    string
	TokenTTLMinutes int

	// Off-site backup of the snapshot database
	Backup *BackupConfig

	LogLevel string
}

// BackupConfig holds S3 backup configuration
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // S3-compatible endpoint URL (R2, MinIO, AWS)
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	RetentionDays   int
	Schedule        string // cron spec; empty = manual only
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("IBFOLIO_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:               absDataDir,
		Port:                  getEnvAsInt("PORT", 8000),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		GatewayURL:            getEnv("IB_GATEWAY_URL", "https://localhost:5000/v1/api"),
		GatewayTimeoutSeconds: getEnvAsInt("IB_GATEWAY_TIMEOUT_SECONDS", 15),
		ReportingTimezone:     getEnv("REPORTING_TIMEZONE", "America/New_York"),
		Watchlist:             parseList(getEnv("WATCHLIST", "")),
		HistoryPeriod:         getEnv("HISTORY_PERIOD", "60d"),
		HistoryConcurrency:    getEnvAsInt("HISTORY_CONCURRENCY", 4),
		SnapshotSchedule:      getEnv("SNAPSHOT_SCHEDULE", ""),
		FieldTablePath:        getEnv("FIELD_TABLE_PATH", ""),
		AuthUsername:          getEnv("AUTH_USERNAME", ""),
		AuthPassword:          getEnv("AUTH_PASSWORD", ""),
		TokenTTLMinutes:       getEnvAsInt("TOKEN_TTL_MINUTES", 720),
		Backup:                loadBackupConfig(),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("IB_GATEWAY_URL must not be empty")
	}
	if c.HistoryConcurrency < 1 {
		return fmt.Errorf("HISTORY_CONCURRENCY must be at least 1")
	}
	if c.Backup != nil && c.Backup.Enabled {
		if c.Backup.Bucket == "" || c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("backup enabled but BACKUP_BUCKET / BACKUP_ACCESS_KEY_ID / BACKUP_SECRET_ACCESS_KEY not set")
		}
	}
	return nil
}

// loadBackupConfig loads S3 backup configuration from environment
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		Bucket:          getEnv("BACKUP_BUCKET", ""),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		Schedule:        getEnv("BACKUP_SCHEDULE", ""),
	}
}

// parseList splits a comma-separated value into trimmed non-empty entries
func parseList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Helper functions
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
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
