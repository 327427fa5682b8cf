// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/riskdecomp/internal/database"
	"github.com/aristath/riskdecomp/internal/modules/factors"
)

// HistoryDBName is the file name of the market history database in DataDir
const HistoryDBName = "history.db"

// Config holds application configuration
type Config struct {
	DataDir       string // Directory holding history.db (always absolute)
	LogLevel      string
	LogPretty     bool
	DBDriver      string // sqlite (modernc) or sqlite3 (mattn, needs cgo)
	BucketPercent int    // Share of the universe in each factor leg
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("RISK_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:       absDataDir,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPretty:     getEnvAsBool("LOG_PRETTY", false),
		DBDriver:      getEnv("RISK_DB_DRIVER", database.DriverModernc),
		BucketPercent: getEnvAsInt("RISK_BUCKET_PCT", factors.DefaultBucketPercent),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	switch c.DBDriver {
	case database.DriverModernc, database.DriverMattn:
	default:
		return fmt.Errorf("RISK_DB_DRIVER must be %q or %q, got %q", database.DriverModernc, database.DriverMattn, c.DBDriver)
	}
	if c.BucketPercent <= 0 || c.BucketPercent >= 50 {
		return fmt.Errorf("RISK_BUCKET_PCT must be between 1 and 49, got %d", c.BucketPercent)
	}
	return nil
}

// EnsureDataDir creates the data directory if it does not exist
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// HistoryDBPath returns the path of the market history database
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, HistoryDBName)
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
