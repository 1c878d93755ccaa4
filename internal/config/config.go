// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir          string // base directory for the databases, always absolute
	BarsCSVDir       string // optional directory of <SYMBOL>.csv files to ingest at startup
	RunID            string // identifier of the live run
	EvaluateSchedule string // cron spec of the daily evaluation
	LogLevel         string
	LogPretty        bool
	Port             int
	DevMode          bool
}

// Load reads configuration from environment variables, with a .env file
// as fallback.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("HELMSMAN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		BarsCSVDir:       getEnv("HELMSMAN_BARS_DIR", ""),
		RunID:            getEnv("HELMSMAN_RUN_ID", "live"),
		EvaluateSchedule: getEnv("HELMSMAN_EVALUATE_SCHEDULE", "0 30 21 * * MON-FRI"),
		Port:             getEnvAsInt("HELMSMAN_PORT", 8001),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnvAsBool("LOG_PRETTY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.RunID == "" {
		return fmt.Errorf("run id must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.EvaluateSchedule == "" {
		return fmt.Errorf("evaluate schedule must not be empty")
	}
	return nil
}

// DatabasePath returns the path of a named database under the data dir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
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
