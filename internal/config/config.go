package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv  string
	Port     string
	Database DatabaseConfig
	Ingest   IngestConfig
	Labels   LabelConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// IngestConfig tunes the GIS ingestion pipeline
type IngestConfig struct {
	LineBufferM  float64
	PointBufferM float64
	QRPrefix     string
}

// LabelConfig holds QR label sheet settings
type LabelConfig struct {
	FacilityName string
	Columns      int
	Rows         int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	lineBuffer, err := getEnvFloat("INGEST_LINE_BUFFER_M", 5.0)
	if err != nil {
		return nil, err
	}
	pointBuffer, err := getEnvFloat("INGEST_POINT_BUFFER_M", 10.0)
	if err != nil {
		return nil, err
	}
	labelColumns, err := getEnvInt("LABEL_COLUMNS", 3)
	if err != nil {
		return nil, err
	}
	labelRows, err := getEnvInt("LABEL_ROWS", 8)
	if err != nil {
		return nil, err
	}

	return &Config{
		NodeEnv: getEnv("NODE_ENV", "development"),
		Port:    getEnv("PORT", "3001"),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "vivero"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Ingest: IngestConfig{
			LineBufferM:  lineBuffer,
			PointBufferM: pointBuffer,
			QRPrefix:     getEnv("INGEST_QR_PREFIX", "LOC"),
		},
		Labels: LabelConfig{
			FacilityName: getEnv("LABEL_FACILITY_NAME", "Vivero"),
			Columns:      labelColumns,
			Rows:         labelRows,
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
