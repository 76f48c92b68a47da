package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Paths      PathsConfig
	Extraction ExtractionConfig
	OCR        OCRConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// PathsConfig holds the directory layout the batch processor works over.
type PathsConfig struct {
	InboxDir     string
	ProcessedDir string
	ErrorDir     string
	PatternsFile string
	ExportDir    string
}

// ExtractionConfig tunes the extraction and learning behavior.
type ExtractionConfig struct {
	DefaultCurrency   string
	SubjectSimilarity float64
	LearnThreshold    int
}

// OCRConfig holds the external text-extraction commands.
type OCRConfig struct {
	PDFToTextBin   string
	PDFToPPMBin    string
	TesseractBin   string
	Language       string
	DPI            int
	MaxPages       int
	Timeout        time.Duration
	TableDetectors []string // external table-detection commands, tried in order
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("DB_SQLITE_PATH", "invoices.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Paths: PathsConfig{
			InboxDir:     getEnv("INBOX_DIR", "./inbox"),
			ProcessedDir: getEnv("PROCESSED_DIR", "./processed"),
			ErrorDir:     getEnv("ERROR_DIR", "./error"),
			PatternsFile: getEnv("PATTERNS_FILE", "./learned_patterns.json"),
			ExportDir:    getEnv("EXPORT_DIR", "./exports"),
		},
		Extraction: ExtractionConfig{
			DefaultCurrency:   getEnv("DEFAULT_CURRENCY", "COP"),
			SubjectSimilarity: getEnvAsFloat64("SUBJECT_SIMILARITY", 0.7),
			LearnThreshold:    getEnvAsInt("LEARN_THRESHOLD", 5),
		},
		OCR: OCRConfig{
			PDFToTextBin:   getEnv("PDFTOTEXT_BIN", "pdftotext"),
			PDFToPPMBin:    getEnv("PDFTOPPM_BIN", "pdftoppm"),
			TesseractBin:   getEnv("TESSERACT_BIN", "tesseract"),
			Language:       getEnv("OCR_LANGUAGE", "spa"),
			DPI:            getEnvAsInt("OCR_DPI", 300),
			MaxPages:       getEnvAsInt("OCR_MAX_PAGES", 0),
			Timeout:        getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
			TableDetectors: getEnvAsSlice("TABLE_DETECTOR_CMDS", nil),
		},
	}
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Database.Driver == "sqlite" && c.Database.SQLitePath == "" {
		return NewAppError("CONFIG_ERROR", "DB_SQLITE_PATH is required", ErrInvalidInput)
	}
	if c.Paths.InboxDir == "" {
		return NewAppError("CONFIG_ERROR", "INBOX_DIR is required", ErrInvalidInput)
	}
	if c.Paths.PatternsFile == "" {
		return NewAppError("CONFIG_ERROR", "PATTERNS_FILE is required", ErrInvalidInput)
	}
	return nil
}
