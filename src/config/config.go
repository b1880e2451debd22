package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string
	LogFormat    string

	// Fiscal data (tabelas versionadas: regimes, NCM, incentivos, reforma)
	FiscalDataDir string

	// Upload limits
	MaxUploadSizeBytes int64

	// HTTP behaviour
	AllowedOrigins    []string
	RateLimitInterval time.Duration
	RateLimitBurst    int

	// Service cache
	CacheDefaultExpiration time.Duration
	CacheCleanupInterval   time.Duration
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()

	// 2. If not found, try loading from the parent directory (common when running from a subdir)
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	// --- File Size Limits ---
	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760") // 10MB default
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	// --- Rate limiting ---
	// Intervalo entre tokens e burst do limitador global da API.
	rateLimitInterval := getEnvAsDuration("RATE_LIMIT_INTERVAL", 100*time.Millisecond)
	rateLimitBurst := getEnvAsInt("RATE_LIMIT_BURST", 30)

	// --- Populate the Global Config Struct ---
	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./custoimport.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),

		// Fiscal data
		FiscalDataDir: getEnv("FISCAL_DATA_DIR", "data/fiscal"),

		// Uploads
		MaxUploadSizeBytes: maxUploadSizeBytes,

		// HTTP
		AllowedOrigins:    getEnvAsList("ALLOWED_ORIGINS", "http://localhost:3000"),
		RateLimitInterval: rateLimitInterval,
		RateLimitBurst:    rateLimitBurst,

		// Cache
		CacheDefaultExpiration: getEnvAsDuration("CACHE_DEFAULT_EXPIRATION", 15*time.Minute),
		CacheCleanupInterval:   getEnvAsDuration("CACHE_CLEANUP_INTERVAL", 30*time.Minute),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, FiscalDataDir=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.FiscalDataDir)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsList retrieves and parses a comma-separated environment variable.
func getEnvAsList(key, fallback string) []string {
	valueStr := getEnv(key, fallback)
	if valueStr == "" {
		return []string{}
	}
	parts := strings.Split(valueStr, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}
