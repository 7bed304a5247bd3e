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
	DataDir  string // Base directory for the cache database and token file (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Provider selection
	DefaultProvider string // "polygon", "yahoo" or "alphavantage"; empty = yahoo
	EnableFallback  bool   // Retry once against yahoo when the resolved provider fails

	// Provider credentials (both optional; providers without a key degrade
	// to yahoo at resolution time)
	PolygonAPIKey      string
	AlphaVantageAPIKey string

	// Schwab OAuth
	SchwabAppKey        string
	SchwabAppSecret     string
	SchwabRedirectURI   string
	SchwabEncryptionKey string // passphrase the token store derives its AES key from

	// Frontend URL for OAuth redirects
	FrontendURL string
	// CORS allowed origins
	CORSOrigins []string

	// R2 cloud backups (optional; backups disabled when AccountID is empty)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Data directory: FUNDAMENT_DATA_DIR, defaulting to ./data, always
	// resolved to an absolute path and created up front.
	dataDir := getEnv("FUNDAMENT_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8000),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		DefaultProvider: getEnv("DEFAULT_PROVIDER", ""),
		EnableFallback:  getEnvAsBool("ENABLE_FALLBACK", true),

		PolygonAPIKey:      getEnv("POLYGON_API_KEY", ""),
		AlphaVantageAPIKey: getEnv("ALPHA_VANTAGE_API_KEY", ""),

		SchwabAppKey:        getEnv("SCHWAB_APP_KEY", ""),
		SchwabAppSecret:     getEnv("SCHWAB_APP_SECRET", ""),
		SchwabRedirectURI:   getEnv("SCHWAB_REDIRECT_URI", ""),
		SchwabEncryptionKey: getEnv("SCHWAB_ENCRYPTION_KEY", ""),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		CORSOrigins: parseCSV(getEnv("CORS_ORIGINS",
			"http://localhost:3000,http://localhost:5173,http://localhost:5174")),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:          getEnv("R2_BUCKET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DefaultProvider != "" {
		switch strings.ToLower(c.DefaultProvider) {
		case "polygon", "yahoo", "yfinance", "alphavantage":
		default:
			return fmt.Errorf("invalid DEFAULT_PROVIDER: %q", c.DefaultProvider)
		}
	}
	return nil
}

// HasPolygonKey reports whether a Polygon API key is configured.
func (c *Config) HasPolygonKey() bool {
	return strings.TrimSpace(c.PolygonAPIKey) != ""
}

// HasAlphaVantageKey reports whether an Alpha Vantage API key is configured.
func (c *Config) HasAlphaVantageKey() bool {
	return strings.TrimSpace(c.AlphaVantageAPIKey) != ""
}

// BackupsEnabled reports whether R2 backup credentials are configured.
func (c *Config) BackupsEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2Bucket != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// parseCSV splits a comma-separated string into trimmed non-empty values.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, v := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
