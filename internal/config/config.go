// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Caller identity
	AuthSecret string // HS256 secret for bearer tokens issued by the account service

	// Apple App Store
	AppleIssuerID     string // App Store Connect issuer ID
	AppleKeyID        string // ID of the ES256 signing key
	ApplePrivateKey   string // PKCS#8 PEM, \n-escaped form accepted
	AppleBundleID     string
	AppleSharedSecret string // app-specific shared secret for /verifyReceipt
	AppleSandbox      bool

	// Google Play
	GooglePackageName     string
	GoogleCredentialsJSON string // service-account key, scoped to androidpublisher

	// Operational
	RateLimitRPM int
	OTLPEndpoint string // OTLP gRPC endpoint, empty disables tracing
}

const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultRateLimit = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		AuthSecret:            os.Getenv("AUTH_SECRET"),
		AppleIssuerID:         os.Getenv("APPLE_ISSUER_ID"),
		AppleKeyID:            os.Getenv("APPLE_KEY_ID"),
		ApplePrivateKey:       normalizePEM(os.Getenv("APPLE_PRIVATE_KEY")),
		AppleBundleID:         os.Getenv("APPLE_BUNDLE_ID"),
		AppleSharedSecret:     os.Getenv("APPLE_SHARED_SECRET"),
		AppleSandbox:          getEnvBool("APPLE_SANDBOX", true),
		GooglePackageName:     os.Getenv("GOOGLE_PACKAGE_NAME"),
		GoogleCredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
		RateLimitRPM:          int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	// The store credentials are optional as a pair: a deployment may serve
	// only one store. Partial Apple config is a misconfiguration, though.
	appleVars := []string{c.AppleIssuerID, c.AppleKeyID, c.ApplePrivateKey, c.AppleBundleID}
	set := 0
	for _, v := range appleVars {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(appleVars) {
		return fmt.Errorf("APPLE_ISSUER_ID, APPLE_KEY_ID, APPLE_PRIVATE_KEY and APPLE_BUNDLE_ID must be set together")
	}

	if (c.GooglePackageName == "") != (c.GoogleCredentialsJSON == "") {
		return fmt.Errorf("GOOGLE_PACKAGE_NAME and GOOGLE_CREDENTIALS_JSON must be set together")
	}

	return nil
}

// AppleEnabled reports whether Apple receipt verification is configured.
func (c *Config) AppleEnabled() bool {
	return c.AppleIssuerID != "" && c.AppleKeyID != "" && c.ApplePrivateKey != "" && c.AppleBundleID != ""
}

// GoogleEnabled reports whether Google Play verification is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GooglePackageName != "" && c.GoogleCredentialsJSON != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

// normalizePEM accepts both literal newlines and \n-escaped key material.
func normalizePEM(s string) string {
	if strings.Contains(s, "\\n") && !strings.Contains(s, "\n") {
		return strings.ReplaceAll(s, "\\n", "\n")
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
