package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Message store backends
const (
	StorePostgres = "postgres"
	StorePebble   = "pebble"
	StoreMemory   = "memory"
)

type Config struct {
	Env               string
	Port              string
	DatabaseURL       string
	JWTSecret         string
	TokenTTL          time.Duration
	MessageStore      string
	PebblePath        string
	UploadDir         string
	UploadBaseURL     string
	MaxUploadBytes    int
	UploadConcurrency int
	AppendTimeout     time.Duration
	CORSOrigins       string
	LogLevel          string
	LogFormat         string
}

// Load reads configuration from the environment. Call godotenv.Load first to
// pick up a .env file.
func Load() *Config {
	return &Config{
		Env:               getEnv("ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		JWTSecret:         getEnv("JWT_SECRET", "dev-jwt-secret-not-for-production-use"),
		TokenTTL:          getEnvDuration("TOKEN_TTL", 24*time.Hour),
		MessageStore:      strings.ToLower(getEnv("MESSAGE_STORE", StorePostgres)),
		PebblePath:        getEnv("PEBBLE_PATH", "./data/messages"),
		UploadDir:         getEnv("UPLOAD_DIR", "./uploads"),
		UploadBaseURL:     getEnv("UPLOAD_BASE_URL", "/uploads"),
		MaxUploadBytes:    getEnvInt("MAX_UPLOAD_BYTES", 5*1024*1024),
		UploadConcurrency: getEnvInt("UPLOAD_CONCURRENCY", 4),
		AppendTimeout:     getEnvDuration("APPEND_TIMEOUT", 10*time.Second),
		CORSOrigins:       getEnv("CORS_ORIGINS", "http://localhost:3000"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "pretty"),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.MessageStore {
	case StorePostgres, StorePebble, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("MESSAGE_STORE must be postgres, pebble or memory, got %q", c.MessageStore))
	}

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.MessageStore == StorePebble && c.PebblePath == "" {
		errs = append(errs, errors.New("PEBBLE_PATH is required for the pebble message store"))
	}
	if c.IsProduction() && strings.HasPrefix(c.JWTSecret, "dev-") {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.UploadConcurrency <= 0 {
		errs = append(errs, errors.New("UPLOAD_CONCURRENCY must be positive"))
	}
	if c.AppendTimeout <= 0 {
		errs = append(errs, errors.New("APPEND_TIMEOUT must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
