// Package config loads MediaKeep server configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mediakeep/mediakeep/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	SSO      SSOConfig
	Session  SessionConfig

	LogLevel observability.LogLevel
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// BaseURL is the externally visible URL of this server, used to build
	// OAuth2 redirect URIs. FrontendURL is where callback redirects land.
	BaseURL     string
	FrontendURL string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3"
	Driver string
	// URL is the postgres connection URL, or the sqlite file path
	URL         string
	MaxConns    int
	MaxIdle     int
	MaxLifetime time.Duration
}

// SSOConfig holds SSO broker configuration
type SSOConfig struct {
	// EncryptionKey is the base64-encoded 32-byte key used to encrypt
	// provider client secrets at rest
	EncryptionKey string

	// StateStore selects where CSRF state tokens live: "db" or "redis"
	StateStore string
	RedisAddr  string
	RedisDB    int
}

// SessionConfig holds session token configuration
type SessionConfig struct {
	// Secret signs session JWTs
	Secret string
	TTL    time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("MEDIAKEEP_HOST", "0.0.0.0"),
			Port:            getEnv("MEDIAKEEP_PORT", "8080"),
			ReadTimeout:     getEnvDuration("MEDIAKEEP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("MEDIAKEEP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("MEDIAKEEP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("MEDIAKEEP_SHUTDOWN_TIMEOUT", 30*time.Second),
			BaseURL:         getEnv("MEDIAKEEP_BASE_URL", "http://localhost:8080"),
			FrontendURL:     getEnv("MEDIAKEEP_FRONTEND_URL", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("MEDIAKEEP_DATABASE_DRIVER", "sqlite3"),
			URL:         getEnv("MEDIAKEEP_DATABASE_URL", "mediakeep.db"),
			MaxConns:    getEnvInt("MEDIAKEEP_DATABASE_MAX_CONNS", 25),
			MaxIdle:     getEnvInt("MEDIAKEEP_DATABASE_MAX_IDLE", 5),
			MaxLifetime: getEnvDuration("MEDIAKEEP_DATABASE_MAX_LIFETIME", 30*time.Minute),
		},
		SSO: SSOConfig{
			EncryptionKey: getEnv("MEDIAKEEP_SSO_ENCRYPTION_KEY", ""),
			StateStore:    getEnv("MEDIAKEEP_SSO_STATE_STORE", "db"),
			RedisAddr:     getEnv("MEDIAKEEP_REDIS_ADDR", "localhost:6379"),
			RedisDB:       getEnvInt("MEDIAKEEP_REDIS_DB", 0),
		},
		Session: SessionConfig{
			Secret: getEnv("MEDIAKEEP_SESSION_SECRET", ""),
			TTL:    getEnvDuration("MEDIAKEEP_SESSION_TTL", 24*time.Hour),
		},
		LogLevel: observability.ParseLogLevel(getEnv("MEDIAKEEP_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.SSO.StateStore {
	case "db", "redis":
	default:
		return fmt.Errorf("unsupported SSO state store: %s", c.SSO.StateStore)
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("MEDIAKEEP_SESSION_SECRET is required")
	}

	return nil
}

// Addr returns the server listen address
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
