// Package config provides configuration management for the ledger sync
// workers, importer and API server. It loads configuration from environment
// variables and .env files; scheduled jobs come from a YAML jobs file.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Snapshot SnapshotConfig
	HTTP     HTTPConfig
	Notify   NotifyConfig
	Secrets  SecretsConfig
	Logging  LoggingConfig
	JobsFile string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Host           string
	RequestsPerSec int
	MaxBodyBytes   int64
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the postgres:// connection URL used by migrations
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// SnapshotConfig holds snapshot retention configuration
type SnapshotConfig struct {
	TTL time.Duration // expiry horizon applied to every snapshot at write time
}

// HTTPConfig holds outbound HTTP client configuration
type HTTPConfig struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	RetryAttempts     int // attempts per gateway or import call, including the first
}

// NotifyConfig holds notification sink configuration
type NotifyConfig struct {
	WebhookURL string // empty means log-only notifications
}

// SecretsConfig locates the material for opening encrypted (.gpg) secret files
type SecretsConfig struct {
	KeyringFile string // private keyring, armored or binary
	Passphrase  string // key passphrase, or the symmetric passphrase
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			RequestsPerSec: getEnvAsInt("SERVER_REQUESTS_PER_SEC", 20),
			MaxBodyBytes:   int64(getEnvAsInt("SERVER_MAX_BODY_BYTES", 10<<20)),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "ledger"),
				User:           getEnv("POSTGRES_USER", "ledger"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Snapshot: SnapshotConfig{
			TTL: getEnvAsDuration("SNAPSHOT_TTL", 24*time.Hour),
		},
		HTTP: HTTPConfig{
			Timeout:           getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvAsFloat("HTTP_REQUESTS_PER_SEC", 2),
			RetryAttempts:     getEnvAsInt("HTTP_RETRY_ATTEMPTS", 4),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Secrets: SecretsConfig{
			KeyringFile: getEnv("SECRETS_KEYRING", ""),
			Passphrase:  getEnv("SECRETS_PASSPHRASE", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		JobsFile: getEnv("CONFIG_FILE", "jobs.yaml"),
	}

	if config.Snapshot.TTL <= 0 {
		return nil, fmt.Errorf("SNAPSHOT_TTL must be positive, got %v", config.Snapshot.TTL)
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
