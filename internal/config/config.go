// Package config provides centralized configuration management for the import service.
// It loads configuration from environment variables with defaults and
// validates all settings on startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Queue    QueueConfig
	Storage  StorageConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies are CIDRs whose X-Real-IP / X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES"`

	// UploadRateLimit is the number of uploads allowed per client IP per minute; 0 disables (default: 60)
	UploadRateLimit int `env:"SERVER_UPLOAD_RATE_LIMIT" default:"60"`

	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"SERVER_REQUIRE_API_KEY" default:"false"`

	// APIKeys is the comma-separated list of accepted API keys
	APIKeys []string `env:"SERVER_API_KEYS"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending schema migrations at startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// ImportConfig holds settings for the batch import pipeline.
type ImportConfig struct {
	// DefaultBatchSize is used when a platform config omits batch_size (default: 1000)
	DefaultBatchSize int `env:"IMPORT_DEFAULT_BATCH_SIZE" default:"1000"`

	// MaxAttempts is how many times a whole run is attempted (default: 3)
	MaxAttempts int `env:"IMPORT_MAX_ATTEMPTS" default:"3"`

	// RetryBackoff is the delay before the first retry, doubled per attempt (default: 2s)
	RetryBackoff time.Duration `env:"IMPORT_RETRY_BACKOFF" default:"2s"`

	// RowErrorPolicy decides what a row parsing error does: skip or abort (default: skip)
	RowErrorPolicy string `env:"IMPORT_ROW_ERROR_POLICY" default:"skip"`

	// RunTimeout bounds a single import attempt (default: 30m)
	RunTimeout time.Duration `env:"IMPORT_RUN_TIMEOUT" default:"30m"`

	// MaxFileSize is the maximum accepted upload size in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// PlatformConfigPath is the platform mapping document loaded by load-configs
	PlatformConfigPath string `env:"IMPORT_PLATFORM_CONFIG" default:"configs/platform_config.yaml"`
}

// QueueConfig holds Redis Streams task queue settings.
type QueueConfig struct {
	// Enabled switches between the Redis queue and in-process execution (default: true)
	Enabled bool `env:"QUEUE_ENABLED" default:"true"`

	// RedisAddr is the Redis host:port (default: localhost:6379)
	RedisAddr string `env:"REDIS_ADDR" default:"localhost:6379"`

	// RedisPassword is the optional Redis password
	RedisPassword string `env:"REDIS_PASSWORD"`

	// RedisDB is the Redis logical database (default: 0)
	RedisDB int `env:"REDIS_DB" default:"0"`

	// Stream is the stream key jobs are published to (default: sales:imports)
	Stream string `env:"QUEUE_STREAM" default:"sales:imports"`

	// Group is the consumer group name (default: importers)
	Group string `env:"QUEUE_GROUP" default:"importers"`

	// Consumer is this process's consumer name; defaults to the hostname
	Consumer string `env:"QUEUE_CONSUMER"`

	// Workers is the number of concurrent import runs (default: 4)
	Workers int `env:"QUEUE_WORKERS" default:"4"`

	// BlockTimeout is how long a read waits for new jobs (default: 5s)
	BlockTimeout time.Duration `env:"QUEUE_BLOCK_TIMEOUT" default:"5s"`

	// ClaimInterval is how often stale pending jobs are reclaimed (default: 1m)
	ClaimInterval time.Duration `env:"QUEUE_CLAIM_INTERVAL" default:"1m"`

	// ClaimMinIdle is how long a job must be pending before it is reclaimed (default: 10m)
	ClaimMinIdle time.Duration `env:"QUEUE_CLAIM_MIN_IDLE" default:"10m"`
}

// StorageConfig holds settings for where uploaded source files are kept.
type StorageConfig struct {
	// Backend is local or s3 (default: local)
	Backend string `env:"STORAGE_BACKEND" default:"local"`

	// Dir is the local directory for uploaded files (default: tmp)
	Dir string `env:"STORAGE_DIR" default:"tmp"`

	// Bucket is the S3 bucket name
	Bucket string `env:"STORAGE_BUCKET"`

	// Endpoint is an optional S3-compatible endpoint (MinIO etc.)
	Endpoint string `env:"STORAGE_ENDPOINT"`

	// Region is the S3 region (default: us-east-1)
	Region string `env:"STORAGE_REGION" default:"us-east-1"`

	// AccessKey is the S3 access key id
	AccessKey string `env:"STORAGE_ACCESS_KEY"`

	// SecretKey is the S3 secret access key
	SecretKey string `env:"STORAGE_SECRET_KEY"`

	// UsePathStyle enables path-style addressing (default: true)
	UsePathStyle bool `env:"STORAGE_USE_PATH_STYLE" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled mounts /metrics on the HTTP server (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Path is the metrics endpoint path (default: /metrics)
	Path string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
