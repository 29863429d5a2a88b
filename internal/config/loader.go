package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables.
// Unset values take their defaults; the result is validated before return.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, err := lookup(field.Tag)
		if err != nil {
			return err
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// lookup resolves a field's raw value: primary env var, then envAlt, then default.
func lookup(tag reflect.StructTag) (string, error) {
	envName := tag.Get("env")

	value := os.Getenv(envName)
	if alt := tag.Get("envAlt"); value == "" && alt != "" {
		value = os.Getenv(alt)
	}
	if value != "" {
		return value, nil
	}

	if tag.Get("required") == "true" {
		return "", fmt.Errorf("required environment variable %s is not set", envName)
	}
	return tag.Get("default"), nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is usable.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	// Database
	if c.Database.URL == "" {
		add("DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		add("DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		add("DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		add("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.UploadRateLimit < 0 {
		add("SERVER_UPLOAD_RATE_LIMIT must be non-negative")
	}
	if c.Server.RequireAPIKey && len(c.Server.APIKeys) == 0 {
		add("SERVER_API_KEYS must be set when SERVER_REQUIRE_API_KEY is true")
	}

	// Import
	if c.Import.DefaultBatchSize <= 0 {
		add("IMPORT_DEFAULT_BATCH_SIZE must be positive")
	}
	if c.Import.MaxAttempts <= 0 {
		add("IMPORT_MAX_ATTEMPTS must be positive")
	}
	if c.Import.RetryBackoff < 0 {
		add("IMPORT_RETRY_BACKOFF must be non-negative")
	}
	if c.Import.MaxFileSize <= 0 {
		add("IMPORT_MAX_FILE_SIZE must be positive")
	}
	switch strings.ToLower(c.Import.RowErrorPolicy) {
	case "skip", "abort":
	default:
		add("IMPORT_ROW_ERROR_POLICY (%q) must be one of: skip, abort", c.Import.RowErrorPolicy)
	}

	// Queue
	if c.Queue.Workers <= 0 {
		add("QUEUE_WORKERS must be positive")
	}
	if c.Queue.Enabled {
		if c.Queue.RedisAddr == "" {
			add("REDIS_ADDR is required when QUEUE_ENABLED is true")
		}
		if c.Queue.Stream == "" || c.Queue.Group == "" {
			add("QUEUE_STREAM and QUEUE_GROUP must be set when QUEUE_ENABLED is true")
		}
		if c.Queue.ClaimInterval <= 0 {
			add("QUEUE_CLAIM_INTERVAL must be positive")
		}
	}

	// Storage
	switch strings.ToLower(c.Storage.Backend) {
	case "local":
		if c.Storage.Dir == "" {
			add("STORAGE_DIR is required for the local backend")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			add("STORAGE_BUCKET is required for the s3 backend")
		}
	default:
		add("STORAGE_BACKEND (%q) must be one of: local, s3", c.Storage.Backend)
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a representation of the config that is safe to log.
// The database URL and storage secrets are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Import: {DefaultBatchSize: %d, MaxAttempts: %d, RowErrorPolicy: %q}, ",
		c.Import.DefaultBatchSize, c.Import.MaxAttempts, c.Import.RowErrorPolicy)
	fmt.Fprintf(&b, "Queue: {Enabled: %v, Stream: %q, Workers: %d}, ",
		c.Queue.Enabled, c.Queue.Stream, c.Queue.Workers)
	fmt.Fprintf(&b, "Storage: {Backend: %q, Bucket: %q, SecretKey: [MASKED]}, ",
		c.Storage.Backend, c.Storage.Bucket)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
