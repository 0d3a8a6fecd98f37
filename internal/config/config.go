// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Store settings.
	Store       string // "sqlite" or "postgres"
	SQLitePath  string
	DatabaseURL string // Required when Store is "postgres".

	// Simulation settings.
	BatteryCurvePath    string // Optional CSV; the embedded curve is used when empty.
	TrajectoryCacheSize int
	MaxActiveRuns       int // 0 means unlimited.

	// Serial ground station. Empty disables the reader.
	SerialDevice string

	// Rate limiting for run starts and prediction imports, per client IP.
	RunStartRate  float64 // Tokens per second; 0 disables limiting.
	RunStartBurst int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	// Logging.
	LogLevel      string
	LogFile       string // Rotated with lumberjack when set.
	LogMaxSizeMB  int
	LogMaxAgeDays int

	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	str := envStr
	integer := func(key string, def int) int {
		v, err := envInt(key, def)
		errs = append(errs, err)
		return v
	}
	float := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		errs = append(errs, err)
		return v
	}
	duration := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		errs = append(errs, err)
		return v
	}
	boolean := func(key string, def bool) bool {
		v, err := envBool(key, def)
		errs = append(errs, err)
		return v
	}

	cfg := Config{
		Port:                integer("KUMO_PORT", 3001),
		ReadTimeout:         duration("KUMO_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        duration("KUMO_WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout:     duration("KUMO_SHUTDOWN_TIMEOUT", 10*time.Second),
		Store:               str("KUMO_STORE", StoreSQLite),
		SQLitePath:          str("KUMO_SQLITE_PATH", "kumo.db"),
		DatabaseURL:         str("DATABASE_URL", ""),
		BatteryCurvePath:    str("KUMO_BATTERY_CURVE", ""),
		TrajectoryCacheSize: integer("KUMO_TRAJECTORY_CACHE_SIZE", 128),
		MaxActiveRuns:       integer("KUMO_MAX_ACTIVE_RUNS", 32),
		SerialDevice:        str("KUMO_SERIAL_DEVICE", ""),
		RunStartRate:        float("KUMO_RUN_START_RATE", 1),
		RunStartBurst:       integer("KUMO_RUN_START_BURST", 5),
		OTELEndpoint:        str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         str("OTEL_SERVICE_NAME", "kumo"),
		OTELInsecure:        boolean("KUMO_OTEL_INSECURE", false),
		LogLevel:            str("KUMO_LOG_LEVEL", "info"),
		LogFile:             str("KUMO_LOG_FILE", ""),
		LogMaxSizeMB:        integer("KUMO_LOG_MAX_SIZE_MB", 100),
		LogMaxAgeDays:       integer("KUMO_LOG_MAX_AGE_DAYS", 28),
		MaxRequestBodyBytes: int64(integer("KUMO_MAX_REQUEST_BODY_BYTES", 4*1024*1024)), // 4 MB default; prediction groups are large
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("KUMO_PORT must be between 0 and 65535, got %d", c.Port))
	}
	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("KUMO_SQLITE_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("KUMO_STORE must be %q or %q, got %q", StoreSQLite, StorePostgres, c.Store))
	}
	if c.TrajectoryCacheSize <= 0 {
		errs = append(errs, errors.New("KUMO_TRAJECTORY_CACHE_SIZE must be positive"))
	}
	if c.MaxActiveRuns < 0 {
		errs = append(errs, errors.New("KUMO_MAX_ACTIVE_RUNS must not be negative"))
	}
	if c.RunStartRate < 0 {
		errs = append(errs, errors.New("KUMO_RUN_START_RATE must not be negative"))
	}
	if c.RunStartRate > 0 && c.RunStartBurst <= 0 {
		errs = append(errs, errors.New("KUMO_RUN_START_BURST must be positive when rate limiting is on"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("KUMO_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("KUMO_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
