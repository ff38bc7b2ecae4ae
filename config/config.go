// Package config loads service configuration from the environment.
//
// An optional .env file in the working directory is read first; real
// environment variables always win over values from the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Tracing   TracingConfig
	Profiling ProfilingConfig
	Shutdown  ShutdownConfig
	Admin     AdminConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Env         string
	Port        string
	FrontendURL string
}

type LoggingConfig struct {
	Level string
}

// DatabaseConfig describes the relational store and the connection pool in
// front of it.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	// PoolSize is the maximum number of live connections.
	PoolSize int
	// MinConns connections are kept open even when idle.
	MinConns int

	AcquireTimeout     string
	QueryTimeout       string
	SlowQueryThreshold string
}

type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}

type ProfilingConfig struct {
	Enabled  bool
	Endpoint string
}

type ShutdownConfig struct {
	Timeout             string
	ReadinessDrainDelay string
}

// AdminConfig gates the /admin routes. JWTSecret verifies HS256 admin
// tokens. An empty secret opens the routes and is only accepted in
// development.
type AdminConfig struct {
	JWTSecret string
}

// Load reads configuration from the environment.
func Load() *Config {
	// Missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	return &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "house"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Env:         getEnv("SERVICE_ENV", "development"),
			Port:        getEnv("PORT", "8000"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "postgres"),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", "easyrent"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			PoolSize:           getEnvInt("DB_POOL_LIMIT", 10),
			MinConns:           getEnvInt("DB_POOL_MIN", 0),
			AcquireTimeout:     getEnv("DB_ACQUIRE_TIMEOUT", "10s"),
			QueryTimeout:       getEnv("DB_QUERY_TIMEOUT", "30s"),
			SlowQueryThreshold: getEnv("DB_SLOW_QUERY_THRESHOLD", "1s"),
		},
		Tracing: TracingConfig{
			Enabled:    getEnvBool("TRACING_ENABLED", false),
			Endpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			SampleRate: getEnvFloat("OTEL_SAMPLE_RATE", 0.1),
		},
		Profiling: ProfilingConfig{
			Enabled:  getEnvBool("PROFILING_ENABLED", false),
			Endpoint: getEnv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040"),
		},
		Shutdown: ShutdownConfig{
			Timeout:             getEnv("SHUTDOWN_TIMEOUT", "10s"),
			ReadinessDrainDelay: getEnv("READINESS_DRAIN_DELAY", "0s"),
		},
		Admin: AdminConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		},
	}
}

// Validate checks that every value is usable before anything is started.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.Database.Host == "" {
		errs = append(errs, errors.New("DB_HOST must not be empty"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("DB_NAME must not be empty"))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT out of range: %d", c.Database.Port))
	}
	if c.Database.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("DB_POOL_LIMIT must be >= 1, got %d", c.Database.PoolSize))
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.PoolSize {
		errs = append(errs, fmt.Errorf("DB_POOL_MIN must be within [0, %d], got %d", c.Database.PoolSize, c.Database.MinConns))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.Tracing.SampleRate))
	}
	if c.Admin.JWTSecret == "" && !c.IsDevelopment() {
		errs = append(errs, fmt.Errorf("ADMIN_JWT_SECRET must be set when SERVICE_ENV is %q", c.Service.Env))
	}

	durations := map[string]string{
		"DB_ACQUIRE_TIMEOUT":      c.Database.AcquireTimeout,
		"DB_QUERY_TIMEOUT":        c.Database.QueryTimeout,
		"DB_SLOW_QUERY_THRESHOLD": c.Database.SlowQueryThreshold,
		"SHUTDOWN_TIMEOUT":        c.Shutdown.Timeout,
		"READINESS_DRAIN_DELAY":   c.Shutdown.ReadinessDrainDelay,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

// DSN builds a PostgreSQL connection URL from the database settings.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (d DatabaseConfig) GetAcquireTimeoutDuration() time.Duration {
	return parseDuration(d.AcquireTimeout, 10*time.Second)
}

func (d DatabaseConfig) GetQueryTimeoutDuration() time.Duration {
	return parseDuration(d.QueryTimeout, 30*time.Second)
}

func (d DatabaseConfig) GetSlowQueryThresholdDuration() time.Duration {
	return parseDuration(d.SlowQueryThreshold, time.Second)
}

func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.Shutdown.Timeout, 10*time.Second)
}

func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	return parseDuration(c.Shutdown.ReadinessDrainDelay, 0)
}

// IsDevelopment reports whether the service runs with developer defaults.
func (c *Config) IsDevelopment() bool {
	return c.Service.Env == "development"
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
