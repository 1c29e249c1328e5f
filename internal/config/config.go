package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the DynaQ tracking service.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Catalog  CatalogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Geo      GeoConfig
	Tracking TrackingConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// StorageConfig selects the event store backend.
type StorageConfig struct {
	Driver         string // memory, redis, badger or postgres
	BadgerPath     string
	RedisKeyPrefix string
}

// CatalogConfig selects where projects, ads and surveys are read from.
type CatalogConfig struct {
	Driver       string // memory or postgres
	EnsureSchema bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GeoConfig configures GeoIP country enrichment.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
	CacheSize    int
	CacheTTL     time.Duration
}

// TrackingConfig tunes ingestion.
type TrackingConfig struct {
	// VerifyProject rejects events for projects missing from the catalog.
	VerifyProject bool
	// TrustedProxies are passed to the router for client IP resolution.
	TrustedProxies []string
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory if there is one.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("DYNAQ_HTTP_ADDR", ":8080"),
			Env:             getEnv("DYNAQ_ENV", "development"),
			ShutdownTimeout: getDurationEnv("DYNAQ_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  getDurationEnv("DYNAQ_REQUEST_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Driver:         getEnv("DYNAQ_STORAGE_DRIVER", DriverMemory),
			BadgerPath:     getEnv("DYNAQ_BADGER_PATH", "./data/events"),
			RedisKeyPrefix: getEnv("DYNAQ_REDIS_KEY_PREFIX", "dynaq:"),
		},
		Catalog: CatalogConfig{
			Driver:       getEnv("DYNAQ_CATALOG_DRIVER", DriverMemory),
			EnsureSchema: getBoolEnv("DYNAQ_CATALOG_ENSURE_SCHEMA", true),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DYNAQ_DB_HOST", "localhost"),
			Port:     getIntEnv("DYNAQ_DB_PORT", 5432),
			User:     getEnv("DYNAQ_DB_USER", "dynaq"),
			Password: getEnv("DYNAQ_DB_PASSWORD", "dynaq_secret"),
			DBName:   getEnv("DYNAQ_DB_NAME", "dynaq"),
			SSLMode:  getEnv("DYNAQ_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("DYNAQ_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("DYNAQ_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("DYNAQ_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("DYNAQ_REDIS_PASSWORD", ""),
			DB:       getIntEnv("DYNAQ_REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("DYNAQ_LOG_LEVEL", "info"),
			Format: getEnv("DYNAQ_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("DYNAQ_METRICS_ENABLED", true),
			Path:    getEnv("DYNAQ_METRICS_PATH", "/metrics"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("DYNAQ_GEO_ENABLED", false),
			DatabasePath: getEnv("DYNAQ_GEO_DB_PATH", ""),
			CacheSize:    getIntEnv("DYNAQ_GEO_CACHE_SIZE", 10000),
			CacheTTL:     getDurationEnv("DYNAQ_GEO_CACHE_TTL", time.Hour),
		},
		Tracking: TrackingConfig{
			VerifyProject:  getBoolEnv("DYNAQ_VERIFY_PROJECT", false),
			TrustedProxies: getSliceEnv("DYNAQ_TRUSTED_PROXIES", nil),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverMemory, DriverRedis, DriverPostgres:
	case DriverBadger:
		if c.Storage.BadgerPath == "" {
			errs = append(errs, errors.New("DYNAQ_BADGER_PATH is required for the badger driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Catalog.Driver {
	case DriverMemory, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown catalog driver %q", c.Catalog.Driver))
	}

	if c.Geo.Enabled && c.Geo.DatabasePath == "" {
		errs = append(errs, errors.New("DYNAQ_GEO_DB_PATH is required when geo is enabled"))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// NeedsPostgres reports whether any component is backed by PostgreSQL.
func (c *Config) NeedsPostgres() bool {
	return c.Storage.Driver == DriverPostgres || c.Catalog.Driver == DriverPostgres
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
