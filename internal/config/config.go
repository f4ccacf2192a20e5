package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Cache backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Service   ServiceConfig   `yaml:"service"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
}

type CacheConfig struct {
	Backend           string        `yaml:"backend"`
	TTL               time.Duration `yaml:"ttl"`
	CompressThreshold int           `yaml:"compress_threshold"`
	MaxDecodedBytes   int64         `yaml:"max_decoded_bytes"`
	CoalesceMisses    bool          `yaml:"coalesce_misses"`
	// PurgeInterval is how often expired rows are deleted from SQL backends.
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN builds a pgx connection string that also carries the pool limits.
func (d DatabaseConfig) DSN() string {
	dsn := "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + strconv.Itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
	if d.MaxOpenConns > 0 {
		dsn += "&pool_max_conns=" + strconv.Itoa(d.MaxOpenConns)
	}
	if d.MaxIdleConns > 0 {
		dsn += "&pool_min_conns=" + strconv.Itoa(d.MaxIdleConns)
	}
	if d.ConnMaxLifetime > 0 {
		dsn += "&pool_max_conn_lifetime=" + d.ConnMaxLifetime.String()
	}
	return dsn
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Level maps log_level to a slog level, defaulting to info.
func (t TelemetryConfig) Level() slog.Level {
	switch strings.ToLower(t.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServiceConfig is reported by the health endpoint.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendRedis, BackendPostgres, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl: must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.Backend == BackendSQLite && c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path: required for the sqlite backend")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8007,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			MaxBodyBytes:     10 << 20,
		},
		Cache: CacheConfig{
			Backend:           BackendRedis,
			TTL:               24 * time.Hour,
			CompressThreshold: 1024,
			MaxDecodedBytes:   32 << 20,
			PurgeInterval:     10 * time.Minute,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "llmcache",
			User:            "llmcache",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		SQLite: SQLiteConfig{
			Path: "llmcache.db",
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Service: ServiceConfig{
			Name:    "llm-proxy",
			Version: "0.0.0",
		},
	}
}
