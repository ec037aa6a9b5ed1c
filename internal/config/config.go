// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Directory DirectoryConfig
	Scanner   ScannerConfig
	SiteCache SiteCacheConfig
	Worker    WorkerConfig
	Admin     AdminConfig
	Schedule  ScheduleConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
	InventoryTTL  time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// DirectoryConfig holds the remote directory (SharePoint) client
// configuration. Token acquisition is an external concern; the token
// arrives via environment.
type DirectoryConfig struct {
	SourceAdminURL    string
	DestAdminURL      string
	AccessToken       string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int

	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// ScannerConfig holds the bounded parallel scanner knobs.
type ScannerConfig struct {
	// DegreeOfParallelism is the fixed worker pool size per batch.
	DegreeOfParallelism int
	// BatchSize caps how many sites are submitted before draining.
	BatchSize int
	// BatchPause is the fixed pause between batches, smoothing the
	// outbound request rate.
	BatchPause time.Duration
	// ExportDir receives the gzip CSV artifacts of finished runs.
	ExportDir string
}

// SiteCacheConfig holds the site list staleness policy.
type SiteCacheConfig struct {
	MaxAge       time.Duration
	ForceRefresh bool
}

// WorkerConfig holds the background job worker configuration.
type WorkerConfig struct {
	Concurrency int
}

// AdminConfig holds the API admin key.
type AdminConfig struct {
	APIKey string
}

// ScheduleConfig holds the recurring audit cron specs. Empty specs
// disable the corresponding schedule.
type ScheduleConfig struct {
	AppScanSpec   string
	ReconcileSpec string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "tenantaudit"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),

			RateLimitPerSecond: getEnvFloat("SERVER_RATE_LIMIT_RPS", 20),
			RateLimitBurst:     getEnvInt("SERVER_RATE_LIMIT_BURST", 40),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "tenantaudit"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "tenantaudit"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryDelay: getEnvDuration("REDIS_MIN_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay: getEnvDuration("REDIS_MAX_RETRY_DELAY", 3*time.Second),
			InventoryTTL:  getEnvDuration("REDIS_INVENTORY_TTL", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Directory: DirectoryConfig{
			SourceAdminURL:    getEnv("DIRECTORY_SOURCE_ADMIN_URL", ""),
			DestAdminURL:      getEnv("DIRECTORY_DEST_ADMIN_URL", ""),
			AccessToken:       getEnv("DIRECTORY_ACCESS_TOKEN", ""),
			RequestTimeout:    getEnvDuration("DIRECTORY_REQUEST_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvFloat("DIRECTORY_RPS", 10),
			Burst:             getEnvInt("DIRECTORY_BURST", 5),
			MaxRetries:        getEnvInt("RETRY_MAX", 5),
			InitialDelay:      getEnvDuration("RETRY_INITIAL_DELAY", 2*time.Second),
			MaxDelay:          getEnvDuration("RETRY_MAX_DELAY", 60*time.Second),
		},
		Scanner: ScannerConfig{
			DegreeOfParallelism: getEnvInt("SCAN_PARALLELISM", 6),
			BatchSize:           getEnvInt("SCAN_BATCH_SIZE", 1000),
			BatchPause:          getEnvDuration("SCAN_BATCH_PAUSE", 5*time.Second),
			ExportDir:           getEnv("SCAN_EXPORT_DIR", "./exports"),
		},
		SiteCache: SiteCacheConfig{
			MaxAge:       getEnvDuration("SITE_CACHE_MAX_AGE", 72*time.Hour),
			ForceRefresh: getEnvBool("SITE_CACHE_FORCE_REFRESH", false),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		},
		Admin: AdminConfig{
			APIKey: getEnv("ADMIN_API_KEY", ""),
		},
		Schedule: ScheduleConfig{
			AppScanSpec:   getEnv("SCHEDULE_APP_SCAN_CRON", ""),
			ReconcileSpec: getEnv("SCHEDULE_RECONCILE_CRON", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

// validateBasic validates basic configuration regardless of environment.
func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Scanner.DegreeOfParallelism < 1 {
		return fmt.Errorf("SCAN_PARALLELISM must be at least 1, got %d", c.Scanner.DegreeOfParallelism)
	}
	if c.Scanner.BatchSize < 1 {
		return fmt.Errorf("SCAN_BATCH_SIZE must be at least 1, got %d", c.Scanner.BatchSize)
	}
	if c.Scanner.BatchPause < 0 {
		return fmt.Errorf("SCAN_BATCH_PAUSE must be non-negative")
	}
	if c.Directory.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX must be non-negative, got %d", c.Directory.MaxRetries)
	}
	if c.Directory.InitialDelay <= 0 || c.Directory.MaxDelay <= 0 {
		return fmt.Errorf("retry delays must be positive")
	}
	if c.Directory.MaxDelay < c.Directory.InitialDelay {
		return fmt.Errorf("RETRY_MAX_DELAY must be at least RETRY_INITIAL_DELAY")
	}
	if c.Directory.RequestTimeout <= 0 {
		return fmt.Errorf("DIRECTORY_REQUEST_TIMEOUT must be positive")
	}
	if c.SiteCache.MaxAge <= 0 {
		return fmt.Errorf("SITE_CACHE_MAX_AGE must be positive")
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	return nil
}

// validateLog validates logging configuration.
func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}
	return nil
}

// validateProduction validates production-specific configuration.
func (c *Config) validateProduction() error {
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("database SSL must be enabled in production (use 'require' or 'verify-full')")
	}
	if c.Redis.Password == "" {
		return fmt.Errorf("redis password must be set in production")
	}
	if c.Admin.APIKey == "" {
		return fmt.Errorf("ADMIN_API_KEY is required in production")
	}
	if len(c.Admin.APIKey) < 32 {
		return fmt.Errorf("ADMIN_API_KEY must be at least 32 characters in production")
	}
	if c.App.Debug {
		return fmt.Errorf("debug mode must be disabled in production")
	}
	if strings.ToLower(c.Log.Level) == "debug" {
		return fmt.Errorf("log level should not be 'debug' in production")
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
