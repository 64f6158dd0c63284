package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/auth"
)

// Registry backends
const (
	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Cache     CacheConfig     `yaml:"cache"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	OpsPort         string        `yaml:"ops_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the two store connections
type DatabaseConfig struct {
	IdentityURL string        `yaml:"identity_url"`
	TenantURL   string        `yaml:"tenant_url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig holds the refresh-token registry backend configuration
type RedisConfig struct {
	// Registry selects the refresh-token registry: memory or redis
	Registry  string `yaml:"registry"`
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AuthConfig holds token and password settings
type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	JWTIssuer        string        `yaml:"jwt_issuer"`
	JWTAudience      string        `yaml:"jwt_audience"`
	AccessTTLMinutes int           `yaml:"access_ttl_minutes"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
	// LoginAttempts per LoginWindow and login; zero disables throttling
	LoginAttempts int           `yaml:"login_attempts"`
	LoginWindow   time.Duration `yaml:"login_window"`
}

// AccessTTL returns the access token lifetime
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTTLMinutes) * time.Minute
}

// CacheConfig holds the user cache configuration
type CacheConfig struct {
	UserCacheSize int           `yaml:"user_cache_size"`
	UserCacheTTL  time.Duration `yaml:"user_cache_ttl"`
	RegistrySize  int           `yaml:"registry_size"`
}

// ReconcileConfig holds the pending-tenant reconciler configuration
type ReconcileConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Schedule    string        `yaml:"schedule"`
	GracePeriod time.Duration `yaml:"grace_period"`
	BatchSize   int           `yaml:"batch_size"`
	Workers     int           `yaml:"workers"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			OpsPort:         "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns: 20,
			MinConns: 2,
			Timeout:  5 * time.Second,
		},
		Redis: RedisConfig{
			Registry:  RegistryMemory,
			DB:        -1,
			KeyPrefix: "warden:refresh:",
		},
		Auth: AuthConfig{
			JWTIssuer:        "warden",
			JWTAudience:      "warden-clients",
			AccessTTLMinutes: 15,
			RefreshTTL:       7 * 24 * time.Hour,
			LoginAttempts:    10,
			LoginWindow:      15 * time.Minute,
		},
		Cache: CacheConfig{
			UserCacheSize: 10000,
			UserCacheTTL:  15 * time.Minute,
			RegistrySize:  100000,
		},
		Reconcile: ReconcileConfig{
			Enabled:     true,
			Schedule:    "@every 5m",
			GracePeriod: 10 * time.Minute,
			BatchSize:   100,
			Workers:     4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from the file named by WARDEN_CONFIG_FILE,
// if any, then applies environment overrides and validates the result
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("WARDEN_CONFIG_FILE", ""); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("WARDEN_HOST", c.Server.Host)
	c.Server.OpsPort = getEnv("WARDEN_OPS_PORT", c.Server.OpsPort)
	c.Server.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.IdentityURL = getEnv("WARDEN_IDENTITY_DB_URL", c.Database.IdentityURL)
	c.Database.TenantURL = getEnv("WARDEN_TENANT_DB_URL", c.Database.TenantURL)
	c.Database.MaxConns = getEnvInt("WARDEN_DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("WARDEN_DB_MIN_CONNS", c.Database.MinConns)
	c.Database.Timeout = getEnvDuration("WARDEN_DB_TIMEOUT", c.Database.Timeout)

	c.Redis.Registry = strings.ToLower(getEnv("WARDEN_REGISTRY", c.Redis.Registry))
	c.Redis.URL = getEnv("WARDEN_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("WARDEN_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("WARDEN_REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("WARDEN_REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.KeyPrefix = getEnv("WARDEN_REDIS_KEY_PREFIX", c.Redis.KeyPrefix)

	c.Auth.JWTSecret = getEnv("WARDEN_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnv("WARDEN_JWT_ISSUER", c.Auth.JWTIssuer)
	c.Auth.JWTAudience = getEnv("WARDEN_JWT_AUDIENCE", c.Auth.JWTAudience)
	c.Auth.AccessTTLMinutes = getEnvInt("WARDEN_ACCESS_TTL_MINUTES", c.Auth.AccessTTLMinutes)
	c.Auth.RefreshTTL = getEnvDuration("WARDEN_REFRESH_TTL", c.Auth.RefreshTTL)
	c.Auth.BcryptCost = getEnvInt("WARDEN_BCRYPT_COST", c.Auth.BcryptCost)
	c.Auth.LoginAttempts = getEnvInt("WARDEN_LOGIN_ATTEMPTS", c.Auth.LoginAttempts)
	c.Auth.LoginWindow = getEnvDuration("WARDEN_LOGIN_WINDOW", c.Auth.LoginWindow)

	c.Cache.UserCacheSize = getEnvInt("WARDEN_USER_CACHE_SIZE", c.Cache.UserCacheSize)
	c.Cache.UserCacheTTL = getEnvDuration("WARDEN_USER_CACHE_TTL", c.Cache.UserCacheTTL)
	c.Cache.RegistrySize = getEnvInt("WARDEN_REGISTRY_SIZE", c.Cache.RegistrySize)

	c.Reconcile.Enabled = getEnvBool("WARDEN_RECONCILE_ENABLED", c.Reconcile.Enabled)
	c.Reconcile.Schedule = getEnv("WARDEN_RECONCILE_SCHEDULE", c.Reconcile.Schedule)
	c.Reconcile.GracePeriod = getEnvDuration("WARDEN_RECONCILE_GRACE", c.Reconcile.GracePeriod)
	c.Reconcile.BatchSize = getEnvInt("WARDEN_RECONCILE_BATCH_SIZE", c.Reconcile.BatchSize)
	c.Reconcile.Workers = getEnvInt("WARDEN_RECONCILE_WORKERS", c.Reconcile.Workers)

	c.Log.Level = getEnv("WARDEN_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("WARDEN_LOG_FORMAT", c.Log.Format)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.OpsPort == "" {
		return errors.New("ops port is required")
	}

	if c.Database.IdentityURL == "" {
		return errors.New("identity database URL is required")
	}
	if c.Database.TenantURL == "" {
		return errors.New("tenant database URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database max conns (%d) below min conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	switch c.Redis.Registry {
	case RegistryMemory:
	case RegistryRedis:
		if c.Redis.URL == "" {
			return errors.New("redis URL is required for the redis registry")
		}
	default:
		return fmt.Errorf("invalid registry: %s (must be memory or redis)", c.Redis.Registry)
	}

	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("jwt secret must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Auth.JWTIssuer == "" || c.Auth.JWTAudience == "" {
		return errors.New("jwt issuer and audience are required")
	}
	if c.Auth.AccessTTLMinutes <= 0 {
		return errors.New("access ttl must be positive")
	}
	if c.Auth.RefreshTTL <= c.Auth.AccessTTL() {
		return errors.New("refresh ttl must exceed access ttl")
	}

	if c.Auth.LoginAttempts > 0 && c.Auth.LoginWindow <= 0 {
		return errors.New("login window must be positive when login throttling is enabled")
	}

	if c.Reconcile.Enabled && c.Reconcile.Schedule == "" {
		return errors.New("reconcile schedule is required when reconciliation is enabled")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Log.Format)
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
