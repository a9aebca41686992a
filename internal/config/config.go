package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/projektkollen/collector/internal/logger"
)

const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultServerIdle      = 60 * time.Second
	defaultDatabasePort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute

	defaultRegionsFile    = "regions.yml"
	defaultUserAgent      = "Mozilla/5.0 (compatible; projektkollen-collector/1.0)"
	defaultRequestTimeout = 30 * time.Second
	defaultSessionTTL     = 20 * time.Minute
	defaultMaxPages       = 100
	defaultPageDelayMin   = time.Second
	defaultPageDelayMax   = 2 * time.Second
	defaultDetailDelay    = time.Second
	defaultTaskRetention  = time.Hour

	defaultRateLimitRequests = 5
	defaultRateLimitWindow   = time.Minute

	defaultSchedule = "0 6 * * *"
	defaultLookback = 7 * 24 * time.Hour
)

// Config is the root configuration for the collector.
type Config struct {
	Debug     bool            `mapstructure:"debug"`
	Log       logger.Config   `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Collector CollectorConfig `mapstructure:"collector"`
	API       APIConfig       `mapstructure:"api"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
}

// Address returns the host:port listen address.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CollectorConfig holds collection run configuration.
type CollectorConfig struct {
	// RegionsFile is the path to the region definitions file.
	RegionsFile string `mapstructure:"regions_file"`
	// UserAgent is sent on every outbound request.
	UserAgent string `mapstructure:"user_agent"`
	// RequestTimeout bounds a single page fetch.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// SessionTTL is how long a cached session is considered fresh.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// MaxPages caps the page loop for regions without their own cap.
	MaxPages int `mapstructure:"max_pages"`
	// PageDelayMin and PageDelayMax bound the randomized delay between pages.
	PageDelayMin time.Duration `mapstructure:"page_delay_min"`
	PageDelayMax time.Duration `mapstructure:"page_delay_max"`
	// DetailDelay is the delay between case detail requests.
	DetailDelay time.Duration `mapstructure:"detail_delay"`
	// TaskRetention is how long finished tasks stay queryable.
	TaskRetention time.Duration `mapstructure:"task_retention"`
}

// APIConfig holds API behavior configuration.
type APIConfig struct {
	// RateLimitRequests is the number of collection triggers allowed per
	// client IP within RateLimitWindow.
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

// SchedulerConfig holds scheduled collection configuration.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Schedule is a cron expression for automatic collection runs.
	Schedule string `mapstructure:"schedule"`
	// Regions limits scheduled runs to the named regions (empty = all enabled).
	Regions []string `mapstructure:"regions"`
	// Lookback bounds scheduled runs to cases registered within this window.
	Lookback time.Duration `mapstructure:"lookback"`
}

// Validate checks that required settings are present and sane.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port is required and must be positive")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Port <= 0 {
		return errors.New("database.port is required and must be positive")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Collector.RegionsFile == "" {
		return errors.New("collector.regions_file is required")
	}
	if c.Collector.PageDelayMax < c.Collector.PageDelayMin {
		return errors.New("collector.page_delay_max must not be less than page_delay_min")
	}
	return nil
}

// Load reads, defaults and validates configuration from path.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
