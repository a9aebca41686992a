// Package config provides configuration loading for the collector.
// Configuration comes from a YAML file, with environment variables
// overriding both file values and defaults.
//
// Environment variables follow the key path with dots replaced by
// underscores, e.g. COLLECTOR_MAX_PAGES overrides collector.max_pages.
// A few variables keep their historical names instead (DB_HOST, DB_PORT,
// DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE, APP_DEBUG, SCHEDULER_CRON,
// CORS_ORIGINS).
//
// .env files are loaded before overrides are applied, in the following
// priority order (higher overrides lower):
//
//  1. Environment variable ENV_FILE (if set, loads only this file)
//  2. .env.local (if exists, overrides .env)
//  3. .env (default, always checked if ENV_FILE is not set)
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps config keys to environment variables whose names do
// not follow the automatic dot-to-underscore form.
var envBindings = map[string]string{
	"debug":               "APP_DEBUG",
	"server.cors_origins": "CORS_ORIGINS",
	"database.host":       "DB_HOST",
	"database.port":       "DB_PORT",
	"database.user":       "DB_USER",
	"database.password":   "DB_PASSWORD",
	"database.dbname":     "DB_NAME",
	"database.sslmode":    "DB_SSLMODE",
	"scheduler.schedule":  "SCHEDULER_CRON",
}

// loadEnvFiles loads .env files in priority order.
// File-not-found errors are ignored; anything else is fatal.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}

	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

// load reads the YAML config file and resolves it against defaults and
// environment variables. Precedence: env > file > defaults.
func load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Enable automatic environment variable reading before reading the
	// file so environment values take precedence.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, envVar := range envBindings {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("bind %s: %w", envVar, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.output_paths", []string{"stdout"})

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.idle_timeout", defaultServerIdle)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", defaultDatabasePort)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "projektkollen")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", defaultConnMaxLifetime)

	v.SetDefault("collector.regions_file", defaultRegionsFile)
	v.SetDefault("collector.user_agent", defaultUserAgent)
	v.SetDefault("collector.request_timeout", defaultRequestTimeout)
	v.SetDefault("collector.session_ttl", defaultSessionTTL)
	v.SetDefault("collector.max_pages", defaultMaxPages)
	v.SetDefault("collector.page_delay_min", defaultPageDelayMin)
	v.SetDefault("collector.page_delay_max", defaultPageDelayMax)
	v.SetDefault("collector.detail_delay", defaultDetailDelay)
	v.SetDefault("collector.task_retention", defaultTaskRetention)

	v.SetDefault("api.rate_limit_requests", defaultRateLimitRequests)
	v.SetDefault("api.rate_limit_window", defaultRateLimitWindow)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.schedule", defaultSchedule)
	v.SetDefault("scheduler.lookback", defaultLookback)
}

// GetConfigPath returns the config path from CONFIG_PATH env var or the default.
func GetConfigPath(defaultPath string) string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return defaultPath
}
